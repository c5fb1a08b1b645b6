package evmchannel

import (
	"context"
	"math/big"

	"gitlab.com/warrant1/warrant/settlement-core/internal/coretypes"
)

// ingestLoop processes contract events in the order the client delivers
// them (assumed block-number order per spec.md §5), applying each
// idempotently to the cache. Unknown channels are ignored.
func (m *Manager) ingestLoop(ctx context.Context, events <-chan ChannelEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.applyEvent(ev)
		}
	}
}

func (m *Manager) applyEvent(ev ChannelEvent) {
	entry, ok := m.lookup(ev.ChannelID)
	if !ok {
		if m.log != nil {
			m.log.Debug("evm event for unknown channel ignored", "channel_id", ev.ChannelID, "kind", ev.Kind)
		}
		return
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	switch ev.Kind {
	case EventChannelOpened:
		entry.state.Status = coretypes.EvmChannelOpened
		if ev.Deposit != nil {
			entry.state.SelfDeposit = ev.Deposit
		}
	case EventChannelDeposit:
		if ev.Deposit != nil {
			entry.state.SelfDeposit = ev.Deposit
		}
	case EventChannelClosed:
		now := m.clock.Now()
		entry.state.Status = coretypes.EvmChannelClosed
		entry.state.ClosedAt = &now
	case EventChannelSettled:
		entry.state.Status = coretypes.EvmChannelSettled
	}
}

// DepositMonitorSweep tops up any active channel whose remaining deposit
// has fallen below LowDepositThreshold of its initial deposit, per
// spec.md §4.C.
func (m *Manager) DepositMonitorSweep(ctx context.Context) {
	threshold := m.cfg.LowDepositThreshold
	if threshold <= 0 {
		threshold = 0.5
	}

	for _, entry := range m.activeEntries() {
		entry.mu.Lock()
		status := entry.state.Status
		remaining := new(big.Int).Sub(entry.state.SelfDeposit, entry.state.SelfTransferred)
		initial := entry.initialDeposit
		channelID := entry.meta.ChannelID
		entry.mu.Unlock()

		if status != coretypes.EvmChannelOpened || initial == nil || initial.Sign() == 0 {
			continue
		}

		remainingF := new(big.Float).SetInt(remaining)
		floor := new(big.Float).Mul(new(big.Float).SetInt(initial), big.NewFloat(threshold))
		if remainingF.Cmp(floor) >= 0 {
			continue
		}

		topUp := new(big.Int).Sub(initial, remaining)
		if topUp.Sign() <= 0 {
			continue
		}
		if err := m.Deposit(ctx, channelID, topUp); err != nil && m.log != nil {
			m.log.Error("evm deposit monitor top-up failed", "channel_id", channelID, "error", err)
		}
	}
}

// IdleSweep closes any active channel that has exceeded
// IdleChannelThreshold since its last activity, attempting a cooperative
// close and falling back to unilateral closure on failure.
func (m *Manager) IdleSweep(ctx context.Context) {
	if !m.cfg.CloseIdleChannels {
		return
	}
	threshold := m.cfg.IdleChannelThreshold
	now := m.clock.Now()

	for _, entry := range m.activeEntries() {
		entry.mu.Lock()
		status := entry.state.Status
		lastActive := entry.meta.LastActive
		channelID := entry.meta.ChannelID
		myProof := coretypes.BalanceProof{
			ChannelID:   entry.meta.ChannelID,
			Nonce:       entry.state.SelfNonce + 1,
			Transferred: entry.state.SelfTransferred,
			Locked:      big.NewInt(0),
			LocksRoot:   coretypes.ZeroLocksRoot,
		}
		entry.mu.Unlock()

		if status != coretypes.EvmChannelOpened || now.Sub(lastActive) <= threshold {
			continue
		}

		sig, err := m.client.SignBalanceProof(myProof)
		if err != nil {
			if m.log != nil {
				m.log.Error("idle sweep: sign balance proof failed", "channel_id", channelID, "error", err)
			}
			continue
		}

		// Attempt cooperative settlement first. The idle sweep has no
		// off-chain proof-exchange hook, so the "peer" half is the unsafe
		// stub (spec.md §9 Open Question); the Settlement Executor's
		// cooperative settle uses the same stub.
		if m.log != nil {
			m.log.Warn("idle sweep using UnsafePeerProofStub for cooperative settle attempt", "channel_id", channelID)
		}
		peerProof := coretypes.UnsafePeerProofStub(myProof)
		if err := m.client.CooperativeSettle(ctx, channelID, myProof, peerProof, sig, sig); err == nil {
			continue
		}

		if err := m.Close(ctx, channelID, myProof, sig); err != nil && m.log != nil {
			m.log.Error("idle sweep: unilateral close failed", "channel_id", channelID, "error", err)
		}
	}
}

func (m *Manager) activeEntries() []*cacheEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]*cacheEntry, 0, len(m.byChannelID))
	for _, e := range m.byChannelID {
		entries = append(entries, e)
	}
	return entries
}

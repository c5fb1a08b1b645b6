package xrpchannel

import (
	"context"

	"gitlab.com/warrant1/warrant/settlement-core/internal/coretypes"
)

// IdleSweep closes every open channel whose last recorded activity is older
// than cfg.IdleChannelThreshold, per spec.md §4.D.
func (m *Manager) IdleSweep(ctx context.Context) {
	now := m.clock.Now()
	for peerID, entry := range m.activeEntries() {
		entry.mu.Lock()
		status := entry.state.Status
		lastActive := entry.meta.LastActive
		entry.mu.Unlock()

		if status != coretypes.XrpChannelOpen {
			continue
		}
		if now.Sub(lastActive) <= m.cfg.IdleChannelThreshold {
			continue
		}
		if err := m.CloseChannel(ctx, peerID, CloseIdle); err != nil && m.log != nil {
			m.log.Warn("idle sweep: close channel failed", "peer_id", peerID, "error", err)
		}
	}
}

// ExpiringSweep closes every open channel whose CancelAfter is within
// cfg.ExpirationBuffer of now, preemptively settling before the ledger
// would otherwise cancel the channel out from under the node.
func (m *Manager) ExpiringSweep(ctx context.Context) {
	now := m.clock.Now()
	for peerID, entry := range m.activeEntries() {
		entry.mu.Lock()
		status := entry.state.Status
		channelID := entry.state.ChannelID
		cancelAfter := entry.state.CancelAfter
		entry.mu.Unlock()

		if status != coretypes.XrpChannelOpen {
			continue
		}
		if cancelAfter == nil {
			continue
		}
		if cancelAfter.Sub(now) > m.cfg.ExpirationBuffer {
			continue
		}

		fresh, err := m.client.GetChannel(ctx, channelID)
		if err == nil {
			entry.mu.Lock()
			entry.state = fresh
			entry.mu.Unlock()
		} else if m.log != nil {
			m.log.Warn("expiring sweep: reconcile channel state failed", "peer_id", peerID, "channel_id", channelID, "error", err)
		}

		if err := m.CloseChannel(ctx, peerID, CloseExpiration); err != nil && m.log != nil {
			m.log.Warn("expiring sweep: close channel failed", "peer_id", peerID, "error", err)
		}
	}
}

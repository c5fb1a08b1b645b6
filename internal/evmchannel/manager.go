package evmchannel

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"gitlab.com/warrant1/warrant/settlement-core/internal/clock"
	"gitlab.com/warrant1/warrant/settlement-core/internal/config"
	"gitlab.com/warrant1/warrant/settlement-core/internal/coretypes"
	"gitlab.com/warrant1/warrant/settlement-core/internal/eventbus"
	"gitlab.com/warrant1/warrant/settlement-core/internal/scheduler"
)

// cacheEntry is the Manager's owned, mutex-guarded view of one channel,
// per spec.md §5's ownership rule: only the owning Lifecycle Manager
// mutates it.
type cacheEntry struct {
	mu             sync.Mutex
	meta           coretypes.ChannelMetadata
	state          coretypes.EvmChannelState
	initialDeposit *big.Int
}

// Manager is the EVM Channel Lifecycle Manager of spec.md §4.C.
type Manager struct {
	client EvmChannelClient
	clock  clock.Clock
	log    *slog.Logger
	bus    *eventbus.Bus
	sched  *scheduler.Scheduler
	cfg    config.EvmConfig

	mu          sync.RWMutex
	byPeerToken map[coretypes.PeerTokenKey]*cacheEntry
	byChannelID map[coretypes.ChannelID]*cacheEntry
}

// New builds a Manager. bus and sched may be nil in tests that only
// exercise the channel-state methods directly.
func New(client EvmChannelClient, clk clock.Clock, log *slog.Logger, bus *eventbus.Bus, sched *scheduler.Scheduler, cfg config.EvmConfig) *Manager {
	return &Manager{
		client:      client,
		clock:       clk,
		log:         log,
		bus:         bus,
		sched:       sched,
		cfg:         cfg,
		byPeerToken: make(map[coretypes.PeerTokenKey]*cacheEntry),
		byChannelID: make(map[coretypes.ChannelID]*cacheEntry),
	}
}

// Start registers the deposit-monitor and idle sweeps on sched, and begins
// the event-ingestion loop. Callers invoke Start once after construction.
func (m *Manager) Start(ctx context.Context) error {
	if m.sched != nil {
		m.sched.Every(ctx, "evm-deposit-monitor", m.cfg.DepositMonitorInterval, func(ctx context.Context) {
			m.DepositMonitorSweep(ctx)
		})
		m.sched.Every(ctx, "evm-idle-sweep", m.cfg.IdleCheckInterval, func(ctx context.Context) {
			m.IdleSweep(ctx)
		})
	}

	events, err := m.client.SubscribeEvents(ctx)
	if err != nil {
		return fmt.Errorf("subscribe evm channel events: %w", err)
	}
	go m.ingestLoop(ctx, events)
	return nil
}

// initialDepositFor computes spec.md §4.C's initial deposit: min(owed ×
// multiplier, cap), floored so it at least covers the already-owed amount.
func (m *Manager) initialDepositFor(owed *big.Int) *big.Int {
	multiplier := m.cfg.InitialDepositMultiplier
	if multiplier <= 0 {
		multiplier = 1
	}
	maxMultiplier := m.cfg.MaxDepositMultiplier
	if maxMultiplier <= 0 {
		maxMultiplier = 100
	}

	scaled := new(big.Float).Mul(new(big.Float).SetInt(owed), big.NewFloat(multiplier))
	capped := new(big.Float).Mul(new(big.Float).SetInt(owed), big.NewFloat(maxMultiplier))

	initial := scaled
	if scaled.Cmp(capped) > 0 {
		initial = capped
	}
	initialInt, _ := initial.Int(nil)
	if initialInt.Cmp(owed) < 0 {
		return new(big.Int).Set(owed)
	}
	return initialInt
}

// EnsureChannel returns a cached open channel for (peerID, token) if one
// exists, otherwise opens a new one with the computed initial deposit and
// caches it.
func (m *Manager) EnsureChannel(ctx context.Context, peerID string, token coretypes.TokenId, peerAddr, tokenContract common.Address, owedAmount *big.Int) (coretypes.ChannelID, error) {
	key := coretypes.NewPeerTokenKey(peerID, token)

	m.mu.RLock()
	entry, ok := m.byPeerToken[key]
	m.mu.RUnlock()
	if ok {
		entry.mu.Lock()
		status := entry.state.Status
		entry.mu.Unlock()
		if status == coretypes.EvmChannelOpened {
			return entry.meta.ChannelID, nil
		}
	}

	initial := m.initialDepositFor(owedAmount)
	channelID, err := m.client.OpenChannel(ctx, peerAddr, tokenContract, m.cfg.SettlementTimeout, initial)
	if err != nil {
		return "", fmt.Errorf("open evm channel: %w", err)
	}

	now := m.clock.Now()
	entry = &cacheEntry{
		meta: coretypes.ChannelMetadata{
			ChannelID:  channelID,
			PeerID:     peerID,
			Token:      token.String(),
			OpenedAt:   now,
			LastActive: now,
		},
		state: coretypes.EvmChannelState{
			ChannelID:       channelID,
			Participants:    [2]common.Address{peerAddr, tokenContract},
			TokenContract:   tokenContract,
			SelfDeposit:     initial,
			PeerDeposit:     big.NewInt(0),
			SelfTransferred: big.NewInt(0),
			PeerTransferred: big.NewInt(0),
			Status:          coretypes.EvmChannelOpened,
		},
		initialDeposit: initial,
	}

	m.mu.Lock()
	m.byPeerToken[key] = entry
	m.byChannelID[channelID] = entry
	m.mu.Unlock()

	m.publishActivity(channelID, peerID, "open_channel")
	m.publishTelemetry(coretypes.EventPaymentChannelOpened, peerID, channelID, token.String(), "open_channel", nil)
	return channelID, nil
}

// Deposit raises channelID's on-chain deposit by amount, then refreshes the
// cached deposit figure only after confirmation.
func (m *Manager) Deposit(ctx context.Context, channelID coretypes.ChannelID, amount *big.Int) error {
	entry, ok := m.lookup(channelID)
	if !ok {
		return fmt.Errorf("%w: evm channel %s", coretypes.ErrChannelNotFound, channelID)
	}

	entry.mu.Lock()
	newTotal := new(big.Int).Add(entry.state.SelfDeposit, amount)
	entry.mu.Unlock()

	if err := m.client.SetTotalDeposit(ctx, channelID, newTotal); err != nil {
		return fmt.Errorf("set total deposit: %w", err)
	}

	entry.mu.Lock()
	entry.state.SelfDeposit = newTotal
	entry.mu.Unlock()

	m.publishActivity(channelID, entry.meta.PeerID, "deposit")
	m.publishTelemetry(coretypes.EventPaymentChannelFunded, entry.meta.PeerID, channelID, entry.meta.Token, "deposit", nil)
	return nil
}

// Close submits a unilateral close with proof/signature, marks the channel
// closed, and schedules its challenge-period settle.
func (m *Manager) Close(ctx context.Context, channelID coretypes.ChannelID, proof coretypes.BalanceProof, signature []byte) error {
	entry, ok := m.lookup(channelID)
	if !ok {
		return fmt.Errorf("%w: evm channel %s", coretypes.ErrChannelNotFound, channelID)
	}

	if err := m.client.CloseChannel(ctx, channelID, proof, signature); err != nil {
		return fmt.Errorf("close evm channel: %w", err)
	}

	now := m.clock.Now()
	entry.mu.Lock()
	entry.state.Status = coretypes.EvmChannelClosed
	entry.state.ClosedAt = &now
	entry.mu.Unlock()

	m.publishTelemetry(coretypes.EventPaymentChannelClosed, entry.meta.PeerID, channelID, entry.meta.Token, "close", nil)

	if m.sched != nil {
		timeout := m.cfg.SettlementTimeout
		m.sched.After(ctx, fmt.Sprintf("evm-settle-%s", channelID), timeout, func(ctx context.Context) {
			if err := m.Settle(ctx, channelID); err != nil && m.log != nil {
				m.log.Error("scheduled evm settle failed", "channel_id", channelID, "error", err)
			}
		})
	}
	return nil
}

// Settle finalizes a closed channel. Fails with ErrChallengeNotExpired if
// the settlement timeout has not yet elapsed since Close.
func (m *Manager) Settle(ctx context.Context, channelID coretypes.ChannelID) error {
	entry, ok := m.lookup(channelID)
	if !ok {
		return fmt.Errorf("%w: evm channel %s", coretypes.ErrChannelNotFound, channelID)
	}

	entry.mu.Lock()
	status := entry.state.Status
	closedAt := entry.state.ClosedAt
	entry.mu.Unlock()

	if status != coretypes.EvmChannelClosed || closedAt == nil {
		return fmt.Errorf("%w: evm channel %s is not closed", coretypes.ErrChallengeNotExpired, channelID)
	}
	if m.clock.Now().Before(closedAt.Add(m.cfg.SettlementTimeout)) {
		return fmt.Errorf("%w: evm channel %s settlement timeout has not elapsed", coretypes.ErrChallengeNotExpired, channelID)
	}

	if err := m.client.SettleChannel(ctx, channelID); err != nil {
		return fmt.Errorf("settle evm channel: %w", err)
	}

	entry.mu.Lock()
	entry.state.Status = coretypes.EvmChannelSettled
	entry.mu.Unlock()

	m.publishTelemetry(coretypes.EventPaymentChannelClosed, entry.meta.PeerID, channelID, entry.meta.Token, "settle", nil)
	return nil
}

// GetState returns the cache entry when the channel is opened; otherwise it
// reloads from the chain, per spec.md §4.C.
func (m *Manager) GetState(ctx context.Context, channelID coretypes.ChannelID) (coretypes.EvmChannelState, error) {
	entry, ok := m.lookup(channelID)
	if ok {
		entry.mu.Lock()
		status := entry.state.Status
		state := entry.state
		entry.mu.Unlock()
		if status == coretypes.EvmChannelOpened {
			return state, nil
		}
	}

	state, err := m.client.GetChannelState(ctx, channelID)
	if err != nil {
		return coretypes.EvmChannelState{}, fmt.Errorf("reload evm channel state: %w", err)
	}
	if ok {
		entry.mu.Lock()
		entry.state = state
		entry.mu.Unlock()
	}
	return state, nil
}

func (m *Manager) lookup(channelID coretypes.ChannelID) (*cacheEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.byChannelID[channelID]
	return e, ok
}

func (m *Manager) publishActivity(channelID coretypes.ChannelID, peerID, method string) {
	if m.bus == nil {
		return
	}
	m.bus.PublishChannelActivity(coretypes.ChannelActivity{
		ChannelID: channelID,
		PeerID:    peerID,
		Method:    method,
		At:        m.clock.Now(),
	})
}

func (m *Manager) publishTelemetry(kind coretypes.TelemetryEventKind, peerID string, channelID coretypes.ChannelID, token, method string, err error) {
	if m.bus == nil {
		return
	}
	m.bus.PublishTelemetry(coretypes.TelemetryEvent{
		Kind:      kind,
		PeerID:    peerID,
		ChannelID: string(channelID),
		Token:     token,
		Method:    method,
		Err:       err,
		At:        m.clock.Now(),
	})
}

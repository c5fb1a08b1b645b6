package xrpchannel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"gitlab.com/warrant1/warrant/settlement-core/internal/clock"
	"gitlab.com/warrant1/warrant/settlement-core/internal/config"
	"gitlab.com/warrant1/warrant/settlement-core/internal/coretypes"
	"gitlab.com/warrant1/warrant/settlement-core/internal/eventbus"
	"gitlab.com/warrant1/warrant/settlement-core/internal/scheduler"
)

// CloseReason names why a channel transitioned to closing, per spec.md §4.D.
type CloseReason string

const (
	CloseIdle       CloseReason = "idle"
	CloseExpiration CloseReason = "expiration"
	CloseManual     CloseReason = "manual"
)

// ChannelStore durably persists XRP channel lifecycle state, satisfying
// spec.md §4.A's "durability is required across process restarts" and the
// claim store's list_for_destination(address) -> [channel_id] operation.
// A nil ChannelStore leaves the Manager's cache in-memory only, for tests
// that do not exercise restart behavior.
type ChannelStore interface {
	UpsertXrpChannel(ctx context.Context, meta coretypes.ChannelMetadata, state coretypes.XrpChannelState) error
	ListXrpChannelIDsForDestination(ctx context.Context, destination string) ([]coretypes.ChannelID, error)
	LoadOpenXrpChannels(ctx context.Context) ([]coretypes.XrpChannelRecord, error)
}

// cacheEntry is the Manager's owned view of one peer's XRP channel.
type cacheEntry struct {
	mu    sync.Mutex
	meta  coretypes.ChannelMetadata
	state coretypes.XrpChannelState
}

// Manager is the XRP Channel Lifecycle Manager of spec.md §4.D. It caches
// at most one channel per peer_id, the MVP model the spec calls for.
type Manager struct {
	client XrpChannelClient
	clock  clock.Clock
	log    *slog.Logger
	bus    *eventbus.Bus
	sched  *scheduler.Scheduler
	store  ChannelStore
	cfg    config.XrpConfig

	mu     sync.RWMutex
	byPeer map[string]*cacheEntry
}

// New builds a Manager. bus, sched and store may be nil in tests that only
// exercise the channel-state methods directly; a nil store means channel
// state does not survive a process restart.
func New(client XrpChannelClient, clk clock.Clock, log *slog.Logger, bus *eventbus.Bus, sched *scheduler.Scheduler, store ChannelStore, cfg config.XrpConfig) *Manager {
	return &Manager{
		client: client,
		clock:  clk,
		log:    log,
		bus:    bus,
		sched:  sched,
		store:  store,
		cfg:    cfg,
		byPeer: make(map[string]*cacheEntry),
	}
}

// Start rehydrates the in-memory cache from store (if configured) and
// registers the idle and expiring sweeps on sched, per spec.md §4.D.
func (m *Manager) Start(ctx context.Context) {
	if m.store != nil {
		if err := m.restore(ctx); err != nil && m.log != nil {
			m.log.Error("failed to restore xrp channel state from claim store", "error", err)
		}
	}

	if m.sched == nil {
		return
	}
	interval := m.cfg.LifecycleSweepInterval
	m.sched.Every(ctx, "xrp-idle-sweep", interval, func(ctx context.Context) {
		m.IdleSweep(ctx)
	})
	m.sched.Every(ctx, "xrp-expiring-sweep", interval, func(ctx context.Context) {
		m.ExpiringSweep(ctx)
	})
}

// restore rebuilds byPeer from every not-yet-closed channel on file, so a
// restarted process does not reopen channels it already has open.
func (m *Manager) restore(ctx context.Context) error {
	records, err := m.store.LoadOpenXrpChannels(ctx)
	if err != nil {
		return fmt.Errorf("load xrp channels: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range records {
		m.byPeer[rec.PeerID] = &cacheEntry{meta: rec.Meta, state: rec.State}
	}
	return nil
}

// persist writes entry's current meta/state to the durable store, if one
// is configured. Logged, not returned: a failed write must not unwind an
// otherwise-successful lifecycle operation, since the in-memory cache
// stays authoritative for the life of this process either way.
func (m *Manager) persist(ctx context.Context, entry *cacheEntry) {
	if m.store == nil {
		return
	}
	entry.mu.Lock()
	meta, state := entry.meta, entry.state
	entry.mu.Unlock()

	if err := m.store.UpsertXrpChannel(ctx, meta, state); err != nil && m.log != nil {
		m.log.Error("failed to persist xrp channel state", "channel_id", state.ChannelID, "error", err)
	}
}

// ListChannelsForDestination implements the claim store's
// list_for_destination(address) -> [channel_id] operation for XRP
// channels (spec.md §4.A). Returns ErrChannelNotFound's sibling empty
// slice, not an error, when store is unset or nothing matches.
func (m *Manager) ListChannelsForDestination(ctx context.Context, destination string) ([]coretypes.ChannelID, error) {
	if m.store == nil {
		return nil, nil
	}
	return m.store.ListXrpChannelIDsForDestination(ctx, destination)
}

// GetOrCreateChannel returns the cached open channel for peerID, or opens a
// new one against destination with cfg.InitialChannelAmount and
// cfg.DefaultSettleDelay if none is cached or the cached one is non-open.
func (m *Manager) GetOrCreateChannel(ctx context.Context, peerID, destination string) (coretypes.ChannelID, error) {
	m.mu.RLock()
	entry, ok := m.byPeer[peerID]
	m.mu.RUnlock()
	if ok {
		entry.mu.Lock()
		status := entry.state.Status
		id := entry.state.ChannelID
		entry.mu.Unlock()
		if status == coretypes.XrpChannelOpen {
			return id, nil
		}
	}

	channelID, err := m.client.CreateChannel(ctx, destination, m.cfg.InitialChannelAmount, m.cfg.DefaultSettleDelay, m.cfg.System.Public)
	if err != nil {
		return "", fmt.Errorf("create xrp channel for peer %s: %w", peerID, err)
	}

	now := m.clock.Now()
	entry = &cacheEntry{
		meta: coretypes.ChannelMetadata{
			ChannelID:  channelID,
			PeerID:     peerID,
			Token:      coretypes.TokenXRP.String(),
			OpenedAt:   now,
			LastActive: now,
		},
		state: coretypes.XrpChannelState{
			ChannelID:   channelID,
			Source:      m.cfg.System.Account,
			Destination: destination,
			Amount:      m.cfg.InitialChannelAmount,
			Balance:     0,
			SettleDelay: m.cfg.DefaultSettleDelay,
			Status:      coretypes.XrpChannelOpen,
		},
	}

	m.mu.Lock()
	m.byPeer[peerID] = entry
	m.mu.Unlock()

	m.persist(ctx, entry)
	m.publishTelemetry(coretypes.EventXrpChannelOpened, peerID, channelID, "get_or_create_channel", nil)
	return channelID, nil
}

// UpdateActivity records a new cumulative claim amount and refreshes
// last_activity_at, per spec.md §4.D.
func (m *Manager) UpdateActivity(peerID string, newCumulativeClaimAmount uint64) error {
	entry, ok := m.lookup(peerID)
	if !ok {
		return fmt.Errorf("%w: xrp channel for peer %s", coretypes.ErrChannelNotFound, peerID)
	}

	entry.mu.Lock()
	if newCumulativeClaimAmount < entry.state.Balance {
		entry.mu.Unlock()
		return fmt.Errorf("%w: xrp channel for peer %s", coretypes.ErrNonMonotonicClaim, peerID)
	}
	entry.state.Balance = newCumulativeClaimAmount
	entry.meta.LastActive = m.clock.Now()
	entry.mu.Unlock()

	m.persist(context.Background(), entry)
	return nil
}

// NeedsFunding reports whether peerID's channel has fallen below
// LowBalanceThreshold of its capacity: (amount - balance) < amount *
// low_balance_threshold.
func (m *Manager) NeedsFunding(peerID string) (bool, error) {
	entry, ok := m.lookup(peerID)
	if !ok {
		return false, fmt.Errorf("%w: xrp channel for peer %s", coretypes.ErrChannelNotFound, peerID)
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.state.Status != coretypes.XrpChannelOpen {
		return false, nil
	}
	threshold := m.cfg.LowBalanceThreshold
	if threshold <= 0 {
		threshold = 0.5
	}
	remaining := float64(entry.state.Amount - entry.state.Balance)
	return remaining < float64(entry.state.Amount)*threshold, nil
}

// FundChannel submits PaymentChannelFund for additional drops and updates
// the cached capacity.
func (m *Manager) FundChannel(ctx context.Context, peerID string, additional uint64) error {
	entry, ok := m.lookup(peerID)
	if !ok {
		return fmt.Errorf("%w: xrp channel for peer %s", coretypes.ErrChannelNotFound, peerID)
	}
	entry.mu.Lock()
	channelID := entry.state.ChannelID
	entry.mu.Unlock()

	if err := m.client.FundChannel(ctx, channelID, additional); err != nil {
		return fmt.Errorf("fund xrp channel for peer %s: %w", peerID, err)
	}

	entry.mu.Lock()
	entry.state.Fund(additional)
	entry.mu.Unlock()

	m.persist(ctx, entry)
	m.publishTelemetry(coretypes.EventXrpChannelFunded, peerID, channelID, "fund_channel", nil)
	return nil
}

// CloseChannel transitions peerID's channel to closing, idempotently: a
// channel already closing or closed is left untouched.
func (m *Manager) CloseChannel(ctx context.Context, peerID string, reason CloseReason) error {
	entry, ok := m.lookup(peerID)
	if !ok {
		return fmt.Errorf("%w: xrp channel for peer %s", coretypes.ErrChannelNotFound, peerID)
	}

	entry.mu.Lock()
	if entry.state.Status != coretypes.XrpChannelOpen {
		entry.mu.Unlock()
		return nil
	}
	channelID := entry.state.ChannelID
	entry.mu.Unlock()

	if err := m.client.CloseChannel(ctx, channelID); err != nil {
		return fmt.Errorf("close xrp channel for peer %s (reason=%s): %w", peerID, reason, err)
	}

	entry.mu.Lock()
	entry.state.Status = coretypes.XrpChannelClosing
	entry.mu.Unlock()

	m.persist(ctx, entry)
	if m.log != nil {
		m.log.Info("xrp channel closing", "peer_id", peerID, "channel_id", channelID, "reason", reason)
	}
	m.publishTelemetry(coretypes.EventXrpChannelClosing, peerID, channelID, "close_channel", nil)
	return nil
}

func (m *Manager) lookup(peerID string) (*cacheEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.byPeer[peerID]
	return e, ok
}

func (m *Manager) activeEntries() map[string]*cacheEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*cacheEntry, len(m.byPeer))
	for k, v := range m.byPeer {
		out[k] = v
	}
	return out
}

func (m *Manager) publishTelemetry(kind coretypes.TelemetryEventKind, peerID string, channelID coretypes.ChannelID, method string, err error) {
	if m.bus == nil {
		return
	}
	m.bus.PublishTelemetry(coretypes.TelemetryEvent{
		Kind:      kind,
		PeerID:    peerID,
		ChannelID: string(channelID),
		Token:     coretypes.TokenXRP.String(),
		Method:    method,
		Err:       err,
		At:        m.clock.Now(),
	})
}

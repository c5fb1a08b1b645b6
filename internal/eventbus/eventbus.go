// Package eventbus provides a typed, in-process publish/subscribe bus used
// to decouple the settlement executors from the ledger lifecycle managers.
// Both sides depend only on Bus; neither imports the other's package,
// breaking the Executor <-> LifecycleManager cycle described in the design
// notes.
package eventbus

import (
	"log/slog"
	"sync"

	"gitlab.com/warrant1/warrant/settlement-core/internal/coretypes"
)

// channelBufferSize bounds each subscriber's queue. A full subscriber drops
// the event rather than blocking the publisher (spec.md §5's eventbus
// semantics: emission is best-effort).
const channelBufferSize = 64

// Bus fans ChannelActivity and TelemetryEvent values out to subscribers.
// All methods are safe for concurrent use.
type Bus struct {
	log *slog.Logger

	mu                sync.RWMutex
	activitySubs      map[int]chan coretypes.ChannelActivity
	telemetrySubs     map[int]chan coretypes.TelemetryEvent
	settlementSubs    map[int]chan coretypes.SettlementRequired
	nextSubscriberID  int
}

// New returns an empty Bus.
func New(log *slog.Logger) *Bus {
	return &Bus{
		log:            log,
		activitySubs:   make(map[int]chan coretypes.ChannelActivity),
		telemetrySubs:  make(map[int]chan coretypes.TelemetryEvent),
		settlementSubs: make(map[int]chan coretypes.SettlementRequired),
	}
}

// SubscribeChannelActivity registers a new listener for ChannelActivity
// events and returns the channel to read from plus an unsubscribe func.
func (b *Bus) SubscribeChannelActivity() (<-chan coretypes.ChannelActivity, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextSubscriberID
	b.nextSubscriberID++
	ch := make(chan coretypes.ChannelActivity, channelBufferSize)
	b.activitySubs[id] = ch
	return ch, func() { b.unsubscribeActivity(id) }
}

func (b *Bus) unsubscribeActivity(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.activitySubs[id]; ok {
		delete(b.activitySubs, id)
		close(ch)
	}
}

// PublishChannelActivity delivers ev to every subscriber, dropping it for
// any subscriber whose queue is full.
func (b *Bus) PublishChannelActivity(ev coretypes.ChannelActivity) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.activitySubs {
		select {
		case ch <- ev:
		default:
			b.log.Warn("dropped channel activity event, subscriber queue full",
				slog.String("channel_id", ev.ChannelID.String()))
		}
	}
}

// SubscribeTelemetry registers a new listener for TelemetryEvent values.
func (b *Bus) SubscribeTelemetry() (<-chan coretypes.TelemetryEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextSubscriberID
	b.nextSubscriberID++
	ch := make(chan coretypes.TelemetryEvent, channelBufferSize)
	b.telemetrySubs[id] = ch
	return ch, func() { b.unsubscribeTelemetry(id) }
}

func (b *Bus) unsubscribeTelemetry(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.telemetrySubs[id]; ok {
		delete(b.telemetrySubs, id)
		close(ch)
	}
}

// PublishTelemetry delivers ev to every telemetry subscriber. Publication
// never blocks and never returns an error: telemetry is observational only.
func (b *Bus) PublishTelemetry(ev coretypes.TelemetryEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.telemetrySubs {
		select {
		case ch <- ev:
		default:
			b.log.Warn("dropped telemetry event, subscriber queue full", slog.String("kind", string(ev.Kind)))
		}
	}
}

// SubscribeSettlementRequired registers a listener for inbound settlement
// triggers, consumed by the Unified Settlement Executor.
func (b *Bus) SubscribeSettlementRequired() (<-chan coretypes.SettlementRequired, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextSubscriberID
	b.nextSubscriberID++
	ch := make(chan coretypes.SettlementRequired, channelBufferSize)
	b.settlementSubs[id] = ch
	return ch, func() { b.unsubscribeSettlement(id) }
}

func (b *Bus) unsubscribeSettlement(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.settlementSubs[id]; ok {
		delete(b.settlementSubs, id)
		close(ch)
	}
}

// PublishSettlementRequired delivers ev to every subscriber of inbound
// settlement triggers.
func (b *Bus) PublishSettlementRequired(ev coretypes.SettlementRequired) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.settlementSubs {
		select {
		case ch <- ev:
		default:
			b.log.Warn("dropped settlement-required event, subscriber queue full", slog.String("peer_id", ev.PeerID))
		}
	}
}

package coretypes

import "time"

// SettlementRequired is the inbound event that triggers a settlement
// attempt, per spec.md §6. It carries enough information for the Unified
// Settlement Executor to resolve a peer, token and amount without further
// lookups beyond PeerConfig.
type SettlementRequired struct {
	PeerID  string
	Token   TokenId
	Amount  *ScaledAmount
	Trigger string // e.g. "threshold", "manual", "scheduled"
}

// ScaledAmount carries an amount alongside the number of decimals it is
// scaled by, avoiding the symbol/address-style conflation spec.md §9 calls
// out for TokenId: callers convert once at the boundary and pass the typed
// value through.
type ScaledAmount struct {
	Units    uint64
	Decimals uint8
}

// TelemetryEventKind enumerates the outbound telemetry events spec.md §6
// names for settlement and channel lifecycle observation.
type TelemetryEventKind string

const (
	EventSettlementStarted   TelemetryEventKind = "SETTLEMENT_STARTED"
	EventSettlementCompleted TelemetryEventKind = "SETTLEMENT_COMPLETED"
	EventSettlementFailed    TelemetryEventKind = "SETTLEMENT_FAILED"

	EventPaymentChannelOpened TelemetryEventKind = "PAYMENT_CHANNEL_OPENED"
	EventPaymentChannelFunded TelemetryEventKind = "PAYMENT_CHANNEL_FUNDED"
	EventPaymentChannelClosed TelemetryEventKind = "PAYMENT_CHANNEL_CLOSED"

	EventXrpChannelOpened  TelemetryEventKind = "XRP_CHANNEL_OPENED"
	EventXrpChannelFunded  TelemetryEventKind = "XRP_CHANNEL_FUNDED"
	EventXrpChannelClosing TelemetryEventKind = "XRP_CHANNEL_CLOSING"
	EventXrpChannelClosed  TelemetryEventKind = "XRP_CHANNEL_CLOSED"
)

// TelemetryEvent is the outbound observation record emitted to the event
// bus for every settlement and channel lifecycle transition (spec.md §6).
// Emission is best-effort: a full subscriber channel drops the event rather
// than blocking the caller (spec.md §5 eventbus semantics).
type TelemetryEvent struct {
	Kind      TelemetryEventKind
	PeerID    string
	ChannelID string
	Token     string // TokenId.String()
	Method    string // "evm" or "xrp"
	Err       error
	At        time.Time
}

// ChannelActivity is published by a lifecycle manager whenever a channel's
// balance or status changes, and consumed by the Settlement Executor to
// invalidate its cached channel-state view. This breaks the Executor <->
// LifecycleManager import cycle called out in the design notes: both sides
// depend only on the event bus, never on each other's concrete type.
type ChannelActivity struct {
	ChannelID ChannelID
	PeerID    string
	Method    string
	At        time.Time
}

// ChannelMetadata is the lifecycle manager's internal bookkeeping record for
// a channel, independent of the ledger-specific state snapshot.
type ChannelMetadata struct {
	ChannelID   ChannelID
	PeerID      string
	Token       string // TokenId.String()
	OpenedAt    time.Time
	LastActive  time.Time
	LastSweepAt time.Time
}

// SettlementState is the opaque per-(peer,token) state tracked by the
// Unified Settlement Executor to prevent concurrent settlement attempts
// against the same pair, per spec.md §4.H.
type SettlementState int

const (
	SettlementIdle SettlementState = iota
	SettlementInProgress
)

func (s SettlementState) String() string {
	if s == SettlementInProgress {
		return "in_progress"
	}
	return "idle"
}

// PeerTokenKey is the map key used to track SettlementState and metrics
// windows per (peer, token) pair.
type PeerTokenKey struct {
	PeerID string
	Token  string // TokenId.String(), stable and comparable
}

// NewPeerTokenKey builds a PeerTokenKey from a peer id and token.
func NewPeerTokenKey(peerID string, token TokenId) PeerTokenKey {
	return PeerTokenKey{PeerID: peerID, Token: token.String()}
}

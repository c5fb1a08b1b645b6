package coretypes

import (
	"fmt"
	"time"
)

// XrpChannelStatus is the one-way lifecycle state of an XRP payment
// channel, per spec.md §3.
type XrpChannelStatus int

const (
	XrpChannelOpen XrpChannelStatus = iota
	XrpChannelClosing
	XrpChannelClosed
)

func (s XrpChannelStatus) String() string {
	switch s {
	case XrpChannelOpen:
		return "open"
	case XrpChannelClosing:
		return "closing"
	case XrpChannelClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// XrpChannelState mirrors spec.md §3's ChannelState (XRP-family).
type XrpChannelState struct {
	ChannelID   ChannelID
	Source      string // XRPL classic address
	Destination string

	// Amount is channel capacity in drops; Balance is the cumulative
	// claimed amount in drops. Invariant: Balance <= Amount.
	Amount  uint64
	Balance uint64

	SettleDelay time.Duration

	// SourcePublicKey is the 33-byte ed25519 public key (ED prefix + 32
	// bytes), fixed at channel creation.
	SourcePublicKey [33]byte

	CancelAfter *time.Time
	Expiration  *time.Time
	Status      XrpChannelStatus
}

// CheckInvariants validates Balance <= Amount, per spec.md §3/§8.
func (s *XrpChannelState) CheckInvariants() error {
	if s.Balance > s.Amount {
		return fmt.Errorf("%w: balance %d drops exceeds capacity %d drops", ErrInvalidInput, s.Balance, s.Amount)
	}
	return nil
}

// Fund increases capacity by additional drops, preserving the invariant
// that the new Amount equals the old Amount plus the fund quantity
// (spec.md §8, capacity bound property).
func (s *XrpChannelState) Fund(additional uint64) {
	s.Amount += additional
}

// XrpChannelRecord is the durable row shape for one XRP channel: the
// lifecycle manager's bookkeeping plus its ledger-state snapshot, as
// persisted in and rehydrated from the claim store's xrp_channels table.
type XrpChannelRecord struct {
	PeerID string
	Meta   ChannelMetadata
	State  XrpChannelState
}

// ClosingReadyAt reports the wall-clock time at which a channel in the
// "closing" state with an Expiration set becomes eligible to transition to
// "closed": strictly after Expiration + SettleDelay (spec.md §3).
func (s *XrpChannelState) ClosingReadyAt() (time.Time, bool) {
	if s.Expiration == nil {
		return time.Time{}, false
	}
	return s.Expiration.Add(s.SettleDelay), true
}

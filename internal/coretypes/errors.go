package coretypes

import (
	"errors"
	"strings"
)

// Error taxonomy per spec.md §7. Callers use errors.Is against these
// sentinels; ledger-specific adapters wrap them with context via %w.
var (
	// ErrInvalidInput marks malformed identifiers, addresses or amounts.
	// Raised at the call boundary, never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNonMonotonicClaim marks an XRP claim whose amount does not
	// strictly exceed every previously accepted claim for the channel.
	ErrNonMonotonicClaim = errors.New("non-monotonic claim")

	// ErrNonceNotIncreasing marks an EVM balance proof whose nonce does
	// not strictly exceed the previously accepted nonce for the signer.
	ErrNonceNotIncreasing = errors.New("nonce not increasing")

	// ErrInsufficientFunds is non-retryable and surfaces immediately.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInsufficientReserve is non-retryable and surfaces immediately.
	ErrInsufficientReserve = errors.New("insufficient reserve")

	// ErrChannelNotFound is non-retryable for the current operation; the
	// executor may choose to open a fresh channel in response.
	ErrChannelNotFound = errors.New("channel not found")

	// ErrEntryNotFound mirrors ErrChannelNotFound for ledger-entry lookups.
	ErrEntryNotFound = errors.New("ledger entry not found")

	// ErrChallengeNotExpired is non-retryable; the caller must wait out
	// the channel's settlement timeout.
	ErrChallengeNotExpired = errors.New("challenge period not expired")

	// ErrInvalidSignature is non-retryable.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrChannelDispute is non-retryable.
	ErrChannelDispute = errors.New("channel dispute")

	// ErrNoAvailableMethods is returned by the Coordinator when every
	// settlement option is filtered out (no method available).
	ErrNoAvailableMethods = errors.New("no available settlement methods")

	// ErrAllMethodsFailed is returned by the Coordinator when both the
	// primary and the fallback settlement attempts fail.
	ErrAllMethodsFailed = errors.New("all settlement methods failed")

	// ErrIncompatibleSettlementMethod is returned by the Unified Executor
	// when a peer's settlement preference cannot serve the event's token
	// kind.
	ErrIncompatibleSettlementMethod = errors.New("incompatible settlement method")

	// ErrMissingAddress is returned by the Unified Executor when the
	// resolved settlement method requires an address the peer config
	// lacks.
	ErrMissingAddress = errors.New("missing settlement address")

	// ErrQueueFull is returned by a bounded work queue (e.g. a batch
	// writer's pending-transfer buffer) when at capacity.
	ErrQueueFull = errors.New("queue full")

	// ErrSettlementInProgress is returned when a settlement is requested
	// for a (peer, token) pair that already has one in flight, per
	// spec.md §5's "at most one settlement attempt in flight" rule.
	ErrSettlementInProgress = errors.New("settlement already in progress")
)

// transientMessages are substrings that classify an underlying ledger-client
// error as retryable, per spec.md §4.F / §7.
var transientMessages = []string{
	"timeout",
	"network",
	"gas price",
	"nonce too low",
}

// terminalMessages are substrings that classify an underlying ledger-client
// error as definitively non-retryable, independent of the sentinel errors
// above (some adapters only have a message, not a typed error).
var terminalMessages = []string{
	"insufficient funds",
	"channel closed",
	"invalid signature",
	"challenge not expired",
}

// IsRetryable classifies err per spec.md §4.F: retryable iff its message
// matches one of the transient substrings; non-retryable iff it matches one
// of the terminal substrings. Unknown errors are treated as non-retryable
// (safety bias) — the function never guesses in favor of retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, term := range terminalMessages {
		if strings.Contains(msg, term) {
			return false
		}
	}
	for _, term := range transientMessages {
		if strings.Contains(msg, term) {
			return true
		}
	}
	return false
}

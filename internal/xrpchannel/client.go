// Package xrpchannel implements the XRP Channel Lifecycle Manager of
// spec.md §4.D: a single cached payment channel per peer, opened with
// PaymentChannelCreate, topped up with PaymentChannelFund, and claimed
// against with PaymentChannelClaim. The reference client wraps
// github.com/Peersyst/xrpl-go's rpc.Client exactly as the teacher's
// Blockchain.SubmitTx does: autofill plus wallet signing, engine-result
// checking, hash extraction from the submit response.
package xrpchannel

import (
	"context"
	"time"

	"gitlab.com/warrant1/warrant/settlement-core/internal/coretypes"
)

// XrpChannelClient is the narrow interface the Lifecycle Manager depends
// on, per SPEC_FULL.md §4.D. It covers every XRPL operation a channel's
// lifecycle needs and nothing else — no general-purpose transaction
// submission, no token issuance, no multisign.
type XrpChannelClient interface {
	// CreateChannel submits PaymentChannelCreate and returns the new
	// channel's id, resolved from the validated transaction's metadata.
	CreateChannel(ctx context.Context, destination string, amountDrops uint64, settleDelay time.Duration, publicKey string) (coretypes.ChannelID, error)

	// FundChannel submits PaymentChannelFund, adding additionalDrops to
	// channelID's capacity.
	FundChannel(ctx context.Context, channelID coretypes.ChannelID, additionalDrops uint64) error

	// SubmitClaim submits PaymentChannelClaim carrying a signed claim for
	// cumulativeAmountDrops. If closeAfter is true the tfClose flag is
	// set, requesting the channel close once the claim is processed.
	SubmitClaim(ctx context.Context, channelID coretypes.ChannelID, cumulativeAmountDrops uint64, signature [64]byte, publicKey [33]byte, closeAfter bool) (txHash string, err error)

	// CloseChannel requests the channel close without a claim (the source
	// address's unilateral, settle-delay-gated close).
	CloseChannel(ctx context.Context, channelID coretypes.ChannelID) error

	// CancelChannelClose clears a pending Expiration, per the tfRenew flag.
	CancelChannelClose(ctx context.Context, channelID coretypes.ChannelID) error

	// GetChannel reloads a channel's on-ledger state via a ledger_entry
	// lookup, used to reconcile the cache after a restart or a missed
	// activity update.
	GetChannel(ctx context.Context, channelID coretypes.ChannelID) (coretypes.XrpChannelState, error)

	// GetAccountInfo returns the system account's XRP balance in drops
	// and current sequence number.
	GetAccountInfo(ctx context.Context, account string) (balanceDrops uint64, sequence uint32, err error)
}

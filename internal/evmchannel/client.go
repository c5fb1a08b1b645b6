// Package evmchannel implements the EVM Channel Lifecycle Manager
// (spec.md §4.C): a local cache of channel state, contract-interaction
// orchestration, and the deposit/idle sweep timers.
package evmchannel

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"gitlab.com/warrant1/warrant/settlement-core/internal/coretypes"
)

// EvmChannelClient is the narrow interface the Lifecycle Manager drives,
// covering exactly the operations spec.md §6 lists for the EVM ledger
// client. Implementations wrap the payment-channel manager contract
// (e.g. over go-ethereum's ethclient + bound contract bindings); none is
// provided here since the concrete ABI is deployment-specific.
type EvmChannelClient interface {
	// OpenChannel opens a new channel with peer over tokenContract,
	// depositing initialDeposit, and returns the new channel id.
	OpenChannel(ctx context.Context, peer, tokenContract common.Address, settlementTimeout time.Duration, initialDeposit *big.Int) (coretypes.ChannelID, error)

	// SetTotalDeposit raises channelID's on-chain deposit to totalDeposit.
	SetTotalDeposit(ctx context.Context, channelID coretypes.ChannelID, totalDeposit *big.Int) error

	// CloseChannel submits a unilateral close with the caller's own final
	// balance proof and signature, starting the challenge period.
	CloseChannel(ctx context.Context, channelID coretypes.ChannelID, proof coretypes.BalanceProof, signature []byte) error

	// CooperativeSettle closes channelID immediately using both
	// participants' signed proofs, skipping the challenge period.
	CooperativeSettle(ctx context.Context, channelID coretypes.ChannelID, myProof, peerProof coretypes.BalanceProof, mySig, peerSig []byte) error

	// SettleChannel finalizes a closed channel after its challenge period
	// has elapsed.
	SettleChannel(ctx context.Context, channelID coretypes.ChannelID) error

	// GetChannelState reads channelID's current on-chain state.
	GetChannelState(ctx context.Context, channelID coretypes.ChannelID) (coretypes.EvmChannelState, error)

	// GetMyChannels lists every channel id this node participates in.
	GetMyChannels(ctx context.Context) ([]coretypes.ChannelID, error)

	// SignBalanceProof signs proof under this node's EIP-712 identity.
	SignBalanceProof(proof coretypes.BalanceProof) ([]byte, error)

	// VerifyBalanceProof checks sig over proof recovers to expectedSigner.
	VerifyBalanceProof(proof coretypes.BalanceProof, sig []byte, expectedSigner common.Address) error

	// SubscribeEvents streams channel-contract events from the current
	// block onward, in block-number order.
	SubscribeEvents(ctx context.Context) (<-chan ChannelEvent, error)

	// SuggestGasPrice returns the chain's current suggested gas price, the
	// Open Question §9 resolves by putting gas inquiry on the client
	// interface rather than behind a type assertion.
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// ChannelEventKind enumerates the on-chain events the ingestion loop
// processes, per spec.md §4.C.
type ChannelEventKind int

const (
	EventChannelOpened ChannelEventKind = iota
	EventChannelClosed
	EventChannelSettled
	EventChannelDeposit
)

func (k ChannelEventKind) String() string {
	switch k {
	case EventChannelOpened:
		return "channel_opened"
	case EventChannelClosed:
		return "channel_closed"
	case EventChannelSettled:
		return "channel_settled"
	case EventChannelDeposit:
		return "channel_deposit"
	default:
		return "unknown"
	}
}

// ChannelEvent is a single contract event, ordered by BlockNumber by the
// client's SubscribeEvents implementation.
type ChannelEvent struct {
	Kind          ChannelEventKind
	ChannelID     coretypes.ChannelID
	BlockNumber   uint64
	Participants  [2]common.Address
	SelfIndex     int
	TokenContract common.Address

	// Deposit carries the new total deposit for EventChannelDeposit, or the
	// initial deposit for EventChannelOpened.
	Deposit *big.Int
}

// Package unified implements the Unified Settlement Executor of spec.md
// §4.H: it subscribes to inbound SettlementRequired events, validates and
// resolves the peer, and dispatches to the EVM executor or the XRP claim
// pipeline, updating the internal ledger only on success.
package unified

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"gitlab.com/warrant1/warrant/settlement-core/internal/coretypes"
	"gitlab.com/warrant1/warrant/settlement-core/internal/eventbus"
	"gitlab.com/warrant1/warrant/settlement-core/internal/signer"
)

// PeerRegistry resolves a peer's settlement configuration.
type PeerRegistry interface {
	PeerConfig(peerID string) (coretypes.PeerConfig, bool)
}

// EvmExecutor is the narrow slice of executor.Executor the Unified
// Executor dispatches to.
type EvmExecutor interface {
	Settle(ctx context.Context, peerID string, token coretypes.TokenId, peerAddr, tokenContract common.Address, amount *big.Int) error
}

// XrpClaimSigner signs a cumulative XRP claim for channelID.
type XrpClaimSigner interface {
	Sign(channelID coretypes.ChannelID, cumulativeAmount uint64) (coretypes.Claim, error)
}

// ClaimStore persists signed XRP claims and answers the monotonicity
// check sign_claim must enforce before accepting a new claim.
type ClaimStore interface {
	InsertXrpClaim(ctx context.Context, claim coretypes.StoredClaim) error
	LatestXrpClaimForChannel(ctx context.Context, channelID coretypes.ChannelID) (coretypes.StoredClaim, error)
}

// XrpChannels is the narrow slice of xrpchannel.Manager the XRP pipeline
// needs: open-or-reuse a channel and track its cumulative claim amount.
type XrpChannels interface {
	GetOrCreateChannel(ctx context.Context, peerID, destination string) (coretypes.ChannelID, error)
	UpdateActivity(peerID string, newCumulativeClaimAmount uint64) error
}

// ClaimDelivery delivers a signed claim to the peer; spec.md §4.H treats
// this as an external concern the core does not implement.
type ClaimDelivery interface {
	DeliverClaim(ctx context.Context, peerID string, claim coretypes.Claim) error
}

// InternalLedger records a completed settlement.
type InternalLedger interface {
	RecordSettlement(ctx context.Context, peerID string, token coretypes.TokenId, amount *big.Int) error
}

// NowFn returns the current wall-clock reading, used to stamp persisted
// claims; injected so tests can use a fixed value without importing clock
// for this package's one use site.
type NowFn func() int64

// Executor is the Unified Settlement Executor of spec.md §4.H.
type Executor struct {
	peers    PeerRegistry
	evm      EvmExecutor
	xrp      XrpChannels
	xrpSign  XrpClaimSigner
	claims   ClaimStore
	delivery ClaimDelivery
	ledger   InternalLedger
	now      NowFn
	log      *slog.Logger

	bus        *eventbus.Bus
	unregister func()
}

// New builds a Unified Settlement Executor. claims, delivery, and ledger
// may be nil; the claim check and persistence, the claim delivery, or the
// ledger record is then skipped.
func New(
	peers PeerRegistry,
	evm EvmExecutor,
	xrp XrpChannels,
	xrpSign XrpClaimSigner,
	claims ClaimStore,
	delivery ClaimDelivery,
	ledger InternalLedger,
	now NowFn,
	log *slog.Logger,
	bus *eventbus.Bus,
) *Executor {
	return &Executor{
		peers: peers, evm: evm, xrp: xrp, xrpSign: xrpSign,
		claims: claims, delivery: delivery, ledger: ledger,
		now: now, log: log, bus: bus,
	}
}

// Start subscribes to inbound settlement events and processes them on a
// dedicated goroutine until ctx is cancelled or Stop is called. The bound
// unsubscribe function is captured once here and reused by Stop, per
// spec.md §4.H's symmetric start/stop requirement.
func (e *Executor) Start(ctx context.Context) {
	events, unregister := e.bus.SubscribeSettlementRequired()
	e.unregister = unregister

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				if err := e.handle(ctx, ev); err != nil && e.log != nil {
					e.log.Error("settlement dispatch failed", "peer", ev.PeerID, "token", ev.Token.String(), "error", err)
				}
			}
		}
	}()
}

// Stop unregisters this executor's event subscription, per spec.md §4.H's
// symmetric start/stop requirement.
func (e *Executor) Stop() {
	if e.unregister != nil {
		e.unregister()
	}
}

// handle processes a single SettlementRequired event end to end.
func (e *Executor) handle(ctx context.Context, ev coretypes.SettlementRequired) error {
	peer, ok := e.peers.PeerConfig(ev.PeerID)
	if !ok {
		return fmt.Errorf("%w: unknown peer %q", coretypes.ErrInvalidInput, ev.PeerID)
	}

	if ev.Token.IsXRP() && !peer.SettlementPreference.SupportsXRP() {
		return fmt.Errorf("%w: peer %q does not allow xrp settlement", coretypes.ErrIncompatibleSettlementMethod, ev.PeerID)
	}
	if !ev.Token.IsXRP() && !peer.SettlementPreference.SupportsEVM() {
		return fmt.Errorf("%w: peer %q does not allow evm settlement", coretypes.ErrIncompatibleSettlementMethod, ev.PeerID)
	}

	amount := scaledAmountToBigInt(ev.Amount)

	var err error
	if ev.Token.IsXRP() {
		if peer.XrpAddress == "" {
			return fmt.Errorf("%w: peer %q has no xrp_address", coretypes.ErrMissingAddress, ev.PeerID)
		}
		err = e.settleXrp(ctx, peer, amount)
	} else {
		if peer.EvmAddress == "" {
			return fmt.Errorf("%w: peer %q has no evm_address", coretypes.ErrMissingAddress, ev.PeerID)
		}
		err = e.settleEvm(ctx, peer, ev.Token, amount)
	}
	if err != nil {
		return err
	}

	if e.ledger == nil {
		return nil
	}
	return e.ledger.RecordSettlement(ctx, peer.PeerID, ev.Token, amount)
}

func (e *Executor) settleEvm(ctx context.Context, peer coretypes.PeerConfig, token coretypes.TokenId, amount *big.Int) error {
	var tokenContract common.Address
	if token.Kind() == coretypes.TokenKindContractAddress {
		addr := token.ContractAddress()
		tokenContract = common.BytesToAddress(addr[:])
	}
	return e.evm.Settle(ctx, peer.PeerID, token, common.HexToAddress(peer.EvmAddress), tokenContract, amount)
}

// settleXrp implements spec.md §4.H's XRP pipeline: open-or-reuse channel,
// sign a claim, deliver it to the peer. Claim delivery is an external
// concern; the signed claim is the pipeline's actual output artifact.
func (e *Executor) settleXrp(ctx context.Context, peer coretypes.PeerConfig, amount *big.Int) error {
	channelID, err := e.xrp.GetOrCreateChannel(ctx, peer.PeerID, peer.XrpAddress)
	if err != nil {
		return fmt.Errorf("open or reuse xrp channel: %w", err)
	}

	if !amount.IsUint64() {
		return fmt.Errorf("%w: xrp claim amount overflows uint64 drops", coretypes.ErrInvalidInput)
	}
	cumulative := amount.Uint64()

	claim, err := e.xrpSign.Sign(channelID, cumulative)
	if err != nil {
		return fmt.Errorf("sign xrp claim: %w", err)
	}

	if e.claims != nil {
		if err := signer.VerifyXrpClaim(ctx, claim, e.claims); err != nil {
			return fmt.Errorf("reject non-monotonic xrp claim: %w", err)
		}

		createdAt := int64(0)
		if e.now != nil {
			createdAt = e.now()
		}
		stored := coretypes.StoredClaim{Claim: claim, CreatedAt: createdAt}
		if err := e.claims.InsertXrpClaim(ctx, stored); err != nil {
			return fmt.Errorf("persist xrp claim: %w", err)
		}
	}

	if err := e.xrp.UpdateActivity(peer.PeerID, cumulative); err != nil {
		return fmt.Errorf("update xrp channel activity: %w", err)
	}

	if e.delivery != nil {
		if err := e.delivery.DeliverClaim(ctx, peer.PeerID, claim); err != nil {
			return fmt.Errorf("deliver xrp claim: %w", err)
		}
	}
	return nil
}

func scaledAmountToBigInt(amount *coretypes.ScaledAmount) *big.Int {
	if amount == nil {
		return big.NewInt(0)
	}
	return new(big.Int).SetUint64(amount.Units)
}

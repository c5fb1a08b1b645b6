// Package executor implements the single-chain Settlement Executor of
// spec.md §4.F: it drives one EVM settlement end-to-end — open-or-reuse
// channel, top up deposit, sign and cooperatively settle a balance proof,
// record against the internal ledger — with retries and error
// classification.
package executor

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
	"gitlab.com/warrant1/warrant/settlement-core/internal/evmchannel"
	"gitlab.com/warrant1/warrant/settlement-core/internal/metrics"
	"gitlab.com/warrant1/warrant/settlement-core/internal/signer"
)

// InternalLedger is the narrow internal-ledger interface consumed by the
// Settlement Executor, per spec.md §6's record_settlement contract.
type InternalLedger interface {
	RecordSettlement(ctx context.Context, peerID string, token coretypes.TokenId, amount *big.Int) error
}

// ProofStore persists signed balance proofs; the narrow slice of
// claimstore.Store's surface this package needs.
type ProofStore interface {
	InsertEvmBalanceProof(ctx context.Context, proof coretypes.BalanceProof, createdAt int64) error
}

// Config tunes the Settlement Executor's retry policy and deposit top-up
// trigger, per spec.md §4.F.
type Config struct {
	MaxRetries uint64
	BaseDelay  time.Duration

	// MinDepositThreshold triggers a top-up during step 3 when
	// my_deposit < amount*multiplier*threshold (default 0.5).
	MinDepositThreshold float64
}

// Executor drives one end-to-end EVM settlement, per spec.md §4.F.
type Executor struct {
	client   evmchannel.EvmChannelClient
	channels *evmchannel.Manager
	signer   *signer.EvmBalanceProofSigner
	proofs   ProofStore
	ledger   InternalLedger
	metrics  *metrics.Collector
	bus      *eventbus.Bus
	clock    clock.Clock
	log      *slog.Logger
	evmCfg   config.EvmConfig
	cfg      Config

	mu     sync.Mutex
	states map[coretypes.PeerTokenKey]coretypes.SettlementState
}

// New builds an Executor.
func New(
	client evmchannel.EvmChannelClient,
	channels *evmchannel.Manager,
	sgr *signer.EvmBalanceProofSigner,
	proofs ProofStore,
	ledger InternalLedger,
	mcol *metrics.Collector,
	bus *eventbus.Bus,
	clk clock.Clock,
	log *slog.Logger,
	evmCfg config.EvmConfig,
	cfg Config,
) *Executor {
	return &Executor{
		client:   client,
		channels: channels,
		signer:   sgr,
		proofs:   proofs,
		ledger:   ledger,
		metrics:  mcol,
		bus:      bus,
		clock:    clk,
		log:      log,
		evmCfg:   evmCfg,
		cfg:      cfg,
		states:   make(map[coretypes.PeerTokenKey]coretypes.SettlementState),
	}
}

// State reports the current SettlementState for (peerID, token).
func (e *Executor) State(peerID string, token coretypes.TokenId) coretypes.SettlementState {
	key := coretypes.NewPeerTokenKey(peerID, token)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.states[key]
}

// Settle drives peerID's settlement of amount in token to completion,
// following spec.md §4.F's six-step algorithm. peerAddr and tokenContract
// identify the EVM counterparty and ERC-20 contract.
func (e *Executor) Settle(ctx context.Context, peerID string, token coretypes.TokenId, peerAddr, tokenContract common.Address, amount *big.Int) (err error) {
	key := coretypes.NewPeerTokenKey(peerID, token)

	if err := e.beginAttempt(key); err != nil {
		return err
	}
	started := e.clock.Now()
	e.publishTelemetry(coretypes.EventSettlementStarted, peerID, "", token, nil)

	defer func() {
		latency := e.clock.Now().Sub(started)
		if err != nil {
			e.metrics.RecordFailure("evm", latency)
			e.publishTelemetry(coretypes.EventSettlementFailed, peerID, "", token, err)
			// Step 6: on failure the state stays IN_PROGRESS.
			return
		}
		e.metrics.RecordSuccess("evm", latency)
		e.publishTelemetry(coretypes.EventSettlementCompleted, peerID, "", token, nil)
		e.endAttempt(key, coretypes.SettlementIdle)
	}()

	// Step 2: look up or open the channel.
	var channelID coretypes.ChannelID
	err = retryWithBackoff(ctx, e.cfg.MaxRetries, e.cfg.BaseDelay, func() error {
		channelID, err = e.channels.EnsureChannel(ctx, peerID, token, peerAddr, tokenContract, amount)
		return err
	})
	if err != nil {
		return fmt.Errorf("ensure evm channel for peer %s: %w", peerID, err)
	}

	// Step 3: top up deposit if it has fallen behind the requested amount.
	err = retryWithBackoff(ctx, e.cfg.MaxRetries, e.cfg.BaseDelay, func() error {
		return e.ensureDeposit(ctx, channelID, amount)
	})
	if err != nil {
		return fmt.Errorf("top up evm channel %s: %w", channelID, err)
	}

	// Step 4: sign this node's balance proof and attempt cooperative
	// settlement against the counterparty's (placeholder) proof.
	err = retryWithBackoff(ctx, e.cfg.MaxRetries, e.cfg.BaseDelay, func() error {
		return e.signAndSettle(ctx, channelID, peerID, amount)
	})
	if err != nil {
		return fmt.Errorf("cooperative settle evm channel %s: %w", channelID, err)
	}

	// Step 5: record against the internal ledger.
	if err = e.ledger.RecordSettlement(ctx, peerID, token, amount); err != nil {
		return fmt.Errorf("record settlement for peer %s: %w", peerID, err)
	}

	return nil
}

func (e *Executor) beginAttempt(key coretypes.PeerTokenKey) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.states[key] == coretypes.SettlementInProgress {
		return fmt.Errorf("%w: peer %s token %s", coretypes.ErrSettlementInProgress, key.PeerID, key.Token)
	}
	e.states[key] = coretypes.SettlementInProgress
	return nil
}

func (e *Executor) endAttempt(key coretypes.PeerTokenKey, final coretypes.SettlementState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.states[key] = final
}

// ensureDeposit implements step 3: top up to amount*multiplier if the
// current deposit has fallen below amount*multiplier*threshold, then top
// up again if that still leaves the deposit short of amount.
func (e *Executor) ensureDeposit(ctx context.Context, channelID coretypes.ChannelID, amount *big.Int) error {
	state, err := e.channels.GetState(ctx, channelID)
	if err != nil {
		return fmt.Errorf("get evm channel state: %w", err)
	}

	multiplier := e.evmCfg.InitialDepositMultiplier
	if multiplier <= 0 {
		multiplier = 1
	}
	threshold := e.cfg.MinDepositThreshold
	if threshold <= 0 {
		threshold = 0.5
	}

	target := scaleBigInt(amount, multiplier)
	trigger := scaleBigInt(target, threshold)

	if state.SelfDeposit.Cmp(trigger) >= 0 {
		return nil
	}
	if err := e.channels.Deposit(ctx, channelID, new(big.Int).Sub(target, state.SelfDeposit)); err != nil {
		return fmt.Errorf("top up evm deposit: %w", err)
	}

	state, err = e.channels.GetState(ctx, channelID)
	if err != nil {
		return fmt.Errorf("get evm channel state after top-up: %w", err)
	}
	if state.SelfDeposit.Cmp(amount) < 0 {
		if err := e.channels.Deposit(ctx, channelID, new(big.Int).Sub(amount, state.SelfDeposit)); err != nil {
			return fmt.Errorf("second top up evm deposit: %w", err)
		}
	}
	return nil
}

// signAndSettle implements step 4: build this node's balance proof, sign
// it, persist it, mirror a peer proof via the unsafe stub (their_signature
// = my_signature, per spec.md §9's placeholder), and attempt cooperative
// settlement.
func (e *Executor) signAndSettle(ctx context.Context, channelID coretypes.ChannelID, peerID string, amount *big.Int) error {
	state, err := e.channels.GetState(ctx, channelID)
	if err != nil {
		return fmt.Errorf("get evm channel state: %w", err)
	}

	myProof := coretypes.BalanceProof{
		ChannelID:   channelID,
		Nonce:       state.SelfNonce + 1,
		Transferred: new(big.Int).Add(state.SelfTransferred, amount),
		Locked:      big.NewInt(0),
		LocksRoot:   coretypes.ZeroLocksRoot,
	}

	mySig, err := e.signer.Sign(myProof)
	if err != nil {
		return fmt.Errorf("sign balance proof: %w", err)
	}
	if e.proofs != nil {
		if err := e.proofs.InsertEvmBalanceProof(ctx, myProof, e.clock.Now().UnixNano()); err != nil {
			return fmt.Errorf("persist balance proof: %w", err)
		}
	}

	if e.log != nil {
		e.log.Warn("using unverified peer proof stub for cooperative settle", "channel_id", channelID)
	}
	peerProof := coretypes.UnsafePeerProofStub(myProof)
	peerSig := mySig

	if err := e.client.CooperativeSettle(ctx, channelID, myProof, peerProof, mySig, peerSig); err != nil {
		return fmt.Errorf("cooperative settle: %w", err)
	}

	e.publishActivity(channelID, peerID)
	return nil
}

func scaleBigInt(v *big.Int, factor float64) *big.Int {
	scaled := new(big.Float).Mul(new(big.Float).SetInt(v), big.NewFloat(factor))
	out, _ := scaled.Int(nil)
	return out
}

func (e *Executor) publishActivity(channelID coretypes.ChannelID, peerID string) {
	if e.bus == nil {
		return
	}
	e.bus.PublishChannelActivity(coretypes.ChannelActivity{
		ChannelID: channelID,
		PeerID:    peerID,
		Method:    "settle",
		At:        e.clock.Now(),
	})
}

func (e *Executor) publishTelemetry(kind coretypes.TelemetryEventKind, peerID, channelID string, token coretypes.TokenId, err error) {
	if e.bus == nil {
		return
	}
	e.bus.PublishTelemetry(coretypes.TelemetryEvent{
		Kind:      kind,
		PeerID:    peerID,
		ChannelID: channelID,
		Token:     token.String(),
		Method:    "evm",
		Err:       err,
		At:        e.clock.Now(),
	})
}

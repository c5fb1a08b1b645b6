// Package di wires the settlement core's dependency graph: config, logger,
// event bus, scheduler, metrics, claim store, the two ledger lifecycle
// managers, the coordinator, both settlement executors, and the health
// server. Package layout mirrors the teacher's own internal/di,
// generalized from one blockchain to two plus a settlement layer on top;
// wire.go holds only a note, and newApp below builds the graph by hand.
package di

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	"gitlab.com/warrant1/warrant/settlement-core/internal/claimstore"
	"gitlab.com/warrant1/warrant/settlement-core/internal/clock"
	"gitlab.com/warrant1/warrant/settlement-core/internal/config"
	"gitlab.com/warrant1/warrant/settlement-core/internal/coordinator"
	"gitlab.com/warrant1/warrant/settlement-core/internal/coretypes"
	xrplcrypto "gitlab.com/warrant1/warrant/settlement-core/internal/crypto"
	"gitlab.com/warrant1/warrant/settlement-core/internal/eventbus"
	"gitlab.com/warrant1/warrant/settlement-core/internal/evmchannel"
	"gitlab.com/warrant1/warrant/settlement-core/internal/executor"
	"gitlab.com/warrant1/warrant/settlement-core/internal/logger"
	"gitlab.com/warrant1/warrant/settlement-core/internal/metrics"
	"gitlab.com/warrant1/warrant/settlement-core/internal/scheduler"
	"gitlab.com/warrant1/warrant/settlement-core/internal/server"
	"gitlab.com/warrant1/warrant/settlement-core/internal/signer"
	"gitlab.com/warrant1/warrant/settlement-core/internal/unified"
	"gitlab.com/warrant1/warrant/settlement-core/internal/xrpchannel"
)

// App is the fully wired settlement core. Evm and EvmExecutor are nil when
// no EvmChannelClient is supplied (NewApp): evmchannel's client.go
// documents that no concrete EvmChannelClient ships with this module since
// the contract ABI is deployment-specific, so a deployment that wants EVM
// settlement supplies its own client via NewAppWithEvmClient.
type App struct {
	Config      *config.Config
	Logger      *slog.Logger
	Bus         *eventbus.Bus
	Scheduler   *scheduler.Scheduler
	Metrics     *metrics.Collector
	Claims      *claimstore.Store
	Xrp         *xrpchannel.Manager
	Evm         *evmchannel.Manager
	Coordinator *coordinator.Coordinator
	EvmExecutor *executor.Executor
	Unified     *unified.Executor
	Server      *server.Server
}

// peerRegistry adapts config.PeerEntry records into coretypes.PeerConfig,
// satisfying unified.PeerRegistry.
type peerRegistry struct {
	peers map[string]coretypes.PeerConfig
}

func (r *peerRegistry) PeerConfig(peerID string) (coretypes.PeerConfig, bool) {
	p, ok := r.peers[peerID]
	return p, ok
}

func buildPeerRegistry(entries []config.PeerEntry) (*peerRegistry, error) {
	peers := make(map[string]coretypes.PeerConfig, len(entries))
	for _, e := range entries {
		pref, err := coretypes.ParseSettlementPreference(e.SettlementPreference)
		if err != nil {
			return nil, fmt.Errorf("peer %q: %w", e.PeerID, err)
		}
		var tokens map[string]struct{}
		if len(e.SettlementTokens) > 0 {
			tokens = make(map[string]struct{}, len(e.SettlementTokens))
			for _, t := range e.SettlementTokens {
				tokens[t] = struct{}{}
			}
		}
		pc := coretypes.PeerConfig{
			PeerID:               e.PeerID,
			SettlementPreference: pref,
			SettlementTokens:     tokens,
			EvmAddress:           e.EvmAddress,
			XrpAddress:           e.XrpAddress,
		}
		if err := pc.Validate(); err != nil {
			return nil, err
		}
		peers[e.PeerID] = pc
	}
	return &peerRegistry{peers: peers}, nil
}

// resolveXrpSystemWallet derives cfg.Xrp.System's Account/Secret/Public
// from a BIP-44 master seed when one is configured, using the teacher's
// own internal/crypto derivation helpers, rather than requiring every
// deployment to precompute and store the derived values.
func resolveXrpSystemWallet(cfg *config.XrpConfig) error {
	if cfg.System.MasterSeedHex == "" {
		return nil
	}
	w, err := xrplcrypto.NewWalletFromHexSeed(cfg.System.MasterSeedHex, cfg.System.DerivationPath)
	if err != nil {
		return fmt.Errorf("derive xrp system wallet: %w", err)
	}
	cfg.System.Account = w.Address
	cfg.System.Public = w.PublicKey
	cfg.System.Secret = w.PrivateKey
	return nil
}

// NewApp builds the full dependency graph with no EVM ledger client: the
// settlement core runs XRP-only. Use NewAppWithEvmClient to also wire EVM
// settlement against a deployment-supplied contract binding.
func NewApp(cfg *config.Config) (*App, error) {
	return newApp(cfg, nil)
}

// NewAppWithEvmClient builds the full dependency graph including the EVM
// Channel Lifecycle Manager and Settlement Executor, driven by evmClient
// (a deployment's own payment-channel-manager contract binding).
func NewAppWithEvmClient(cfg *config.Config, evmClient evmchannel.EvmChannelClient) (*App, error) {
	return newApp(cfg, evmClient)
}

func newApp(cfg *config.Config, evmClient evmchannel.EvmChannelClient) (*App, error) {
	log := logger.NewLogger(cfg.Log)
	clk := clock.Real{}
	bus := eventbus.New(log)
	sched := scheduler.New(clk, log)
	mcol := metrics.New(cfg.Coordinator, clk, log)

	claims, err := claimstore.Open(context.Background(), cfg.ClaimStore.DSN)
	if err != nil {
		return nil, fmt.Errorf("open claim store: %w", err)
	}

	if err := resolveXrpSystemWallet(&cfg.Xrp); err != nil {
		claims.Close()
		return nil, err
	}

	xrpClient, err := xrpchannel.NewRippledClient(cfg.Xrp)
	if err != nil {
		claims.Close()
		return nil, fmt.Errorf("build rippled client: %w", err)
	}
	xrpMgr := xrpchannel.New(xrpClient, clk, log, bus, sched, claims, cfg.Xrp)

	peers, err := buildPeerRegistry(cfg.Peers)
	if err != nil {
		claims.Close()
		return nil, err
	}

	var evmMgr *evmchannel.Manager
	var evmExec *executor.Executor
	var gasSource coordinator.GasPriceSource = noopGasSource{}

	if evmClient != nil {
		evmMgr = evmchannel.New(evmClient, clk, log, bus, sched, cfg.Evm)
		gasSource = evmClient

		signingKey, err := gethcrypto.HexToECDSA(cfg.Evm.SigningKeyHex)
		if err != nil {
			claims.Close()
			return nil, fmt.Errorf("parse evm signing key: %w", err)
		}
		proofSigner := signer.NewEvmBalanceProofSigner(signingKey, cfg.Evm.ChainID, common.HexToAddress(cfg.Evm.ChannelManagerContract))

		evmExec = executor.New(evmClient, evmMgr, proofSigner, claims, nil, mcol, bus, clk, log, cfg.Evm, executor.Config{
			MaxRetries:          5,
			BaseDelay:           cfg.Evm.RequestTimeout,
			MinDepositThreshold: 0.5,
		})
	} else {
		log.Warn("no evm channel client configured; running xrp-only (evmchannel.EvmChannelClient has no in-module implementation by design)")
	}

	coord := coordinator.New(gasSource, mcol, clk, log, cfg.Coordinator, 30_000_000_000)

	var xrpSigner *signer.XrpClaimSigner
	if cfg.Xrp.ClaimSigningSeedHex != "" {
		seed, err := hex.DecodeString(cfg.Xrp.ClaimSigningSeedHex)
		if err != nil {
			claims.Close()
			return nil, fmt.Errorf("decode xrp claim signing seed: %w", err)
		}
		xrpSigner, err = signer.NewXrpClaimSigner(seed)
		if err != nil {
			claims.Close()
			return nil, fmt.Errorf("build xrp claim signer: %w", err)
		}
	}

	unifiedExec := unified.New(
		peers,
		unifiedEvmAdapter{evmExec},
		xrpMgr,
		xrpSigner,
		claims,
		nil, // ClaimDelivery: external concern, per spec.md §4.H
		nil, // InternalLedger: supplied by the deployment's own ledger adapter
		func() int64 { return clk.Now().UnixNano() },
		log,
		bus,
	)

	return &App{
		Config:      cfg,
		Logger:      log,
		Bus:         bus,
		Scheduler:   sched,
		Metrics:     mcol,
		Claims:      claims,
		Xrp:         xrpMgr,
		Evm:         evmMgr,
		Coordinator: coord,
		EvmExecutor: evmExec,
		Unified:     unifiedExec,
		Server:      server.NewServer(log),
	}, nil
}

// Start begins every background loop: the XRP and (if configured) EVM
// lifecycle managers' sweeps, the Unified Settlement Executor's dispatch
// loop, and the periodic metrics cleanup sweep.
func (a *App) Start(ctx context.Context) error {
	a.Xrp.Start(ctx)
	if a.Evm != nil {
		if err := a.Evm.Start(ctx); err != nil {
			return fmt.Errorf("start evm channel manager: %w", err)
		}
	}
	a.Unified.Start(ctx)
	a.Scheduler.Every(ctx, "metrics-cleanup", a.Config.Scheduler.MetricsCleanupInterval, func(ctx context.Context) {
		a.Metrics.Cleanup()
	})
	return nil
}

// Stop unwinds Start in reverse: the unified dispatcher first (so no new
// settlements are accepted), then the scheduler, then the claim store.
func (a *App) Stop() error {
	a.Unified.Stop()
	a.Scheduler.Stop()
	return a.Claims.Close()
}

// unifiedEvmAdapter satisfies unified.EvmExecutor, tolerating a nil
// underlying executor (xrp-only deployments) by returning an error instead
// of a nil-pointer dereference.
type unifiedEvmAdapter struct {
	exec *executor.Executor
}

func (a unifiedEvmAdapter) Settle(ctx context.Context, peerID string, token coretypes.TokenId, peerAddr, tokenContract common.Address, amount *big.Int) error {
	if a.exec == nil {
		return fmt.Errorf("%w: no evm channel client configured", coretypes.ErrChannelNotFound)
	}
	return a.exec.Settle(ctx, peerID, token, peerAddr, tokenContract, amount)
}

// noopGasSource reports unavailability when no EVM client is configured,
// so the coordinator marks the EVM option unavailable rather than
// dereferencing a nil client.
type noopGasSource struct{}

func (noopGasSource) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return nil, fmt.Errorf("%w: no evm channel client configured", coretypes.ErrChannelNotFound)
}

// Package config provides configuration management for the settlement core
// service. It handles loading and parsing of configuration files, environment
// variables, and provides structured access to application settings.
package config

import (
	"encoding/json"
	"time"

	"github.com/spf13/viper"
	"github.com/ucarion/redact"
)

// LogConfig holds configuration for logging. Used by logger implementations.
type LogConfig struct {
	// Level specifies the minimum log level to output.
	// Valid values: "debug", "info", "warn", "error"
	Level string `mapstructure:"level"`

	// Format specifies the output format for log messages.
	// Valid values: "logfmt" (default), "json"
	Format string `mapstructure:"format"`
}

// ServerConfig holds the gRPC health server's listen address.
type ServerConfig struct {
	// Listen specifies the address and port for the server to listen on.
	// Example: ":8080" or "localhost:9090"
	Listen string `mapstructure:"listen"`
}

// EvmConfig holds configuration for the EVM payment-channel lifecycle
// manager and settlement executor.
type EvmConfig struct {
	// RPCURL is the JSON-RPC endpoint of the EVM chain.
	RPCURL string `mapstructure:"rpc_url"`

	// ChainID is the EIP-155 chain id used in the EIP-712 signing domain.
	ChainID int64 `mapstructure:"chain_id"`

	// RequestTimeout bounds every RPC call made against RPCURL.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// ChannelManagerContract is the address of the payment-channel manager
	// contract used for OpenChannel/Close/Settle calls.
	ChannelManagerContract string `mapstructure:"channel_manager_contract"`

	// SigningKeyHex is the hex-encoded secp256k1 private key used to sign
	// balance proofs and submit transactions on behalf of this node.
	SigningKeyHex string `mapstructure:"signing_key_hex"`

	// GasPriceMultiplier is loaded from config, but no component in this
	// module reads it: the RPC-suggested gas price is used unscaled.
	GasPriceMultiplier float64 `mapstructure:"gas_price_multiplier"`

	// DepositMonitorInterval is how often the deposit monitor sweep runs.
	DepositMonitorInterval time.Duration `mapstructure:"deposit_monitor_interval"`

	// IdleCheckInterval is how often the idle-channel sweep runs.
	IdleCheckInterval time.Duration `mapstructure:"idle_check_interval"`

	// LowDepositThreshold triggers a top-up deposit when a channel's
	// remaining capacity falls below this fraction of its original deposit.
	LowDepositThreshold float64 `mapstructure:"low_deposit_threshold"`

	// InitialDepositMultiplier scales the settlement threshold amount to
	// compute a new channel's initial deposit, per spec.md §4.C.
	InitialDepositMultiplier float64 `mapstructure:"initial_deposit_multiplier"`

	// MaxDepositMultiplier caps the initial deposit at this multiple of the
	// threshold amount (default 100), per spec.md §4.C.
	MaxDepositMultiplier float64 `mapstructure:"max_deposit_multiplier"`

	// SettlementTimeout is the challenge period applied to channels this
	// node opens; settle() is only permitted after closed_at + this.
	SettlementTimeout time.Duration `mapstructure:"settlement_timeout"`

	// IdleChannelThreshold is how long a channel may go without activity
	// before the idle sweep considers it for closure (default 24h).
	IdleChannelThreshold time.Duration `mapstructure:"idle_channel_threshold"`

	// CloseIdleChannels gates the idle sweep: when false the sweep does
	// nothing, so idle channels are neither closed nor reported.
	CloseIdleChannels bool `mapstructure:"close_idle_channels"`
}

// XrpConfig holds configuration for the XRP Ledger connection and payment
// channel lifecycle manager. It supersedes the prior NetworkConfig shape.
type XrpConfig struct {
	// URL is the rippled JSON-RPC endpoint.
	URL string `mapstructure:"url"`

	// Timeout bounds every RPC call, in seconds.
	Timeout int64 `mapstructure:"timeout"`

	// System holds this node's XRPL account used to open and fund channels.
	// Either Secret is set directly, or MasterSeedHex/DerivationPath are
	// set and the DI layer derives Account/Secret/Public from them via
	// internal/crypto's BIP-44 derivation at startup.
	System struct {
		Account string `mapstructure:"account"`
		Secret  string `mapstructure:"secret"`
		Public  string `mapstructure:"public"`

		// MasterSeedHex is a hex-encoded BIP-44 master seed; when set, it
		// takes precedence over Account/Secret/Public above.
		MasterSeedHex string `mapstructure:"master_seed_hex"`
		// DerivationPath is the BIP-44 path used to derive this node's
		// system account from MasterSeedHex (e.g. "m/44'/144'/0'/0/0").
		DerivationPath string `mapstructure:"derivation_path"`
	} `mapstructure:"system"`

	// ClaimSigningSeedHex is the 32-byte hex-encoded ed25519 seed used by
	// signer.XrpClaimSigner to sign off-chain claims. This is distinct from
	// System's on-ledger account keys: claims are signed with a dedicated
	// ed25519 identity, never submitted on-chain.
	ClaimSigningSeedHex string `mapstructure:"claim_signing_seed_hex"`

	// DefaultSettleDelay is applied to channels this node opens.
	DefaultSettleDelay time.Duration `mapstructure:"default_settle_delay"`

	// LifecycleSweepInterval is how often the idle and expiring sweeps run,
	// checking open channels for idleness or an approaching CancelAfter.
	LifecycleSweepInterval time.Duration `mapstructure:"lifecycle_sweep_interval"`

	// LowBalanceThreshold triggers a top-up fund when a channel's
	// remaining capacity falls below this fraction of its amount.
	LowBalanceThreshold float64 `mapstructure:"low_balance_threshold"`

	// InitialChannelAmount is the drops capacity a new channel opens with.
	InitialChannelAmount uint64 `mapstructure:"initial_channel_amount"`

	// FundIncrement is loaded from config but not read by the lifecycle
	// manager: FundChannel takes the drops to add from its caller, and no
	// sweep tops channels up.
	FundIncrement uint64 `mapstructure:"fund_increment"`

	// IdleChannelThreshold is how long a channel may go without activity
	// before the idle sweep closes it, per spec.md §4.D.
	IdleChannelThreshold time.Duration `mapstructure:"idle_channel_threshold"`

	// ExpirationBuffer is how far ahead of CancelAfter the expiring sweep
	// preemptively closes a channel (default 1h), per spec.md §4.D.
	ExpirationBuffer time.Duration `mapstructure:"expiration_buffer"`
}

// CoordinatorConfig tunes the Settlement Coordinator's option-scoring
// formula and circuit breaker, per spec.md §4.G.
type CoordinatorConfig struct {
	// CostWeight, SuccessRateWeight, LatencyWeight are loaded from config
	// but not read: the coordinator's score uses fixed weights of 0.5
	// (cost), 0.3 (success rate) and 0.2 (latency).
	CostWeight        float64 `mapstructure:"cost_weight"`
	SuccessRateWeight float64 `mapstructure:"success_rate_weight"`
	LatencyWeight     float64 `mapstructure:"latency_weight"`

	// CircuitBreakerThreshold is the recent-failure-rate above which a
	// settlement method opens its circuit breaker (default 0.10).
	CircuitBreakerThreshold float64 `mapstructure:"circuit_breaker_threshold"`

	// MetricsWindow bounds how far back recent_failure_rate looks.
	MetricsWindow time.Duration `mapstructure:"metrics_window"`
}

// ClaimStoreConfig configures the durable claim store backend.
type ClaimStoreConfig struct {
	// DSN is the modernc.org/sqlite data source name, e.g. "file:claims.db".
	DSN string `mapstructure:"dsn"`
}

// SchedulerConfig configures periodic sweep timer defaults, overridable
// independently of the per-ledger config sections above.
type SchedulerConfig struct {
	MetricsCleanupInterval time.Duration `mapstructure:"metrics_cleanup_interval"`
}

// Config contains all configuration parameters for the application.
type Config struct {
	Log         LogConfig         `mapstructure:"log"`
	Server      ServerConfig      `mapstructure:"server"`
	Evm         EvmConfig         `mapstructure:"evm"`
	Xrp         XrpConfig         `mapstructure:"xrp"`
	Coordinator CoordinatorConfig `mapstructure:"coordinator"`
	ClaimStore  ClaimStoreConfig  `mapstructure:"claim_store"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`

	// Peers lists every counterparty this node settles with.
	Peers []PeerEntry `mapstructure:"peers"`
}

// PeerEntry is the on-disk/env representation of coretypes.PeerConfig; the
// DI layer converts it at startup so the rest of the core never parses
// configuration strings directly.
type PeerEntry struct {
	PeerID               string   `mapstructure:"peer_id"`
	SettlementPreference string   `mapstructure:"settlement_preference"`
	SettlementTokens     []string `mapstructure:"settlement_tokens"`
	EvmAddress           string   `mapstructure:"evm_address"`
	XrpAddress           string   `mapstructure:"xrp_address"`
}

// LoadConfig loads configuration from Viper into the Config structure.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoggerConfig returns the Log section of the configuration.
func (c *Config) LoggerConfig() LogConfig {
	return c.Log
}

// RedactedConfigLog returns a JSON string of the config with sensitive
// fields redacted, using github.com/ucarion/redact.
func (c *Config) RedactedConfigLog() string {
	sensitiveFields := [][]string{
		{"Evm", "SigningKeyHex"},
		{"Xrp", "System", "Secret"},
		{"Xrp", "System", "MasterSeedHex"},
		{"Xrp", "ClaimSigningSeedHex"},
	}
	cfgCopy := *c
	for _, path := range sensitiveFields {
		redact.Redact(path, &cfgCopy)
	}
	b, err := json.Marshal(cfgCopy)
	if err != nil {
		return "<failed to marshal config>"
	}
	return string(b)
}

package coretypes

import "fmt"

// SettlementPreference is a peer's declared willingness to settle over a
// given ledger family, per spec.md §3.
type SettlementPreference int

const (
	SettlementPreferenceEVM SettlementPreference = iota
	SettlementPreferenceXRP
	SettlementPreferenceBoth
)

func (p SettlementPreference) String() string {
	switch p {
	case SettlementPreferenceEVM:
		return "evm"
	case SettlementPreferenceXRP:
		return "xrp"
	case SettlementPreferenceBoth:
		return "both"
	default:
		return "unknown"
	}
}

// ParseSettlementPreference converts a config-file string ("evm", "xrp",
// "both") into a SettlementPreference.
func ParseSettlementPreference(raw string) (SettlementPreference, error) {
	switch raw {
	case "evm":
		return SettlementPreferenceEVM, nil
	case "xrp":
		return SettlementPreferenceXRP, nil
	case "both":
		return SettlementPreferenceBoth, nil
	default:
		return 0, fmt.Errorf("%w: unknown settlement preference %q", ErrInvalidInput, raw)
	}
}

// SupportsEVM reports whether p allows EVM settlement.
func (p SettlementPreference) SupportsEVM() bool {
	return p == SettlementPreferenceEVM || p == SettlementPreferenceBoth
}

// SupportsXRP reports whether p allows XRP settlement.
func (p SettlementPreference) SupportsXRP() bool {
	return p == SettlementPreferenceXRP || p == SettlementPreferenceBoth
}

// PeerConfig describes one counterparty the settlement core will open
// channels with and settle against, per spec.md §3.
type PeerConfig struct {
	PeerID               string
	SettlementPreference SettlementPreference
	SettlementTokens     map[string]struct{}

	// EvmAddress is required when SettlementPreference.SupportsEVM().
	EvmAddress string
	// XrpAddress is required when SettlementPreference.SupportsXRP().
	XrpAddress string
}

// SupportsToken reports whether symbol is in the peer's settlement token
// set. An empty set is treated as "all tokens accepted".
func (p PeerConfig) SupportsToken(symbol string) bool {
	if len(p.SettlementTokens) == 0 {
		return true
	}
	_, ok := p.SettlementTokens[symbol]
	return ok
}

// Validate enforces that the addresses required by the peer's settlement
// preference are present, per spec.md §3's peer-config edge case.
func (p PeerConfig) Validate() error {
	if p.PeerID == "" {
		return fmt.Errorf("%w: peer config missing peer_id", ErrInvalidInput)
	}
	if p.SettlementPreference.SupportsEVM() && p.EvmAddress == "" {
		return fmt.Errorf("%w: peer %q prefers evm settlement but has no evm_address", ErrMissingAddress, p.PeerID)
	}
	if p.SettlementPreference.SupportsXRP() && p.XrpAddress == "" {
		return fmt.Errorf("%w: peer %q prefers xrp settlement but has no xrp_address", ErrMissingAddress, p.PeerID)
	}
	return nil
}

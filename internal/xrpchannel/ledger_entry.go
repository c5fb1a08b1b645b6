package xrpchannel

import (
	"errors"

	ledgerentry "github.com/Peersyst/xrpl-go/xrpl/ledger-entry-types"
	"github.com/Peersyst/xrpl-go/xrpl/queries/common"
)

var errEmptyLedgerEntryIndex = errors.New("ledger entry request: empty payment channel index")

// ledgerEntryRequest is a "ledger_entry" request scoped to a payment
// channel object. No typed wrapper for this method ships in the vendored
// queries packages (unlike account_info/account_channels), so it is built
// directly on rpc.Client's generic XRPLRequest mechanism.
type ledgerEntryRequest struct {
	common.BaseRequest
	Index       string                 `json:"payment_channel"`
	LedgerIndex common.LedgerSpecifier `json:"ledger_index,omitempty"`
}

func (*ledgerEntryRequest) Method() string { return "ledger_entry" }

func (r *ledgerEntryRequest) Validate() error {
	if r.Index == "" {
		return errEmptyLedgerEntryIndex
	}
	return nil
}

type ledgerEntryResult struct {
	Index       string                 `json:"index"`
	LedgerIndex common.LedgerIndex     `json:"ledger_index,omitempty"`
	Validated   bool                   `json:"validated"`
	Node        ledgerentry.PayChannel `json:"node"`
}

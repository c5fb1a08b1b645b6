package coretypes

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChannelIDValid(t *testing.T) {
	id, err := NewRandomChannelID()
	assert.NoError(t, err)
	assert.True(t, id.Valid())

	assert.False(t, ChannelID("too-short").Valid())
	assert.False(t, ChannelID("").Valid())
}

func TestParseTokenId(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantKind TokenKind
		wantErr bool
	}{
		{name: "native xrp upper", raw: "XRP", wantKind: TokenKindXRP},
		{name: "native xrp lower", raw: "xrp", wantKind: TokenKindXRP},
		{name: "contract address", raw: "0x1111111111111111111111111111111111111111", wantKind: TokenKindContractAddress},
		{name: "symbol", raw: "USDC", wantKind: TokenKindSymbol},
		{name: "empty", raw: "", wantErr: true},
		{name: "malformed address", raw: "0xzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTokenId(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidInput)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.wantKind, got.Kind())
		})
	}
}

func TestTokenIdString(t *testing.T) {
	assert.Equal(t, "XRP", TokenXRP.String())
	assert.Equal(t, "USDC", TokenSymbol("USDC").String())

	addr := [20]byte{0x11, 0x22}
	assert.Equal(t, "0x1122000000000000000000000000000000000000", TokenContractAddress(addr).String())
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(errors.New("rpc timeout while dialing")))
	assert.True(t, IsRetryable(errors.New("gas price too low for current block")))
	assert.False(t, IsRetryable(errors.New("insufficient funds for transfer")))
	assert.False(t, IsRetryable(errors.New("challenge not expired")))
	assert.False(t, IsRetryable(errors.New("some completely unrelated failure")))
}

func TestEvmChannelStatusTransitions(t *testing.T) {
	opened := EvmChannelOpened
	assert.True(t, opened.CanTransitionTo(EvmChannelClosed))
	assert.True(t, opened.CanTransitionTo(EvmChannelSettled))
	assert.False(t, opened.CanTransitionTo(EvmChannelOpened))

	closed := EvmChannelClosed
	assert.False(t, closed.CanTransitionTo(EvmChannelOpened))
}

func TestXrpChannelFundPreservesCapacityBound(t *testing.T) {
	s := &XrpChannelState{Amount: 1000, Balance: 200}
	before := s.Amount
	s.Fund(500)
	assert.Equal(t, before+500, s.Amount)
	assert.NoError(t, s.CheckInvariants())
}

func TestXrpChannelClosingReadyAt(t *testing.T) {
	s := &XrpChannelState{SettleDelay: time.Minute}
	_, ok := s.ClosingReadyAt()
	assert.False(t, ok)

	exp := time.Unix(1_700_000_000, 0)
	s.Expiration = &exp
	ready, ok := s.ClosingReadyAt()
	assert.True(t, ok)
	assert.Equal(t, exp.Add(time.Minute), ready)
}

func TestPeerConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     PeerConfig
		wantErr error
	}{
		{
			name: "evm preference missing address",
			cfg:  PeerConfig{PeerID: "p1", SettlementPreference: SettlementPreferenceEVM},
			wantErr: ErrMissingAddress,
		},
		{
			name: "xrp preference missing address",
			cfg:  PeerConfig{PeerID: "p1", SettlementPreference: SettlementPreferenceXRP},
			wantErr: ErrMissingAddress,
		},
		{
			name: "both satisfied",
			cfg: PeerConfig{
				PeerID:               "p1",
				SettlementPreference: SettlementPreferenceBoth,
				EvmAddress:           "0xabc",
				XrpAddress:           "rAddr",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestEncodeClaimPayload(t *testing.T) {
	id, err := NewRandomChannelID()
	assert.NoError(t, err)

	payload, err := EncodeClaimPayload(id, 1000)
	assert.NoError(t, err)
	assert.Equal(t, []byte("CLM\x00"), payload[:4])
	assert.Len(t, payload, 4+32+8)

	_, err = EncodeClaimPayload(ChannelID("bad"), 1000)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

package signer

import (
	"context"
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/warrant1/warrant/settlement-core/internal/coretypes"
)

type fakeClaimStore struct {
	latest map[coretypes.ChannelID]coretypes.StoredClaim
}

func (f *fakeClaimStore) LatestXrpClaimForChannel(_ context.Context, channelID coretypes.ChannelID) (coretypes.StoredClaim, error) {
	claim, ok := f.latest[channelID]
	if !ok {
		return coretypes.StoredClaim{}, coretypes.ErrEntryNotFound
	}
	return claim, nil
}

func TestXrpClaimSignAndVerify(t *testing.T) {
	seed := make([]byte, 32)
	_, err := rand.Read(seed)
	require.NoError(t, err)

	s, err := NewXrpClaimSigner(seed)
	require.NoError(t, err)

	id, err := coretypes.NewRandomChannelID()
	require.NoError(t, err)

	claim, err := s.Sign(id, 1000)
	require.NoError(t, err)

	err = VerifyXrpClaim(context.Background(), claim, nil)
	assert.NoError(t, err)
}

func TestXrpClaimVerifyRejectsTamperedAmount(t *testing.T) {
	seed := make([]byte, 32)
	_, err := rand.Read(seed)
	require.NoError(t, err)
	s, err := NewXrpClaimSigner(seed)
	require.NoError(t, err)

	id, err := coretypes.NewRandomChannelID()
	require.NoError(t, err)

	claim, err := s.Sign(id, 1000)
	require.NoError(t, err)
	claim.CumulativeAmount = 2000 // tampered after signing

	err = VerifyXrpClaim(context.Background(), claim, nil)
	assert.ErrorIs(t, err, coretypes.ErrInvalidSignature)
}

func TestXrpClaimVerifyEnforcesMonotonicity(t *testing.T) {
	seed := make([]byte, 32)
	_, err := rand.Read(seed)
	require.NoError(t, err)
	s, err := NewXrpClaimSigner(seed)
	require.NoError(t, err)

	id, err := coretypes.NewRandomChannelID()
	require.NoError(t, err)

	store := &fakeClaimStore{latest: map[coretypes.ChannelID]coretypes.StoredClaim{
		id: {Claim: coretypes.Claim{ChannelID: id, CumulativeAmount: 5000}},
	}}

	lowerClaim, err := s.Sign(id, 3000)
	require.NoError(t, err)
	err = VerifyXrpClaim(context.Background(), lowerClaim, store)
	assert.ErrorIs(t, err, coretypes.ErrNonMonotonicClaim)

	higherClaim, err := s.Sign(id, 6000)
	require.NoError(t, err)
	err = VerifyXrpClaim(context.Background(), higherClaim, store)
	assert.NoError(t, err)
}

func TestEvmBalanceProofSignAndVerify(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)

	verifyingContract := crypto.PubkeyToAddress(priv.PublicKey)
	s := NewEvmBalanceProofSigner(priv, 1, verifyingContract)

	id, err := coretypes.NewRandomChannelID()
	require.NoError(t, err)

	proof := coretypes.BalanceProof{
		ChannelID:   id,
		Nonce:       1,
		Transferred: big.NewInt(500),
		Locked:      big.NewInt(0),
		LocksRoot:   coretypes.ZeroLocksRoot,
	}

	sig, err := s.Sign(proof)
	require.NoError(t, err)

	err = VerifyEvmBalanceProof(proof, sig, 1, verifyingContract, s.Address())
	assert.NoError(t, err)
}

func TestEvmBalanceProofVerifyRejectsWrongSigner(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	other, err := crypto.GenerateKey()
	require.NoError(t, err)

	verifyingContract := crypto.PubkeyToAddress(priv.PublicKey)
	s := NewEvmBalanceProofSigner(priv, 1, verifyingContract)

	id, err := coretypes.NewRandomChannelID()
	require.NoError(t, err)
	proof := coretypes.BalanceProof{
		ChannelID:   id,
		Nonce:       1,
		Transferred: big.NewInt(500),
		Locked:      big.NewInt(0),
		LocksRoot:   coretypes.ZeroLocksRoot,
	}

	sig, err := s.Sign(proof)
	require.NoError(t, err)

	wrongAddr := crypto.PubkeyToAddress(other.PublicKey)
	err = VerifyEvmBalanceProof(proof, sig, 1, verifyingContract, wrongAddr)
	assert.ErrorIs(t, err, coretypes.ErrInvalidSignature)
}

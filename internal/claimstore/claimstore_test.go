package claimstore

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/warrant1/warrant/settlement-core/internal/coretypes"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), "file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertAndLatestXrpClaim(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := coretypes.NewRandomChannelID()
	require.NoError(t, err)

	first := coretypes.StoredClaim{
		Claim:     coretypes.Claim{ChannelID: id, CumulativeAmount: 100},
		CreatedAt: 1000,
	}
	second := coretypes.StoredClaim{
		Claim:     coretypes.Claim{ChannelID: id, CumulativeAmount: 250},
		CreatedAt: 2000,
	}

	require.NoError(t, s.InsertXrpClaim(ctx, first))
	require.NoError(t, s.InsertXrpClaim(ctx, second))

	latest, err := s.LatestXrpClaimForChannel(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(250), latest.CumulativeAmount)
	assert.Equal(t, int64(2000), latest.CreatedAt)
}

func TestLatestXrpClaimNotFound(t *testing.T) {
	s := openTestStore(t)
	id, err := coretypes.NewRandomChannelID()
	require.NoError(t, err)

	_, err = s.LatestXrpClaimForChannel(context.Background(), id)
	assert.ErrorIs(t, err, coretypes.ErrEntryNotFound)
}

func TestInsertAndLatestEvmBalanceProof(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := coretypes.NewRandomChannelID()
	require.NoError(t, err)

	proof := coretypes.BalanceProof{
		ChannelID:   id,
		Nonce:       7,
		Transferred: big.NewInt(12345),
		Locked:      big.NewInt(0),
		LocksRoot:   coretypes.ZeroLocksRoot,
	}
	require.NoError(t, s.InsertEvmBalanceProof(ctx, proof, 1000))

	latest, err := s.LatestEvmBalanceProofForChannel(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), latest.Nonce)
	assert.Equal(t, "12345", latest.Transferred.String())
}

func TestListXrpClaimsForChannelsSkipsMissing(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	withClaim, err := coretypes.NewRandomChannelID()
	require.NoError(t, err)
	withoutClaim, err := coretypes.NewRandomChannelID()
	require.NoError(t, err)

	require.NoError(t, s.InsertXrpClaim(ctx, coretypes.StoredClaim{
		Claim:     coretypes.Claim{ChannelID: withClaim, CumulativeAmount: 50},
		CreatedAt: 1,
	}))

	claims, err := s.ListXrpClaimsForChannels(ctx, []coretypes.ChannelID{withClaim, withoutClaim})
	require.NoError(t, err)
	assert.Len(t, claims, 1)
	assert.Equal(t, withClaim, claims[0].ChannelID)
}

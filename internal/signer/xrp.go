package signer

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"

	"gitlab.com/warrant1/warrant/settlement-core/internal/coretypes"
)

// XrpClaimSigner signs and verifies XRP payment-channel claims with
// ed25519, grounded on the standard library crypto/ed25519 package (the
// same primitive xrpl-go itself wraps for ed25519-keyed accounts, per the
// pkg/crypto/ed25519.go adapter in the teacher's vendored xrpl-go).
type XrpClaimSigner struct {
	privateKey ed25519.PrivateKey
	publicKey  [33]byte // ED prefix + 32-byte ed25519 public key
}

// NewXrpClaimSigner builds a signer from a raw 32-byte ed25519 seed.
func NewXrpClaimSigner(seed []byte) (*XrpClaimSigner, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: ed25519 seed must be %d bytes, got %d", coretypes.ErrInvalidInput, ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)

	var packed [33]byte
	packed[0] = 0xED
	copy(packed[1:], pub)

	return &XrpClaimSigner{privateKey: priv, publicKey: packed}, nil
}

// PublicKey returns the signer's 33-byte ED-prefixed public key.
func (s *XrpClaimSigner) PublicKey() [33]byte {
	return s.publicKey
}

// Sign produces a Claim for channelID at cumulativeAmount drops. Sign
// itself only signs and does not check monotonicity; the unified executor
// checks each signed claim with VerifyXrpClaim before persisting it.
func (s *XrpClaimSigner) Sign(channelID coretypes.ChannelID, cumulativeAmount uint64) (coretypes.Claim, error) {
	payload, err := coretypes.EncodeClaimPayload(channelID, cumulativeAmount)
	if err != nil {
		return coretypes.Claim{}, err
	}

	sig := ed25519.Sign(s.privateKey, payload)
	var packed [64]byte
	copy(packed[:], sig)

	return coretypes.Claim{
		ChannelID:        channelID,
		CumulativeAmount: cumulativeAmount,
		Signature:        packed,
		PublicKey:        s.publicKey,
	}, nil
}

// VerifyXrpClaim checks claim's ed25519 signature against its own embedded
// public key and, when store is non-nil, rejects any claim whose amount
// does not strictly exceed the highest previously accepted claim for the
// channel (coretypes.ErrNonMonotonicClaim).
func VerifyXrpClaim(ctx context.Context, claim coretypes.Claim, store MonotonicityChecker) error {
	payload, err := coretypes.EncodeClaimPayload(claim.ChannelID, claim.CumulativeAmount)
	if err != nil {
		return err
	}

	if claim.CumulativeAmount == 0 {
		return fmt.Errorf("%w: xrp claim amount must be greater than zero", coretypes.ErrInvalidInput)
	}

	if len(claim.PublicKey) != 33 || claim.PublicKey[0] != 0xED {
		return fmt.Errorf("%w: xrp claim public key must be ED-prefixed", coretypes.ErrInvalidSignature)
	}
	pub := ed25519.PublicKey(claim.PublicKey[1:])
	if !ed25519.Verify(pub, payload, claim.Signature[:]) {
		return fmt.Errorf("%w: xrp claim signature does not verify", coretypes.ErrInvalidSignature)
	}

	if store == nil {
		return nil
	}
	prior, err := store.LatestXrpClaimForChannel(ctx, claim.ChannelID)
	if err != nil {
		if errors.Is(err, coretypes.ErrEntryNotFound) {
			return nil
		}
		return err
	}
	if claim.CumulativeAmount <= prior.CumulativeAmount {
		return fmt.Errorf("%w: claim amount %d drops does not exceed prior %d drops",
			coretypes.ErrNonMonotonicClaim, claim.CumulativeAmount, prior.CumulativeAmount)
	}
	return nil
}

// MonotonicityChecker is the narrow slice of claimstore.Store's surface
// VerifyXrpClaim needs, kept as an interface here so this package does not
// import internal/claimstore (avoiding a dependency the spec never calls
// for between claim verification and durable storage's concrete type).
type MonotonicityChecker interface {
	LatestXrpClaimForChannel(ctx context.Context, channelID coretypes.ChannelID) (coretypes.StoredClaim, error)
}

package coretypes

import "math/big"

// BalanceProof is the EVM signed-claim tuple described in spec.md §3. It is
// hashed and signed under EIP-712 typed data with domain
// {name:"PaymentChannel", version:"1", chain_id, verifying_contract}.
type BalanceProof struct {
	ChannelID   ChannelID
	Nonce       uint64
	Transferred *big.Int
	Locked      *big.Int
	LocksRoot   [32]byte
}

// ZeroLocksRoot is the canonical empty-locks-root value used by the single
// chain Settlement Executor (spec.md §4.F step 4: "locked = 0").
var ZeroLocksRoot [32]byte

// Claim is the XRP signed-claim tuple described in spec.md §3. The
// signature is over the CLM\0-prefixed payload built by EncodeClaimPayload.
type Claim struct {
	ChannelID         ChannelID
	CumulativeAmount  uint64 // drops
	Signature         [64]byte
	PublicKey         [33]byte // ED prefix + 32-byte ed25519 public key
}

// EncodeClaimPayload builds the canonical message an XRP claim signs over:
// a 4-byte prefix "CLM\0", the raw channel id bytes, and the big-endian
// u64 amount in drops (spec.md §6).
func EncodeClaimPayload(channelID ChannelID, amountDrops uint64) ([]byte, error) {
	raw, err := channelIDBytes(channelID)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, 4+len(raw)+8)
	buf = append(buf, 'C', 'L', 'M', 0)
	buf = append(buf, raw...)
	buf = append(buf, byte(amountDrops>>56), byte(amountDrops>>48), byte(amountDrops>>40), byte(amountDrops>>32),
		byte(amountDrops>>24), byte(amountDrops>>16), byte(amountDrops>>8), byte(amountDrops))
	return buf, nil
}

func channelIDBytes(id ChannelID) ([]byte, error) {
	if !id.Valid() {
		return nil, ErrInvalidInput
	}
	raw := make([]byte, 32)
	for i := 0; i < 32; i++ {
		hi, err := hexNibble(string(id)[2*i])
		if err != nil {
			return nil, err
		}
		lo, err := hexNibble(string(id)[2*i+1])
		if err != nil {
			return nil, err
		}
		raw[i] = hi<<4 | lo
	}
	return raw, nil
}

func hexNibble(c byte) (byte, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, nil
	default:
		return 0, ErrInvalidInput
	}
}

// StoredClaim is a persisted Claim plus creation timestamp, as described
// in spec.md §3. It is keyed by (channel_id, created_at) in the Claim
// Store.
type StoredClaim struct {
	Claim
	CreatedAt int64 // unix nanoseconds, monotonic within a process via the clock dependency
}

// UnsafePeerProofStub builds a placeholder "peer" balance proof by copying
// the caller's own proof, per spec.md §9's Open Question about the
// source's `their_signature = my_signature` placeholder. It exists so a
// cooperative-settle attempt has something to offer as the counterparty's
// half when no real off-chain proof-exchange hook is wired — callers MUST
// log a warning every time this is used and MUST treat the resulting
// cooperative settlement as unverified.
func UnsafePeerProofStub(myProof BalanceProof) BalanceProof {
	return myProof
}

package signer

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"gitlab.com/warrant1/warrant/settlement-core/internal/coretypes"
)

// balanceProofPrimaryType is the EIP-712 typed-data primary type name for a
// signed balance proof.
const balanceProofPrimaryType = "BalanceProof"

// EvmBalanceProofSigner signs and verifies EVM payment-channel balance
// proofs under EIP-712 typed data, domain {name:"PaymentChannel",
// version:"1", chain_id, verifying_contract}, per spec.md §3.
type EvmBalanceProofSigner struct {
	privateKey        *ecdsa.PrivateKey
	address           common.Address
	chainID           *big.Int
	verifyingContract common.Address
}

// NewEvmBalanceProofSigner builds a signer from a raw secp256k1 private
// key, the EIP-155 chain id, and the payment-channel manager contract
// address used as the EIP-712 domain's verifying_contract.
func NewEvmBalanceProofSigner(privateKey *ecdsa.PrivateKey, chainID int64, verifyingContract common.Address) *EvmBalanceProofSigner {
	pub := privateKey.Public().(*ecdsa.PublicKey)
	return &EvmBalanceProofSigner{
		privateKey:        privateKey,
		address:           crypto.PubkeyToAddress(*pub),
		chainID:           big.NewInt(chainID),
		verifyingContract: verifyingContract,
	}
}

// Address returns the EVM address this signer controls.
func (s *EvmBalanceProofSigner) Address() common.Address {
	return s.address
}

func balanceProofTypedData(proof coretypes.BalanceProof, chainID *big.Int, verifyingContract common.Address) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			balanceProofPrimaryType: {
				{Name: "channelId", Type: "bytes32"},
				{Name: "nonce", Type: "uint256"},
				{Name: "transferred", Type: "uint256"},
				{Name: "locked", Type: "uint256"},
				{Name: "locksRoot", Type: "bytes32"},
			},
		},
		PrimaryType: balanceProofPrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              "PaymentChannel",
			Version:           "1",
			ChainId:           (*math.HexOrDecimal256)(chainID),
			VerifyingContract: verifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"channelId":   proof.ChannelID.String(),
			"nonce":       fmt.Sprintf("%d", proof.Nonce),
			"transferred": proof.Transferred.String(),
			"locked":      proof.Locked.String(),
			"locksRoot":   fmt.Sprintf("0x%x", proof.LocksRoot),
		},
	}
}

// Sign hashes proof under EIP-712 typed data and signs it, returning a
// 65-byte (R || S || V) signature.
func (s *EvmBalanceProofSigner) Sign(proof coretypes.BalanceProof) ([]byte, error) {
	td := balanceProofTypedData(proof, s.chainID, s.verifyingContract)
	hash, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return nil, fmt.Errorf("hash balance proof typed data: %w", err)
	}

	sig, err := crypto.Sign(hash, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("sign balance proof: %w", err)
	}
	return sig, nil
}

// VerifyEvmBalanceProof recovers the signer address from sig over proof's
// EIP-712 hash and checks it equals expectedSigner.
func VerifyEvmBalanceProof(proof coretypes.BalanceProof, sig []byte, chainID int64, verifyingContract, expectedSigner common.Address) error {
	if len(sig) != 65 {
		return fmt.Errorf("%w: evm signature must be 65 bytes, got %d", coretypes.ErrInvalidSignature, len(sig))
	}

	td := balanceProofTypedData(proof, big.NewInt(chainID), verifyingContract)
	hash, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return fmt.Errorf("hash balance proof typed data: %w", err)
	}

	sigCopy := make([]byte, 65)
	copy(sigCopy, sig)
	if sigCopy[64] >= 27 {
		sigCopy[64] -= 27
	}

	pubBytes, err := crypto.Ecrecover(hash, sigCopy)
	if err != nil {
		return fmt.Errorf("%w: recover public key: %v", coretypes.ErrInvalidSignature, err)
	}
	pub, err := crypto.UnmarshalPubkey(pubBytes)
	if err != nil {
		return fmt.Errorf("%w: unmarshal recovered public key: %v", coretypes.ErrInvalidSignature, err)
	}

	recovered := crypto.PubkeyToAddress(*pub)
	if recovered != expectedSigner {
		return fmt.Errorf("%w: recovered signer %s does not match expected %s",
			coretypes.ErrInvalidSignature, recovered.Hex(), expectedSigner.Hex())
	}
	return nil
}

// Package nullifier derives the per-process voter pseudonym (the nullifier)
// and assembles the proof bundle submitted to the ledger.
//
// The nullifier is a pure function of the voter secret and the process
// identifier: poseidon(processCommitment, secret) where processCommitment =
// poseidon(identityCommitment, processID, secret). The same voter therefore
// always derives the same nullifier for the same process, and an unlinkable
// one for any other process. Freshness inputs (nonce, timestamp) bind the
// attestation digests of the bundle but are never nullifier inputs.
package nullifier

import (
	"crypto/sha256"
	"fmt"
	"math/big"
	"time"

	"github.com/iden3/go-iden3-crypto/poseidon"
	"github.com/vocdoni/nullifier-registry/crypto/credentials"
	multiposeidon "github.com/vocdoni/nullifier-registry/crypto/hash/poseidon"
	"github.com/vocdoni/nullifier-registry/crypto/pedersen"
	"github.com/vocdoni/nullifier-registry/types"
	"github.com/vocdoni/nullifier-registry/util"
)

var (
	// ErrInvalidVoteChoice is returned when the vote choice is not binary.
	// The input is rejected before any cryptographic work, never clamped.
	ErrInvalidVoteChoice = fmt.Errorf("vote choice must be 0 or 1")
	// ErrInvalidProcessID is returned when the process identifier is empty
	// or exceeds the maximum length.
	ErrInvalidProcessID = fmt.Errorf("invalid process identifier")
	// ErrMissingCensusProof is returned when no membership proof is provided.
	ErrMissingCensusProof = fmt.Errorf("missing census membership proof")
)

// Compute derives the deterministic nullifier and the process commitment for
// the given voter secret, identity commitment and process identifier.
func Compute(secret, identityCommitment, processID []byte) (nullifier, processCommitment types.HexBytes, err error) {
	if !types.ValidProcessID(processID) {
		return nil, nil, ErrInvalidProcessID
	}
	commitment, err := poseidon.Hash([]*big.Int{
		util.BigToFF(new(big.Int).SetBytes(identityCommitment)),
		util.BigToFF(new(big.Int).SetBytes(processID)),
		util.BigToFF(new(big.Int).SetBytes(secret)),
	})
	if err != nil {
		return nil, nil, err
	}
	hash, err := poseidon.Hash([]*big.Int{
		commitment,
		util.BigToFF(new(big.Int).SetBytes(secret)),
	})
	if err != nil {
		return nil, nil, err
	}
	return types.HexBytes(hash.Bytes()).LeftPad(types.DigestLen),
		types.HexBytes(commitment.Bytes()).LeftPad(types.DigestLen), nil
}

// Derive assembles a complete proof bundle for the given credential, process
// and binary vote choice. The censusProof must have been generated for the
// credential's commitment by the eligibility census. A fresh nonce and
// timestamp are captured per call; they scope the attestation digests but do
// not change the nullifier.
func Derive(cred *credentials.Credential, processID types.HexBytes, choice int, censusProof *types.CensusProof) (*types.ProofBundle, error) {
	if !types.ValidVoteChoice(choice) {
		return nil, ErrInvalidVoteChoice
	}
	if !types.ValidProcessID(processID) {
		return nil, ErrInvalidProcessID
	}
	if censusProof == nil {
		return nil, ErrMissingCensusProof
	}

	nullifier, commitment, err := Compute(cred.Secret, cred.Commitment, processID)
	if err != nil {
		return nil, fmt.Errorf("failed to derive nullifier: %w", err)
	}

	nonce := types.HexBytes(util.RandomBytes(types.DigestLen))
	timestamp := time.Now().Truncate(time.Second)

	blinding, err := pedersen.RandomBlinding()
	if err != nil {
		return nil, fmt.Errorf("failed to sample vote blinding: %w", err)
	}
	voteCommitment, err := pedersen.Commit(big.NewInt(int64(choice)), blinding)
	if err != nil {
		return nil, fmt.Errorf("failed to commit to vote choice: %w", err)
	}
	voteCommitmentBytes := types.HexBytes(voteCommitment.Marshal())

	rangeProof, err := RangeDigest(voteCommitmentBytes, nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to compute range attestation: %w", err)
	}
	membershipHash, err := MembershipDigest(censusProof)
	if err != nil {
		return nil, fmt.Errorf("failed to compute membership attestation: %w", err)
	}
	nullifierProof, err := BindingDigest(nullifier, commitment, processID, nonce, timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to compute nullifier attestation: %w", err)
	}

	return &types.ProofBundle{
		ProcessID:      processID,
		Nullifier:      nullifier,
		NullifierProof: nullifierProof,
		Commitment:     commitment,
		VoteCommitment: voteCommitmentBytes,
		RangeProof:     rangeProof,
		CensusProof:    *censusProof,
		MembershipHash: membershipHash,
		Nonce:          nonce,
		Timestamp:      timestamp,
	}, nil
}

// RangeDigest computes the attestation binding the hidden binary choice to
// its Pedersen commitment and the bundle nonce. Verifiers recompute it from
// the public bundle fields only.
func RangeDigest(voteCommitment, nonce []byte) (types.HexBytes, error) {
	hash, err := multiposeidon.MultiPoseidon(
		util.BigToFF(new(big.Int).SetBytes(voteCommitment)),
		util.BigToFF(new(big.Int).SetBytes(nonce)),
	)
	if err != nil {
		return nil, err
	}
	return types.HexBytes(hash.Bytes()).LeftPad(types.DigestLen), nil
}

// MembershipDigest computes the attestation binding the census membership
// path (root, leaf key, leaf value and siblings) into a single digest.
func MembershipDigest(proof *types.CensusProof) (types.HexBytes, error) {
	siblingsHash := sha256.Sum256(proof.Siblings)
	hash, err := multiposeidon.MultiPoseidon(
		util.BigToFF(new(big.Int).SetBytes(proof.Root)),
		util.BigToFF(new(big.Int).SetBytes(proof.Key)),
		util.BigToFF(new(big.Int).SetBytes(proof.Value)),
		util.BigToFF(new(big.Int).SetBytes(siblingsHash[:])),
	)
	if err != nil {
		return nil, err
	}
	return types.HexBytes(hash.Bytes()).LeftPad(types.DigestLen), nil
}

// BindingDigest computes the attestation binding the nullifier to its process
// commitment, the claimed process and the freshness token.
func BindingDigest(nullifier, commitment, processID, nonce []byte, timestamp time.Time) (types.HexBytes, error) {
	hash, err := multiposeidon.MultiPoseidon(
		util.BigToFF(new(big.Int).SetBytes(nullifier)),
		util.BigToFF(new(big.Int).SetBytes(commitment)),
		util.BigToFF(new(big.Int).SetBytes(processID)),
		util.BigToFF(new(big.Int).SetBytes(nonce)),
		big.NewInt(timestamp.Unix()),
	)
	if err != nil {
		return nil, err
	}
	return types.HexBytes(hash.Bytes()).LeftPad(types.DigestLen), nil
}

// Package verifier checks proof bundles before they reach the ledger. The
// verifier is stateless and pure: it never touches the database, only the
// bundle fields and the census root the caller trusts.
package verifier

import (
	"fmt"
	"time"

	"github.com/vocdoni/nullifier-registry/census"
	"github.com/vocdoni/nullifier-registry/crypto/nullifier"
	"github.com/vocdoni/nullifier-registry/log"
	"github.com/vocdoni/nullifier-registry/types"
)

var (
	// ErrMalformedBundle is returned when the bundle fails structural
	// validation before any cryptographic check.
	ErrMalformedBundle = fmt.Errorf("malformed proof bundle")
	// ErrInvalidProof is returned for every failed verification check.
	// Callers cannot distinguish which check failed; the reason is only
	// logged at debug level.
	ErrInvalidProof = fmt.Errorf("invalid proof")
)

// Verify checks a proof bundle against the census root of its process.
// It returns nil only if every check passes, in order: structure, timestamp
// freshness, range attestation, census membership and nullifier binding.
func Verify(b *types.ProofBundle, processID, censusRoot types.HexBytes) error {
	return verifyAt(b, processID, censusRoot, time.Now())
}

func verifyAt(b *types.ProofBundle, processID, censusRoot types.HexBytes, now time.Time) error {
	if err := checkStructure(b, processID); err != nil {
		return err
	}

	// Freshness window. Bundles from the future are as invalid as expired ones.
	if skew := now.Sub(b.Timestamp); skew > types.MaxTimestampSkew || skew < -types.MaxTimestampSkew {
		return reject("timestamp outside freshness window")
	}

	// Range attestation: the hidden choice commitment is bound to the nonce.
	rangeDigest, err := nullifier.RangeDigest(b.VoteCommitment, b.Nonce)
	if err != nil || !rangeDigest.Equal(b.RangeProof) {
		return reject("range attestation mismatch")
	}

	// Census membership. The proof is judged against the root the caller
	// trusts, never against whatever root the bundle claims.
	if !census.VerifyProof(&b.CensusProof, censusRoot) {
		return reject("census membership proof does not verify")
	}
	membership, err := nullifier.MembershipDigest(&b.CensusProof)
	if err != nil || !membership.Equal(b.MembershipHash) {
		return reject("membership attestation mismatch")
	}

	// Nullifier binding: the nullifier, process commitment, process and
	// freshness token must hash to the claimed proof.
	binding, err := nullifier.BindingDigest(b.Nullifier, b.Commitment, b.ProcessID, b.Nonce, b.Timestamp)
	if err != nil || !binding.Equal(b.NullifierProof) {
		return reject("nullifier binding mismatch")
	}

	return nil
}

// checkStructure validates field presence and widths.
func checkStructure(b *types.ProofBundle, processID types.HexBytes) error {
	if b == nil {
		return fmt.Errorf("%w: nil bundle", ErrMalformedBundle)
	}
	if !types.ValidProcessID(b.ProcessID) || !b.ProcessID.Equal(processID) {
		return fmt.Errorf("%w: process identifier mismatch", ErrMalformedBundle)
	}
	if len(b.Nullifier) != types.DigestLen {
		return fmt.Errorf("%w: bad nullifier length %d", ErrMalformedBundle, len(b.Nullifier))
	}
	if len(b.Commitment) != types.DigestLen {
		return fmt.Errorf("%w: bad commitment length %d", ErrMalformedBundle, len(b.Commitment))
	}
	if len(b.NullifierProof) != types.DigestLen ||
		len(b.RangeProof) != types.DigestLen ||
		len(b.MembershipHash) != types.DigestLen {
		return fmt.Errorf("%w: bad attestation length", ErrMalformedBundle)
	}
	if len(b.VoteCommitment) != 32 {
		return fmt.Errorf("%w: bad vote commitment length %d", ErrMalformedBundle, len(b.VoteCommitment))
	}
	if len(b.Nonce) != types.DigestLen {
		return fmt.Errorf("%w: bad nonce length %d", ErrMalformedBundle, len(b.Nonce))
	}
	if b.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrMalformedBundle)
	}
	if len(b.CensusProof.Key) == 0 || len(b.CensusProof.Value) == 0 {
		return fmt.Errorf("%w: missing census proof", ErrMalformedBundle)
	}
	return nil
}

// reject logs the internal reason and returns the undifferentiated error.
func reject(reason string) error {
	log.Debugw("proof bundle rejected", "reason", reason)
	return ErrInvalidProof
}

package pedersen

import (
	"crypto/sha256"
	"math/big"
	"testing"

	babyjubjub "github.com/consensys/gnark-crypto/ecc/bn254/twistededwards"
	qt "github.com/frankban/quicktest"
)

func TestCommitAndOpen(t *testing.T) {
	c := qt.New(t)

	blinding, err := RandomBlinding()
	c.Assert(err, qt.IsNil)

	commitment, err := Commit(big.NewInt(1), blinding)
	c.Assert(err, qt.IsNil)

	c.Assert(commitment.Open(big.NewInt(1), blinding), qt.IsTrue)
	c.Assert(commitment.Open(big.NewInt(0), blinding), qt.IsFalse)

	other, err := RandomBlinding()
	c.Assert(err, qt.IsNil)
	c.Assert(commitment.Open(big.NewInt(1), other), qt.IsFalse)
	c.Assert(commitment.Open(nil, blinding), qt.IsFalse)
}

func TestCommitmentIsHiding(t *testing.T) {
	c := qt.New(t)

	// The same value under different blindings yields different points.
	b1, err := RandomBlinding()
	c.Assert(err, qt.IsNil)
	b2, err := RandomBlinding()
	c.Assert(err, qt.IsNil)
	c.Assert(b1.Cmp(b2), qt.Not(qt.Equals), 0)

	c1, err := Commit(big.NewInt(0), b1)
	c.Assert(err, qt.IsNil)
	c2, err := Commit(big.NewInt(0), b2)
	c.Assert(err, qt.IsNil)
	c.Assert(c1.Equal(c2), qt.IsFalse)

	// And commitments to 0 and 1 under the same blinding differ.
	c3, err := Commit(big.NewInt(1), b1)
	c.Assert(err, qt.IsNil)
	c.Assert(c1.Equal(c3), qt.IsFalse)
}

func TestCommitIsDeterministic(t *testing.T) {
	c := qt.New(t)

	blinding := big.NewInt(123456789)
	c1, err := Commit(big.NewInt(1), blinding)
	c.Assert(err, qt.IsNil)
	c2, err := Commit(big.NewInt(1), blinding)
	c.Assert(err, qt.IsNil)
	c.Assert(c1.Equal(c2), qt.IsTrue)
}

func TestMarshalRoundTrip(t *testing.T) {
	c := qt.New(t)

	blinding, err := RandomBlinding()
	c.Assert(err, qt.IsNil)
	commitment, err := Commit(big.NewInt(1), blinding)
	c.Assert(err, qt.IsNil)

	buf := commitment.Marshal()
	c.Assert(buf, qt.HasLen, 32)

	decoded, err := Unmarshal(buf)
	c.Assert(err, qt.IsNil)
	c.Assert(decoded.Equal(commitment), qt.IsTrue)
	c.Assert(decoded.Open(big.NewInt(1), blinding), qt.IsTrue)

	_, err = Unmarshal([]byte{0x01, 0x02})
	c.Assert(err, qt.IsNotNil)
}

func TestGeneratorIndependence(t *testing.T) {
	c := qt.New(t)

	// H must be a valid point of the prime-order subgroup.
	c.Assert(genH.IsOnCurve(), qt.IsTrue)
	var identity babyjubjub.PointAffine
	identity.X.SetZero()
	identity.Y.SetOne()
	c.Assert(genH.Equal(&identity), qt.IsFalse)
	var ord babyjubjub.PointAffine
	ord.ScalarMultiplication(&genH, &params.Order)
	c.Assert(ord.Equal(&identity), qt.IsTrue)

	// And it must not equal tagScalar·G, the one discrete-log relation a
	// scalar-derived generator would expose.
	digest := sha256.Sum256([]byte(domainTag))
	tagScalar := new(big.Int).Mod(new(big.Int).SetBytes(digest[:]), &params.Order)
	var sG babyjubjub.PointAffine
	sG.ScalarMultiplication(&params.Base, tagScalar)
	c.Assert(genH.Equal(&sG), qt.IsFalse)
}

func TestForgedOpeningRejected(t *testing.T) {
	c := qt.New(t)

	blinding, err := RandomBlinding()
	c.Assert(err, qt.IsNil)
	commitment, err := Commit(big.NewInt(1), blinding)
	c.Assert(err, qt.IsNil)

	// The classic forgery against H = s·G with public s: open a commitment
	// to 1 as 0 with blinding' = blinding + s⁻¹. It must not verify.
	digest := sha256.Sum256([]byte(domainTag))
	tagScalar := new(big.Int).Mod(new(big.Int).SetBytes(digest[:]), &params.Order)
	forged := new(big.Int).Add(blinding, new(big.Int).ModInverse(tagScalar, &params.Order))
	forged.Mod(forged, &params.Order)
	c.Assert(commitment.Open(big.NewInt(0), forged), qt.IsFalse)
	c.Assert(commitment.Open(big.NewInt(1), blinding), qt.IsTrue)
}

// Package pedersen implements a Pedersen commitment scheme over the
// BabyJubJub curve. A commitment hides the committed value behind a blinding
// factor and binds the committer to it: the same point cannot be opened to
// two different values without solving the discrete logarithm of H over G.
package pedersen

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math/big"

	babyjubjub "github.com/consensys/gnark-crypto/ecc/bn254/twistededwards"
)

// domainTag separates the derivation of the second generator H from any other
// use of the curve base point.
const domainTag = "nullifier-registry/pedersen-generator-h/v1"

var (
	params babyjubjub.CurveParams
	genH   babyjubjub.PointAffine
)

func init() {
	params = babyjubjub.GetEdwardsCurve()
	genH = hashToPoint([]byte(domainTag))
}

// hashToPoint derives a curve point with unknown discrete logarithm over the
// base point: the tag is hashed and the digest decompressed into a point,
// re-hashing until decompression lands on the curve. Deriving H as a scalar
// multiple of the base would break the binding property, since anyone knowing
// the scalar can open a commitment to any value. The cofactor is cleared so
// the result lives in the prime-order subgroup.
func hashToPoint(tag []byte) babyjubjub.PointAffine {
	var identity babyjubjub.PointAffine
	identity.X.SetZero()
	identity.Y.SetOne()

	cofactor := big.NewInt(8)
	digest := sha256.Sum256(tag)
	for {
		var candidate babyjubjub.PointAffine
		if _, err := candidate.SetBytes(digest[:]); err == nil && candidate.IsOnCurve() {
			var point babyjubjub.PointAffine
			point.ScalarMultiplication(&candidate, cofactor)
			if !point.Equal(&identity) {
				return point
			}
		}
		digest = sha256.Sum256(digest[:])
	}
}

// Commitment is a point on BabyJubJub committing to a hidden value.
type Commitment struct {
	point babyjubjub.PointAffine
}

// RandomBlinding returns a fresh blinding factor below the curve order.
func RandomBlinding() (*big.Int, error) {
	b, err := rand.Int(rand.Reader, &params.Order)
	if err != nil {
		return nil, fmt.Errorf("failed to sample blinding factor: %w", err)
	}
	return b, nil
}

// Commit computes C = value*G + blinding*H. The value is reduced modulo the
// curve order before committing.
func Commit(value, blinding *big.Int) (*Commitment, error) {
	if value == nil || blinding == nil {
		return nil, fmt.Errorf("nil commitment inputs")
	}
	v := new(big.Int).Mod(value, &params.Order)
	b := new(big.Int).Mod(blinding, &params.Order)

	var vG, bH babyjubjub.PointAffine
	vG.ScalarMultiplication(&params.Base, v)
	bH.ScalarMultiplication(&genH, b)

	c := &Commitment{}
	c.point.Add(&vG, &bH)
	return c, nil
}

// Open reports whether the commitment opens to the given value and blinding
// factor.
func (c *Commitment) Open(value, blinding *big.Int) bool {
	if value == nil || blinding == nil {
		return false
	}
	expected, err := Commit(value, blinding)
	if err != nil {
		return false
	}
	return c.point.Equal(&expected.point)
}

// Marshal serializes the commitment point into its 32-byte compressed form.
func (c *Commitment) Marshal() []byte {
	b := c.point.Marshal()
	return b
}

// Unmarshal deserializes a commitment from its 32-byte compressed form.
func Unmarshal(buf []byte) (*Commitment, error) {
	c := &Commitment{}
	if err := c.point.Unmarshal(buf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal commitment point: %w", err)
	}
	return c, nil
}

// Point returns the X and Y coordinates of the commitment point.
func (c *Commitment) Point() (*big.Int, *big.Int) {
	x, y := new(big.Int), new(big.Int)
	c.point.X.BigInt(x)
	c.point.Y.BigInt(y)
	return x, y
}

// Equal reports whether two commitments are the same curve point.
func (c *Commitment) Equal(other *Commitment) bool {
	if other == nil {
		return false
	}
	return c.point.Equal(&other.point)
}

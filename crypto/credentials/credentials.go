// Package credentials issues voter key material. A credential is created once
// per voter, kept exclusively by the voter and never persisted server-side:
// the registry only ever sees the public commitment.
package credentials

import (
	"crypto/rand"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/iden3/go-iden3-crypto/babyjub"
	"github.com/iden3/go-iden3-crypto/poseidon"
	"github.com/vocdoni/nullifier-registry/types"
	"github.com/vocdoni/nullifier-registry/util"
)

// ErrEntropyUnavailable is returned when the system entropy source cannot
// provide key material. The error is fatal for the caller: retrying without
// re-seeding entropy would undermine the independence of the secrets.
var ErrEntropyUnavailable = fmt.Errorf("entropy source unavailable")

// SecretLen is the byte length of the voter secret.
const SecretLen = 32

// Credential holds the key material of a single voter. Secret and PrivateKey
// must never leave the voter's custody.
type Credential struct {
	Secret     types.HexBytes `json:"-"`
	Commitment types.HexBytes `json:"commitment"`
	PublicKey  types.HexBytes `json:"publicKey"`
	PrivateKey types.HexBytes `json:"-"`
	Address    types.HexBytes `json:"address"`
}

// Issue generates a fresh voter credential: a random secret, a BabyJubJub
// keypair, an Ethereum account address and the poseidon commitment that is
// later registered in the eligibility census. Two invocations yield
// statistically independent secrets.
func Issue() (*Credential, error) {
	secret := make([]byte, SecretLen)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEntropyUnavailable, err)
	}

	var privKey babyjub.PrivateKey
	if _, err := rand.Read(privKey[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEntropyUnavailable, err)
	}
	compressedPub := privKey.Public().Compress()

	account, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEntropyUnavailable, err)
	}
	address := ethcrypto.PubkeyToAddress(account.PublicKey)

	commitment, err := IdentityCommitment(address.Bytes(), secret)
	if err != nil {
		return nil, fmt.Errorf("failed to compute identity commitment: %w", err)
	}

	return &Credential{
		Secret:     secret,
		Commitment: commitment,
		PublicKey:  compressedPub[:],
		PrivateKey: privKey[:],
		Address:    address.Bytes(),
	}, nil
}

// IdentityCommitment computes the poseidon commitment that binds a voter
// address to its secret. The commitment is the only credential-derived value
// ever published: it is registered as a leaf of the eligibility census.
func IdentityCommitment(address, secret []byte) (types.HexBytes, error) {
	hash, err := poseidon.Hash([]*big.Int{
		util.BigToFF(new(big.Int).SetBytes(address)),
		util.BigToFF(new(big.Int).SetBytes(secret)),
	})
	if err != nil {
		return nil, err
	}
	return types.HexBytes(hash.Bytes()).LeftPad(types.DigestLen), nil
}

package crypto

import (
	"encoding/hex"

	"github.com/iov-one/clearpay"
	"github.com/iov-one/clearpay/errors"
	"golang.org/x/crypto/ed25519"
)

// ExtensionName is the prefix of the data an address is derived from.
const ExtensionName = "sigs"

// Signer is the functionality we use from a private key.
// No serializing to support hardware devices as well.
type Signer interface {
	Sign(message []byte) ([]byte, error)
	PublicKey() PublicKey
}

// PublicKey is an ed25519 public key.
type PublicKey []byte

// Verify verifies the signature was created with this message and public key
func (p PublicKey) Verify(message, sig []byte) bool {
	if len(p) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(p), message, sig)
}

// Address returns the ledger account address controlled by this key.
func (p PublicKey) Address() clearpay.Address {
	data := append([]byte(ExtensionName+"/ed25519/"), p...)
	return clearpay.NewAddress(data)
}

// Hex returns the hex representation used in ledger transactions.
func (p PublicKey) Hex() string {
	return hex.EncodeToString(p)
}

// ParsePublicKey decodes a hex encoded public key.
func ParsePublicKey(raw string) (PublicKey, error) {
	b, err := hex.DecodeString(raw)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInput, "public key hex")
	}
	if len(b) != ed25519.PublicKeySize {
		return nil, errors.Wrapf(errors.ErrInput, "public key length %d", len(b))
	}
	return PublicKey(b), nil
}

var _ Signer = (PrivateKey)(nil)

// PrivateKey is an ed25519 private key.
type PrivateKey []byte

// Sign returns a matching signature for this private key
func (p PrivateKey) Sign(message []byte) ([]byte, error) {
	if len(p) != ed25519.PrivateKeySize {
		return nil, errors.Wrap(errors.ErrInput, "private key length")
	}
	return ed25519.Sign(ed25519.PrivateKey(p), message), nil
}

// PublicKey returns the corresponding PublicKey
func (p PrivateKey) PublicKey() PublicKey {
	pub := ed25519.PrivateKey(p).Public().(ed25519.PublicKey)
	return PublicKey(pub)
}

// Address returns the ledger account address controlled by this key.
func (p PrivateKey) Address() clearpay.Address {
	return p.PublicKey().Address()
}

// Seed returns the hex encoded seed this key can be recreated from.
func (p PrivateKey) Seed() string {
	return hex.EncodeToString(ed25519.PrivateKey(p).Seed())
}

// GenPrivKeyEd25519 returns a random new private key
func GenPrivKeyEd25519() PrivateKey {
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		panic(err)
	}
	return PrivateKey(priv)
}

// PrivKeyEd25519FromSeed will deterministically generate a private key from
// a given seed. Use if you have a strong source of external randomness,
// or for deterministic keys in test cases.
func PrivKeyEd25519FromSeed(seed []byte) PrivateKey {
	return PrivateKey(ed25519.NewKeyFromSeed(seed))
}

// ParseSeed decodes a hex encoded 32 byte seed into a private key.
func ParseSeed(raw string) (PrivateKey, error) {
	seed, err := hex.DecodeString(raw)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInput, "seed hex")
	}
	if len(seed) != ed25519.SeedSize {
		return nil, errors.Wrapf(errors.ErrInput, "seed length %d", len(seed))
	}
	return PrivKeyEd25519FromSeed(seed), nil
}

package clearpay

import (
	"crypto/sha256"

	"github.com/iov-one/clearpay/crypto/bech32"
	"github.com/iov-one/clearpay/errors"
)

var (
	// AddressLength is the length of the raw address payload.
	AddressLength = 20

	// AddressHRP is the human readable part of every bech32 encoded
	// address. You can modify it in init() before any addresses are
	// calculated, but it must not change during the lifetime of the
	// process.
	AddressHRP = "cpay"
)

// Address is a ledger account identifier. It is always kept in its bech32
// encoded form so that it can be stored, logged and compared as is.
type Address string

// NewAddress hashes and truncates given data into an address. It is used to
// derive account addresses from public keys.
func NewAddress(data []byte) Address {
	h := sha256.Sum256(data)
	raw, err := bech32.Encode(AddressHRP, h[:AddressLength])
	if err != nil {
		// Only a programming error can break encoding of a fixed
		// length payload.
		panic(err)
	}
	return Address(raw)
}

// ParseAddress decodes and validates a bech32 representation of an address.
func ParseAddress(raw string) (Address, error) {
	a := Address(raw)
	if err := a.Validate(); err != nil {
		return "", err
	}
	return a, nil
}

// Bytes returns the raw payload of the address, or nil if the address is not
// valid.
func (a Address) Bytes() []byte {
	_, payload, err := bech32.Decode(string(a))
	if err != nil {
		return nil
	}
	return payload
}

// Equals checks if two addresses are the same.
func (a Address) Equals(b Address) bool {
	return a == b
}

// IsEmpty returns true if no address was set.
func (a Address) IsEmpty() bool {
	return a == ""
}

func (a Address) String() string {
	return string(a)
}

// Validate returns an error if the address is not a bech32 encoded value
// with the expected human readable part and payload length.
func (a Address) Validate() error {
	if a == "" {
		return errors.Wrap(errors.ErrEmpty, "address")
	}
	hrp, payload, err := bech32.Decode(string(a))
	if err != nil {
		return errors.Wrapf(err, "address %q", string(a))
	}
	if hrp != AddressHRP {
		return errors.Wrapf(errors.ErrInput, "address %q: unexpected prefix %q", string(a), hrp)
	}
	if len(payload) != AddressLength {
		return errors.Wrapf(errors.ErrInput, "address %q: invalid length %d", string(a), len(payload))
	}
	return nil
}

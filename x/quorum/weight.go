package quorum

import (
	"github.com/iov-one/clearpay"
	"github.com/iov-one/clearpay/errors"
)

const (
	// Maximum value a weight value can be set to. This is the capacity of
	// a signer entry weight on the ledger.
	maxWeightValue = 255

	// Maximum number of entries a signer list can hold.
	maxEntries = 8
)

// Weight represents the strength of a signature.
type Weight int32

func (w Weight) Validate() error {
	if w < 1 {
		return errors.Wrap(errors.ErrState, "weight must be greater than 0")
	}
	if w > maxWeightValue {
		return errors.Wrapf(errors.ErrInput,
			"weight is %d and must not be greater than %d", w, maxWeightValue)
	}
	return nil
}

// Entry is a single signer of an escrow account.
type Entry struct {
	Address clearpay.Address `json:"address"`
	Weight  Weight           `json:"weight"`
}

func validateEntries(entries []Entry, required Weight) error {
	switch n := len(entries); {
	case n == 0:
		return errors.Wrap(errors.ErrEmpty, "missing entries")
	case n > maxEntries:
		return errors.Wrapf(errors.ErrInput, "%d entries, at most %d allowed", n, maxEntries)
	}

	seen := make(map[clearpay.Address]struct{}, len(entries))
	var total Weight
	for _, e := range entries {
		if err := e.Address.Validate(); err != nil {
			return errors.Wrapf(err, "entry %s", e.Address)
		}
		if err := e.Weight.Validate(); err != nil {
			return errors.Wrapf(err, "entry %s", e.Address)
		}
		if _, ok := seen[e.Address]; ok {
			return errors.Wrapf(errors.ErrDuplicate, "entry %s", e.Address)
		}
		seen[e.Address] = struct{}{}
		total += e.Weight
	}

	if err := required.Validate(); err != nil {
		return errors.Wrap(err, "required weight")
	}
	if required > total {
		return errors.Wrap(errors.ErrState, "required weight greater than total power")
	}
	return nil
}

package quorum

import (
	"github.com/iov-one/clearpay"
	"github.com/iov-one/clearpay/errors"
)

const (
	// FailingWeight is the weight of a party that did not pass
	// verification. It records the party on the signer list without making
	// its signature count toward the quorum.
	FailingWeight Weight = 1

	// ClearingWeight is the weight of a party that passed verification.
	ClearingWeight Weight = 10

	// ArbiterWeight is the weight of the escrow authority.
	ArbiterWeight Weight = 10

	// EscrowMemo is attached to the transaction that locks the escrow
	// account.
	EscrowMemo = "Escrow transaction"
)

// Plan describes the signer list of an escrow account. It is computed once
// and consumed by the ledger gateway when the account is provisioned.
type Plan struct {
	Entries        []Entry
	RequiredWeight Weight
	Memo           string
}

// NewPlan returns the signer list for an escrow between sender and
// recipient. A party that failed verification is given FailingWeight, a
// clearing party ClearingWeight and the arbiter always ArbiterWeight.
//
// When both parties failed, the arbiter alone can release the funds.
// Otherwise the clearing party and the arbiter must both sign. A plan for two
// clearing parties is never requested by the transfer flow but it is well
// defined and follows the single failure rule.
func NewPlan(sender, recipient clearpay.Address, senderFailed, recipientFailed bool, arbiter clearpay.Address) (*Plan, error) {
	p := &Plan{
		Entries: []Entry{
			{Address: sender, Weight: weightFor(senderFailed)},
			{Address: recipient, Weight: weightFor(recipientFailed)},
			{Address: arbiter, Weight: ArbiterWeight},
		},
		RequiredWeight: 20,
		Memo:           EscrowMemo,
	}
	if senderFailed && recipientFailed {
		p.RequiredWeight = 10
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func weightFor(failed bool) Weight {
	if failed {
		return FailingWeight
	}
	return ClearingWeight
}

// Validate returns an error if the plan cannot be applied to a ledger
// account.
func (p *Plan) Validate() error {
	if p == nil {
		return errors.Wrap(errors.ErrEmpty, "plan")
	}
	return validateEntries(p.Entries, p.RequiredWeight)
}

// Weight returns the weight of given address, or zero if the address is not
// a signer.
func (p *Plan) Weight(a clearpay.Address) Weight {
	for _, e := range p.Entries {
		if e.Address == a {
			return e.Weight
		}
	}
	return 0
}

// Satisfied returns true if signatures of given addresses together reach the
// required weight. Every address is counted once.
func (p *Plan) Satisfied(signers ...clearpay.Address) bool {
	seen := make(map[clearpay.Address]struct{}, len(signers))
	var total Weight
	for _, s := range signers {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		total += p.Weight(s)
	}
	return total >= p.RequiredWeight
}

package transfer

import (
	"github.com/iov-one/clearpay"
	"github.com/iov-one/clearpay/store"
)

// requirement lists the roles whose decision is needed for a settlement.
type requirement struct {
	approve []clearpay.Role
	reject  []clearpay.Role
}

// policy maps a verification failure to the decisions releasing the
// escrow. The decision of a failing party is never required.
var policy = map[clearpay.Status]requirement{
	clearpay.RecipientAndSenderVerificationFailed: {
		approve: []clearpay.Role{clearpay.RoleAdmin},
		reject:  []clearpay.Role{clearpay.RoleAdmin},
	},
	clearpay.RecipientVerificationFailed: {
		approve: []clearpay.Role{clearpay.RoleAdmin, clearpay.RoleSender},
		reject:  []clearpay.Role{clearpay.RoleAdmin, clearpay.RoleSender},
	},
	clearpay.SenderVerificationFailed: {
		approve: []clearpay.Role{clearpay.RoleAdmin, clearpay.RoleRecipient},
		reject:  []clearpay.Role{clearpay.RoleAdmin, clearpay.RoleRecipient},
	},
}

// Settlement returns the decision the recorded statuses of the transaction
// agree on, together with the roles whose signatures authorize it. The
// last value is false if no decision was reached yet.
func Settlement(t *store.Transaction) (clearpay.Decision, []clearpay.Role, bool) {
	req, ok := policy[t.VerificationOutcome()]
	if !ok {
		return "", nil, false
	}
	if decided(t, req.approve, clearpay.Approve) {
		return clearpay.Approve, req.approve, true
	}
	if decided(t, req.reject, clearpay.Reject) {
		return clearpay.Reject, req.reject, true
	}
	return "", nil, false
}

func decided(t *store.Transaction, roles []clearpay.Role, d clearpay.Decision) bool {
	for _, r := range roles {
		s, err := clearpay.DecisionStatus(r, d)
		if err != nil || !t.HasStatus(s) {
			return false
		}
	}
	return true
}

// Destination returns where the escrowed funds go for given decision.
func Destination(t *store.Transaction, d clearpay.Decision) clearpay.Address {
	if d == clearpay.Approve {
		return t.Recipient
	}
	return t.Sender
}

package clearpay

import (
	"github.com/iov-one/clearpay/errors"
)

// Status is the state a transaction is in. The current status of a
// transaction is always the newest entry of its status log.
type Status string

const (
	PendingVerification                  Status = "PENDING_VERIFICATION"
	VerificationSuccess                  Status = "VERIFICATION_SUCCESS"
	SenderVerificationFailed             Status = "SENDER_VERIFICATION_FAILED"
	RecipientVerificationFailed          Status = "RECIPIENT_VERIFICATION_FAILED"
	RecipientAndSenderVerificationFailed Status = "RECIPIENT_AND_SENDER_VERIFICATION_FAILED"
	EscrowFunded                         Status = "ESCROW_FUNDED"
	SenderApproved                       Status = "SENDER_APPROVED"
	RecipientApproved                    Status = "RECIPIENT_APPROVED"
	AdminApproved                        Status = "ADMIN_APPROVED"
	SenderRejected                       Status = "SENDER_REJECTED"
	RecipientRejected                    Status = "RECIPIENT_REJECTED"
	AdminRejected                        Status = "ADMIN_REJECTED"
	Success                              Status = "SUCCESS"
	Failed                               Status = "FAILED"
)

var statuses = map[Status]struct{}{
	PendingVerification:                  {},
	VerificationSuccess:                  {},
	SenderVerificationFailed:             {},
	RecipientVerificationFailed:          {},
	RecipientAndSenderVerificationFailed: {},
	EscrowFunded:                         {},
	SenderApproved:                       {},
	RecipientApproved:                    {},
	AdminApproved:                        {},
	SenderRejected:                       {},
	RecipientRejected:                    {},
	AdminRejected:                        {},
	Success:                              {},
	Failed:                               {},
}

// Validate returns an error if the status is not one of the declared values.
func (s Status) Validate() error {
	if _, ok := statuses[s]; !ok {
		return errors.Wrapf(errors.ErrInput, "status %q", string(s))
	}
	return nil
}

// IsTerminal returns true for statuses after which no other status can be
// appended.
func (s Status) IsTerminal() bool {
	return s == Success || s == Failed
}

// IsVerificationOutcome returns true for statuses that describe the result
// of vendor verification.
func (s Status) IsVerificationOutcome() bool {
	switch s {
	case VerificationSuccess, SenderVerificationFailed, RecipientVerificationFailed, RecipientAndSenderVerificationFailed:
		return true
	}
	return false
}

// IsVerificationFailure returns true if at least one of the parties did not
// pass vendor verification.
func (s Status) IsVerificationFailure() bool {
	return s.IsVerificationOutcome() && s != VerificationSuccess
}

// VerificationStatus is the state of a single vendor check.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "PENDING"
	VerificationApproved VerificationStatus = "APPROVED"
	VerificationRejected VerificationStatus = "REJECTED"
)

// Validate returns an error if the status is not one of the declared values.
func (s VerificationStatus) Validate() error {
	switch s {
	case VerificationPending, VerificationApproved, VerificationRejected:
		return nil
	}
	return errors.Wrapf(errors.ErrInput, "verification status %q", string(s))
}

// Role is the part an address plays in a transaction.
type Role string

const (
	RoleSender    Role = "sender"
	RoleRecipient Role = "recipient"
	RoleAdmin     Role = "admin"
)

// Validate returns an error if the role is not one of the declared values.
func (r Role) Validate() error {
	switch r {
	case RoleSender, RoleRecipient, RoleAdmin:
		return nil
	}
	return errors.Wrapf(errors.ErrInput, "role %q", string(r))
}

// Decision is what a party decided about an escrowed transaction.
type Decision string

const (
	Approve Decision = "approve"
	Reject  Decision = "reject"
)

// Validate returns an error if the decision is not one of the declared
// values.
func (d Decision) Validate() error {
	switch d {
	case Approve, Reject:
		return nil
	}
	return errors.Wrapf(errors.ErrInput, "decision %q", string(d))
}

var decisionStatuses = map[Role]map[Decision]Status{
	RoleSender:    {Approve: SenderApproved, Reject: SenderRejected},
	RoleRecipient: {Approve: RecipientApproved, Reject: RecipientRejected},
	RoleAdmin:     {Approve: AdminApproved, Reject: AdminRejected},
}

// DecisionStatus returns the status that records the decision of given role.
func DecisionStatus(r Role, d Decision) (Status, error) {
	byDecision, ok := decisionStatuses[r]
	if !ok {
		return "", errors.Wrapf(errors.ErrInput, "role %q", string(r))
	}
	s, ok := byDecision[d]
	if !ok {
		return "", errors.Wrapf(errors.ErrInput, "decision %q", string(d))
	}
	return s, nil
}

// StatusDecision is the inverse of DecisionStatus. It returns false if given
// status does not record a decision.
func StatusDecision(s Status) (Role, Decision, bool) {
	for r, byDecision := range decisionStatuses {
		for d, st := range byDecision {
			if st == s {
				return r, d, true
			}
		}
	}
	return "", "", false
}

package store

import (
	"time"

	"github.com/iov-one/clearpay"
	"github.com/shopspring/decimal"
)

// Transaction is a payment between two parties together with its complete
// history.
type Transaction struct {
	ID        string           `json:"id"`
	Sender    clearpay.Address `json:"sender"`
	Recipient clearpay.Address `json:"recipient"`
	Amount    decimal.Decimal  `json:"amount"`
	CreatedAt time.Time        `json:"created_at"`

	// Escrow is set once the escrow account is provisioned.
	Escrow clearpay.Address `json:"escrow,omitempty"`
	// EscrowExpiry is the ledger index after which the escrow is stale.
	EscrowExpiry uint64 `json:"escrow_expiry,omitempty"`
	// FundingHash references the ledger transaction that moved the funds
	// to the escrow account.
	FundingHash string `json:"funding_hash,omitempty"`

	SenderSignature    *clearpay.Signer `json:"sender_signature,omitempty"`
	RecipientSignature *clearpay.Signer `json:"recipient_signature,omitempty"`
	AdminSignature     *clearpay.Signer `json:"admin_signature,omitempty"`

	// StatusLog is ordered newest first.
	StatusLog     []StatusLogEntry     `json:"status_log"`
	Verifications []VendorVerification `json:"verifications"`
}

// StatusLogEntry is a single, immutable record of a status change.
type StatusLogEntry struct {
	Status    clearpay.Status `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	// Seq orders entries of a single log. It starts at 1.
	Seq uint64 `json:"seq"`
}

// Status returns the current status of the transaction.
func (t *Transaction) Status() clearpay.Status {
	if len(t.StatusLog) == 0 {
		return ""
	}
	return t.StatusLog[0].Status
}

// HasStatus returns true if given status was ever recorded.
func (t *Transaction) HasStatus(s clearpay.Status) bool {
	for _, e := range t.StatusLog {
		if e.Status == s {
			return true
		}
	}
	return false
}

// VerificationOutcome returns the recorded result of vendor verification,
// or an empty status if verification did not complete.
func (t *Transaction) VerificationOutcome() clearpay.Status {
	for _, e := range t.StatusLog {
		if e.Status.IsVerificationOutcome() {
			return e.Status
		}
	}
	return ""
}

// Signature returns the credential recorded for given role.
func (t *Transaction) Signature(r clearpay.Role) *clearpay.Signer {
	switch r {
	case clearpay.RoleSender:
		return t.SenderSignature
	case clearpay.RoleRecipient:
		return t.RecipientSignature
	case clearpay.RoleAdmin:
		return t.AdminSignature
	}
	return nil
}

func (t *Transaction) setSignature(r clearpay.Role, s *clearpay.Signer) {
	switch r {
	case clearpay.RoleSender:
		t.SenderSignature = s
	case clearpay.RoleRecipient:
		t.RecipientSignature = s
	case clearpay.RoleAdmin:
		t.AdminSignature = s
	}
}

// Verification returns the verification with given ID or nil.
func (t *Transaction) Verification(id string) *VendorVerification {
	for i := range t.Verifications {
		if t.Verifications[i].ID == id {
			return &t.Verifications[i]
		}
	}
	return nil
}

// VendorVerification is a single check of one subject by one vendor.
type VendorVerification struct {
	ID       string           `json:"id"`
	VendorID string           `json:"vendor_id"`
	Subject  clearpay.Address `json:"subject"`
	Role     clearpay.Role    `json:"role"`
	// StatusLog is ordered newest first.
	StatusLog []VerificationLogEntry `json:"status_log"`
}

// Status returns the current status of the verification.
func (v *VendorVerification) Status() clearpay.VerificationStatus {
	if len(v.StatusLog) == 0 {
		return ""
	}
	return v.StatusLog[0].Status
}

// VerificationLogEntry is a single, immutable record of a verification
// status change.
type VerificationLogEntry struct {
	Status    clearpay.VerificationStatus `json:"status"`
	CreatedAt time.Time                   `json:"created_at"`
	Seq       uint64                      `json:"seq"`
}

// Vendor is a risk vendor that can check transaction parties.
type Vendor struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Active      bool   `json:"active"`
}

// Filter narrows down the transaction listing. Sender and Recipient are
// alternatives: a transaction matches if any of the set addresses matches.
type Filter struct {
	Sender       clearpay.Address
	Recipient    clearpay.Address
	EscrowFunded bool
}

// Match returns true if given transaction passes the filter.
func (f Filter) Match(t *Transaction) bool {
	if f.EscrowFunded && !t.HasStatus(clearpay.EscrowFunded) {
		return false
	}
	if f.Sender == "" && f.Recipient == "" {
		return true
	}
	return (f.Sender != "" && t.Sender == f.Sender) ||
		(f.Recipient != "" && t.Recipient == f.Recipient)
}

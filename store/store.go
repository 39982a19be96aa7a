package store

import (
	"context"
	"time"

	"github.com/iov-one/clearpay"
	"github.com/iov-one/clearpay/errors"
)

// Store is the persistence layer used by the transfer machine.
//
// Every method returning a transaction returns its state after the mutation
// was applied. Missing entities are reported with errors.ErrNotFound.
type Store interface {
	// CreateTransaction persists a new transaction together with its
	// verifications. The transaction must carry its initial status.
	CreateTransaction(ctx context.Context, t *Transaction) error
	Transaction(ctx context.Context, id string) (*Transaction, error)
	// Transactions returns all transactions matching given filter,
	// newest first.
	Transactions(ctx context.Context, f Filter) ([]*Transaction, error)

	// AppendStatus appends a status to the transaction log. It fails
	// with errors.ErrImmutable if a terminal status was already
	// recorded.
	AppendStatus(ctx context.Context, id string, s clearpay.Status) (*Transaction, error)
	// SetEscrow records the escrow account. It can be set only once.
	SetEscrow(ctx context.Context, id string, escrow clearpay.Address, expiry uint64) (*Transaction, error)
	// SetFundingHash records the hash of the escrow funding payment.
	SetFundingHash(ctx context.Context, id string, hash string) (*Transaction, error)
	// RecordDecision sets the signature of given role and appends the
	// status describing the decision, in a single step. A role can
	// decide only once.
	RecordDecision(ctx context.Context, id string, r clearpay.Role, d clearpay.Decision, s clearpay.Signer) (*Transaction, error)

	// AppendVerificationStatus appends a status to a single vendor
	// verification log.
	AppendVerificationStatus(ctx context.Context, txID, verificationID string, s clearpay.VerificationStatus) error

	// Vendors returns all vendors ordered by name.
	Vendors(ctx context.Context) ([]*Vendor, error)
	// SaveVendor creates or updates a vendor. Vendor names are unique.
	SaveVendor(ctx context.Context, v *Vendor) error
	Vendor(ctx context.Context, id string) (*Vendor, error)
	VendorByName(ctx context.Context, name string) (*Vendor, error)

	Close() error
}

// Now returns the current time as stored by all backends. Database
// precision is microseconds.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// Validate returns an error if the transaction cannot be created.
func (t *Transaction) Validate() error {
	var errs error
	if t.ID == "" {
		errs = errors.AppendField(errs, "ID", errors.ErrEmpty)
	}
	errs = errors.AppendField(errs, "Sender", t.Sender.Validate())
	errs = errors.AppendField(errs, "Recipient", t.Recipient.Validate())
	if !t.Amount.IsPositive() {
		errs = errors.AppendField(errs, "Amount", errors.Wrap(errors.ErrAmount, "must be positive"))
	}
	if len(t.StatusLog) == 0 {
		errs = errors.AppendField(errs, "StatusLog", errors.ErrEmpty)
	}
	for i, v := range t.Verifications {
		if v.ID == "" || v.VendorID == "" {
			errs = errors.AppendField(errs, "Verifications", errors.Wrapf(errors.ErrEmpty, "verification %d", i))
		}
	}
	return errs
}

// AppendStatus prepends a new entry to the status log.
func (t *Transaction) AppendStatus(s clearpay.Status, now time.Time) (StatusLogEntry, error) {
	if err := s.Validate(); err != nil {
		return StatusLogEntry{}, err
	}
	if cur := t.Status(); cur.IsTerminal() {
		return StatusLogEntry{}, errors.Wrapf(errors.ErrImmutable, "transaction %s is %s", t.ID, cur)
	}
	e := StatusLogEntry{
		Status:    s,
		CreatedAt: now,
		Seq:       uint64(len(t.StatusLog)) + 1,
	}
	t.StatusLog = append([]StatusLogEntry{e}, t.StatusLog...)
	return e, nil
}

// SetEscrow records the escrow account.
func (t *Transaction) SetEscrow(escrow clearpay.Address, expiry uint64) error {
	if err := escrow.Validate(); err != nil {
		return errors.Wrap(err, "escrow")
	}
	if t.Escrow != "" {
		return errors.Wrapf(errors.ErrDuplicate, "transaction %s escrow", t.ID)
	}
	t.Escrow = escrow
	t.EscrowExpiry = expiry
	return nil
}

// SetFundingHash records the funding payment reference. Setting the same
// value again is a no-op.
func (t *Transaction) SetFundingHash(hash string) error {
	if hash == "" {
		return errors.Wrap(errors.ErrEmpty, "funding hash")
	}
	if t.FundingHash != "" && t.FundingHash != hash {
		return errors.Wrapf(errors.ErrDuplicate, "transaction %s funding hash", t.ID)
	}
	t.FundingHash = hash
	return nil
}

// RecordDecision sets the role signature and appends the decision status.
func (t *Transaction) RecordDecision(r clearpay.Role, d clearpay.Decision, s clearpay.Signer, now time.Time) (StatusLogEntry, error) {
	status, err := clearpay.DecisionStatus(r, d)
	if err != nil {
		return StatusLogEntry{}, err
	}
	if err := s.Validate(); err != nil {
		return StatusLogEntry{}, errors.Wrap(err, "signer")
	}
	if t.Signature(r) != nil {
		return StatusLogEntry{}, errors.Wrapf(errors.ErrDuplicate, "%s already decided", r)
	}
	e, err := t.AppendStatus(status, now)
	if err != nil {
		return StatusLogEntry{}, err
	}
	t.setSignature(r, &s)
	return e, nil
}

// AppendVerificationStatus prepends a new entry to the log of given
// verification. A resolved verification cannot be changed.
func (t *Transaction) AppendVerificationStatus(id string, s clearpay.VerificationStatus, now time.Time) (VerificationLogEntry, error) {
	if err := s.Validate(); err != nil {
		return VerificationLogEntry{}, err
	}
	v := t.Verification(id)
	if v == nil {
		return VerificationLogEntry{}, errors.Wrapf(errors.ErrNotFound, "verification %s", id)
	}
	if cur := v.Status(); cur != "" && cur != clearpay.VerificationPending {
		return VerificationLogEntry{}, errors.Wrapf(errors.ErrImmutable, "verification %s is %s", id, cur)
	}
	e := VerificationLogEntry{
		Status:    s,
		CreatedAt: now,
		Seq:       uint64(len(v.StatusLog)) + 1,
	}
	v.StatusLog = append([]VerificationLogEntry{e}, v.StatusLog...)
	return e, nil
}

// Validate returns an error if the vendor cannot be saved.
func (v *Vendor) Validate() error {
	var errs error
	if v.ID == "" {
		errs = errors.AppendField(errs, "ID", errors.ErrEmpty)
	}
	if v.Name == "" {
		errs = errors.AppendField(errs, "Name", errors.ErrEmpty)
	}
	return errs
}

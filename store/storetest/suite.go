package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/iov-one/clearpay"
	"github.com/iov-one/clearpay/errors"
	"github.com/iov-one/clearpay/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

/**
Suite provides test methods that can be called from a backend specific test
code. We just customize the store being tested (pass in constructor), the rest
of the logic is generic to the store.Store interface.

This is intended to remove duplication between the badger and the postgres
backend tests, but can be used for any implementation of store.Store.
*/
type Suite struct {
	makeStore Constructor
}

// Constructor returns a new, empty store and a cleanup function.
type Constructor func(t testing.TB) (s store.Store, cleanup func())

func NewSuite(constructor Constructor) *Suite {
	return &Suite{makeStore: constructor}
}

// Run executes all tests of the suite.
func (s *Suite) Run(t *testing.T) {
	t.Run("CreateAndGet", s.CreateAndGet)
	t.Run("AppendStatus", s.AppendStatus)
	t.Run("ConcurrentTerminalAppend", s.ConcurrentTerminalAppend)
	t.Run("Escrow", s.Escrow)
	t.Run("RecordDecision", s.RecordDecision)
	t.Run("Verifications", s.Verifications)
	t.Run("Listing", s.Listing)
	t.Run("Vendors", s.Vendors)
}

var (
	Sender    = clearpay.NewAddress([]byte("storetest/sender"))
	Recipient = clearpay.NewAddress([]byte("storetest/recipient"))
	Escrow    = clearpay.NewAddress([]byte("storetest/escrow"))
)

// NewTransaction returns a valid transaction in the initial status with one
// pending verification per subject.
func NewTransaction(sender, recipient clearpay.Address) *store.Transaction {
	now := store.Now()
	pending := []store.VerificationLogEntry{
		{Status: clearpay.VerificationPending, CreatedAt: now, Seq: 1},
	}
	return &store.Transaction{
		ID:        uuid.New().String(),
		Sender:    sender,
		Recipient: recipient,
		Amount:    decimal.RequireFromString("50.25"),
		CreatedAt: now,
		StatusLog: []store.StatusLogEntry{
			{Status: clearpay.PendingVerification, CreatedAt: now, Seq: 1},
		},
		Verifications: []store.VendorVerification{
			{ID: uuid.New().String(), VendorID: "vendor-1", Subject: sender, Role: clearpay.RoleSender, StatusLog: pending},
			{ID: uuid.New().String(), VendorID: "vendor-1", Subject: recipient, Role: clearpay.RoleRecipient, StatusLog: pending},
		},
	}
}

// Signer returns a valid credential for given account.
func Signer(account clearpay.Address) clearpay.Signer {
	return clearpay.Signer{
		Account:       account,
		SigningPubKey: "aabbcc",
		TxnSignature:  "cafe",
	}
}

func (s *Suite) CreateAndGet(t *testing.T) {
	db, cleanup := s.makeStore(t)
	defer cleanup()
	ctx := context.Background()

	tx := NewTransaction(Sender, Recipient)
	require.NoError(t, db.CreateTransaction(ctx, tx))

	got, err := db.Transaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, tx.ID, got.ID)
	assert.Equal(t, Sender, got.Sender)
	assert.Equal(t, Recipient, got.Recipient)
	assert.True(t, tx.Amount.Equal(got.Amount), "amount %s", got.Amount)
	assert.Equal(t, clearpay.PendingVerification, got.Status())
	require.Len(t, got.Verifications, 2)
	for _, v := range got.Verifications {
		assert.Equal(t, clearpay.VerificationPending, v.Status())
	}

	if err := db.CreateTransaction(ctx, tx); !errors.ErrDuplicate.Is(err) {
		t.Fatalf("want duplicate error, got %+v", err)
	}
	if _, err := db.Transaction(ctx, uuid.New().String()); !errors.ErrNotFound.Is(err) {
		t.Fatalf("want not found error, got %+v", err)
	}

	invalid := NewTransaction(Sender, Recipient)
	invalid.Amount = decimal.Zero
	if err := db.CreateTransaction(ctx, invalid); !errors.ErrAmount.Is(err) {
		t.Fatalf("want amount error, got %+v", err)
	}
}

func (s *Suite) AppendStatus(t *testing.T) {
	db, cleanup := s.makeStore(t)
	defer cleanup()
	ctx := context.Background()

	tx := NewTransaction(Sender, Recipient)
	require.NoError(t, db.CreateTransaction(ctx, tx))

	for _, st := range []clearpay.Status{clearpay.VerificationSuccess, clearpay.Success} {
		got, err := db.AppendStatus(ctx, tx.ID, st)
		require.NoError(t, err)
		assert.Equal(t, st, got.Status())
	}

	if _, err := db.AppendStatus(ctx, tx.ID, clearpay.Failed); !errors.ErrImmutable.Is(err) {
		t.Fatalf("want immutable error, got %+v", err)
	}
	if _, err := db.AppendStatus(ctx, uuid.New().String(), clearpay.Failed); !errors.ErrNotFound.Is(err) {
		t.Fatalf("want not found error, got %+v", err)
	}

	got, err := db.Transaction(ctx, tx.ID)
	require.NoError(t, err)
	want := []clearpay.Status{clearpay.Success, clearpay.VerificationSuccess, clearpay.PendingVerification}
	require.Len(t, got.StatusLog, len(want))
	for i, st := range want {
		assert.Equal(t, st, got.StatusLog[i].Status)
		assert.Equal(t, uint64(len(want)-i), got.StatusLog[i].Seq)
	}
}

func (s *Suite) ConcurrentTerminalAppend(t *testing.T) {
	db, cleanup := s.makeStore(t)
	defer cleanup()
	ctx := context.Background()

	tx := NewTransaction(Sender, Recipient)
	require.NoError(t, db.CreateTransaction(ctx, tx))

	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st := clearpay.Success
			if i%2 == 0 {
				st = clearpay.Failed
			}
			_, err := db.AppendStatus(ctx, tx.ID, st)
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
				return
			}
			if !errors.ErrImmutable.Is(err) {
				t.Errorf("unexpected error: %+v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	got, err := db.Transaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Len(t, got.StatusLog, 2)
	assert.True(t, got.Status().IsTerminal())
}

func (s *Suite) Escrow(t *testing.T) {
	db, cleanup := s.makeStore(t)
	defer cleanup()
	ctx := context.Background()

	tx := NewTransaction(Sender, Recipient)
	require.NoError(t, db.CreateTransaction(ctx, tx))

	got, err := db.SetEscrow(ctx, tx.ID, Escrow, 100123)
	require.NoError(t, err)
	assert.Equal(t, Escrow, got.Escrow)
	assert.Equal(t, uint64(100123), got.EscrowExpiry)

	if _, err := db.SetEscrow(ctx, tx.ID, Sender, 5); !errors.ErrDuplicate.Is(err) {
		t.Fatalf("want duplicate error, got %+v", err)
	}

	got, err = db.SetFundingHash(ctx, tx.ID, "ABCDEF")
	require.NoError(t, err)
	assert.Equal(t, "ABCDEF", got.FundingHash)

	got, err = db.Transaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, Escrow, got.Escrow)
	assert.Equal(t, uint64(100123), got.EscrowExpiry)
	assert.Equal(t, "ABCDEF", got.FundingHash)
}

func (s *Suite) RecordDecision(t *testing.T) {
	db, cleanup := s.makeStore(t)
	defer cleanup()
	ctx := context.Background()

	tx := NewTransaction(Sender, Recipient)
	require.NoError(t, db.CreateTransaction(ctx, tx))

	got, err := db.RecordDecision(ctx, tx.ID, clearpay.RoleRecipient, clearpay.Approve, Signer(Recipient))
	require.NoError(t, err)
	assert.Equal(t, clearpay.RecipientApproved, got.Status())
	require.NotNil(t, got.RecipientSignature)
	assert.Equal(t, Recipient, got.RecipientSignature.Account)

	_, err = db.RecordDecision(ctx, tx.ID, clearpay.RoleRecipient, clearpay.Reject, Signer(Recipient))
	if !errors.ErrDuplicate.Is(err) {
		t.Fatalf("want duplicate error, got %+v", err)
	}

	_, err = db.AppendStatus(ctx, tx.ID, clearpay.Failed)
	require.NoError(t, err)
	_, err = db.RecordDecision(ctx, tx.ID, clearpay.RoleAdmin, clearpay.Approve, Signer(Escrow))
	if !errors.ErrImmutable.Is(err) {
		t.Fatalf("want immutable error, got %+v", err)
	}

	got, err = db.Transaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Nil(t, got.AdminSignature)
	assert.Equal(t, clearpay.Failed, got.Status())
	require.NotNil(t, got.RecipientSignature)
	assert.Equal(t, "cafe", got.RecipientSignature.TxnSignature)
}

func (s *Suite) Verifications(t *testing.T) {
	db, cleanup := s.makeStore(t)
	defer cleanup()
	ctx := context.Background()

	tx := NewTransaction(Sender, Recipient)
	require.NoError(t, db.CreateTransaction(ctx, tx))

	first := tx.Verifications[0].ID
	require.NoError(t, db.AppendVerificationStatus(ctx, tx.ID, first, clearpay.VerificationRejected))

	err := db.AppendVerificationStatus(ctx, tx.ID, first, clearpay.VerificationApproved)
	if !errors.ErrImmutable.Is(err) {
		t.Fatalf("want immutable error, got %+v", err)
	}
	err = db.AppendVerificationStatus(ctx, tx.ID, uuid.New().String(), clearpay.VerificationApproved)
	if !errors.ErrNotFound.Is(err) {
		t.Fatalf("want not found error, got %+v", err)
	}

	got, err := db.Transaction(ctx, tx.ID)
	require.NoError(t, err)
	v := got.Verification(first)
	require.NotNil(t, v)
	assert.Equal(t, clearpay.VerificationRejected, v.Status())
	require.Len(t, v.StatusLog, 2)
	assert.Equal(t, clearpay.VerificationPending, v.StatusLog[1].Status)
	assert.Equal(t, clearpay.VerificationPending, got.Verification(tx.Verifications[1].ID).Status())
}

func (s *Suite) Listing(t *testing.T) {
	db, cleanup := s.makeStore(t)
	defer cleanup()
	ctx := context.Background()

	other := clearpay.NewAddress([]byte("storetest/other"))

	funded := NewTransaction(Sender, Recipient)
	require.NoError(t, db.CreateTransaction(ctx, funded))
	_, err := db.AppendStatus(ctx, funded.ID, clearpay.SenderVerificationFailed)
	require.NoError(t, err)
	_, err = db.AppendStatus(ctx, funded.ID, clearpay.EscrowFunded)
	require.NoError(t, err)

	direct := NewTransaction(Sender, Recipient)
	require.NoError(t, db.CreateTransaction(ctx, direct))

	foreign := NewTransaction(other, Sender)
	require.NoError(t, db.CreateTransaction(ctx, foreign))
	_, err = db.AppendStatus(ctx, foreign.ID, clearpay.EscrowFunded)
	require.NoError(t, err)

	cases := map[string]struct {
		filter store.Filter
		want   []string
	}{
		"everything": {
			filter: store.Filter{},
			want:   []string{funded.ID, direct.ID, foreign.ID},
		},
		"funded only": {
			filter: store.Filter{EscrowFunded: true},
			want:   []string{funded.ID, foreign.ID},
		},
		"funded as sender": {
			filter: store.Filter{Sender: Sender, EscrowFunded: true},
			want:   []string{funded.ID},
		},
		"funded as any party": {
			filter: store.Filter{Sender: Sender, Recipient: Sender, EscrowFunded: true},
			want:   []string{funded.ID, foreign.ID},
		},
		"unknown party": {
			filter: store.Filter{Recipient: other},
			want:   nil,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			got, err := db.Transactions(ctx, tc.filter)
			require.NoError(t, err)
			ids := make([]string, 0, len(got))
			for _, tx := range got {
				ids = append(ids, tx.ID)
			}
			assert.ElementsMatch(t, tc.want, ids)
		})
	}
}

func (s *Suite) Vendors(t *testing.T) {
	db, cleanup := s.makeStore(t)
	defer cleanup()
	ctx := context.Background()

	for i, name := range []string{"Elliptic", "Blowfish", "Chainalsys"} {
		v := &store.Vendor{
			ID:          fmt.Sprintf("vendor-%d", i),
			Name:        name,
			Description: name + " risk checks",
			Active:      true,
		}
		require.NoError(t, db.SaveVendor(ctx, v))
	}

	all, err := db.Vendors(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Blowfish", all[0].Name)
	assert.Equal(t, "Chainalsys", all[1].Name)
	assert.Equal(t, "Elliptic", all[2].Name)

	v, err := db.VendorByName(ctx, "Blowfish")
	require.NoError(t, err)
	assert.Equal(t, "vendor-1", v.ID)

	v.Active = false
	v.Description = "retired"
	require.NoError(t, db.SaveVendor(ctx, v))
	v, err = db.Vendor(ctx, "vendor-1")
	require.NoError(t, err)
	assert.False(t, v.Active)
	assert.Equal(t, "retired", v.Description)

	clash := &store.Vendor{ID: "vendor-9", Name: "Elliptic"}
	if err := db.SaveVendor(ctx, clash); !errors.ErrDuplicate.Is(err) {
		t.Fatalf("want duplicate error, got %+v", err)
	}
	if _, err := db.Vendor(ctx, "vendor-9"); !errors.ErrNotFound.Is(err) {
		t.Fatalf("want not found error, got %+v", err)
	}
	if _, err := db.VendorByName(ctx, "Nope"); !errors.ErrNotFound.Is(err) {
		t.Fatalf("want not found error, got %+v", err)
	}
	if err := db.SaveVendor(ctx, &store.Vendor{ID: "x"}); !errors.ErrEmpty.Is(err) {
		t.Fatalf("want empty error, got %+v", err)
	}
}

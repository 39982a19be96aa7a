package transfer

import (
	"sync"
	"testing"
	"time"

	"github.com/iov-one/clearpay"
	"github.com/iov-one/clearpay/store"
	"github.com/stretchr/testify/assert"
)

func txWith(statuses ...clearpay.Status) *store.Transaction {
	t := &store.Transaction{Sender: "sender", Recipient: "recipient"}
	for i, s := range statuses {
		t.StatusLog = append([]store.StatusLogEntry{{Status: s, Seq: uint64(i + 1)}}, t.StatusLog...)
	}
	return t
}

func TestSettlement(t *testing.T) {
	cases := map[string]struct {
		tx           *store.Transaction
		wantDecided  bool
		wantDecision clearpay.Decision
		wantRoles    []clearpay.Role
	}{
		"verification passed": {
			tx: txWith(clearpay.PendingVerification, clearpay.VerificationSuccess, clearpay.AdminApproved),
		},
		"both failed, arbiter approves": {
			tx:           txWith(clearpay.PendingVerification, clearpay.RecipientAndSenderVerificationFailed, clearpay.EscrowFunded, clearpay.AdminApproved),
			wantDecided:  true,
			wantDecision: clearpay.Approve,
			wantRoles:    []clearpay.Role{clearpay.RoleAdmin},
		},
		"both failed, arbiter rejects": {
			tx:           txWith(clearpay.PendingVerification, clearpay.RecipientAndSenderVerificationFailed, clearpay.EscrowFunded, clearpay.AdminRejected),
			wantDecided:  true,
			wantDecision: clearpay.Reject,
			wantRoles:    []clearpay.Role{clearpay.RoleAdmin},
		},
		"both failed, parties alone": {
			tx: txWith(clearpay.PendingVerification, clearpay.RecipientAndSenderVerificationFailed, clearpay.EscrowFunded, clearpay.SenderApproved, clearpay.RecipientApproved),
		},
		"sender failed, recipient and arbiter approve": {
			tx:           txWith(clearpay.PendingVerification, clearpay.SenderVerificationFailed, clearpay.EscrowFunded, clearpay.RecipientApproved, clearpay.AdminApproved),
			wantDecided:  true,
			wantDecision: clearpay.Approve,
			wantRoles:    []clearpay.Role{clearpay.RoleAdmin, clearpay.RoleRecipient},
		},
		"sender failed, sender and arbiter approve": {
			tx: txWith(clearpay.PendingVerification, clearpay.SenderVerificationFailed, clearpay.EscrowFunded, clearpay.SenderApproved, clearpay.AdminApproved),
		},
		"sender failed, mismatched decisions": {
			tx: txWith(clearpay.PendingVerification, clearpay.SenderVerificationFailed, clearpay.EscrowFunded, clearpay.RecipientApproved, clearpay.AdminRejected),
		},
		"recipient failed, sender and arbiter reject": {
			tx:           txWith(clearpay.PendingVerification, clearpay.RecipientVerificationFailed, clearpay.EscrowFunded, clearpay.AdminRejected, clearpay.SenderRejected),
			wantDecided:  true,
			wantDecision: clearpay.Reject,
			wantRoles:    []clearpay.Role{clearpay.RoleAdmin, clearpay.RoleSender},
		},
		"recipient failed, arbiter only": {
			tx: txWith(clearpay.PendingVerification, clearpay.RecipientVerificationFailed, clearpay.EscrowFunded, clearpay.AdminApproved),
		},
		"no verification outcome": {
			tx: txWith(clearpay.PendingVerification, clearpay.Failed),
		},
	}
	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			d, roles, ok := Settlement(tc.tx)
			assert.Equal(t, tc.wantDecided, ok)
			assert.Equal(t, tc.wantDecision, d)
			assert.Equal(t, tc.wantRoles, roles)
		})
	}
}

func TestDestination(t *testing.T) {
	tx := txWith(clearpay.PendingVerification)
	assert.Equal(t, clearpay.Address("recipient"), Destination(tx, clearpay.Approve))
	assert.Equal(t, clearpay.Address("sender"), Destination(tx, clearpay.Reject))
}

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()

	unlockA := k.Lock("a")
	// A different key is not blocked.
	unlockB := k.Lock("b")
	unlockB()

	acquired := make(chan struct{})
	go func() {
		unlock := k.Lock("a")
		close(acquired)
		unlock()
	}()
	select {
	case <-acquired:
		t.Fatal("lock of the same key acquired twice")
	case <-time.After(20 * time.Millisecond):
	}
	unlockA()
	<-acquired

	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("c")
			counter++
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)

	k.mu.Lock()
	assert.Empty(t, k.locks, "released locks must not be retained")
	k.mu.Unlock()
}

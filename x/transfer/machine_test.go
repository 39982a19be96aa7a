package transfer_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/iov-one/clearpay"
	"github.com/iov-one/clearpay/crypto"
	"github.com/iov-one/clearpay/errors"
	"github.com/iov-one/clearpay/ledger"
	"github.com/iov-one/clearpay/ledger/memnet"
	"github.com/iov-one/clearpay/signing"
	"github.com/iov-one/clearpay/signing/signingtest"
	"github.com/iov-one/clearpay/store"
	"github.com/iov-one/clearpay/store/badgerstore"
	"github.com/iov-one/clearpay/x/transfer"
	"github.com/iov-one/clearpay/x/verify"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"
)

var (
	elliptic   = verify.VendorID("Elliptic")
	chainalsys = verify.VendorID("Chainalsys")
	blowfish   = verify.VendorID("Blowfish")
)

type env struct {
	net      *memnet.Network
	gw       *ledger.Gateway
	db       *badgerstore.Store
	provider *signingtest.Provider
	monitor  *signing.Monitor
	machine  *transfer.Machine

	sender, recipient, arbiter crypto.PrivateKey
}

func newEnv(t *testing.T, policy signingtest.Policy) *env {
	t.Helper()
	ctx := context.Background()
	logger := log.NewNopLogger()

	db, err := badgerstore.Open("", logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	registry := verify.NewRegistry()
	require.NoError(t, verify.Seed(ctx, registry, db, verify.DefaultSpecs()))

	net := memnet.New()
	cfg := ledger.DefaultConfig()
	cfg.Issuer = crypto.GenPrivKeyEd25519().Address()
	cfg.RetryDelay = time.Millisecond
	gw, err := ledger.NewGateway(cfg, net.Dialer(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { gw.Close() })

	provider := signingtest.NewProvider(policy)
	monitor := signing.NewMonitor(provider, gw, logger)
	monitor.Interval = time.Millisecond
	monitor.Timeout = 5 * time.Second

	e := &env{
		net:       net,
		gw:        gw,
		db:        db,
		provider:  provider,
		monitor:   monitor,
		sender:    provider.NewKey(),
		recipient: provider.NewKey(),
		arbiter:   provider.NewKey(),
	}
	e.machine, err = transfer.NewMachine(db, verify.NewAggregator(registry, db, logger), gw, monitor, e.arbiter.Address(), logger)
	require.NoError(t, err)
	t.Cleanup(e.machine.Close)

	for _, k := range []crypto.PrivateKey{e.sender, e.recipient} {
		e.openAccount(t, k)
	}
	require.NoError(t, net.Credit(e.sender.Address(), gw.Amount(decimal.NewFromInt(1000))))
	return e
}

// openAccount funds the account and opens its trust line to the issuer.
func (e *env) openAccount(t *testing.T, k crypto.PrivateKey) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.gw.Fund(ctx, k.Address(), 1000000))
	tx, err := e.gw.TrustSet(ctx, k.Address(), decimal.Zero)
	require.NoError(t, err)
	require.NoError(t, ledger.Sign(tx, k))
	res, err := e.gw.SubmitTx(ctx, tx)
	require.NoError(t, err)
	require.True(t, res.Accepted, res.Log)
}

func (e *env) create(t *testing.T, amount int64, vendors ...string) *transfer.Created {
	t.Helper()
	created, err := e.machine.Create(context.Background(), transfer.CreateRequest{
		Sender:    e.sender.Address(),
		Recipient: e.recipient.Address(),
		Amount:    decimal.NewFromInt(amount),
		VendorIDs: vendors,
	})
	require.NoError(t, err)
	require.NotNil(t, created.Payload)
	return created
}

func (e *env) act(t *testing.T, id string, k crypto.PrivateKey, d clearpay.Decision) string {
	t.Helper()
	payload, err := e.machine.Act(context.Background(), id, k.Address(), d)
	require.NoError(t, err)
	e.machine.Wait()
	return payload.ID
}

func (e *env) load(t *testing.T, id string) *store.Transaction {
	t.Helper()
	tx, err := e.machine.Transaction(context.Background(), id)
	require.NoError(t, err)
	return tx
}

func (e *env) balance(t *testing.T, k crypto.PrivateKey) decimal.Decimal {
	t.Helper()
	b, err := e.machine.TokenBalance(context.Background(), k.Address())
	require.NoError(t, err)
	return b.Balance
}

// settlements returns payments made out of given escrow account.
func (e *env) settlements(escrow clearpay.Address) []*ledger.Tx {
	var txs []*ledger.Tx
	for _, tx := range e.net.Transactions() {
		if tx.Account == escrow && tx.Type == ledger.TypePayment {
			txs = append(txs, tx)
		}
	}
	return txs
}

// history returns the statuses of the transaction, oldest first.
func history(tx *store.Transaction) []clearpay.Status {
	out := make([]clearpay.Status, len(tx.StatusLog))
	for i, e := range tx.StatusLog {
		out[len(out)-1-i] = e.Status
	}
	return out
}

func assertDecimal(t *testing.T, want int64, got decimal.Decimal) {
	t.Helper()
	assert.True(t, got.Equal(decimal.NewFromInt(want)), "want %d, got %s", want, got)
}

func TestDirectPayment(t *testing.T) {
	e := newEnv(t, signingtest.AutoSign)

	created := e.create(t, 100, elliptic)
	assert.Equal(t, []clearpay.Status{
		clearpay.PendingVerification,
		clearpay.VerificationSuccess,
	}, history(created.Transaction))
	require.Len(t, created.Transaction.Verifications, 2)
	for _, v := range created.Transaction.Verifications {
		assert.Equal(t, clearpay.VerificationApproved, v.Status())
	}

	e.machine.Wait()
	tx := e.load(t, created.Transaction.ID)
	assert.Equal(t, []clearpay.Status{
		clearpay.PendingVerification,
		clearpay.VerificationSuccess,
		clearpay.Success,
	}, history(tx))
	assert.Empty(t, tx.Escrow)
	assertDecimal(t, 100, e.balance(t, e.recipient))
	assertDecimal(t, 900, e.balance(t, e.sender))
}

func TestEscrowApprovedByRecipientAndArbiter(t *testing.T) {
	e := newEnv(t, signingtest.AutoSign)
	ctx := context.Background()

	created := e.create(t, 50, elliptic, chainalsys)
	id := created.Transaction.ID
	assert.Equal(t, []clearpay.Status{
		clearpay.PendingVerification,
		clearpay.SenderVerificationFailed,
	}, history(created.Transaction))
	escrow := created.Transaction.Escrow
	require.NotEmpty(t, escrow)

	info, err := e.gw.AccountInfo(ctx, escrow)
	require.NoError(t, err)
	assert.True(t, info.MasterDisabled())
	assert.Equal(t, uint32(20), info.SignerQuorum)
	weights := make(map[clearpay.Address]uint32)
	for _, se := range info.SignerEntries {
		weights[se.Account] = se.Weight
	}
	assert.Equal(t, map[clearpay.Address]uint32{
		e.sender.Address():    1,
		e.recipient.Address(): 10,
		e.arbiter.Address():   10,
	}, weights)
	assert.True(t, created.Transaction.EscrowExpiry > ledger.DefaultConfig().ExpiryHorizon)

	e.machine.Wait()
	tx := e.load(t, id)
	assert.Equal(t, clearpay.EscrowFunded, tx.Status())
	assert.NotEmpty(t, tx.FundingHash)
	assertDecimal(t, 950, e.balance(t, e.sender))

	e.act(t, id, e.recipient, clearpay.Approve)
	tx = e.load(t, id)
	assert.Equal(t, clearpay.RecipientApproved, tx.Status())
	require.NotNil(t, tx.RecipientSignature)
	assert.Equal(t, e.recipient.Address(), tx.RecipientSignature.Account)
	assert.Empty(t, e.settlements(escrow))

	e.act(t, id, e.arbiter, clearpay.Approve)
	tx = e.load(t, id)
	assert.Equal(t, []clearpay.Status{
		clearpay.PendingVerification,
		clearpay.SenderVerificationFailed,
		clearpay.EscrowFunded,
		clearpay.RecipientApproved,
		clearpay.AdminApproved,
		clearpay.Success,
	}, history(tx))
	require.Len(t, e.settlements(escrow), 1)
	assert.Equal(t, e.recipient.Address(), e.settlements(escrow)[0].Destination)
	assertDecimal(t, 50, e.balance(t, e.recipient))

	again, err := e.machine.EvaluateQuorum(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, clearpay.Success, again.Status())
	assert.Len(t, e.settlements(escrow), 1)

	_, err = e.machine.Act(ctx, id, e.sender.Address(), clearpay.Approve)
	assert.True(t, errors.ErrImmutable.Is(err))
}

func TestEscrowRejectedByArbiterAlone(t *testing.T) {
	e := newEnv(t, signingtest.AutoSign)
	ctx := context.Background()

	created := e.create(t, 50, chainalsys, blowfish)
	id := created.Transaction.ID
	assert.Equal(t, clearpay.RecipientAndSenderVerificationFailed, created.Transaction.Status())

	info, err := e.gw.AccountInfo(ctx, created.Transaction.Escrow)
	require.NoError(t, err)
	assert.Equal(t, uint32(10), info.SignerQuorum)

	e.machine.Wait()
	assertDecimal(t, 950, e.balance(t, e.sender))

	e.act(t, id, e.arbiter, clearpay.Reject)
	tx := e.load(t, id)
	assert.Equal(t, []clearpay.Status{
		clearpay.PendingVerification,
		clearpay.RecipientAndSenderVerificationFailed,
		clearpay.EscrowFunded,
		clearpay.AdminRejected,
		clearpay.Success,
	}, history(tx))
	settlements := e.settlements(tx.Escrow)
	require.Len(t, settlements, 1)
	assert.Equal(t, e.sender.Address(), settlements[0].Destination)
	assertDecimal(t, 1000, e.balance(t, e.sender))
	assertDecimal(t, 0, e.balance(t, e.recipient))
}

func TestMismatchedDecisionsStayPending(t *testing.T) {
	e := newEnv(t, signingtest.AutoSign)
	ctx := context.Background()

	created := e.create(t, 50, elliptic, chainalsys)
	id := created.Transaction.ID
	e.machine.Wait()

	e.act(t, id, e.recipient, clearpay.Approve)
	e.act(t, id, e.arbiter, clearpay.Reject)
	// The failing party decision is recorded but never required.
	e.act(t, id, e.sender, clearpay.Approve)

	tx, err := e.machine.EvaluateQuorum(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []clearpay.Status{
		clearpay.PendingVerification,
		clearpay.SenderVerificationFailed,
		clearpay.EscrowFunded,
		clearpay.RecipientApproved,
		clearpay.AdminRejected,
		clearpay.SenderApproved,
	}, history(tx))
	assert.Empty(t, e.settlements(tx.Escrow))

	_, err = e.machine.Act(ctx, id, e.arbiter.Address(), clearpay.Approve)
	assert.True(t, errors.ErrDuplicate.Is(err))
}

func TestSigningTimeout(t *testing.T) {
	e := newEnv(t, signingtest.Manual)
	e.monitor.Timeout = 30 * time.Millisecond

	created := e.create(t, 100, elliptic)
	e.machine.Wait()

	tx := e.load(t, created.Transaction.ID)
	assert.Equal(t, []clearpay.Status{
		clearpay.PendingVerification,
		clearpay.VerificationSuccess,
	}, history(tx))
	assert.True(t, e.provider.Polls(created.Payload.ID) > 0)

	state, err := e.machine.PayloadStatus(context.Background(), created.Payload.ID)
	require.NoError(t, err)
	assert.Equal(t, transfer.PayloadPending, state)
}

func TestCloseStopsWaiting(t *testing.T) {
	e := newEnv(t, signingtest.Manual)
	created := e.create(t, 100, elliptic)

	done := make(chan struct{})
	go func() {
		e.machine.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("close did not stop background work")
	}
	assert.Equal(t, clearpay.VerificationSuccess, e.load(t, created.Transaction.ID).Status())

	_, err := e.machine.Create(context.Background(), transfer.CreateRequest{
		Sender:    e.sender.Address(),
		Recipient: e.recipient.Address(),
		Amount:    decimal.NewFromInt(1),
	})
	assert.True(t, errors.ErrState.Is(err))
}

func TestDeclinedDecisionIsNotRecorded(t *testing.T) {
	e := newEnv(t, signingtest.AutoSign)
	created := e.create(t, 50, elliptic, chainalsys)
	id := created.Transaction.ID
	e.machine.Wait()

	e.provider.SetPolicy(signingtest.AutoDecline)
	payload := e.act(t, id, e.arbiter, clearpay.Approve)

	tx := e.load(t, id)
	assert.Equal(t, clearpay.EscrowFunded, tx.Status())
	assert.Nil(t, tx.AdminSignature)

	state, err := e.machine.PayloadStatus(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, transfer.PayloadDeclined, state)
}

func TestDecisionBeforeFunding(t *testing.T) {
	e := newEnv(t, signingtest.Manual)
	ctx := context.Background()

	created := e.create(t, 50, chainalsys, blowfish)
	id := created.Transaction.ID
	require.Equal(t, clearpay.RecipientAndSenderVerificationFailed, created.Transaction.Status())

	_, err := e.machine.Act(ctx, id, e.arbiter.Address(), clearpay.Approve)
	require.True(t, errors.ErrState.Is(err), "%+v", err)
	tx, err := e.machine.EvaluateQuorum(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, clearpay.RecipientAndSenderVerificationFailed, tx.Status())
	assert.Nil(t, tx.AdminSignature)

	require.NoError(t, e.provider.Sign(created.Payload.ID))
	e.machine.Wait()
	require.Equal(t, clearpay.EscrowFunded, e.load(t, id).Status())

	payload, err := e.machine.Act(ctx, id, e.arbiter.Address(), clearpay.Approve)
	require.NoError(t, err)
	require.NoError(t, e.provider.Sign(payload.ID))
	e.machine.Wait()

	tx = e.load(t, id)
	assert.Equal(t, []clearpay.Status{
		clearpay.PendingVerification,
		clearpay.RecipientAndSenderVerificationFailed,
		clearpay.EscrowFunded,
		clearpay.AdminApproved,
		clearpay.Success,
	}, history(tx))
	assert.Len(t, e.settlements(tx.Escrow), 1)
	assertDecimal(t, 50, e.balance(t, e.recipient))
}

func TestDecisionSignedOverAnotherTx(t *testing.T) {
	e := newEnv(t, signingtest.Manual)
	ctx := context.Background()

	created := e.create(t, 50, elliptic, chainalsys)
	id := created.Transaction.ID
	require.NoError(t, e.provider.Sign(created.Payload.ID))
	e.machine.Wait()
	require.Equal(t, clearpay.EscrowFunded, e.load(t, id).Status())

	payload, err := e.machine.Act(ctx, id, e.recipient.Address(), clearpay.Approve)
	require.NoError(t, err)
	req, ok := e.provider.Request(payload.ID)
	require.True(t, ok)
	other, err := ledger.Decode(req.Tx)
	require.NoError(t, err)
	other.Sequence++
	blob, err := ledger.Encode(other)
	require.NoError(t, err)
	require.NoError(t, e.provider.SignTx(payload.ID, blob))
	e.machine.Wait()

	tx := e.load(t, id)
	assert.Equal(t, clearpay.EscrowFunded, tx.Status())
	assert.Nil(t, tx.RecipientSignature)

	// The ignored decision can be made again.
	payload, err = e.machine.Act(ctx, id, e.recipient.Address(), clearpay.Approve)
	require.NoError(t, err)
	require.NoError(t, e.provider.Sign(payload.ID))
	e.machine.Wait()

	tx = e.load(t, id)
	assert.Equal(t, clearpay.RecipientApproved, tx.Status())
	require.NotNil(t, tx.RecipientSignature)
}

func TestConcurrentDecisionsSettleOnce(t *testing.T) {
	e := newEnv(t, signingtest.Manual)
	ctx := context.Background()

	created := e.create(t, 50, elliptic, chainalsys)
	id := created.Transaction.ID
	require.NoError(t, e.provider.Sign(created.Payload.ID))
	e.machine.Wait()
	require.Equal(t, clearpay.EscrowFunded, e.load(t, id).Status())

	recipient, err := e.machine.Act(ctx, id, e.recipient.Address(), clearpay.Approve)
	require.NoError(t, err)
	arbiter, err := e.machine.Act(ctx, id, e.arbiter.Address(), clearpay.Approve)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, p := range []string{recipient.ID, arbiter.ID} {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			assert.NoError(t, e.provider.Sign(p))
		}(p)
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.machine.EvaluateQuorum(ctx, id)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	e.machine.Wait()

	tx := e.load(t, id)
	assert.Equal(t, clearpay.Success, tx.Status())
	assert.Len(t, e.settlements(tx.Escrow), 1)

	var terminal int
	for _, s := range history(tx) {
		if s.IsTerminal() {
			terminal++
		}
	}
	assert.Equal(t, 1, terminal)
}

func TestCreatePreconditions(t *testing.T) {
	e := newEnv(t, signingtest.AutoSign)
	ctx := context.Background()
	stranger := crypto.GenPrivKeyEd25519().Address()

	cases := map[string]struct {
		req     transfer.CreateRequest
		wantErr *errors.Error
	}{
		"unknown vendor": {
			req:     transfer.CreateRequest{Sender: e.sender.Address(), Recipient: e.recipient.Address(), Amount: decimal.NewFromInt(1), VendorIDs: []string{"nope"}},
			wantErr: errors.ErrNotFound,
		},
		"same parties": {
			req:     transfer.CreateRequest{Sender: e.sender.Address(), Recipient: e.sender.Address(), Amount: decimal.NewFromInt(1)},
			wantErr: errors.ErrInput,
		},
		"zero amount": {
			req:     transfer.CreateRequest{Sender: e.sender.Address(), Recipient: stranger, Amount: decimal.Zero},
			wantErr: errors.ErrAmount,
		},
		"arbiter as party": {
			req:     transfer.CreateRequest{Sender: e.sender.Address(), Recipient: e.arbiter.Address(), Amount: decimal.NewFromInt(1)},
			wantErr: errors.ErrInput,
		},
		"missing sender": {
			req:     transfer.CreateRequest{Recipient: e.recipient.Address(), Amount: decimal.NewFromInt(1)},
			wantErr: errors.ErrEmpty,
		},
	}
	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			_, err := e.machine.Create(ctx, tc.req)
			if !tc.wantErr.Is(err) {
				t.Fatalf("want %q error, got %+v", tc.wantErr, err)
			}
		})
	}

	all, err := e.machine.Transactions(ctx, store.Filter{})
	require.NoError(t, err)
	assert.Empty(t, all, "rejected requests must not be persisted")
}

func TestActPreconditions(t *testing.T) {
	e := newEnv(t, signingtest.AutoSign)
	ctx := context.Background()

	// Payments of one sender are built from the same account sequence, so
	// the first one must be on the ledger before the next is created.
	direct := e.create(t, 10, elliptic)
	e.machine.Wait()
	escrowed := e.create(t, 10, elliptic, chainalsys)
	e.machine.Wait()

	cases := map[string]struct {
		id       string
		actor    clearpay.Address
		decision clearpay.Decision
		wantErr  *errors.Error
	}{
		"unknown transaction": {
			id:       "f4c1c6b8-4d4e-4a53-9c3e-000000000000",
			actor:    e.arbiter.Address(),
			decision: clearpay.Approve,
			wantErr:  errors.ErrNotFound,
		},
		"no escrow": {
			id:       direct.Transaction.ID,
			actor:    e.arbiter.Address(),
			decision: clearpay.Approve,
			wantErr:  errors.ErrState,
		},
		"not a party": {
			id:       escrowed.Transaction.ID,
			actor:    crypto.GenPrivKeyEd25519().Address(),
			decision: clearpay.Approve,
			wantErr:  errors.ErrUnauthorized,
		},
		"unknown decision": {
			id:       escrowed.Transaction.ID,
			actor:    e.arbiter.Address(),
			decision: "abstain",
			wantErr:  errors.ErrInput,
		},
	}
	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			_, err := e.machine.Act(ctx, tc.id, tc.actor, tc.decision)
			if !tc.wantErr.Is(err) {
				t.Fatalf("want %q error, got %+v", tc.wantErr, err)
			}
		})
	}
	assert.Equal(t, clearpay.EscrowFunded, e.load(t, escrowed.Transaction.ID).Status())
}

func TestOrchestrationFailures(t *testing.T) {
	e := newEnv(t, signingtest.AutoSign)
	ctx := context.Background()

	// The sender account does not exist on the ledger, so no payment can
	// be built for it.
	ghost := e.provider.NewKey()
	_, err := e.machine.Create(ctx, transfer.CreateRequest{
		Sender:    ghost.Address(),
		Recipient: e.recipient.Address(),
		Amount:    decimal.NewFromInt(5),
		VendorIDs: []string{elliptic},
	})
	require.True(t, errors.ErrNotFound.Is(err), "%+v", err)
	txs, err := e.machine.Transactions(ctx, store.Filter{Sender: ghost.Address()})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, clearpay.Failed, txs[0].Status())

	// A direct payment rejected by the ledger leaves the transaction
	// unresolved, while a rejected escrow funding fails it.
	poor := e.provider.NewKey()
	e.openAccount(t, poor)
	direct, err := e.machine.Create(ctx, transfer.CreateRequest{
		Sender:    poor.Address(),
		Recipient: e.recipient.Address(),
		Amount:    decimal.NewFromInt(5),
		VendorIDs: []string{elliptic},
	})
	require.NoError(t, err)
	escrowed, err := e.machine.Create(ctx, transfer.CreateRequest{
		Sender:    poor.Address(),
		Recipient: e.recipient.Address(),
		Amount:    decimal.NewFromInt(5),
		VendorIDs: []string{chainalsys},
	})
	require.NoError(t, err)
	e.machine.Wait()

	assert.Equal(t, clearpay.VerificationSuccess, e.load(t, direct.Transaction.ID).Status())
	assert.Equal(t, clearpay.Failed, e.load(t, escrowed.Transaction.ID).Status())
}

func TestListingAndServices(t *testing.T) {
	e := newEnv(t, signingtest.AutoSign)
	ctx := context.Background()

	e.create(t, 10, elliptic)
	e.machine.Wait()
	escrowed := e.create(t, 10, elliptic, chainalsys)
	e.machine.Wait()

	funded, err := e.machine.Transactions(ctx, store.Filter{Recipient: e.recipient.Address(), EscrowFunded: true})
	require.NoError(t, err)
	require.Len(t, funded, 1)
	assert.Equal(t, escrowed.Transaction.ID, funded[0].ID)

	vendors, err := e.machine.Vendors(ctx)
	require.NoError(t, err)
	assert.Len(t, vendors, 3)

	newcomer := e.provider.NewKey()
	require.NoError(t, e.gw.Fund(ctx, newcomer.Address(), 1000000))
	b, err := e.machine.TokenBalance(ctx, newcomer.Address())
	require.NoError(t, err)
	assert.False(t, b.HasTrustLine)

	payload, err := e.machine.BuildTrustLine(ctx, newcomer.Address())
	require.NoError(t, err)
	e.machine.Wait()
	state, err := e.machine.PayloadStatus(ctx, payload.ID)
	require.NoError(t, err)
	assert.Equal(t, transfer.PayloadSuccess, state)

	b, err = e.machine.TokenBalance(ctx, newcomer.Address())
	require.NoError(t, err)
	assert.True(t, b.HasTrustLine)
	assert.True(t, b.Balance.IsZero())
}

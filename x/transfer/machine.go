package transfer

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/iov-one/clearpay"
	"github.com/iov-one/clearpay/errors"
	"github.com/iov-one/clearpay/ledger"
	"github.com/iov-one/clearpay/signing"
	"github.com/iov-one/clearpay/store"
	"github.com/iov-one/clearpay/x/quorum"
	"github.com/iov-one/clearpay/x/verify"
	"github.com/shopspring/decimal"
	"github.com/tendermint/tendermint/libs/log"
)

// Verifier runs the vendor checks of a transaction.
type Verifier interface {
	Verify(ctx context.Context, tx *store.Transaction) (verify.Outcome, error)
}

var _ Verifier = (*verify.Aggregator)(nil)

// Machine owns the lifecycle of every transfer.
//
// Work that waits for a user signature runs in the background. Such work
// outlives the call that started it and is stopped only by Close.
type Machine struct {
	db       store.Store
	verifier Verifier
	ledger   *ledger.Gateway
	monitor  *signing.Monitor
	arbiter  clearpay.Address
	logger   log.Logger

	locks *keyedMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMachine returns a machine using the arbiter as the escrow authority
// of every transfer.
func NewMachine(
	db store.Store,
	verifier Verifier,
	gw *ledger.Gateway,
	monitor *signing.Monitor,
	arbiter clearpay.Address,
	logger log.Logger,
) (*Machine, error) {
	if err := arbiter.Validate(); err != nil {
		return nil, errors.Wrap(err, "arbiter")
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Machine{
		db:       db,
		verifier: verifier,
		ledger:   gw,
		monitor:  monitor,
		arbiter:  arbiter,
		logger:   logger.With("module", "transfer"),
		locks:    newKeyedMutex(),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Arbiter returns the address of the escrow authority.
func (m *Machine) Arbiter() clearpay.Address {
	return m.arbiter
}

// Close stops all background work and waits for it to return. Transfers
// waiting for a signature keep their current status.
func (m *Machine) Close() {
	m.cancel()
	m.wg.Wait()
}

// Wait blocks until all background work has returned.
func (m *Machine) Wait() {
	m.wg.Wait()
}

// spawn runs fn in the background with the machine lifecycle context.
func (m *Machine) spawn(fn func(ctx context.Context)) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		fn(m.ctx)
	}()
}

// CreateRequest describes a new transfer.
type CreateRequest struct {
	Sender    clearpay.Address
	Recipient clearpay.Address
	Amount    decimal.Decimal
	// VendorIDs selects the vendors checking both parties. All active
	// vendors are used when empty.
	VendorIDs []string
}

// Validate returns an error if the request cannot start a transfer.
func (r CreateRequest) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Sender", r.Sender.Validate())
	errs = errors.AppendField(errs, "Recipient", r.Recipient.Validate())
	if r.Sender != "" && r.Sender == r.Recipient {
		errs = errors.AppendField(errs, "Recipient", errors.Wrap(errors.ErrInput, "sender and recipient are the same"))
	}
	if !r.Amount.IsPositive() {
		errs = errors.AppendField(errs, "Amount", errors.Wrap(errors.ErrAmount, "must be positive"))
	}
	return errs
}

// Created is the result of starting a transfer.
type Created struct {
	Transaction *store.Transaction
	// Payload is the signing request the sender must resolve.
	Payload *signing.Payload
}

// Create starts a new transfer. It returns once the sender can sign the
// payment, either directly to the recipient or to the escrow account.
//
// Precondition failures leave no trace. Once the transfer is persisted, a
// step that cannot complete marks the transfer FAILED and the error is
// returned.
func (m *Machine) Create(ctx context.Context, req CreateRequest) (*Created, error) {
	if err := m.ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrState, "machine closed")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Sender == m.arbiter || req.Recipient == m.arbiter {
		return nil, errors.Wrap(errors.ErrInput, "the arbiter cannot be a party")
	}
	vendors, err := m.vendors(ctx, req.VendorIDs)
	if err != nil {
		return nil, err
	}

	now := store.Now()
	tx := &store.Transaction{
		ID:        uuid.New().String(),
		Sender:    req.Sender,
		Recipient: req.Recipient,
		Amount:    req.Amount,
		CreatedAt: now,
		StatusLog: []store.StatusLogEntry{
			{Status: clearpay.PendingVerification, CreatedAt: now, Seq: 1},
		},
	}
	for _, v := range vendors {
		for _, role := range []clearpay.Role{clearpay.RoleSender, clearpay.RoleRecipient} {
			subject := tx.Sender
			if role == clearpay.RoleRecipient {
				subject = tx.Recipient
			}
			tx.Verifications = append(tx.Verifications, store.VendorVerification{
				ID:       uuid.New().String(),
				VendorID: v.ID,
				Subject:  subject,
				Role:     role,
				StatusLog: []store.VerificationLogEntry{
					{Status: clearpay.VerificationPending, CreatedAt: now, Seq: 1},
				},
			})
		}
	}
	if err := m.db.CreateTransaction(ctx, tx); err != nil {
		return nil, errors.Wrap(err, "create transaction")
	}
	logger := m.logger.With("tx", tx.ID)
	logger.Info("transaction created", "sender", tx.Sender, "recipient", tx.Recipient, "amount", tx.Amount)

	unlock := m.locks.Lock(tx.ID)
	defer unlock()

	payload, err := m.start(ctx, logger, tx)
	if err != nil {
		logger.Error("cannot start transaction", "err", err)
		m.fail(ctx, logger, tx.ID)
		return nil, err
	}
	tx, err = m.db.Transaction(ctx, tx.ID)
	if err != nil {
		return nil, err
	}
	return &Created{Transaction: tx, Payload: payload}, nil
}

// vendors returns the vendors with given IDs, or all active vendors.
func (m *Machine) vendors(ctx context.Context, ids []string) ([]*store.Vendor, error) {
	if len(ids) == 0 {
		vendors, err := m.Vendors(ctx)
		if err != nil {
			return nil, err
		}
		if len(vendors) == 0 {
			return nil, errors.Wrap(errors.ErrEmpty, "no active vendors")
		}
		return vendors, nil
	}
	seen := make(map[string]bool, len(ids))
	var vendors []*store.Vendor
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		v, err := m.db.Vendor(ctx, id)
		if err != nil {
			return nil, errors.Wrapf(err, "vendor %s", id)
		}
		if !v.Active {
			return nil, errors.Wrapf(errors.ErrState, "vendor %q is not active", v.Name)
		}
		vendors = append(vendors, v)
	}
	return vendors, nil
}

// start verifies the parties and takes the direct or the escrow path.
func (m *Machine) start(ctx context.Context, logger log.Logger, tx *store.Transaction) (*signing.Payload, error) {
	outcome, err := m.verifier.Verify(ctx, tx)
	if err != nil {
		return nil, errors.Wrap(err, "verify")
	}
	status := outcome.Status()
	if _, err := m.db.AppendStatus(ctx, tx.ID, status); err != nil {
		return nil, err
	}
	logger.Info("transaction verified", "status", status)

	if status == clearpay.VerificationSuccess {
		return m.startDirect(ctx, logger, tx)
	}
	return m.startEscrow(ctx, logger, tx, outcome)
}

func (m *Machine) startDirect(ctx context.Context, logger log.Logger, tx *store.Transaction) (*signing.Payload, error) {
	payment, err := m.ledger.Payment(ctx, tx.Sender, tx.Recipient, tx.Amount)
	if err != nil {
		return nil, errors.Wrap(err, "direct payment")
	}
	payload, err := m.request(ctx, payment, tx.Sender, false)
	if err != nil {
		return nil, err
	}
	logger.Info("direct payment requested", "payload", payload.ID)

	id := tx.ID
	m.spawn(func(ctx context.Context) {
		res, err := m.monitor.Await(ctx, payload.ID, signing.SubmitSigned)
		m.onDirectPayment(ctx, id, res, err)
	})
	return payload, nil
}

func (m *Machine) startEscrow(ctx context.Context, logger log.Logger, tx *store.Transaction, outcome verify.Outcome) (*signing.Payload, error) {
	plan, err := quorum.NewPlan(tx.Sender, tx.Recipient, outcome.SenderRejected, outcome.RecipientRejected, m.arbiter)
	if err != nil {
		return nil, errors.Wrap(err, "escrow plan")
	}
	escrow, err := m.ledger.ProvisionEscrow(ctx, plan)
	if err != nil {
		return nil, errors.Wrap(err, "provision escrow")
	}
	if _, err := m.db.SetEscrow(ctx, tx.ID, escrow.Address, escrow.Expiry); err != nil {
		return nil, err
	}
	logger.Info("escrow provisioned", "escrow", escrow.Address, "required_weight", plan.RequiredWeight)

	payment, err := m.ledger.Payment(ctx, tx.Sender, escrow.Address, tx.Amount)
	if err != nil {
		return nil, errors.Wrap(err, "escrow funding payment")
	}
	payload, err := m.request(ctx, payment, tx.Sender, false)
	if err != nil {
		return nil, err
	}
	logger.Info("escrow funding requested", "payload", payload.ID)

	id := tx.ID
	m.spawn(func(ctx context.Context) {
		res, err := m.monitor.Await(ctx, payload.ID, signing.SubmitSigned)
		m.onEscrowFunding(ctx, id, res, err)
	})
	return payload, nil
}

// request asks the signing provider for a signature of the transaction.
func (m *Machine) request(ctx context.Context, tx *ledger.Tx, signer clearpay.Address, multisign bool) (*signing.Payload, error) {
	blob, err := ledger.Encode(tx)
	if err != nil {
		return nil, err
	}
	payload, err := m.monitor.Provider().CreateRequest(ctx, signing.Request{
		Tx:        blob,
		Signer:    signer,
		Multisign: multisign,
	})
	if err != nil {
		return nil, errors.Wrap(err, "signing request")
	}
	return payload, nil
}

// onDirectPayment records the outcome of the direct payment. A payment
// rejected by the ledger leaves the transfer as it is.
func (m *Machine) onDirectPayment(ctx context.Context, id string, res *signing.Result, err error) {
	logger := m.logger.With("tx", id)
	unlock := m.locks.Lock(id)
	defer unlock()

	switch {
	case errors.ErrTimeout.Is(err):
		logger.Info("direct payment not signed", "err", err)
	case err != nil:
		logger.Error("direct payment failed", "err", err)
		m.fail(ctx, logger, id)
	case !res.Signed:
		logger.Info("direct payment declined")
	case !res.Accepted:
		logger.Info("direct payment rejected by ledger", "hash", res.Hash)
	default:
		m.appendStatus(ctx, logger, id, clearpay.Success)
	}
}

// onEscrowFunding records the outcome of the escrow funding payment.
func (m *Machine) onEscrowFunding(ctx context.Context, id string, res *signing.Result, err error) {
	logger := m.logger.With("tx", id)
	unlock := m.locks.Lock(id)
	defer unlock()

	switch {
	case errors.ErrTimeout.Is(err):
		logger.Info("escrow funding not signed", "err", err)
	case err != nil:
		logger.Error("escrow funding failed", "err", err)
		m.fail(ctx, logger, id)
	case !res.Signed:
		logger.Info("escrow funding declined")
	case !res.Accepted:
		logger.Error("escrow funding rejected by ledger", "hash", res.Hash)
		m.fail(ctx, logger, id)
	default:
		if _, err := m.db.SetFundingHash(ctx, id, res.Hash); err != nil {
			logger.Error("cannot record funding hash", "hash", res.Hash, "err", err)
			m.fail(ctx, logger, id)
			return
		}
		m.appendStatus(ctx, logger, id, clearpay.EscrowFunded)
	}
}

// appendStatus appends a status from a background continuation. If the
// status cannot be recorded, the transfer is marked FAILED.
func (m *Machine) appendStatus(ctx context.Context, logger log.Logger, id string, s clearpay.Status) *store.Transaction {
	tx, err := m.db.AppendStatus(ctx, id, s)
	switch {
	case err == nil:
		logger.Info("status changed", "status", s)
		return tx
	case errors.ErrImmutable.Is(err):
		logger.Info("transaction already completed", "status", s)
	default:
		logger.Error("cannot append status", "status", s, "err", err)
		m.fail(ctx, logger, id)
	}
	return nil
}

// fail marks the transfer FAILED unless it already completed.
func (m *Machine) fail(ctx context.Context, logger log.Logger, id string) {
	// FAILED is recorded even if the context is done.
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	_, err := m.db.AppendStatus(ctx, id, clearpay.Failed)
	switch {
	case err == nil:
		logger.Info("status changed", "status", clearpay.Failed)
	case errors.ErrImmutable.Is(err):
	default:
		logger.Error("cannot mark transaction failed", "err", err)
	}
}

// Transaction returns a transfer with its complete history.
func (m *Machine) Transaction(ctx context.Context, id string) (*store.Transaction, error) {
	return m.db.Transaction(ctx, id)
}

// Transactions lists transfers, newest first.
func (m *Machine) Transactions(ctx context.Context, f store.Filter) ([]*store.Transaction, error) {
	return m.db.Transactions(ctx, f)
}

// Vendors returns all active vendors.
func (m *Machine) Vendors(ctx context.Context) ([]*store.Vendor, error) {
	all, err := m.db.Vendors(ctx)
	if err != nil {
		return nil, err
	}
	active := make([]*store.Vendor, 0, len(all))
	for _, v := range all {
		if v.Active {
			active = append(active, v)
		}
	}
	return active, nil
}

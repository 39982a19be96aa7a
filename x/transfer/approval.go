package transfer

import (
	"context"

	"github.com/iov-one/clearpay"
	"github.com/iov-one/clearpay/errors"
	"github.com/iov-one/clearpay/ledger"
	"github.com/iov-one/clearpay/signing"
	"github.com/iov-one/clearpay/store"
	"github.com/tendermint/tendermint/libs/log"
)

// Role returns the role the address plays in the transfer.
func (m *Machine) Role(t *store.Transaction, addr clearpay.Address) (clearpay.Role, error) {
	switch addr {
	case "":
		return "", errors.Wrap(errors.ErrEmpty, "acting address")
	case m.arbiter:
		return clearpay.RoleAdmin, nil
	case t.Sender:
		return clearpay.RoleSender, nil
	case t.Recipient:
		return clearpay.RoleRecipient, nil
	}
	return "", errors.Wrapf(errors.ErrUnauthorized, "%s is not a party of transaction %s", addr, t.ID)
}

// Act requests the signature of the acting party for a settlement of the
// escrowed funds. Approving releases the funds to the recipient, rejecting
// returns them to the sender.
//
// The decision is recorded once the party signed. If the recorded decisions
// then satisfy the policy, the settlement is submitted.
func (m *Machine) Act(ctx context.Context, id string, actor clearpay.Address, d clearpay.Decision) (*signing.Payload, error) {
	if err := m.ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrState, "machine closed")
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	t, err := m.db.Transaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Escrow == "" {
		return nil, errors.Wrapf(errors.ErrState, "transaction %s has no escrow", id)
	}
	if s := t.Status(); s.IsTerminal() {
		return nil, errors.Wrapf(errors.ErrImmutable, "transaction %s is %s", id, s)
	}
	if !t.HasStatus(clearpay.EscrowFunded) {
		return nil, errors.Wrapf(errors.ErrState, "transaction %s escrow is not funded", id)
	}
	role, err := m.Role(t, actor)
	if err != nil {
		return nil, err
	}
	if t.Signature(role) != nil {
		return nil, errors.Wrapf(errors.ErrDuplicate, "%s already decided", role)
	}

	settlement, err := m.settlement(ctx, t, d)
	if err != nil {
		return nil, err
	}
	payload, err := m.request(ctx, settlement, actor, true)
	if err != nil {
		return nil, err
	}
	logger := m.logger.With("tx", id, "role", role, "decision", d)
	logger.Info("decision requested", "payload", payload.ID)

	m.spawn(func(ctx context.Context) {
		res, err := m.monitor.Await(ctx, payload.ID, signing.CollectSignature)
		m.onDecision(ctx, logger, id, actor, role, d, res, err)
	})
	return payload, nil
}

// settlement builds the escrow payment carrying out given decision. For
// the same transfer and decision it always builds the same transaction,
// so that contributions signed at different times can be combined.
func (m *Machine) settlement(ctx context.Context, t *store.Transaction, d clearpay.Decision) (*ledger.Tx, error) {
	tx, err := m.ledger.MultisigPayment(ctx, t.Escrow, Destination(t, d), t.Amount, t.EscrowExpiry)
	if err != nil {
		return nil, errors.Wrap(err, "settlement")
	}
	return tx, nil
}

func (m *Machine) onDecision(
	ctx context.Context,
	logger log.Logger,
	id string,
	actor clearpay.Address,
	role clearpay.Role,
	d clearpay.Decision,
	res *signing.Result,
	err error,
) {
	unlock := m.locks.Lock(id)
	defer unlock()

	switch {
	case errors.ErrTimeout.Is(err):
		logger.Info("decision not signed", "err", err)
		return
	case err != nil:
		logger.Error("cannot process decision", "err", err)
		m.fail(ctx, logger, id)
		return
	case !res.Signed:
		logger.Info("decision declined")
		return
	case res.Signer == nil || res.Signer.Account != actor:
		logger.Error("decision signed by another account", "signer", res.Signer)
		return
	}

	t, err := m.db.Transaction(ctx, id)
	if err != nil {
		logger.Error("cannot load transaction", "err", err)
		return
	}
	settlement, err := m.settlement(ctx, t, d)
	if err != nil {
		logger.Error("cannot rebuild settlement", "err", err)
		return
	}
	if err := ledger.VerifySigner(settlement, *res.Signer); err != nil {
		logger.Error("decision signature does not match settlement", "err", err)
		return
	}

	t, err = m.db.RecordDecision(ctx, id, role, d, *res.Signer)
	switch {
	case err == nil:
		logger.Info("decision recorded")
	case errors.ErrImmutable.Is(err), errors.ErrDuplicate.Is(err):
		logger.Info("decision not recorded", "err", err)
		return
	default:
		logger.Error("cannot record decision", "err", err)
		m.fail(ctx, logger, id)
		return
	}
	m.evaluate(ctx, t)
}

// EvaluateQuorum submits the settlement of the transfer if the recorded
// decisions satisfy the policy. Calling it again after the transfer
// completed has no effect.
func (m *Machine) EvaluateQuorum(ctx context.Context, id string) (*store.Transaction, error) {
	unlock := m.locks.Lock(id)
	defer unlock()

	t, err := m.db.Transaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Escrow == "" {
		return nil, errors.Wrapf(errors.ErrState, "transaction %s has no escrow", id)
	}
	if settled := m.evaluate(ctx, t); settled != nil {
		return settled, nil
	}
	return t, nil
}

// evaluate must be called with the transfer lock held. It returns the
// updated transfer if a settlement was attempted.
func (m *Machine) evaluate(ctx context.Context, t *store.Transaction) *store.Transaction {
	if t.Status().IsTerminal() || !t.HasStatus(clearpay.EscrowFunded) {
		return nil
	}
	d, roles, ok := Settlement(t)
	if !ok {
		return nil
	}
	logger := m.logger.With("tx", t.ID, "decision", d)

	signers := make([]clearpay.Signer, 0, len(roles))
	for _, r := range roles {
		s := t.Signature(r)
		if s == nil {
			logger.Error("decision without signature", "role", r)
			m.fail(ctx, logger, t.ID)
			return m.reload(ctx, logger, t.ID)
		}
		signers = append(signers, *s)
	}

	tx, err := m.settlement(ctx, t, d)
	if err != nil {
		logger.Error("cannot build settlement", "err", err)
		m.fail(ctx, logger, t.ID)
		return m.reload(ctx, logger, t.ID)
	}
	res, err := m.ledger.SubmitMultisig(ctx, tx, signers)
	switch {
	case err != nil:
		logger.Error("cannot submit settlement", "err", err)
		m.fail(ctx, logger, t.ID)
	case !res.Accepted:
		logger.Error("settlement rejected by ledger", "hash", res.Hash, "code", res.Code, "log", res.Log)
		m.fail(ctx, logger, t.ID)
	default:
		logger.Info("settlement accepted", "hash", res.Hash)
		m.appendStatus(ctx, logger, t.ID, clearpay.Success)
	}
	return m.reload(ctx, logger, t.ID)
}

func (m *Machine) reload(ctx context.Context, logger log.Logger, id string) *store.Transaction {
	t, err := m.db.Transaction(ctx, id)
	if err != nil {
		logger.Error("cannot load transaction", "err", err)
		return nil
	}
	return t
}

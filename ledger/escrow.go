package ledger

import (
	"context"

	"github.com/iov-one/clearpay"
	"github.com/iov-one/clearpay/crypto"
	"github.com/iov-one/clearpay/errors"
	"github.com/iov-one/clearpay/x/quorum"
)

// Escrow is a provisioned escrow account.
type Escrow struct {
	Address clearpay.Address
	// Expiry is the last ledger index a settlement out of the escrow can
	// be included in.
	Expiry uint64
}

// ProvisionEscrow creates a new account controlled only by the signer list
// of the plan.
//
// The account is funded, given the signer list and a trust line to the
// issuer, and its master key is disabled. The master key is generated here
// and never leaves this function.
func (g *Gateway) ProvisionEscrow(ctx context.Context, plan *quorum.Plan) (*Escrow, error) {
	if err := plan.Validate(); err != nil {
		return nil, errors.Wrap(err, "escrow plan")
	}
	key := crypto.GenPrivKeyEd25519()
	account := key.Address()
	logger := g.logger.With("escrow", account)

	if err := g.Fund(ctx, account, g.cfg.FundAmount); err != nil {
		return nil, errors.Wrap(err, "fund escrow")
	}
	info, err := g.AccountInfo(ctx, account)
	if err != nil {
		return nil, errors.Wrap(err, "escrow account")
	}

	entries := make([]SignerEntry, 0, len(plan.Entries))
	for _, e := range plan.Entries {
		entries = append(entries, SignerEntry{Account: e.Address, Weight: uint32(e.Weight)})
	}
	limit := g.Amount(g.cfg.TrustLimit)
	steps := []*Tx{
		{
			Type:          TypeSignerListSet,
			SignerQuorum:  uint32(plan.RequiredWeight),
			SignerEntries: entries,
		},
		{
			Type:        TypeTrustSet,
			LimitAmount: &limit,
		},
		{
			Type:    TypeAccountSet,
			SetFlag: FlagDisableMaster,
			Memos: []Memo{
				{Type: MemoTypeEscrow, Format: MemoFormatText, Data: plan.Memo},
			},
		},
	}

	seq := info.Sequence
	for _, tx := range steps {
		tx.Account = account
		tx.Fee = g.cfg.Fee
		tx.Sequence = seq
		if err := tx.Validate(); err != nil {
			return nil, errors.Wrapf(err, "escrow %s", tx.Type)
		}
		if err := Sign(tx, key); err != nil {
			return nil, err
		}
		res, err := g.SubmitTx(ctx, tx)
		if err != nil {
			return nil, errors.Wrapf(err, "escrow %s", tx.Type)
		}
		if !res.Accepted {
			return nil, errors.Wrapf(errors.ErrLedger, "escrow %s: %s %s", tx.Type, res.Code, res.Log)
		}
		logger.Debug("escrow step applied", "type", tx.Type, "hash", res.Hash)
		seq++
	}

	escrow := &Escrow{
		Address: account,
		Expiry:  info.LedgerIndex + g.cfg.ExpiryHorizon,
	}
	logger.Info("escrow provisioned", "required_weight", plan.RequiredWeight, "expiry", escrow.Expiry)
	return escrow, nil
}

package ledger

import (
	"bytes"
	"context"
	"sort"

	"github.com/iov-one/clearpay"
	"github.com/iov-one/clearpay/coin"
	"github.com/iov-one/clearpay/errors"
	"github.com/shopspring/decimal"
)

// Amount returns given value in the issued currency.
func (g *Gateway) Amount(value decimal.Decimal) coin.Coin {
	return coin.NewCoin(value, g.cfg.Currency, g.cfg.Issuer)
}

// Payment builds an unsigned payment of the issued currency. Sequence and
// fee are filled from the current state of the paying account.
func (g *Gateway) Payment(ctx context.Context, from, to clearpay.Address, value decimal.Decimal) (*Tx, error) {
	info, err := g.AccountInfo(ctx, from)
	if err != nil {
		return nil, errors.Wrap(err, "payment source")
	}
	amount := g.Amount(value)
	tx := &Tx{
		Type:        TypePayment,
		Account:     from,
		Destination: to,
		Amount:      &amount,
		Fee:         g.cfg.Fee,
		Sequence:    info.Sequence,
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	return tx, nil
}

// MultisigPayment builds a payment out of an escrow account. The returned
// transaction is meant to be signed by members of the escrow signer list
// and is valid until lastLedger.
func (g *Gateway) MultisigPayment(ctx context.Context, escrow, to clearpay.Address, value decimal.Decimal, lastLedger uint64) (*Tx, error) {
	info, err := g.AccountInfo(ctx, escrow)
	if err != nil {
		return nil, errors.Wrap(err, "escrow account")
	}
	if info.SignerQuorum == 0 {
		return nil, errors.Wrapf(errors.ErrState, "%s has no signer list", escrow)
	}
	amount := g.Amount(value)
	tx := &Tx{
		Type:               TypePayment,
		Account:            escrow,
		Destination:        to,
		Amount:             &amount,
		Fee:                g.cfg.MultisigFee,
		Sequence:           info.Sequence,
		LastLedgerSequence: lastLedger,
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	return tx, nil
}

// TrustSet builds an unsigned trust line from account to the issuer. A zero
// limit uses the configured one.
func (g *Gateway) TrustSet(ctx context.Context, account clearpay.Address, limit decimal.Decimal) (*Tx, error) {
	info, err := g.AccountInfo(ctx, account)
	if err != nil {
		return nil, errors.Wrap(err, "trust line account")
	}
	if limit.IsZero() {
		limit = g.cfg.TrustLimit
	}
	amount := g.Amount(limit)
	tx := &Tx{
		Type:        TypeTrustSet,
		Account:     account,
		LimitAmount: &amount,
		Fee:         g.cfg.Fee,
		Sequence:    info.Sequence,
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	return tx, nil
}

// SubmitMultisig attaches the signer contributions to the transaction and
// submits it. Contributions are ordered by account as the ledger requires.
func (g *Gateway) SubmitMultisig(ctx context.Context, tx *Tx, signers []clearpay.Signer) (*SubmitResult, error) {
	if len(signers) == 0 {
		return nil, errors.Wrap(errors.ErrEmpty, "signers")
	}
	for i := range signers {
		if err := signers[i].Validate(); err != nil {
			return nil, errors.Wrapf(err, "signer %d", i)
		}
	}
	cp := tx.Copy()
	cp.SigningPubKey = ""
	cp.TxnSignature = ""
	cp.Signers = append([]clearpay.Signer(nil), signers...)
	sort.Slice(cp.Signers, func(i, j int) bool {
		return bytes.Compare(cp.Signers[i].Account.Bytes(), cp.Signers[j].Account.Bytes()) < 0
	})
	return g.SubmitTx(ctx, cp)
}

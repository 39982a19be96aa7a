package transfer

import (
	"context"

	"github.com/iov-one/clearpay"
	"github.com/iov-one/clearpay/errors"
	"github.com/iov-one/clearpay/ledger"
	"github.com/iov-one/clearpay/signing"
	"github.com/shopspring/decimal"
)

// PayloadState is the coarse state of a signing request.
type PayloadState string

const (
	PayloadPending  PayloadState = "PENDING"
	PayloadSuccess  PayloadState = "SUCCESS"
	PayloadDeclined PayloadState = "DECLINED"
)

// PayloadStatus returns the state of a signing request.
func (m *Machine) PayloadStatus(ctx context.Context, payloadID string) (PayloadState, error) {
	st, err := m.monitor.Provider().Status(ctx, payloadID)
	if err != nil {
		return "", err
	}
	switch {
	case !st.Resolved:
		return PayloadPending, nil
	case st.Signed:
		return PayloadSuccess, nil
	default:
		return PayloadDeclined, nil
	}
}

// BuildTrustLine requests the signature of a trust line from the account
// to the issuer, so that the account can hold the transferred currency. The
// signed trust line is submitted in the background.
func (m *Machine) BuildTrustLine(ctx context.Context, account clearpay.Address) (*signing.Payload, error) {
	if err := m.ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrState, "machine closed")
	}
	if err := account.Validate(); err != nil {
		return nil, err
	}
	tx, err := m.ledger.TrustSet(ctx, account, decimal.Zero)
	if err != nil {
		return nil, err
	}
	payload, err := m.request(ctx, tx, account, false)
	if err != nil {
		return nil, err
	}
	logger := m.logger.With("account", account, "payload", payload.ID)
	logger.Info("trust line requested")

	m.spawn(func(ctx context.Context) {
		res, err := m.monitor.Await(ctx, payload.ID, signing.SubmitSigned)
		switch {
		case err != nil:
			logger.Info("trust line not established", "err", err)
		case !res.Signed:
			logger.Info("trust line declined")
		default:
			logger.Info("trust line submitted", "hash", res.Hash, "accepted", res.Accepted)
		}
	})
	return payload, nil
}

// TokenBalance returns how much of the transferred currency the account
// holds.
func (m *Machine) TokenBalance(ctx context.Context, account clearpay.Address) (ledger.Balance, error) {
	if err := account.Validate(); err != nil {
		return ledger.Balance{}, err
	}
	return m.ledger.TokenBalance(ctx, account), nil
}

package ledger

import (
	"context"

	"github.com/iov-one/clearpay"
	"github.com/shopspring/decimal"
)

// Balance is the holding of the issued currency by an account.
type Balance struct {
	Balance      decimal.Decimal
	HasTrustLine bool
}

// TokenBalance returns the balance of the issued currency held by given
// account. Lookup failures are reported as an empty balance.
func (g *Gateway) TokenBalance(ctx context.Context, account clearpay.Address) Balance {
	lines, err := g.TrustLines(ctx, account)
	if err != nil {
		g.logger.Debug("token balance lookup failed", "account", account, "err", err)
		return Balance{Balance: decimal.Zero}
	}
	for _, l := range lines {
		if l.Issuer == g.cfg.Issuer && l.Currency == g.cfg.Currency {
			return Balance{Balance: l.Balance, HasTrustLine: true}
		}
	}
	return Balance{Balance: decimal.Zero}
}

package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/iov-one/clearpay"
	"github.com/iov-one/clearpay/errors"
	"github.com/shopspring/decimal"
	"github.com/tendermint/tendermint/libs/log"
	"golang.org/x/sync/singleflight"
)

// Config holds the ledger parameters used to build transactions.
type Config struct {
	// Issuer and Currency identify the issued asset that is moved.
	Issuer   clearpay.Address
	Currency string

	// Fee is the fee of a single signed transaction, in drops.
	Fee uint64
	// MultisigFee is the fee of a settlement transaction, in drops.
	MultisigFee uint64
	// FundAmount is the amount of drops a new escrow account is funded
	// with.
	FundAmount uint64
	// ExpiryHorizon is the number of ledgers an escrow account stays
	// usable for.
	ExpiryHorizon uint64
	// TrustLimit is the limit of every trust line created toward the
	// issuer.
	TrustLimit decimal.Decimal

	// Retries is the number of times a call failing with a network error
	// is repeated on a new connection.
	Retries    int
	RetryDelay time.Duration
}

// DefaultConfig returns a configuration with all values but the issued
// asset set.
func DefaultConfig() Config {
	return Config{
		Currency:      "USD",
		Fee:           12,
		MultisigFee:   61,
		FundAmount:    25000000,
		ExpiryHorizon: 100000,
		TrustLimit:    decimal.NewFromInt(1000000),
		Retries:       3,
		RetryDelay:    200 * time.Millisecond,
	}
}

// Validate returns an error if the configuration cannot be used.
func (c Config) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Issuer", c.Issuer.Validate())
	if c.Currency == "" || c.Currency == NativeCurrency {
		errs = errors.AppendField(errs, "Currency", errors.Wrapf(errors.ErrInput, "invalid currency %q", c.Currency))
	}
	if c.Fee == 0 || c.MultisigFee == 0 {
		errs = errors.AppendField(errs, "Fee", errors.ErrEmpty)
	}
	if c.ExpiryHorizon == 0 {
		errs = errors.AppendField(errs, "ExpiryHorizon", errors.ErrEmpty)
	}
	if !c.TrustLimit.IsPositive() {
		errs = errors.AppendField(errs, "TrustLimit", errors.ErrAmount)
	}
	if c.Retries < 0 {
		errs = errors.AppendField(errs, "Retries", errors.ErrInput)
	}
	return errs
}

// Gateway is the shared access point to the ledger network. It is safe for
// concurrent use.
type Gateway struct {
	cfg    Config
	dial   Dialer
	logger log.Logger

	mu   sync.RWMutex
	conn Network
	// gen is incremented with every established connection. It tells a
	// failed call whether the connection it used was already replaced.
	gen uint64

	connecting singleflight.Group
}

// NewGateway returns a gateway that connects on first use.
func NewGateway(cfg Config, dial Dialer, logger log.Logger) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "ledger config")
	}
	if dial == nil {
		return nil, errors.Wrap(errors.ErrEmpty, "dialer")
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Gateway{
		cfg:    cfg,
		dial:   dial,
		logger: logger.With("module", "ledger"),
	}, nil
}

// Config returns the configuration the gateway was created with.
func (g *Gateway) Config() Config {
	return g.cfg
}

func (g *Gateway) current() (Network, uint64) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.conn, g.gen
}

// reconnect replaces the connection of generation stale. If another caller
// already replaced it, the new connection is returned instead. Concurrent
// callers share one dial.
func (g *Gateway) reconnect(ctx context.Context, stale uint64) (Network, uint64, error) {
	type established struct {
		conn Network
		gen  uint64
	}
	v, err, _ := g.connecting.Do("connect", func() (interface{}, error) {
		g.mu.Lock()
		if g.conn != nil && g.gen != stale {
			res := established{conn: g.conn, gen: g.gen}
			g.mu.Unlock()
			return res, nil
		}
		old := g.conn
		g.conn = nil
		g.mu.Unlock()

		if old != nil {
			if err := old.Close(); err != nil {
				g.logger.Debug("closing broken connection", "err", err)
			}
		}
		conn, err := g.dial(ctx)
		if err != nil {
			if !errors.ErrNetwork.Is(err) {
				err = errors.Wrapf(errors.ErrNetwork, "dial: %s", err)
			}
			return nil, err
		}

		g.mu.Lock()
		defer g.mu.Unlock()
		g.conn = conn
		g.gen++
		g.logger.Info("connected to ledger", "generation", g.gen)
		return established{conn: conn, gen: g.gen}, nil
	})
	if err != nil {
		return nil, stale, err
	}
	res := v.(established)
	return res.conn, res.gen, nil
}

// do runs fn with the current connection. Network failures are retried on a
// fresh connection until the retry budget is exhausted.
func (g *Gateway) do(ctx context.Context, op string, fn func(Network) error) error {
	conn, gen := g.current()
	var err error
	for attempt := 0; ; attempt++ {
		if conn == nil {
			conn, gen, err = g.reconnect(ctx, gen)
		}
		if conn != nil {
			err = fn(conn)
			if !errors.ErrNetwork.Is(err) {
				return err
			}
			conn = nil
		}
		if attempt >= g.cfg.Retries {
			return errors.Wrapf(err, "%s failed after %d attempts", op, attempt+1)
		}
		g.logger.Info("ledger call failed", "op", op, "attempt", attempt+1, "err", err)
		select {
		case <-ctx.Done():
			return errors.Wrap(errors.ErrNetwork, ctx.Err().Error())
		case <-time.After(g.cfg.RetryDelay):
		}
	}
}

// LedgerIndex returns the index of the latest validated ledger.
func (g *Gateway) LedgerIndex(ctx context.Context) (uint64, error) {
	var index uint64
	err := g.do(ctx, "ledger index", func(n Network) error {
		var err error
		index, err = n.LedgerIndex(ctx)
		return err
	})
	return index, err
}

// AccountInfo returns the state of given account.
func (g *Gateway) AccountInfo(ctx context.Context, account clearpay.Address) (*AccountInfo, error) {
	var info *AccountInfo
	err := g.do(ctx, "account info", func(n Network) error {
		var err error
		info, err = n.AccountInfo(ctx, account)
		return err
	})
	return info, err
}

// TrustLines returns all trust lines held by given account.
func (g *Gateway) TrustLines(ctx context.Context, account clearpay.Address) ([]TrustLine, error) {
	var lines []TrustLine
	err := g.do(ctx, "trust lines", func(n Network) error {
		var err error
		lines, err = n.TrustLines(ctx, account)
		return err
	})
	return lines, err
}

// Submit broadcasts an encoded, signed transaction.
func (g *Gateway) Submit(ctx context.Context, blob []byte) (*SubmitResult, error) {
	var res *SubmitResult
	err := g.do(ctx, "submit", func(n Network) error {
		var err error
		res, err = n.Submit(ctx, blob)
		return err
	})
	if err != nil {
		return nil, err
	}
	g.logger.Info("transaction submitted", "hash", res.Hash, "code", res.Code, "accepted", res.Accepted)
	return res, nil
}

// SubmitTx encodes and broadcasts a signed transaction.
func (g *Gateway) SubmitTx(ctx context.Context, tx *Tx) (*SubmitResult, error) {
	blob, err := Encode(tx)
	if err != nil {
		return nil, err
	}
	return g.Submit(ctx, blob)
}

// Fund credits given account with native drops, creating it if needed.
func (g *Gateway) Fund(ctx context.Context, account clearpay.Address, drops uint64) error {
	return g.do(ctx, "fund", func(n Network) error {
		return n.Fund(ctx, account, drops)
	})
}

// Close releases the current connection.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conn == nil {
		return nil
	}
	err := g.conn.Close()
	g.conn = nil
	return err
}

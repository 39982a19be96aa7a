package memnet

import (
	"context"

	"github.com/iov-one/clearpay"
	"github.com/iov-one/clearpay/errors"
	"github.com/iov-one/clearpay/ledger"
)

// conn is a single connection to the network. Once broken, every call made
// with it fails until a new connection is dialed.
type conn struct {
	net    *Network
	broken bool
}

var _ ledger.Network = (*conn)(nil)

// enter locks the network and checks the connection. On success the caller
// must unlock the network.
func (c *conn) enter(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(errors.ErrNetwork, err.Error())
	}
	c.net.mu.Lock()
	if c.broken {
		c.net.mu.Unlock()
		return errors.Wrap(errors.ErrNetwork, "connection closed")
	}
	if c.net.fail() {
		c.broken = true
		c.net.mu.Unlock()
		return errors.Wrap(errors.ErrNetwork, "connection reset")
	}
	return nil
}

func (c *conn) LedgerIndex(ctx context.Context) (uint64, error) {
	if err := c.enter(ctx); err != nil {
		return 0, err
	}
	defer c.net.mu.Unlock()
	return c.net.index, nil
}

func (c *conn) AccountInfo(ctx context.Context, account clearpay.Address) (*ledger.AccountInfo, error) {
	if err := c.enter(ctx); err != nil {
		return nil, err
	}
	defer c.net.mu.Unlock()
	return c.net.accountInfo(account)
}

func (c *conn) TrustLines(ctx context.Context, account clearpay.Address) ([]ledger.TrustLine, error) {
	if err := c.enter(ctx); err != nil {
		return nil, err
	}
	defer c.net.mu.Unlock()
	return c.net.trustLines(account), nil
}

func (c *conn) Submit(ctx context.Context, blob []byte) (*ledger.SubmitResult, error) {
	if err := c.enter(ctx); err != nil {
		return nil, err
	}
	defer c.net.mu.Unlock()
	return c.net.submit(blob), nil
}

func (c *conn) Fund(ctx context.Context, account clearpay.Address, drops uint64) error {
	if err := account.Validate(); err != nil {
		return err
	}
	if err := c.enter(ctx); err != nil {
		return err
	}
	defer c.net.mu.Unlock()
	c.net.fund(account, drops)
	return nil
}

func (c *conn) Close() error {
	c.net.mu.Lock()
	defer c.net.mu.Unlock()
	c.broken = true
	return nil
}

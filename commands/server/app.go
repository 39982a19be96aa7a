package server

import (
	"context"
	"time"

	"github.com/iov-one/clearpay"
	"github.com/iov-one/clearpay/config"
	"github.com/iov-one/clearpay/errors"
	"github.com/iov-one/clearpay/ledger"
	"github.com/iov-one/clearpay/ledger/memnet"
	"github.com/iov-one/clearpay/ledger/tmnet"
	"github.com/iov-one/clearpay/signing"
	"github.com/iov-one/clearpay/signing/httpsign"
	"github.com/iov-one/clearpay/store"
	"github.com/iov-one/clearpay/store/badgerstore"
	"github.com/iov-one/clearpay/store/pgstore"
	"github.com/iov-one/clearpay/x/transfer"
	"github.com/iov-one/clearpay/x/verify"
	"github.com/tendermint/tendermint/libs/log"
)

const (
	connectAttempts = 10
	connectDelay    = 2 * time.Second
	// signingRequestTimeout limits a single call to the signing provider.
	signingRequestTimeout = 10 * time.Second
)

// App holds all services of a running clearpay instance.
type App struct {
	Config  *config.Config
	Store   store.Store
	Gateway *ledger.Gateway
	Monitor *signing.Monitor
	Machine *transfer.Machine
}

// NewApp connects to all external systems and builds the transfer machine.
// Vendors are registered and saved to the store.
func NewApp(ctx context.Context, cfg *config.Config, provider signing.Provider, logger log.Logger) (app *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config")
	}
	gwConf, err := cfg.Ledger.Gateway()
	if err != nil {
		return nil, err
	}
	specs, err := cfg.VendorSpecs()
	if err != nil {
		return nil, err
	}

	db, err := OpenStore(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			db.Close()
		}
	}()

	registry := verify.NewRegistry()
	if err := verify.Seed(ctx, registry, db, specs); err != nil {
		return nil, errors.Wrap(err, "seed vendors")
	}

	dial, err := dialer(cfg.Ledger, gwConf)
	if err != nil {
		return nil, err
	}
	gw, err := ledger.NewGateway(gwConf, dial, logger)
	if err != nil {
		return nil, err
	}

	if provider == nil {
		provider = httpsign.NewClient(cfg.Signing.URL, cfg.Signing.APIKey, cfg.Signing.APISecret, signingRequestTimeout)
	}
	monitor := signing.NewMonitor(provider, gw, logger)
	monitor.Interval = cfg.Signing.PollInterval
	monitor.Timeout = cfg.Signing.Timeout

	aggregator := verify.NewAggregator(registry, db, logger)
	machine, err := transfer.NewMachine(db, aggregator, gw, monitor, clearpay.Address(cfg.Arbiter.Address), logger)
	if err != nil {
		gw.Close()
		return nil, err
	}
	return &App{
		Config:  cfg,
		Store:   db,
		Gateway: gw,
		Monitor: monitor,
		Machine: machine,
	}, nil
}

// Close stops background work and releases all connections.
func (a *App) Close() error {
	a.Machine.Close()
	return errors.Append(a.Gateway.Close(), a.Store.Close())
}

// OpenStore returns the store selected by the configuration.
func OpenStore(ctx context.Context, c config.Store, logger log.Logger) (store.Store, error) {
	switch c.Driver {
	case config.DriverBadger:
		db, err := badgerstore.Open(c.Path, logger)
		if err != nil {
			return nil, err
		}
		return db, nil
	case config.DriverPostgres:
		db, err := pgstore.Connect(ctx, c.DSN, connectAttempts, connectDelay, logger)
		if err != nil {
			return nil, err
		}
		return db, nil
	}
	return nil, errors.Wrapf(errors.ErrInput, "unknown store driver %q", c.Driver)
}

func dialer(c config.Ledger, gw ledger.Config) (ledger.Dialer, error) {
	switch c.Network {
	case config.NetworkTendermint:
		funder, err := c.Funder()
		if err != nil {
			return nil, err
		}
		return tmnet.Dialer(c.Remote, funder, gw.Fee), nil
	case config.NetworkMemory:
		return memnet.New().Dialer(), nil
	}
	return nil, errors.Wrapf(errors.ErrInput, "unknown ledger network %q", c.Network)
}

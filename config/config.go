/*
Package config loads the clearpay service configuration.

Values are read from an optional configuration file (any format viper
understands) and can be overwritten with environment variables. The
variable name is the upper cased key, prefixed with CLEARPAY_ and with dots
replaced by underscores, for example CLEARPAY_LEDGER_REMOTE.
*/
package config

import (
	"strings"
	"time"

	"github.com/iov-one/clearpay"
	"github.com/iov-one/clearpay/crypto"
	"github.com/iov-one/clearpay/errors"
	"github.com/iov-one/clearpay/ledger"
	"github.com/iov-one/clearpay/x/verify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of all environment variables read.
const EnvPrefix = "CLEARPAY"

// Store drivers.
const (
	DriverBadger   = "badger"
	DriverPostgres = "postgres"
)

// Ledger networks.
const (
	NetworkTendermint = "tendermint"
	NetworkMemory     = "memory"
)

type Config struct {
	HTTP    HTTP     `mapstructure:"http"`
	Log     Log      `mapstructure:"log"`
	Store   Store    `mapstructure:"store"`
	Ledger  Ledger   `mapstructure:"ledger"`
	Arbiter Arbiter  `mapstructure:"arbiter"`
	Signing Signing  `mapstructure:"signing"`
	Vendors []Vendor `mapstructure:"vendors"`
}

type HTTP struct {
	Addr string `mapstructure:"addr"`
	// Debug includes error stack traces in API responses.
	Debug bool `mapstructure:"debug"`
}

type Log struct {
	// Level is one of debug, info, error or none.
	Level string `mapstructure:"level"`
}

type Store struct {
	Driver string `mapstructure:"driver"`
	// Path is the badger directory. An empty path keeps all data in
	// memory.
	Path string `mapstructure:"path"`
	DSN  string `mapstructure:"dsn"`
}

type Ledger struct {
	Network       string        `mapstructure:"network"`
	Remote        string        `mapstructure:"remote"`
	FunderSeed    string        `mapstructure:"funder_seed"`
	Issuer        string        `mapstructure:"issuer"`
	Currency      string        `mapstructure:"currency"`
	Fee           uint64        `mapstructure:"fee"`
	MultisigFee   uint64        `mapstructure:"multisig_fee"`
	FundAmount    uint64        `mapstructure:"fund_amount"`
	ExpiryHorizon uint64        `mapstructure:"expiry_horizon"`
	TrustLimit    string        `mapstructure:"trust_limit"`
	Retries       int           `mapstructure:"retries"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
}

type Arbiter struct {
	Address string `mapstructure:"address"`
}

type Signing struct {
	URL          string        `mapstructure:"url"`
	APIKey       string        `mapstructure:"api_key"`
	APISecret    string        `mapstructure:"api_secret"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// Vendor describes a risk vendor checker. See verify.Spec.
type Vendor struct {
	Name        string  `mapstructure:"name"`
	Kind        string  `mapstructure:"kind"`
	FailFor     string  `mapstructure:"fail_for"`
	Chance      float64 `mapstructure:"chance"`
	Description string  `mapstructure:"description"`
}

func setDefaults(v *viper.Viper) {
	gw := ledger.DefaultConfig()

	v.SetDefault("http.addr", ":8000")
	v.SetDefault("http.debug", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("store.driver", DriverBadger)
	v.SetDefault("store.path", "")
	v.SetDefault("store.dsn", "")
	v.SetDefault("ledger.network", NetworkTendermint)
	v.SetDefault("ledger.remote", "http://localhost:26657")
	v.SetDefault("ledger.funder_seed", "")
	v.SetDefault("ledger.issuer", "")
	v.SetDefault("ledger.currency", gw.Currency)
	v.SetDefault("ledger.fee", gw.Fee)
	v.SetDefault("ledger.multisig_fee", gw.MultisigFee)
	v.SetDefault("ledger.fund_amount", gw.FundAmount)
	v.SetDefault("ledger.expiry_horizon", gw.ExpiryHorizon)
	v.SetDefault("ledger.trust_limit", gw.TrustLimit.String())
	v.SetDefault("ledger.retries", gw.Retries)
	v.SetDefault("ledger.retry_delay", gw.RetryDelay)
	v.SetDefault("arbiter.address", "")
	v.SetDefault("signing.url", "")
	v.SetDefault("signing.api_key", "")
	v.SetDefault("signing.api_secret", "")
	v.SetDefault("signing.poll_interval", 500*time.Millisecond)
	v.SetDefault("signing.timeout", 3*time.Minute)
}

// Load returns the configuration read from given file, or from the
// defaults and the environment only if the path is empty. The result is
// not validated.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(errors.ErrInput, "read config %q: %s", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, errors.Wrapf(errors.ErrInput, "decode config: %s", err)
	}
	if len(c.Vendors) == 0 {
		for _, s := range verify.DefaultSpecs() {
			c.Vendors = append(c.Vendors, Vendor{
				Name:        s.Name,
				Kind:        s.Kind,
				FailFor:     string(s.FailFor),
				Chance:      s.Chance,
				Description: s.Description,
			})
		}
	}
	return &c, nil
}

// Validate returns an error if the configuration cannot be used to start
// the service.
func (c *Config) Validate() error {
	var errs error
	if c.HTTP.Addr == "" {
		errs = errors.AppendField(errs, "http.addr", errors.ErrEmpty)
	}
	errs = errors.AppendField(errs, "store", c.Store.Validate())
	if _, err := c.Ledger.Gateway(); err != nil {
		errs = errors.AppendField(errs, "ledger", err)
	}
	switch c.Ledger.Network {
	case NetworkTendermint:
		if c.Ledger.Remote == "" {
			errs = errors.AppendField(errs, "ledger.remote", errors.ErrEmpty)
		}
		if _, err := c.Ledger.Funder(); err != nil {
			errs = errors.AppendField(errs, "ledger.funder_seed", err)
		}
	case NetworkMemory:
	default:
		errs = errors.AppendField(errs, "ledger.network", errors.Wrapf(errors.ErrInput, "unknown network %q", c.Ledger.Network))
	}
	errs = errors.AppendField(errs, "arbiter.address", clearpay.Address(c.Arbiter.Address).Validate())
	if c.Signing.URL == "" {
		errs = errors.AppendField(errs, "signing.url", errors.ErrEmpty)
	}
	if c.Signing.PollInterval <= 0 || c.Signing.Timeout <= 0 {
		errs = errors.AppendField(errs, "signing", errors.Wrap(errors.ErrInput, "poll interval and timeout must be positive"))
	}
	if _, err := c.VendorSpecs(); err != nil {
		errs = errors.AppendField(errs, "vendors", err)
	}
	return errs
}

// Validate returns an error if the store cannot be opened.
func (s Store) Validate() error {
	switch s.Driver {
	case DriverBadger:
		return nil
	case DriverPostgres:
		if s.DSN == "" {
			return errors.Wrap(errors.ErrEmpty, "dsn")
		}
		return nil
	}
	return errors.Wrapf(errors.ErrInput, "unknown driver %q", s.Driver)
}

// Gateway returns the ledger gateway configuration.
func (l Ledger) Gateway() (ledger.Config, error) {
	limit, err := decimal.NewFromString(l.TrustLimit)
	if err != nil {
		return ledger.Config{}, errors.Wrapf(errors.ErrInput, "trust limit %q", l.TrustLimit)
	}
	c := ledger.Config{
		Issuer:        clearpay.Address(l.Issuer),
		Currency:      l.Currency,
		Fee:           l.Fee,
		MultisigFee:   l.MultisigFee,
		FundAmount:    l.FundAmount,
		ExpiryHorizon: l.ExpiryHorizon,
		TrustLimit:    limit,
		Retries:       l.Retries,
		RetryDelay:    l.RetryDelay,
	}
	if err := c.Validate(); err != nil {
		return ledger.Config{}, err
	}
	return c, nil
}

// Funder returns the key paying for new escrow accounts.
func (l Ledger) Funder() (crypto.PrivateKey, error) {
	if l.FunderSeed == "" {
		return nil, errors.Wrap(errors.ErrEmpty, "funder seed")
	}
	return crypto.ParseSeed(l.FunderSeed)
}

// VendorSpecs returns the checkers of all configured vendors.
func (c *Config) VendorSpecs() ([]verify.Spec, error) {
	var errs error
	specs := make([]verify.Spec, 0, len(c.Vendors))
	for i, v := range c.Vendors {
		s := verify.Spec{
			Name:        v.Name,
			Description: v.Description,
			Kind:        v.Kind,
			FailFor:     clearpay.Role(v.FailFor),
			Chance:      v.Chance,
		}
		if err := s.Validate(); err != nil {
			errs = errors.AppendField(errs, v.Name, errors.Wrapf(err, "vendor %d", i))
			continue
		}
		specs = append(specs, s)
	}
	if errs != nil {
		return nil, errs
	}
	return specs, nil
}

package coin

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/iov-one/clearpay"
	"github.com/iov-one/clearpay/errors"
	"github.com/shopspring/decimal"
)

//-------------- Coin -----------------------

// IsCC is the RegExp to ensure valid currency codes. Both the three
// character standard codes and 40 character hex codes are accepted.
var IsCC = regexp.MustCompile(`^([A-Z0-9]{3}|[0-9A-F]{40})$`).MatchString

const (
	// MaxDigits is the number of significant digits an issued amount can
	// carry on the ledger.
	MaxDigits = 15

	// FracDigits is the highest number of fractional digits we accept.
	FracDigits = 9
)

// Coin is an amount of an issued currency. An issued currency is identified
// by the currency code together with the issuing account.
type Coin struct {
	Value    decimal.Decimal  `json:"value"`
	Currency string           `json:"currency"`
	Issuer   clearpay.Address `json:"issuer,omitempty"`
}

// NewCoin creates a new coin object
func NewCoin(value decimal.Decimal, currency string, issuer clearpay.Address) Coin {
	return Coin{
		Value:    value,
		Currency: currency,
		Issuer:   issuer,
	}
}

// NewCoinp returns a pointer to a new coin.
func NewCoinp(value decimal.Decimal, currency string, issuer clearpay.Address) *Coin {
	c := NewCoin(value, currency, issuer)
	return &c
}

// ID returns the identifier of the issued currency.
func (c Coin) ID() string {
	if c.Issuer == "" {
		return c.Currency
	}
	return c.Currency + "/" + c.Issuer.String()
}

// Add combines two coins.
// Returns error if they are of different currencies.
func (c Coin) Add(o Coin) (Coin, error) {
	// A zero value without currency has no influence on the result.
	if c.Currency == "" && c.IsZero() {
		return o, nil
	}
	if o.Currency == "" && o.IsZero() {
		return c, nil
	}
	if !c.SameType(o) {
		return Coin{}, errors.Wrapf(errors.ErrAmount, "adding %s to %s", o.ID(), c.ID())
	}
	c.Value = c.Value.Add(o.Value)
	return c, nil
}

// Negative returns the opposite coins value
//   c.Add(c.Negative()).IsZero() == true
func (c Coin) Negative() Coin {
	c.Value = c.Value.Neg()
	return c
}

// Subtract given amount.
func (c Coin) Subtract(amount Coin) (Coin, error) {
	return c.Add(amount.Negative())
}

// Compare will check values of two coins, without inspecting the currency.
// It is up to the caller to determine if they want to check this.
//
// Returns 1 if c is larger, -1 if o is larger, 0 if equal
func (c Coin) Compare(o Coin) int {
	return c.Value.Cmp(o.Value)
}

// Equals returns true if all fields are identical
func (c Coin) Equals(o Coin) bool {
	return c.SameType(o) && c.Value.Equal(o.Value)
}

// IsEmpty returns true on null or zero amount
func IsEmpty(c *Coin) bool {
	return c == nil || c.IsZero()
}

// IsZero returns true amounts are 0
func (c Coin) IsZero() bool {
	return c.Value.IsZero()
}

// IsPositive returns true if the value is greater than 0
func (c Coin) IsPositive() bool {
	return c.Value.IsPositive()
}

// IsGTE returns true if c is same type and at least as large as o.
func (c Coin) IsGTE(o Coin) bool {
	return c.SameType(o) && c.Value.GreaterThanOrEqual(o.Value)
}

// SameType returns true if they have the same currency and issuer
func (c Coin) SameType(o Coin) bool {
	return c.Currency == o.Currency && c.Issuer == o.Issuer
}

// Clone provides an independent copy of a coin pointer
func (c *Coin) Clone() *Coin {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// Validate ensures that the coin is in the valid range and valid currency
// code. It accepts negative values, so you may want to make other checks in
// your business logic
func (c Coin) Validate() error {
	var err error
	if !IsCC(c.Currency) {
		err = errors.AppendField(err, "Currency", errors.Wrapf(errors.ErrAmount, "invalid currency: %q", c.Currency))
	}
	if c.Issuer != "" {
		err = errors.AppendField(err, "Issuer", c.Issuer.Validate())
	}
	if -c.Value.Exponent() > FracDigits {
		err = errors.AppendField(err, "Value", errors.Wrapf(errors.ErrAmount, "more than %d fractional digits", FracDigits))
	}
	if digits := len(strings.TrimLeft(c.Value.Abs().Coefficient().String(), "0")); digits > MaxDigits {
		err = errors.AppendField(err, "Value", errors.Wrapf(errors.ErrAmount, "more than %d significant digits", MaxDigits))
	}
	return err
}

// String provides a human readable representation of the coin in the
// "<value> <currency>" format. The issuer is not part of the representation.
func (c Coin) String() string {
	if c.Currency == "" {
		return c.Value.String()
	}
	return c.Value.String() + " " + c.Currency
}

// ParseHumanFormat parse a human readable coin representation. Accepted format
// is a string:
//   "<value> <currency>"
func ParseHumanFormat(h string) (Coin, error) {
	var c Coin
	results := humanCoinFormatRx.FindStringSubmatch(h)
	if len(results) != 3 {
		return c, errors.Wrapf(errors.ErrAmount, "invalid format %q", h)
	}
	value, err := decimal.NewFromString(results[1])
	if err != nil {
		return c, errors.Wrapf(errors.ErrAmount, "invalid value: %s", err)
	}
	c.Value = value
	c.Currency = results[2]
	return c, nil
}

var humanCoinFormatRx = regexp.MustCompile(`^\s*(-?\d+(?:\.\d+)?)\s*([A-Z0-9]{3}|[0-9A-F]{40})\s*$`)

func (c *Coin) UnmarshalJSON(raw []byte) error {
	// Prioritize human readable format that is a string in format
	// "<value> <currency>"
	var human string
	if err := json.Unmarshal(raw, &human); err == nil {
		parsed, err := ParseHumanFormat(human)
		if err != nil {
			return err
		}
		*c = parsed
		return nil
	}

	// Fallback into the default unmarhaling. Because UnmarshalJSON method
	// is provided, we can no longer use Coin type for this.
	var coin struct {
		Value    decimal.Decimal  `json:"value"`
		Currency string           `json:"currency"`
		Issuer   clearpay.Address `json:"issuer"`
	}
	if err := json.Unmarshal(raw, &coin); err != nil {
		return errors.Wrap(errors.ErrAmount, err.Error())
	}
	c.Value = coin.Value
	c.Currency = coin.Currency
	c.Issuer = coin.Issuer
	return nil
}

// Set updates this coin value to what is provided. This method implements
// flag.Value interface.
func (c *Coin) Set(raw string) error {
	val, err := ParseHumanFormat(raw)
	if err != nil {
		return err
	}
	*c = val
	return nil
}

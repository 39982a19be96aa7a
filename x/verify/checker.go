package verify

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/iov-one/clearpay"
	"github.com/iov-one/clearpay/errors"
)

// Checker is a single risk vendor.
type Checker interface {
	// IsSafe returns true if the vendor considers given address safe to
	// transact with in given role.
	IsSafe(ctx context.Context, addr clearpay.Address, role clearpay.Role) (bool, error)
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(ctx context.Context, addr clearpay.Address, role clearpay.Role) (bool, error)

func (fn CheckerFunc) IsSafe(ctx context.Context, addr clearpay.Address, role clearpay.Role) (bool, error) {
	return fn(ctx, addr, role)
}

// RoleChecker rejects every address acting in the configured role.
type RoleChecker struct {
	FailFor clearpay.Role
}

var _ Checker = RoleChecker{}

func (c RoleChecker) IsSafe(ctx context.Context, addr clearpay.Address, role clearpay.Role) (bool, error) {
	return role != c.FailFor, nil
}

// ChanceChecker accepts an address with the configured probability.
type ChanceChecker struct {
	chance float64

	mu  sync.Mutex
	rnd *rand.Rand
}

var _ Checker = (*ChanceChecker)(nil)

// NewChanceChecker returns a checker that accepts with given probability.
// A zero seed uses the current time.
func NewChanceChecker(chance float64, seed int64) (*ChanceChecker, error) {
	if chance < 0 || chance > 1 {
		return nil, errors.Wrapf(errors.ErrInput, "chance %v not in [0, 1]", chance)
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &ChanceChecker{
		chance: chance,
		rnd:    rand.New(rand.NewSource(seed)),
	}, nil
}

func (c *ChanceChecker) IsSafe(ctx context.Context, addr clearpay.Address, role clearpay.Role) (bool, error) {
	c.mu.Lock()
	n := c.rnd.Float64()
	c.mu.Unlock()
	return n < c.chance, nil
}

// Kinds of checkers that can be built from configuration.
const (
	KindRole   = "role"
	KindChance = "chance"
)

// Spec describes a vendor checker.
type Spec struct {
	Name        string
	Description string
	Kind        string
	FailFor     clearpay.Role
	Chance      float64
}

// Validate returns an error if no checker can be built from the spec.
func (s Spec) Validate() error {
	var errs error
	if s.Name == "" {
		errs = errors.AppendField(errs, "Name", errors.ErrEmpty)
	}
	switch s.Kind {
	case KindRole:
		errs = errors.AppendField(errs, "FailFor", s.FailFor.Validate())
	case KindChance:
		if s.Chance < 0 || s.Chance > 1 {
			errs = errors.AppendField(errs, "Chance", errors.Wrapf(errors.ErrInput, "%v not in [0, 1]", s.Chance))
		}
	default:
		errs = errors.AppendField(errs, "Kind", errors.Wrapf(errors.ErrInput, "unknown kind %q", s.Kind))
	}
	return errs
}

// Build returns the checker described by the spec.
func (s Spec) Build() (Checker, error) {
	if err := s.Validate(); err != nil {
		return nil, errors.Wrapf(err, "vendor %q", s.Name)
	}
	if s.Kind == KindRole {
		return RoleChecker{FailFor: s.FailFor}, nil
	}
	return NewChanceChecker(s.Chance, 0)
}

// DefaultSpecs is the vendor catalogue used when none is configured.
func DefaultSpecs() []Spec {
	return []Spec{
		{Name: "Chainalsys", Description: "Sender risk screening", Kind: KindRole, FailFor: clearpay.RoleSender},
		{Name: "Blowfish", Description: "Recipient risk screening", Kind: KindRole, FailFor: clearpay.RoleRecipient},
		{Name: "Elliptic", Description: "Probabilistic risk screening", Kind: KindChance, Chance: 1},
	}
}

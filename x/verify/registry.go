package verify

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/iov-one/clearpay/errors"
	"github.com/iov-one/clearpay/store"
)

// Registry maps vendor names to their checkers.
type Registry struct {
	mu       sync.RWMutex
	checkers map[string]Checker
}

func NewRegistry() *Registry {
	return &Registry{checkers: make(map[string]Checker)}
}

// Register adds a checker under given vendor name. Registering a name twice
// is an error.
func (r *Registry) Register(name string, c Checker) error {
	if name == "" {
		return errors.Wrap(errors.ErrEmpty, "vendor name")
	}
	if c == nil {
		return errors.Wrapf(errors.ErrEmpty, "vendor %q checker", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.checkers[name]; ok {
		return errors.Wrapf(errors.ErrDuplicate, "vendor %q", name)
	}
	r.checkers[name] = c
	return nil
}

// MustRegister is like Register but panics on failure. Use it only during
// the program startup phase.
func (r *Registry) MustRegister(name string, c Checker) {
	if err := r.Register(name, c); err != nil {
		panic(err)
	}
}

// Get returns the checker of given vendor.
func (r *Registry) Get(name string) (Checker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.checkers[name]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "vendor %q", name)
	}
	return c, nil
}

// Names returns all registered vendor names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.checkers))
	for n := range r.checkers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// vendorNamespace is used to derive stable vendor IDs from their names.
var vendorNamespace = uuid.MustParse("6f1c2b0e-5d3a-4e8f-9a71-0c2d4b6e8f10")

// VendorID returns the stable identifier of a vendor with given name.
func VendorID(name string) string {
	return uuid.NewSHA1(vendorNamespace, []byte(name)).String()
}

// VendorStore is the part of the store needed to seed vendors.
type VendorStore interface {
	SaveVendor(ctx context.Context, v *store.Vendor) error
}

// Seed builds a checker for every spec, registers it and persists the
// vendor record.
func Seed(ctx context.Context, r *Registry, db VendorStore, specs []Spec) error {
	for _, s := range specs {
		c, err := s.Build()
		if err != nil {
			return err
		}
		if err := r.Register(s.Name, c); err != nil {
			return err
		}
		v := &store.Vendor{
			ID:          VendorID(s.Name),
			Name:        s.Name,
			Description: s.Description,
			Active:      true,
		}
		if err := db.SaveVendor(ctx, v); err != nil {
			return errors.Wrapf(err, "save vendor %q", s.Name)
		}
	}
	return nil
}

package badgerstore

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/iov-one/clearpay"
	"github.com/iov-one/clearpay/errors"
	"github.com/iov-one/clearpay/store"
	"github.com/tendermint/tendermint/libs/log"
)

var (
	txPrefix         = []byte("tx/")
	vendorPrefix     = []byte("vendor/")
	vendorNamePrefix = []byte("vendorname/")
)

// maxConflictRetries limits how many times a mutation is repeated when
// badger reports a conflicting concurrent write.
const maxConflictRetries = 64

// Store is a store.Store implementation backed by badger. Every record is a
// JSON document, a transaction is kept together with its logs and
// verifications under a single key.
type Store struct {
	db     *badger.DB
	logger log.Logger
}

var _ store.Store = (*Store)(nil)

// Open returns a store using the database at given path. Empty path opens
// an in memory database.
func Open(path string, logger log.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrDatabase, "open badger: %s", err)
	}
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return errors.Wrapf(errors.ErrDatabase, "close badger: %s", err)
	}
	return nil
}

func txKey(id string) []byte {
	return append(append([]byte{}, txPrefix...), id...)
}

func vendorKey(id string) []byte {
	return append(append([]byte{}, vendorPrefix...), id...)
}

func vendorNameKey(name string) []byte {
	return append(append([]byte{}, vendorNamePrefix...), name...)
}

// update runs fn inside of a read-write transaction. Conflicting
// transactions are retried, so fn must not have side effects outside of
// txn.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(errors.ErrTimeout, err.Error())
		}
		err := s.db.Update(fn)
		if err == nil || !isConflict(err) {
			return err
		}
		if attempt >= maxConflictRetries {
			return errors.Wrap(errors.ErrDatabase, "too many conflicting writes")
		}
		s.logger.Debug("retrying conflicting write", "attempt", attempt+1)
	}
}

func isConflict(err error) bool {
	return err == badger.ErrConflict
}

func (s *Store) CreateTransaction(ctx context.Context, t *store.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(t)
	if err != nil {
		return errors.Wrap(err, "marshal transaction")
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		switch _, err := txn.Get(txKey(t.ID)); {
		case err == nil:
			return errors.Wrapf(errors.ErrDuplicate, "transaction %s", t.ID)
		case err != badger.ErrKeyNotFound:
			return errors.Wrap(errors.ErrDatabase, err.Error())
		}
		return dbErr(txn.Set(txKey(t.ID), raw))
	})
}

func (s *Store) Transaction(ctx context.Context, id string) (*store.Transaction, error) {
	var t *store.Transaction
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		t, err = loadTransaction(txn, id)
		return err
	})
	return t, err
}

func loadTransaction(txn *badger.Txn, id string) (*store.Transaction, error) {
	item, err := txn.Get(txKey(id))
	if err == badger.ErrKeyNotFound {
		return nil, errors.Wrapf(errors.ErrNotFound, "transaction %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	var t store.Transaction
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &t)
	}); err != nil {
		return nil, errors.Wrapf(errors.ErrDatabase, "decode transaction %s: %s", id, err)
	}
	return &t, nil
}

func (s *Store) Transactions(ctx context.Context, f store.Filter) ([]*store.Transaction, error) {
	var res []*store.Transaction
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(txPrefix); it.ValidForPrefix(txPrefix); it.Next() {
			var t store.Transaction
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &t)
			}); err != nil {
				return errors.Wrapf(errors.ErrDatabase, "decode %s: %s", it.Item().Key(), err)
			}
			if f.Match(&t) {
				res = append(res, &t)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	return res, nil
}

// mutate loads the transaction, applies fn and stores the result, all in a
// single badger transaction.
func (s *Store) mutate(ctx context.Context, id string, fn func(*store.Transaction) error) (*store.Transaction, error) {
	var res *store.Transaction
	err := s.update(ctx, func(txn *badger.Txn) error {
		t, err := loadTransaction(txn, id)
		if err != nil {
			return err
		}
		if err := fn(t); err != nil {
			return err
		}
		raw, err := json.Marshal(t)
		if err != nil {
			return errors.Wrap(err, "marshal transaction")
		}
		if err := txn.Set(txKey(id), raw); err != nil {
			return dbErr(err)
		}
		res = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Store) AppendStatus(ctx context.Context, id string, st clearpay.Status) (*store.Transaction, error) {
	return s.mutate(ctx, id, func(t *store.Transaction) error {
		_, err := t.AppendStatus(st, store.Now())
		return err
	})
}

func (s *Store) SetEscrow(ctx context.Context, id string, escrow clearpay.Address, expiry uint64) (*store.Transaction, error) {
	return s.mutate(ctx, id, func(t *store.Transaction) error {
		return t.SetEscrow(escrow, expiry)
	})
}

func (s *Store) SetFundingHash(ctx context.Context, id string, hash string) (*store.Transaction, error) {
	return s.mutate(ctx, id, func(t *store.Transaction) error {
		return t.SetFundingHash(hash)
	})
}

func (s *Store) RecordDecision(ctx context.Context, id string, r clearpay.Role, d clearpay.Decision, signer clearpay.Signer) (*store.Transaction, error) {
	return s.mutate(ctx, id, func(t *store.Transaction) error {
		_, err := t.RecordDecision(r, d, signer, store.Now())
		return err
	})
}

func (s *Store) AppendVerificationStatus(ctx context.Context, txID, verificationID string, st clearpay.VerificationStatus) error {
	_, err := s.mutate(ctx, txID, func(t *store.Transaction) error {
		_, err := t.AppendVerificationStatus(verificationID, st, store.Now())
		return err
	})
	return err
}

func (s *Store) Vendors(ctx context.Context) ([]*store.Vendor, error) {
	var res []*store.Vendor
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(vendorPrefix); it.ValidForPrefix(vendorPrefix); it.Next() {
			var v store.Vendor
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &v)
			}); err != nil {
				return errors.Wrapf(errors.ErrDatabase, "decode %s: %s", it.Item().Key(), err)
			}
			res = append(res, &v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res, nil
}

func (s *Store) SaveVendor(ctx context.Context, v *store.Vendor) error {
	if err := v.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshal vendor")
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		switch item, err := txn.Get(vendorNameKey(v.Name)); {
		case err == badger.ErrKeyNotFound:
		case err != nil:
			return dbErr(err)
		default:
			owner, err := item.ValueCopy(nil)
			if err != nil {
				return dbErr(err)
			}
			if !bytes.Equal(owner, []byte(v.ID)) {
				return errors.Wrapf(errors.ErrDuplicate, "vendor name %q", v.Name)
			}
		}

		// A renamed vendor must release its previous name.
		if prev, err := loadVendor(txn, v.ID); err == nil && prev.Name != v.Name {
			if err := txn.Delete(vendorNameKey(prev.Name)); err != nil {
				return dbErr(err)
			}
		}

		if err := txn.Set(vendorKey(v.ID), raw); err != nil {
			return dbErr(err)
		}
		return dbErr(txn.Set(vendorNameKey(v.Name), []byte(v.ID)))
	})
}

func (s *Store) Vendor(ctx context.Context, id string) (*store.Vendor, error) {
	var v *store.Vendor
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		v, err = loadVendor(txn, id)
		return err
	})
	return v, err
}

func (s *Store) VendorByName(ctx context.Context, name string) (*store.Vendor, error) {
	var v *store.Vendor
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(vendorNameKey(name))
		if err == badger.ErrKeyNotFound {
			return errors.Wrapf(errors.ErrNotFound, "vendor %q", name)
		}
		if err != nil {
			return dbErr(err)
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return dbErr(err)
		}
		v, err = loadVendor(txn, string(id))
		return err
	})
	return v, err
}

func loadVendor(txn *badger.Txn, id string) (*store.Vendor, error) {
	item, err := txn.Get(vendorKey(id))
	if err == badger.ErrKeyNotFound {
		return nil, errors.Wrapf(errors.ErrNotFound, "vendor %s", id)
	}
	if err != nil {
		return nil, dbErr(err)
	}
	var v store.Vendor
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &v)
	}); err != nil {
		return nil, errors.Wrapf(errors.ErrDatabase, "decode vendor %s: %s", id, err)
	}
	return &v, nil
}

// dbErr wraps a badger failure so that it is reported as a database error.
func dbErr(err error) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(errors.ErrDatabase, err.Error())
}

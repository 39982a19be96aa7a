package verify

import (
	"context"

	"github.com/iov-one/clearpay"
	"github.com/iov-one/clearpay/errors"
	"github.com/iov-one/clearpay/store"
	"github.com/tendermint/tendermint/libs/log"
	"golang.org/x/sync/errgroup"
)

// Outcome is the aggregated result of all checks of a transaction.
type Outcome struct {
	SenderRejected    bool
	RecipientRejected bool
}

// Status returns the transaction status describing the outcome.
func (o Outcome) Status() clearpay.Status {
	switch {
	case o.SenderRejected && o.RecipientRejected:
		return clearpay.RecipientAndSenderVerificationFailed
	case o.SenderRejected:
		return clearpay.SenderVerificationFailed
	case o.RecipientRejected:
		return clearpay.RecipientVerificationFailed
	default:
		return clearpay.VerificationSuccess
	}
}

// Recorder is the part of the store used by the aggregator.
type Recorder interface {
	Vendor(ctx context.Context, id string) (*store.Vendor, error)
	AppendVerificationStatus(ctx context.Context, txID, verificationID string, s clearpay.VerificationStatus) error
}

// Aggregator runs vendor checks of a transaction.
type Aggregator struct {
	registry *Registry
	db       Recorder
	logger   log.Logger
}

func NewAggregator(registry *Registry, db Recorder, logger log.Logger) *Aggregator {
	return &Aggregator{
		registry: registry,
		db:       db,
		logger:   logger.With("module", "verify"),
	}
}

// Verify runs every pending verification of the transaction concurrently
// and records its result. Verifications already resolved keep their
// recorded result. A party is rejected if any vendor rejected it.
//
// An error is returned only if a result cannot be recorded. A check that
// fails, panics or whose vendor is unknown counts as a rejection.
func (a *Aggregator) Verify(ctx context.Context, tx *store.Transaction) (Outcome, error) {
	results := make([]clearpay.VerificationStatus, len(tx.Verifications))

	g, gctx := errgroup.WithContext(ctx)
	for i := range tx.Verifications {
		i, v := i, tx.Verifications[i]
		if st := v.Status(); st != clearpay.VerificationPending {
			results[i] = st
			continue
		}
		g.Go(func() error {
			st := clearpay.VerificationRejected
			if a.check(gctx, v) {
				st = clearpay.VerificationApproved
			}
			if err := a.db.AppendVerificationStatus(gctx, tx.ID, v.ID, st); err != nil {
				return errors.Wrapf(err, "verification %s", v.ID)
			}
			results[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Outcome{}, err
	}

	var o Outcome
	for i, v := range tx.Verifications {
		if results[i] == clearpay.VerificationApproved {
			continue
		}
		switch v.Role {
		case clearpay.RoleSender:
			o.SenderRejected = true
		case clearpay.RoleRecipient:
			o.RecipientRejected = true
		}
	}
	a.logger.Info("verification completed", "tx", tx.ID, "status", o.Status())
	return o, nil
}

// check returns true only if the vendor positively accepted the subject.
func (a *Aggregator) check(ctx context.Context, v store.VendorVerification) (safe bool) {
	err := func() (err error) {
		defer errors.Recover(&err)

		vendor, err := a.db.Vendor(ctx, v.VendorID)
		if err != nil {
			return err
		}
		if !vendor.Active {
			return errors.Wrapf(errors.ErrState, "vendor %q is not active", vendor.Name)
		}
		c, err := a.registry.Get(vendor.Name)
		if err != nil {
			return err
		}
		safe, err = c.IsSafe(ctx, v.Subject, v.Role)
		return err
	}()
	if err != nil {
		a.logger.Error("vendor check failed",
			"verification", v.ID, "vendor", v.VendorID, "err", err)
		return false
	}
	return safe
}

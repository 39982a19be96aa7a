package server

import (
	"context"

	"github.com/iov-one/clearpay/errors"
	"github.com/iov-one/clearpay/store/pgstore"
	"github.com/iov-one/clearpay/x/verify"
	"github.com/tendermint/tendermint/libs/log"
)

// MigrateCmd creates or updates the database schema. Stores without a
// schema are left untouched.
func MigrateCmd(logger log.Logger, args []string) error {
	cfg, logger, _, err := loadConfig("migrate", logger, args)
	if err != nil {
		return err
	}
	if err := cfg.Store.Validate(); err != nil {
		return errors.Field("store", err, "config")
	}
	db, err := OpenStore(context.Background(), cfg.Store, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	pg, ok := db.(*pgstore.Store)
	if !ok {
		logger.Info("store has no schema to migrate", "driver", cfg.Store.Driver)
		return nil
	}
	return pg.Migrate()
}

// SeedCmd saves the configured vendors to the store.
func SeedCmd(logger log.Logger, args []string) error {
	cfg, logger, _, err := loadConfig("seed", logger, args)
	if err != nil {
		return err
	}
	if err := cfg.Store.Validate(); err != nil {
		return errors.Field("store", err, "config")
	}
	specs, err := cfg.VendorSpecs()
	if err != nil {
		return err
	}
	ctx := context.Background()
	db, err := OpenStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := verify.Seed(ctx, verify.NewRegistry(), db, specs); err != nil {
		return err
	}
	logger.Info("vendors seeded", "count", len(specs))
	return nil
}

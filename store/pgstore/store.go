package pgstore

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/iov-one/clearpay"
	"github.com/iov-one/clearpay/errors"
	"github.com/iov-one/clearpay/store"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/tendermint/tendermint/libs/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// PostgreSQL error codes mapped to registered errors.
const (
	PgErrUniqueViolation     = "23505" // unique_violation
	PgErrForeignKeyViolation = "23503" // foreign_key_violation
	PgErrNotNullViolation    = "23502" // not_null_violation
	PgErrCheckViolation      = "23514" // check_violation
	PgErrConnectionException = "08000" // connection_exception
	PgErrConnectionFailure   = "08006" // connection_failure
)

// Store is a store.Store implementation backed by postgres.
type Store struct {
	db     *gorm.DB
	logger log.Logger
}

var _ store.Store = (*Store)(nil)

// Connect opens a connection to the database, retrying up to given number
// of attempts.
func Connect(ctx context.Context, dsn string, attempts int, delay time.Duration, logger log.Logger) (*Store, error) {
	var lastErr error
	for i := 0; i < attempts; i++ {
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err == nil {
			logger.Info("connected to postgres", "attempt", i+1)
			return &Store{db: db, logger: logger}, nil
		}
		lastErr = err
		logger.Error("postgres connection failed", "attempt", i+1, "err", err)

		select {
		case <-ctx.Done():
			return nil, errors.Wrap(errors.ErrTimeout, ctx.Err().Error())
		case <-time.After(delay):
		}
	}
	return nil, errors.Wrapf(errors.ErrDatabase, "connect: %s", lastErr)
}

// Migrate creates or updates the schema.
func (s *Store) Migrate() error {
	err := s.db.AutoMigrate(
		&transactionRow{},
		&statusRow{},
		&verificationRow{},
		&verificationStatusRow{},
		&vendorRow{},
	)
	if err != nil {
		return errors.Wrapf(errors.ErrDatabase, "migrate: %s", err)
	}
	s.logger.Info("database migration completed")
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return pgErr(err)
	}
	return pgErr(sqlDB.Close())
}

// withTx runs fn in a database transaction that is committed only if fn
// succeeds.
func (s *Store) withTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	dbTx := s.db.WithContext(ctx).Begin()
	if err := dbTx.Error; err != nil {
		return pgErr(err)
	}
	if err := fn(dbTx); err != nil {
		dbTx.Rollback()
		return err
	}
	if err := dbTx.Commit().Error; err != nil {
		return pgErr(err)
	}
	return nil
}

func (s *Store) CreateTransaction(ctx context.Context, t *store.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	row, err := toTransactionRow(t)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(row).Error; err != nil {
			return pgErr(err)
		}
		for _, e := range t.StatusLog {
			if err := insertStatus(tx, t.ID, e); err != nil {
				return err
			}
		}
		for _, v := range t.Verifications {
			vrow := verificationRow{
				ID:            v.ID,
				TransactionID: t.ID,
				VendorID:      v.VendorID,
				Subject:       v.Subject.String(),
				Role:          string(v.Role),
			}
			if err := tx.Create(&vrow).Error; err != nil {
				return pgErr(err)
			}
			for _, e := range v.StatusLog {
				if err := insertVerificationStatus(tx, v.ID, e); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func insertStatus(tx *gorm.DB, txID string, e store.StatusLogEntry) error {
	row := statusRow{
		TransactionID: txID,
		Seq:           e.Seq,
		Status:        string(e.Status),
		CreatedAt:     e.CreatedAt,
	}
	return pgErr(tx.Create(&row).Error)
}

func insertVerificationStatus(tx *gorm.DB, verificationID string, e store.VerificationLogEntry) error {
	row := verificationStatusRow{
		VerificationID: verificationID,
		Seq:            e.Seq,
		Status:         string(e.Status),
		CreatedAt:      e.CreatedAt,
	}
	return pgErr(tx.Create(&row).Error)
}

func (s *Store) Transaction(ctx context.Context, id string) (*store.Transaction, error) {
	var row transactionRow
	if err := s.db.WithContext(ctx).Where("transaction_id = ?", id).First(&row).Error; err != nil {
		return nil, notFound(err, "transaction %s", id)
	}
	return loadAggregate(s.db.WithContext(ctx), &row)
}

// loadAggregate reads all logs and verifications of a transaction row.
func loadAggregate(db *gorm.DB, row *transactionRow) (*store.Transaction, error) {
	t, err := row.toTransaction()
	if err != nil {
		return nil, err
	}

	var statuses []statusRow
	if err := db.Where("transaction_id = ?", row.ID).Order("seq DESC").Find(&statuses).Error; err != nil {
		return nil, pgErr(err)
	}
	for _, st := range statuses {
		t.StatusLog = append(t.StatusLog, store.StatusLogEntry{
			Status:    clearpay.Status(st.Status),
			CreatedAt: st.CreatedAt.UTC(),
			Seq:       st.Seq,
		})
	}

	var verifications []verificationRow
	if err := db.Where("transaction_id = ?", row.ID).Order("verification_id").Find(&verifications).Error; err != nil {
		return nil, pgErr(err)
	}
	for _, v := range verifications {
		var logs []verificationStatusRow
		if err := db.Where("verification_id = ?", v.ID).Order("seq DESC").Find(&logs).Error; err != nil {
			return nil, pgErr(err)
		}
		vv := store.VendorVerification{
			ID:       v.ID,
			VendorID: v.VendorID,
			Subject:  clearpay.Address(v.Subject),
			Role:     clearpay.Role(v.Role),
		}
		for _, l := range logs {
			vv.StatusLog = append(vv.StatusLog, store.VerificationLogEntry{
				Status:    clearpay.VerificationStatus(l.Status),
				CreatedAt: l.CreatedAt.UTC(),
				Seq:       l.Seq,
			})
		}
		t.Verifications = append(t.Verifications, vv)
	}
	return t, nil
}

func (s *Store) Transactions(ctx context.Context, f store.Filter) ([]*store.Transaction, error) {
	db := s.db.WithContext(ctx)
	q := db.Model(&transactionRow{})
	switch {
	case f.Sender != "" && f.Recipient != "":
		q = q.Where("sender = ? OR recipient = ?", f.Sender.String(), f.Recipient.String())
	case f.Sender != "":
		q = q.Where("sender = ?", f.Sender.String())
	case f.Recipient != "":
		q = q.Where("recipient = ?", f.Recipient.String())
	}
	if f.EscrowFunded {
		q = q.Where("EXISTS (SELECT 1 FROM transaction_statuses s WHERE s.transaction_id = transactions.transaction_id AND s.status = ?)",
			string(clearpay.EscrowFunded))
	}

	var rows []transactionRow
	if err := q.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, pgErr(err)
	}
	res := make([]*store.Transaction, 0, len(rows))
	for i := range rows {
		t, err := loadAggregate(db, &rows[i])
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, nil
}

// mutate locks the transaction row, applies fn to the loaded aggregate and
// persists everything fn added.
func (s *Store) mutate(ctx context.Context, id string, fn func(*store.Transaction) error) (*store.Transaction, error) {
	var res *store.Transaction
	err := s.withTx(ctx, func(tx *gorm.DB) error {
		var row transactionRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("transaction_id = ?", id).
			First(&row).Error
		if err != nil {
			return notFound(err, "transaction %s", id)
		}
		t, err := loadAggregate(tx, &row)
		if err != nil {
			return err
		}

		statusCount := len(t.StatusLog)
		verificationCounts := make(map[string]int, len(t.Verifications))
		for _, v := range t.Verifications {
			verificationCounts[v.ID] = len(v.StatusLog)
		}

		if err := fn(t); err != nil {
			return err
		}

		updated, err := toTransactionRow(t)
		if err != nil {
			return err
		}
		if err := tx.Save(updated).Error; err != nil {
			return pgErr(err)
		}
		// Logs are ordered newest first, so new entries are at the head.
		for i := len(t.StatusLog) - statusCount - 1; i >= 0; i-- {
			if err := insertStatus(tx, t.ID, t.StatusLog[i]); err != nil {
				return err
			}
		}
		for _, v := range t.Verifications {
			for i := len(v.StatusLog) - verificationCounts[v.ID] - 1; i >= 0; i-- {
				if err := insertVerificationStatus(tx, v.ID, v.StatusLog[i]); err != nil {
					return err
				}
			}
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
	var rows []vendorRow
	if err := s.db.WithContext(ctx).Order("name").Find(&rows).Error; err != nil {
		return nil, pgErr(err)
	}
	res := make([]*store.Vendor, 0, len(rows))
	for i := range rows {
		res = append(res, rows[i].toVendor())
	}
	return res, nil
}

func (s *Store) SaveVendor(ctx context.Context, v *store.Vendor) error {
	if err := v.Validate(); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *gorm.DB) error {
		var clash int64
		err := tx.Model(&vendorRow{}).
			Where("name = ? AND vendor_id <> ?", v.Name, v.ID).
			Count(&clash).Error
		if err != nil {
			return pgErr(err)
		}
		if clash > 0 {
			return errors.Wrapf(errors.ErrDuplicate, "vendor name %q", v.Name)
		}
		row := vendorRow{
			ID:          v.ID,
			Name:        v.Name,
			Description: v.Description,
			Active:      v.Active,
		}
		// Save would skip the zero value of Active on insert.
		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "vendor_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "description", "active"}),
		}).Select("*").Create(&row).Error
		return pgErr(err)
	})
}

func (s *Store) Vendor(ctx context.Context, id string) (*store.Vendor, error) {
	var row vendorRow
	if err := s.db.WithContext(ctx).Where("vendor_id = ?", id).First(&row).Error; err != nil {
		return nil, notFound(err, "vendor %s", id)
	}
	return row.toVendor(), nil
}

func (s *Store) VendorByName(ctx context.Context, name string) (*store.Vendor, error) {
	var row vendorRow
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&row).Error; err != nil {
		return nil, notFound(err, "vendor %q", name)
	}
	return row.toVendor(), nil
}

// Truncate removes all rows. It is meant to be used by tests only.
func (s *Store) Truncate(ctx context.Context) error {
	err := s.db.WithContext(ctx).Exec(`TRUNCATE
		transactions, transaction_statuses, vendor_verifications,
		vendor_verification_statuses, vendors`).Error
	return pgErr(err)
}

func notFound(err error, format string, args ...interface{}) error {
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Wrapf(errors.ErrNotFound, format, args...)
	}
	return pgErr(err)
}

// pgErr maps a database failure to a registered error.
func pgErr(err error) error {
	if err == nil {
		return nil
	}
	var pe *pgconn.PgError
	if stderrors.As(err, &pe) {
		switch pe.Code {
		case PgErrUniqueViolation:
			return errors.Wrapf(errors.ErrDuplicate, "%s: %s", pe.Message, pe.Detail)
		case PgErrForeignKeyViolation, PgErrNotNullViolation, PgErrCheckViolation:
			return errors.Wrapf(errors.ErrInput, "%s: %s", pe.Message, pe.Detail)
		case PgErrConnectionException, PgErrConnectionFailure:
			return errors.Wrapf(errors.ErrNetwork, "%s", pe.Message)
		}
		return errors.Wrapf(errors.ErrDatabase, "%s (%s)", pe.Message, pe.Code)
	}
	if stderrors.Is(err, gorm.ErrDuplicatedKey) {
		return errors.Wrap(errors.ErrDuplicate, err.Error())
	}
	return errors.Wrap(errors.ErrDatabase, err.Error())
}

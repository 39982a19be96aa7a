package pgstore

import (
	"encoding/json"
	"time"

	"github.com/iov-one/clearpay"
	"github.com/iov-one/clearpay/errors"
	"github.com/iov-one/clearpay/store"
	"github.com/shopspring/decimal"
)

type transactionRow struct {
	ID                 string          `gorm:"column:transaction_id;primaryKey;type:varchar(64)"`
	Sender             string          `gorm:"column:sender;type:varchar(90);not null;index"`
	Recipient          string          `gorm:"column:recipient;type:varchar(90);not null;index"`
	Amount             decimal.Decimal `gorm:"column:amount;type:numeric(30,9);not null"`
	Escrow             *string         `gorm:"column:escrow;type:varchar(90)"`
	EscrowExpiry       *int64          `gorm:"column:escrow_expiry"`
	FundingHash        *string         `gorm:"column:funding_hash;type:varchar(128)"`
	SenderSignature    *string         `gorm:"column:sender_signature;type:text"`
	RecipientSignature *string         `gorm:"column:recipient_signature;type:text"`
	AdminSignature     *string         `gorm:"column:admin_signature;type:text"`
	CreatedAt          time.Time       `gorm:"column:created_at;not null"`
}

func (transactionRow) TableName() string { return "transactions" }

type statusRow struct {
	ID            uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	TransactionID string    `gorm:"column:transaction_id;type:varchar(64);not null;uniqueIndex:idx_status_seq"`
	Seq           uint64    `gorm:"column:seq;not null;uniqueIndex:idx_status_seq"`
	Status        string    `gorm:"column:status;type:varchar(64);not null;index"`
	CreatedAt     time.Time `gorm:"column:created_at;not null"`
}

func (statusRow) TableName() string { return "transaction_statuses" }

type verificationRow struct {
	ID            string `gorm:"column:verification_id;primaryKey;type:varchar(64)"`
	TransactionID string `gorm:"column:transaction_id;type:varchar(64);not null;index"`
	VendorID      string `gorm:"column:vendor_id;type:varchar(64);not null"`
	Subject       string `gorm:"column:subject;type:varchar(90);not null"`
	Role          string `gorm:"column:role;type:varchar(20);not null"`
}

func (verificationRow) TableName() string { return "vendor_verifications" }

type verificationStatusRow struct {
	ID             uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	VerificationID string    `gorm:"column:verification_id;type:varchar(64);not null;uniqueIndex:idx_verification_seq"`
	Seq            uint64    `gorm:"column:seq;not null;uniqueIndex:idx_verification_seq"`
	Status         string    `gorm:"column:status;type:varchar(20);not null"`
	CreatedAt      time.Time `gorm:"column:created_at;not null"`
}

func (verificationStatusRow) TableName() string { return "vendor_verification_statuses" }

type vendorRow struct {
	ID          string `gorm:"column:vendor_id;primaryKey;type:varchar(64)"`
	Name        string `gorm:"column:name;type:varchar(100);not null;uniqueIndex"`
	Description string `gorm:"column:description;type:text"`
	Active      bool   `gorm:"column:active;not null;default:true"`
}

func (vendorRow) TableName() string { return "vendors" }

func toTransactionRow(t *store.Transaction) (*transactionRow, error) {
	row := &transactionRow{
		ID:        t.ID,
		Sender:    t.Sender.String(),
		Recipient: t.Recipient.String(),
		Amount:    t.Amount,
		CreatedAt: t.CreatedAt,
	}
	if t.Escrow != "" {
		escrow := t.Escrow.String()
		expiry := int64(t.EscrowExpiry)
		row.Escrow = &escrow
		row.EscrowExpiry = &expiry
	}
	if t.FundingHash != "" {
		hash := t.FundingHash
		row.FundingHash = &hash
	}
	var err error
	if row.SenderSignature, err = encodeSigner(t.SenderSignature); err != nil {
		return nil, err
	}
	if row.RecipientSignature, err = encodeSigner(t.RecipientSignature); err != nil {
		return nil, err
	}
	if row.AdminSignature, err = encodeSigner(t.AdminSignature); err != nil {
		return nil, err
	}
	return row, nil
}

func (row *transactionRow) toTransaction() (*store.Transaction, error) {
	t := &store.Transaction{
		ID:        row.ID,
		Sender:    clearpay.Address(row.Sender),
		Recipient: clearpay.Address(row.Recipient),
		Amount:    row.Amount,
		CreatedAt: row.CreatedAt.UTC(),
	}
	if row.Escrow != nil {
		t.Escrow = clearpay.Address(*row.Escrow)
	}
	if row.EscrowExpiry != nil {
		t.EscrowExpiry = uint64(*row.EscrowExpiry)
	}
	if row.FundingHash != nil {
		t.FundingHash = *row.FundingHash
	}
	var err error
	if t.SenderSignature, err = decodeSigner(row.SenderSignature); err != nil {
		return nil, err
	}
	if t.RecipientSignature, err = decodeSigner(row.RecipientSignature); err != nil {
		return nil, err
	}
	if t.AdminSignature, err = decodeSigner(row.AdminSignature); err != nil {
		return nil, err
	}
	return t, nil
}

func encodeSigner(s *clearpay.Signer) (*string, error) {
	if s == nil {
		return nil, nil
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, "marshal signer")
	}
	str := string(raw)
	return &str, nil
}

func decodeSigner(raw *string) (*clearpay.Signer, error) {
	if raw == nil {
		return nil, nil
	}
	var s clearpay.Signer
	if err := json.Unmarshal([]byte(*raw), &s); err != nil {
		return nil, errors.Wrapf(errors.ErrDatabase, "decode signer: %s", err)
	}
	return &s, nil
}

func (row *vendorRow) toVendor() *store.Vendor {
	return &store.Vendor{
		ID:          row.ID,
		Name:        row.Name,
		Description: row.Description,
		Active:      row.Active,
	}
}

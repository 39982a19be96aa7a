package ledger

import (
	"github.com/iov-one/clearpay"
	"github.com/iov-one/clearpay/coin"
	"github.com/iov-one/clearpay/errors"
)

// TxType is the kind of a ledger transaction.
type TxType string

const (
	TypePayment       TxType = "Payment"
	TypeTrustSet      TxType = "TrustSet"
	TypeSignerListSet TxType = "SignerListSet"
	TypeAccountSet    TxType = "AccountSet"
)

// FlagDisableMaster is the AccountSet flag that disables the master key of
// an account.
const FlagDisableMaster uint32 = 4

// Memo types used by clearpay.
const (
	MemoTypeEscrow = "EscrowMessage"
	MemoFormatText = "text/plain"
)

// Memo is arbitrary data attached to a transaction.
type Memo struct {
	Type   string `json:"type"`
	Format string `json:"format"`
	Data   string `json:"data"`
}

// SignerEntry is a single member of an account signer list.
type SignerEntry struct {
	Account clearpay.Address `json:"account"`
	Weight  uint32           `json:"weight"`
}

// Tx is a ledger transaction. Only fields relevant to the transaction type
// are set.
type Tx struct {
	Type    TxType           `json:"type"`
	Account clearpay.Address `json:"account"`

	// Payment
	Destination clearpay.Address `json:"destination,omitempty"`
	Amount      *coin.Coin       `json:"amount,omitempty"`

	// TrustSet
	LimitAmount *coin.Coin `json:"limit_amount,omitempty"`

	// SignerListSet
	SignerQuorum  uint32        `json:"signer_quorum,omitempty"`
	SignerEntries []SignerEntry `json:"signer_entries,omitempty"`

	// AccountSet
	SetFlag uint32 `json:"set_flag,omitempty"`

	Memos []Memo `json:"memos,omitempty"`

	// Fee is expressed in drops of the native currency.
	Fee                uint64 `json:"fee"`
	Sequence           uint64 `json:"sequence"`
	LastLedgerSequence uint64 `json:"last_ledger_sequence,omitempty"`

	// SigningPubKey is empty for multi signed transactions.
	SigningPubKey string            `json:"signing_pub_key,omitempty"`
	TxnSignature  string            `json:"txn_signature,omitempty"`
	Signers       []clearpay.Signer `json:"signers,omitempty"`
}

// Validate returns an error if the transaction is not well formed. It does
// not check signatures.
func (tx *Tx) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Account", tx.Account.Validate())

	switch tx.Type {
	case TypePayment:
		errs = errors.AppendField(errs, "Destination", tx.Destination.Validate())
		if tx.Destination == tx.Account {
			errs = errors.AppendField(errs, "Destination", errors.Wrap(errors.ErrInput, "paying to self"))
		}
		if tx.Amount == nil {
			errs = errors.AppendField(errs, "Amount", errors.ErrEmpty)
		} else {
			errs = errors.AppendField(errs, "Amount", tx.Amount.Validate())
			if !tx.Amount.IsPositive() {
				errs = errors.AppendField(errs, "Amount", errors.Wrap(errors.ErrAmount, "must be positive"))
			}
		}
	case TypeTrustSet:
		if tx.LimitAmount == nil {
			errs = errors.AppendField(errs, "LimitAmount", errors.ErrEmpty)
		} else {
			errs = errors.AppendField(errs, "LimitAmount", tx.LimitAmount.Validate())
			if tx.LimitAmount.Issuer == "" {
				errs = errors.AppendField(errs, "LimitAmount", errors.Wrap(errors.ErrEmpty, "issuer"))
			}
		}
	case TypeSignerListSet:
		if len(tx.SignerEntries) == 0 {
			errs = errors.AppendField(errs, "SignerEntries", errors.ErrEmpty)
		}
		var total uint32
		for _, e := range tx.SignerEntries {
			errs = errors.AppendField(errs, "SignerEntries", e.Account.Validate())
			total += e.Weight
		}
		if tx.SignerQuorum == 0 || tx.SignerQuorum > total {
			errs = errors.AppendField(errs, "SignerQuorum", errors.Wrapf(errors.ErrState, "quorum %d, total weight %d", tx.SignerQuorum, total))
		}
	case TypeAccountSet:
	default:
		errs = errors.AppendField(errs, "Type", errors.Wrapf(errors.ErrType, "unknown type %q", tx.Type))
	}
	return errs
}

// IsMultisigned returns true if the transaction carries signer list
// signatures instead of a single signature.
func (tx *Tx) IsMultisigned() bool {
	return tx.SigningPubKey == "" && len(tx.Signers) > 0
}

// Copy returns a deep copy of the transaction.
func (tx *Tx) Copy() *Tx {
	cp := *tx
	cp.Amount = tx.Amount.Clone()
	cp.LimitAmount = tx.LimitAmount.Clone()
	cp.SignerEntries = append([]SignerEntry(nil), tx.SignerEntries...)
	cp.Memos = append([]Memo(nil), tx.Memos...)
	cp.Signers = append([]clearpay.Signer(nil), tx.Signers...)
	return &cp
}

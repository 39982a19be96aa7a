package ledger

import (
	"context"

	"github.com/iov-one/clearpay"
	"github.com/shopspring/decimal"
)

// NativeCurrency is the currency code of the ledger native asset. Native
// amounts carry no issuer and are expressed in drops.
const NativeCurrency = "XRP"

// AccountFlagMasterDisabled is set on accounts whose master key can no
// longer sign.
const AccountFlagMasterDisabled uint32 = 0x00100000

// Result codes reported by a ledger network. Only CodeSuccess means the
// transaction was applied.
const (
	CodeSuccess          = "tesSUCCESS"
	CodeMalformed        = "temMALFORMED"
	CodeBadSigner        = "temBAD_SIGNER"
	CodeNoAccount        = "terNO_ACCOUNT"
	CodePreSeq           = "terPRE_SEQ"
	CodeInsufFee         = "terINSUF_FEE_B"
	CodePastSeq          = "tefPAST_SEQ"
	CodeMaxLedger        = "tefMAX_LEDGER"
	CodeBadAuth          = "tefBAD_AUTH"
	CodeMasterDisabled   = "tefMASTER_DISABLED"
	CodeNotMultiSigning  = "tefNOT_MULTI_SIGNING"
	CodeBadQuorum        = "tefBAD_QUORUM"
	CodeBadSignature     = "tefBAD_SIGNATURE"
	CodeNoDestination    = "tecNO_DST"
	CodePathDry          = "tecPATH_DRY"
	CodePathPartial      = "tecPATH_PARTIAL"
	CodeUnfunded         = "tecUNFUNDED_PAYMENT"
	CodeNoAlternativeKey = "tecNO_ALTERNATIVE_KEY"
)

// AccountInfo is the state of a ledger account.
type AccountInfo struct {
	Account clearpay.Address
	// Sequence is the sequence the next transaction of this account must
	// carry.
	Sequence uint64
	// LedgerIndex is the ledger the information was read from.
	LedgerIndex uint64
	// Balance of the native asset in drops.
	Balance       uint64
	Flags         uint32
	SignerQuorum  uint32
	SignerEntries []SignerEntry
}

// MasterDisabled returns true if only the signer list can authorize
// transactions of this account.
func (a *AccountInfo) MasterDisabled() bool {
	return a.Flags&AccountFlagMasterDisabled != 0
}

// TrustLine allows an account to hold an issued currency up to a limit.
type TrustLine struct {
	Account  clearpay.Address
	Issuer   clearpay.Address
	Currency string
	Limit    decimal.Decimal
	Balance  decimal.Decimal
}

// SubmitResult is the response of the ledger to a submitted transaction.
type SubmitResult struct {
	Accepted    bool
	Hash        string
	Code        string
	Log         string
	LedgerIndex uint64
}

// Network is a connection to the ledger network.
//
// Implementations must return an error wrapping errors.ErrNetwork when the
// connection is no longer usable. The gateway then dials a new one.
type Network interface {
	// LedgerIndex returns the index of the latest validated ledger.
	LedgerIndex(ctx context.Context) (uint64, error)
	// AccountInfo returns errors.ErrNotFound for accounts that do not
	// exist.
	AccountInfo(ctx context.Context, account clearpay.Address) (*AccountInfo, error)
	TrustLines(ctx context.Context, account clearpay.Address) ([]TrustLine, error)
	// Submit broadcasts an encoded, signed transaction. A transaction
	// rejected by the ledger is not an error.
	Submit(ctx context.Context, blob []byte) (*SubmitResult, error)
	// Fund creates the account if needed and credits it with given amount
	// of drops.
	Fund(ctx context.Context, account clearpay.Address, drops uint64) error
	Close() error
}

// Dialer establishes a new network connection.
type Dialer func(ctx context.Context) (Network, error)

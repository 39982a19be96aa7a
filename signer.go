package clearpay

import (
	"encoding/hex"

	"github.com/iov-one/clearpay/errors"
)

// Signer is a credential contributed by a single account to a multi signed
// ledger transaction. Public key and signature are hex encoded.
type Signer struct {
	Account       Address `json:"account"`
	SigningPubKey string  `json:"signing_pub_key"`
	TxnSignature  string  `json:"txn_signature"`
}

// Validate returns an error if the credential is not complete.
func (s *Signer) Validate() error {
	if s == nil {
		return errors.Wrap(errors.ErrEmpty, "signer")
	}
	var errs error
	errs = errors.AppendField(errs, "Account", s.Account.Validate())
	if _, err := hex.DecodeString(s.SigningPubKey); err != nil || s.SigningPubKey == "" {
		errs = errors.AppendField(errs, "SigningPubKey", errors.ErrInput)
	}
	if _, err := hex.DecodeString(s.TxnSignature); err != nil || s.TxnSignature == "" {
		errs = errors.AppendField(errs, "TxnSignature", errors.ErrInput)
	}
	return errs
}

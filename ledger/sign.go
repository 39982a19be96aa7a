package ledger

import (
	"encoding/hex"

	"github.com/iov-one/clearpay"
	"github.com/iov-one/clearpay/crypto"
	"github.com/iov-one/clearpay/errors"
)

// Sign signs the transaction with the master key of its account. The
// public key and signature are set on the transaction.
func Sign(tx *Tx, key crypto.Signer) error {
	tx.SigningPubKey = key.PublicKey().Hex()
	tx.Signers = nil
	bz, err := SigningBytes(tx)
	if err != nil {
		return err
	}
	sig, err := key.Sign(bz)
	if err != nil {
		return errors.Wrap(err, "sign")
	}
	tx.TxnSignature = hex.EncodeToString(sig)
	return nil
}

// MultiSign returns the contribution of the key owner to a multi signed
// transaction. The transaction is not modified.
func MultiSign(tx *Tx, key crypto.Signer) (clearpay.Signer, error) {
	pub := key.PublicKey()
	account := pub.Address()
	bz, err := MultiSigningBytes(tx, account)
	if err != nil {
		return clearpay.Signer{}, err
	}
	sig, err := key.Sign(bz)
	if err != nil {
		return clearpay.Signer{}, errors.Wrap(err, "sign")
	}
	return clearpay.Signer{
		Account:       account,
		SigningPubKey: pub.Hex(),
		TxnSignature:  hex.EncodeToString(sig),
	}, nil
}

// VerifySingle checks the single signature of a transaction. It does not
// check that the key is allowed to sign for the account.
func VerifySingle(tx *Tx) (crypto.PublicKey, error) {
	pub, err := crypto.ParsePublicKey(tx.SigningPubKey)
	if err != nil {
		return nil, err
	}
	sig, err := hex.DecodeString(tx.TxnSignature)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInput, "signature hex")
	}
	bz, err := SigningBytes(tx)
	if err != nil {
		return nil, err
	}
	if !pub.Verify(bz, sig) {
		return nil, errors.Wrap(errors.ErrUnauthorized, "invalid signature")
	}
	return pub, nil
}

// VerifySigner checks a multi signature contribution. The key must belong
// to the signer account.
func VerifySigner(tx *Tx, s clearpay.Signer) error {
	pub, err := crypto.ParsePublicKey(s.SigningPubKey)
	if err != nil {
		return err
	}
	if !pub.Address().Equals(s.Account) {
		return errors.Wrapf(errors.ErrUnauthorized, "key does not belong to %s", s.Account)
	}
	sig, err := hex.DecodeString(s.TxnSignature)
	if err != nil {
		return errors.Wrap(errors.ErrInput, "signature hex")
	}
	bz, err := MultiSigningBytes(tx, s.Account)
	if err != nil {
		return err
	}
	if !pub.Verify(bz, sig) {
		return errors.Wrap(errors.ErrUnauthorized, "invalid signature")
	}
	return nil
}

// DecodeSigner extracts the credential of whoever signed the blob. For a
// multi signed blob this is the first contribution.
func DecodeSigner(blob []byte) (*clearpay.Signer, error) {
	tx, err := Decode(blob)
	if err != nil {
		return nil, err
	}
	if len(tx.Signers) > 0 {
		s := tx.Signers[0]
		return &s, nil
	}
	if tx.SigningPubKey == "" {
		return nil, errors.Wrap(errors.ErrEmpty, "blob is not signed")
	}
	pub, err := crypto.ParsePublicKey(tx.SigningPubKey)
	if err != nil {
		return nil, err
	}
	return &clearpay.Signer{
		Account:       pub.Address(),
		SigningPubKey: tx.SigningPubKey,
		TxnSignature:  tx.TxnSignature,
	}, nil
}

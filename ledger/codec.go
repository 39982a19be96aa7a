package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/iov-one/clearpay"
	"github.com/iov-one/clearpay/coin"
	"github.com/iov-one/clearpay/errors"
	"github.com/shopspring/decimal"
	amino "github.com/tendermint/go-amino"
)

var cdc = amino.NewCodec()

// Prefixes separate single and multi signed payloads so that a signature
// for one can never be replayed as the other.
var (
	singleSignPrefix = []byte("STX\x00")
	multiSignPrefix  = []byte("SMT\x00")
)

// Amounts travel as strings, the wire format has no decimal type.
type wireAmount struct {
	Value    string
	Currency string
	Issuer   string
}

type wireSignerEntry struct {
	Account string
	Weight  uint32
}

type wireMemo struct {
	Type   string
	Format string
	Data   string
}

type wireSigner struct {
	Account       string
	SigningPubKey string
	TxnSignature  string
}

type wireTx struct {
	Type               string
	Account            string
	Destination        string
	Amount             wireAmount
	LimitAmount        wireAmount
	SignerQuorum       uint32
	SignerEntries      []wireSignerEntry
	SetFlag            uint32
	Memos              []wireMemo
	Fee                uint64
	Sequence           uint64
	LastLedgerSequence uint64
	SigningPubKey      string
	TxnSignature       string
	Signers            []wireSigner
}

func toWireAmount(c *coin.Coin) wireAmount {
	if c == nil {
		return wireAmount{}
	}
	return wireAmount{Value: c.Value.String(), Currency: c.Currency, Issuer: c.Issuer.String()}
}

func fromWireAmount(w wireAmount) (*coin.Coin, error) {
	if w.Currency == "" {
		return nil, nil
	}
	v, err := decimal.NewFromString(w.Value)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrAmount, "value %q", w.Value)
	}
	return coin.NewCoinp(v, w.Currency, clearpay.Address(w.Issuer)), nil
}

func toWire(tx *Tx) wireTx {
	w := wireTx{
		Type:               string(tx.Type),
		Account:            tx.Account.String(),
		Destination:        tx.Destination.String(),
		Amount:             toWireAmount(tx.Amount),
		LimitAmount:        toWireAmount(tx.LimitAmount),
		SignerQuorum:       tx.SignerQuorum,
		SetFlag:            tx.SetFlag,
		Fee:                tx.Fee,
		Sequence:           tx.Sequence,
		LastLedgerSequence: tx.LastLedgerSequence,
		SigningPubKey:      tx.SigningPubKey,
		TxnSignature:       tx.TxnSignature,
	}
	for _, e := range tx.SignerEntries {
		w.SignerEntries = append(w.SignerEntries, wireSignerEntry{Account: e.Account.String(), Weight: e.Weight})
	}
	for _, m := range tx.Memos {
		w.Memos = append(w.Memos, wireMemo(m))
	}
	for _, s := range tx.Signers {
		w.Signers = append(w.Signers, wireSigner{
			Account:       s.Account.String(),
			SigningPubKey: s.SigningPubKey,
			TxnSignature:  s.TxnSignature,
		})
	}
	return w
}

func fromWire(w wireTx) (*Tx, error) {
	tx := &Tx{
		Type:               TxType(w.Type),
		Account:            clearpay.Address(w.Account),
		Destination:        clearpay.Address(w.Destination),
		SignerQuorum:       w.SignerQuorum,
		SetFlag:            w.SetFlag,
		Fee:                w.Fee,
		Sequence:           w.Sequence,
		LastLedgerSequence: w.LastLedgerSequence,
		SigningPubKey:      w.SigningPubKey,
		TxnSignature:       w.TxnSignature,
	}
	var err error
	if tx.Amount, err = fromWireAmount(w.Amount); err != nil {
		return nil, errors.Field("Amount", err, "decode")
	}
	if tx.LimitAmount, err = fromWireAmount(w.LimitAmount); err != nil {
		return nil, errors.Field("LimitAmount", err, "decode")
	}
	for _, e := range w.SignerEntries {
		tx.SignerEntries = append(tx.SignerEntries, SignerEntry{Account: clearpay.Address(e.Account), Weight: e.Weight})
	}
	for _, m := range w.Memos {
		tx.Memos = append(tx.Memos, Memo(m))
	}
	for _, s := range w.Signers {
		tx.Signers = append(tx.Signers, clearpay.Signer{
			Account:       clearpay.Address(s.Account),
			SigningPubKey: s.SigningPubKey,
			TxnSignature:  s.TxnSignature,
		})
	}
	return tx, nil
}

// Encode serializes the transaction into the blob submitted to the ledger.
func Encode(tx *Tx) ([]byte, error) {
	if tx == nil {
		return nil, errors.Wrap(errors.ErrEmpty, "tx")
	}
	bz, err := cdc.MarshalBinaryBare(toWire(tx))
	if err != nil {
		return nil, errors.Wrap(errors.ErrInput, err.Error())
	}
	return bz, nil
}

// Decode parses a transaction blob.
func Decode(blob []byte) (*Tx, error) {
	if len(blob) == 0 {
		return nil, errors.Wrap(errors.ErrEmpty, "tx blob")
	}
	var w wireTx
	if err := cdc.UnmarshalBinaryBare(blob, &w); err != nil {
		return nil, errors.Wrap(errors.ErrInput, err.Error())
	}
	return fromWire(w)
}

// SigningBytes returns the bytes signed by the account key of a single
// signed transaction. The public key is part of the signed data.
func SigningBytes(tx *Tx) ([]byte, error) {
	cp := tx.Copy()
	cp.TxnSignature = ""
	cp.Signers = nil
	bz, err := Encode(cp)
	if err != nil {
		return nil, err
	}
	return append(append([]byte{}, singleSignPrefix...), bz...), nil
}

// MultiSigningBytes returns the bytes a member of the signer list signs.
// Each signer commits to its own account, so that a signature cannot be
// attributed to another list member.
func MultiSigningBytes(tx *Tx, account clearpay.Address) ([]byte, error) {
	cp := tx.Copy()
	cp.SigningPubKey = ""
	cp.TxnSignature = ""
	cp.Signers = nil
	bz, err := Encode(cp)
	if err != nil {
		return nil, err
	}
	out := append(append([]byte{}, multiSignPrefix...), bz...)
	return append(out, account.Bytes()...), nil
}

// Hash returns the transaction identifier: upper case hex of the sha256 of
// the encoded transaction.
func Hash(tx *Tx) (string, error) {
	bz, err := Encode(tx)
	if err != nil {
		return "", err
	}
	return BlobHash(bz), nil
}

// BlobHash returns the identifier of an already encoded transaction.
func BlobHash(blob []byte) string {
	sum := sha256.Sum256(blob)
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

type wireAccountInfo struct {
	Account       string
	Sequence      uint64
	LedgerIndex   uint64
	Balance       uint64
	Flags         uint32
	SignerQuorum  uint32
	SignerEntries []wireSignerEntry
}

type wireTrustLine struct {
	Account  string
	Issuer   string
	Currency string
	Limit    string
	Balance  string
}

// EncodeAccountInfo serializes an account query result.
func EncodeAccountInfo(info *AccountInfo) ([]byte, error) {
	w := wireAccountInfo{
		Account:      info.Account.String(),
		Sequence:     info.Sequence,
		LedgerIndex:  info.LedgerIndex,
		Balance:      info.Balance,
		Flags:        info.Flags,
		SignerQuorum: info.SignerQuorum,
	}
	for _, e := range info.SignerEntries {
		w.SignerEntries = append(w.SignerEntries, wireSignerEntry{Account: e.Account.String(), Weight: e.Weight})
	}
	bz, err := cdc.MarshalJSON(w)
	return bz, errors.Wrap(err, "encode account info")
}

// DecodeAccountInfo parses an account query result.
func DecodeAccountInfo(raw []byte) (*AccountInfo, error) {
	var w wireAccountInfo
	if err := cdc.UnmarshalJSON(raw, &w); err != nil {
		return nil, errors.Wrap(errors.ErrInput, err.Error())
	}
	info := &AccountInfo{
		Account:      clearpay.Address(w.Account),
		Sequence:     w.Sequence,
		LedgerIndex:  w.LedgerIndex,
		Balance:      w.Balance,
		Flags:        w.Flags,
		SignerQuorum: w.SignerQuorum,
	}
	for _, e := range w.SignerEntries {
		info.SignerEntries = append(info.SignerEntries, SignerEntry{Account: clearpay.Address(e.Account), Weight: e.Weight})
	}
	return info, nil
}

// EncodeTrustLines serializes a trust line query result.
func EncodeTrustLines(lines []TrustLine) ([]byte, error) {
	ws := make([]wireTrustLine, 0, len(lines))
	for _, l := range lines {
		ws = append(ws, wireTrustLine{
			Account:  l.Account.String(),
			Issuer:   l.Issuer.String(),
			Currency: l.Currency,
			Limit:    l.Limit.String(),
			Balance:  l.Balance.String(),
		})
	}
	bz, err := cdc.MarshalJSON(ws)
	return bz, errors.Wrap(err, "encode trust lines")
}

// DecodeTrustLines parses a trust line query result.
func DecodeTrustLines(raw []byte) ([]TrustLine, error) {
	var ws []wireTrustLine
	if err := cdc.UnmarshalJSON(raw, &ws); err != nil {
		return nil, errors.Wrap(errors.ErrInput, err.Error())
	}
	lines := make([]TrustLine, 0, len(ws))
	for _, w := range ws {
		limit, err := decimal.NewFromString(w.Limit)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrAmount, "limit %q", w.Limit)
		}
		balance, err := decimal.NewFromString(w.Balance)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrAmount, "balance %q", w.Balance)
		}
		lines = append(lines, TrustLine{
			Account:  clearpay.Address(w.Account),
			Issuer:   clearpay.Address(w.Issuer),
			Currency: w.Currency,
			Limit:    limit,
			Balance:  balance,
		})
	}
	return lines, nil
}

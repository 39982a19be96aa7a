package memnet

import (
	"github.com/google/btree"
	"github.com/iov-one/clearpay"
	"github.com/iov-one/clearpay/coin"
	"github.com/iov-one/clearpay/ledger"
	"github.com/shopspring/decimal"
)

// submit validates and applies a transaction blob. Rejected transactions
// leave no trace. Must be called with the lock held.
func (n *Network) submit(blob []byte) *ledger.SubmitResult {
	res := &ledger.SubmitResult{Hash: ledger.BlobHash(blob), LedgerIndex: n.index}
	tx, err := ledger.Decode(blob)
	if err != nil {
		return reject(res, ledger.CodeMalformed, err.Error())
	}
	if err := tx.Validate(); err != nil {
		return reject(res, ledger.CodeMalformed, err.Error())
	}
	acc, ok := n.accounts[tx.Account]
	if !ok {
		return reject(res, ledger.CodeNoAccount, "source account does not exist")
	}
	if tx.LastLedgerSequence != 0 && n.index+1 > tx.LastLedgerSequence {
		return reject(res, ledger.CodeMaxLedger, "last ledger sequence passed")
	}
	switch {
	case tx.Sequence < acc.sequence:
		return reject(res, ledger.CodePastSeq, "sequence already used")
	case tx.Sequence > acc.sequence:
		return reject(res, ledger.CodePreSeq, "sequence in the future")
	}
	if code, log := authorize(tx, acc); code != "" {
		return reject(res, code, log)
	}
	if acc.balance < tx.Fee {
		return reject(res, ledger.CodeInsufFee, "cannot pay fee")
	}

	var code, log string
	switch tx.Type {
	case ledger.TypePayment:
		code, log = n.pay(tx, acc)
	case ledger.TypeTrustSet:
		code, log = n.trust(tx)
	case ledger.TypeSignerListSet:
		code, log = setSignerList(tx, acc)
	case ledger.TypeAccountSet:
		code, log = setFlag(tx, acc)
	}
	if code != "" {
		return reject(res, code, log)
	}

	acc.sequence++
	acc.balance -= tx.Fee
	n.index++
	r := &record{index: n.index, hash: res.Hash, tx: tx}
	n.history.ReplaceOrInsert(r)
	n.byHash[r.hash] = r

	res.Accepted = true
	res.Code = ledger.CodeSuccess
	res.LedgerIndex = n.index
	return res
}

func reject(res *ledger.SubmitResult, code, log string) *ledger.SubmitResult {
	res.Code = code
	res.Log = log
	return res
}

// authorize returns a non empty code if the signatures of the transaction
// do not authorize it for the account.
func authorize(tx *ledger.Tx, acc *account) (string, string) {
	if tx.SigningPubKey == "" {
		if len(tx.Signers) == 0 {
			return ledger.CodeBadSignature, "transaction is not signed"
		}
		if acc.quorum == 0 {
			return ledger.CodeNotMultiSigning, "account has no signer list"
		}
		var total uint32
		seen := make(map[clearpay.Address]bool)
		for _, s := range tx.Signers {
			weight, ok := signerWeight(acc, s.Account)
			if !ok {
				return ledger.CodeBadSignature, "not a member of the signer list: " + s.Account.String()
			}
			if err := ledger.VerifySigner(tx, s); err != nil {
				return ledger.CodeBadSignature, err.Error()
			}
			if !seen[s.Account] {
				seen[s.Account] = true
				total += weight
			}
		}
		if total < acc.quorum {
			return ledger.CodeBadQuorum, "signer weight below quorum"
		}
		return "", ""
	}

	pub, err := ledger.VerifySingle(tx)
	if err != nil {
		return ledger.CodeBadSignature, err.Error()
	}
	if !pub.Address().Equals(tx.Account) {
		return ledger.CodeBadAuth, "key does not belong to account"
	}
	if acc.flags&ledger.AccountFlagMasterDisabled != 0 {
		return ledger.CodeMasterDisabled, "master key disabled"
	}
	return "", ""
}

func signerWeight(acc *account, addr clearpay.Address) (uint32, bool) {
	for _, e := range acc.signers {
		if e.Account == addr {
			return e.Weight, true
		}
	}
	return 0, false
}

func (n *Network) pay(tx *ledger.Tx, acc *account) (string, string) {
	if _, ok := n.accounts[tx.Destination]; !ok {
		return ledger.CodeNoDestination, "destination account does not exist"
	}
	amount := tx.Amount
	if amount.Issuer == "" {
		if amount.Currency != ledger.NativeCurrency || !amount.Value.IsInteger() {
			return ledger.CodeMalformed, "native amount must be whole drops"
		}
		drops := uint64(amount.Value.IntPart())
		if acc.balance < drops+tx.Fee {
			return ledger.CodeUnfunded, "insufficient native balance"
		}
		acc.balance -= drops
		n.accounts[tx.Destination].balance += drops
		return "", ""
	}

	var src *line
	if tx.Account != amount.Issuer {
		src = n.lines[keyOf(tx.Account, *amount)]
		if src == nil || src.balance.LessThan(amount.Value) {
			return ledger.CodeUnfunded, "insufficient issued balance"
		}
	}
	var dst *line
	if tx.Destination != amount.Issuer {
		dst = n.lines[keyOf(tx.Destination, *amount)]
		if dst == nil {
			return ledger.CodePathDry, "destination has no trust line"
		}
		if dst.balance.Add(amount.Value).GreaterThan(dst.limit) {
			return ledger.CodePathPartial, "destination trust line limit exceeded"
		}
	}
	if src != nil {
		src.balance = src.balance.Sub(amount.Value)
	}
	if dst != nil {
		dst.balance = dst.balance.Add(amount.Value)
	}
	return "", ""
}

func (n *Network) trust(tx *ledger.Tx) (string, string) {
	limit := tx.LimitAmount
	if limit.Issuer == tx.Account {
		return ledger.CodeMalformed, "cannot trust self"
	}
	k := keyOf(tx.Account, *limit)
	if l, ok := n.lines[k]; ok {
		l.limit = limit.Value
		return "", ""
	}
	n.lines[k] = &line{limit: limit.Value, balance: decimal.Zero}
	return "", ""
}

func setSignerList(tx *ledger.Tx, acc *account) (string, string) {
	for _, e := range tx.SignerEntries {
		if e.Account == tx.Account {
			return ledger.CodeBadSigner, "account cannot be its own signer"
		}
	}
	acc.quorum = tx.SignerQuorum
	acc.signers = append([]ledger.SignerEntry(nil), tx.SignerEntries...)
	return "", ""
}

func setFlag(tx *ledger.Tx, acc *account) (string, string) {
	if tx.SetFlag == ledger.FlagDisableMaster {
		if acc.quorum == 0 {
			return ledger.CodeNoAlternativeKey, "no signer list to replace the master key"
		}
		acc.flags |= ledger.AccountFlagMasterDisabled
	}
	return "", ""
}

func keyOf(holder clearpay.Address, c coin.Coin) lineKey {
	return lineKey{account: holder, issuer: c.Issuer, currency: c.Currency}
}

var _ btree.Item = (*record)(nil)

/*
Package memnet is an in-memory ledger network.

It applies the subset of ledger rules clearpay relies on: account
sequences, ledger expiry of transactions, single and weighted multi
signatures, disabled master keys, trust lines and issued balances. Every
accepted transaction closes a new ledger. It is used by tests and by the
daemon when no real network is configured.
*/
package memnet

import (
	"context"
	"sort"
	"sync"

	"github.com/google/btree"
	"github.com/iov-one/clearpay"
	"github.com/iov-one/clearpay/coin"
	"github.com/iov-one/clearpay/errors"
	"github.com/iov-one/clearpay/ledger"
	"github.com/shopspring/decimal"
)

type account struct {
	sequence uint64
	balance  uint64
	flags    uint32
	quorum   uint32
	signers  []ledger.SignerEntry
}

type lineKey struct {
	account  clearpay.Address
	issuer   clearpay.Address
	currency string
}

type line struct {
	limit   decimal.Decimal
	balance decimal.Decimal
}

// record is an accepted transaction, ordered by the ledger that included it.
type record struct {
	index uint64
	hash  string
	tx    *ledger.Tx
}

func (r *record) Less(than btree.Item) bool {
	return r.index < than.(*record).index
}

// Network is the shared ledger state. Connections to it are created by
// Dialer.
type Network struct {
	mu       sync.Mutex
	index    uint64
	accounts map[clearpay.Address]*account
	lines    map[lineKey]*line
	history  *btree.BTree
	byHash   map[string]*record

	failNext int
	dials    int
}

// New returns an empty network at ledger index 1.
func New() *Network {
	return &Network{
		index:    1,
		accounts: make(map[clearpay.Address]*account),
		lines:    make(map[lineKey]*line),
		history:  btree.New(2),
		byHash:   make(map[string]*record),
	}
}

// Dialer returns a dialer that connects to this network.
func (n *Network) Dialer() ledger.Dialer {
	return func(ctx context.Context) (ledger.Network, error) {
		n.mu.Lock()
		defer n.mu.Unlock()
		n.dials++
		return &conn{net: n}, nil
	}
}

// Dials returns the number of connections created so far.
func (n *Network) Dials() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dials
}

// FailNext makes the next count calls fail with a network error. The
// connection used by a failing call is broken.
func (n *Network) FailNext(count int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failNext = count
}

// Advance closes count empty ledgers.
func (n *Network) Advance(count uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.index += count
}

// Credit sets up a trust line for the holder if needed and credits it with
// the issued amount.
func (n *Network) Credit(holder clearpay.Address, amount coin.Coin) error {
	if amount.Issuer == "" || !amount.IsPositive() {
		return errors.Wrap(errors.ErrAmount, "issued positive amount required")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.accounts[holder]; !ok {
		return errors.Wrapf(errors.ErrNotFound, "account %s", holder)
	}
	k := lineKey{account: holder, issuer: amount.Issuer, currency: amount.Currency}
	l, ok := n.lines[k]
	if !ok {
		l = &line{limit: amount.Value, balance: decimal.Zero}
		n.lines[k] = l
	}
	l.balance = l.balance.Add(amount.Value)
	if l.balance.GreaterThan(l.limit) {
		l.limit = l.balance
	}
	return nil
}

// Transactions returns all accepted transactions in ledger order.
func (n *Network) Transactions() []*ledger.Tx {
	n.mu.Lock()
	defer n.mu.Unlock()
	var txs []*ledger.Tx
	n.history.Ascend(func(i btree.Item) bool {
		txs = append(txs, i.(*record).tx.Copy())
		return true
	})
	return txs
}

// Transaction returns the accepted transaction with given hash.
func (n *Network) Transaction(hash string) (*ledger.Tx, uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	r, ok := n.byHash[hash]
	if !ok {
		return nil, 0, errors.Wrapf(errors.ErrNotFound, "transaction %s", hash)
	}
	return r.tx.Copy(), r.index, nil
}

// fail consumes one scheduled failure. Must be called with the lock held.
func (n *Network) fail() bool {
	if n.failNext <= 0 {
		return false
	}
	n.failNext--
	return true
}

func (n *Network) accountInfo(addr clearpay.Address) (*ledger.AccountInfo, error) {
	acc, ok := n.accounts[addr]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "account %s", addr)
	}
	return &ledger.AccountInfo{
		Account:       addr,
		Sequence:      acc.sequence,
		LedgerIndex:   n.index,
		Balance:       acc.balance,
		Flags:         acc.flags,
		SignerQuorum:  acc.quorum,
		SignerEntries: append([]ledger.SignerEntry(nil), acc.signers...),
	}, nil
}

func (n *Network) trustLines(addr clearpay.Address) []ledger.TrustLine {
	var lines []ledger.TrustLine
	for k, l := range n.lines {
		if k.account != addr {
			continue
		}
		lines = append(lines, ledger.TrustLine{
			Account:  k.account,
			Issuer:   k.issuer,
			Currency: k.currency,
			Limit:    l.limit,
			Balance:  l.balance,
		})
	}
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].Currency != lines[j].Currency {
			return lines[i].Currency < lines[j].Currency
		}
		return lines[i].Issuer < lines[j].Issuer
	})
	return lines
}

func (n *Network) fund(addr clearpay.Address, drops uint64) {
	acc, ok := n.accounts[addr]
	if !ok {
		acc = &account{sequence: 1}
		n.accounts[addr] = acc
	}
	acc.balance += drops
}

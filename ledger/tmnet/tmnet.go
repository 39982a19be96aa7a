/*
Package tmnet connects the ledger gateway to a ledger node over the
tendermint RPC interface.

Account state is read with ABCI queries on the "/accounts" and
"/trustlines" paths, keyed by the bech32 address. Transactions are
broadcast and awaited until included in a block.
*/
package tmnet

import (
	"context"
	"fmt"

	"github.com/iov-one/clearpay"
	"github.com/iov-one/clearpay/coin"
	"github.com/iov-one/clearpay/crypto"
	"github.com/iov-one/clearpay/errors"
	"github.com/iov-one/clearpay/ledger"
	"github.com/shopspring/decimal"
	cmn "github.com/tendermint/tendermint/libs/common"
	rpcclient "github.com/tendermint/tendermint/rpc/client"
	ctypes "github.com/tendermint/tendermint/rpc/core/types"
	tmtypes "github.com/tendermint/tendermint/types"
)

const (
	AccountsPath   = "/accounts"
	TrustLinesPath = "/trustlines"
)

// Conn is the subset of the tendermint RPC client used by the network.
type Conn interface {
	Status() (*ctypes.ResultStatus, error)
	ABCIQuery(path string, data cmn.HexBytes) (*ctypes.ResultABCIQuery, error)
	BroadcastTxCommit(tx tmtypes.Tx) (*ctypes.ResultBroadcastTxCommit, error)
}

var _ Conn = (rpcclient.Client)(nil)

// Network is a ledger.Network backed by a tendermint node.
type Network struct {
	conn Conn
	// funder pays for new accounts. Funding is not supported without it.
	funder crypto.Signer
	fee    uint64
}

var _ ledger.Network = (*Network)(nil)

// New wraps an established connection.
func New(conn Conn, funder crypto.Signer, fee uint64) *Network {
	return &Network{conn: conn, funder: funder, fee: fee}
}

// Dialer returns a dialer connecting to the node at remote, for example
// "http://localhost:26657". The node is asked for its status before the
// connection is handed out.
func Dialer(remote string, funder crypto.Signer, fee uint64) ledger.Dialer {
	return func(ctx context.Context) (ledger.Network, error) {
		c := rpcclient.NewHTTP(remote, "/websocket")
		if _, err := c.Status(); err != nil {
			return nil, errors.Wrapf(errors.ErrNetwork, "status: %s", err.Error())
		}
		return New(c, funder, fee), nil
	}
}

func (n *Network) LedgerIndex(ctx context.Context) (uint64, error) {
	status, err := n.conn.Status()
	if err != nil {
		return 0, errors.Wrapf(errors.ErrNetwork, "status: %s", err.Error())
	}
	return uint64(status.SyncInfo.LatestBlockHeight), nil
}

// query returns the value stored under given path and key, or nil if
// nothing is stored.
func (n *Network) query(path string, key []byte) ([]byte, int64, error) {
	res, err := n.conn.ABCIQuery(path, key)
	if err != nil {
		return nil, 0, errors.Wrapf(errors.ErrNetwork, "query %s: %s", path, err.Error())
	}
	resp := res.Response
	if resp.IsErr() {
		return nil, 0, errors.Wrapf(errors.ErrLedger, "query %s: code %d: %s", path, resp.Code, resp.Log)
	}
	return resp.Value, resp.Height, nil
}

func (n *Network) AccountInfo(ctx context.Context, account clearpay.Address) (*ledger.AccountInfo, error) {
	value, height, err := n.query(AccountsPath, []byte(account))
	if err != nil {
		return nil, err
	}
	if len(value) == 0 {
		return nil, errors.Wrapf(errors.ErrNotFound, "account %s", account)
	}
	info, err := ledger.DecodeAccountInfo(value)
	if err != nil {
		return nil, err
	}
	if info.LedgerIndex == 0 {
		info.LedgerIndex = uint64(height)
	}
	return info, nil
}

func (n *Network) TrustLines(ctx context.Context, account clearpay.Address) ([]ledger.TrustLine, error) {
	value, _, err := n.query(TrustLinesPath, []byte(account))
	if err != nil || len(value) == 0 {
		return nil, err
	}
	return ledger.DecodeTrustLines(value)
}

func (n *Network) Submit(ctx context.Context, blob []byte) (*ledger.SubmitResult, error) {
	res, err := n.conn.BroadcastTxCommit(tmtypes.Tx(blob))
	if err != nil {
		return nil, errors.Wrapf(errors.ErrNetwork, "broadcast: %s", err.Error())
	}
	out := &ledger.SubmitResult{
		Hash:        res.Hash.String(),
		LedgerIndex: uint64(res.Height),
	}
	if out.Hash == "" {
		out.Hash = ledger.BlobHash(blob)
	}
	switch {
	case res.CheckTx.IsErr():
		out.Code, out.Log = resultCode(res.CheckTx.Info, res.CheckTx.Code), res.CheckTx.Log
	case res.DeliverTx.IsErr():
		out.Code, out.Log = resultCode(res.DeliverTx.Info, res.DeliverTx.Code), res.DeliverTx.Log
	default:
		out.Accepted = true
		out.Code = ledger.CodeSuccess
		out.Log = res.DeliverTx.Log
	}
	return out, nil
}

// resultCode prefers the ledger result code reported in the info field.
func resultCode(info string, code uint32) string {
	if info != "" {
		return info
	}
	return fmt.Sprintf("code %d", code)
}

// Fund sends native drops from the funder account.
func (n *Network) Fund(ctx context.Context, account clearpay.Address, drops uint64) error {
	if n.funder == nil {
		return errors.Wrap(errors.ErrHuman, "no funder key configured")
	}
	from := n.funder.PublicKey().Address()
	info, err := n.AccountInfo(ctx, from)
	if err != nil {
		return errors.Wrap(err, "funder account")
	}
	amount := coin.NewCoinp(decimal.NewFromInt(int64(drops)), ledger.NativeCurrency, "")
	tx := &ledger.Tx{
		Type:        ledger.TypePayment,
		Account:     from,
		Destination: account,
		Amount:      amount,
		Fee:         n.fee,
		Sequence:    info.Sequence,
	}
	if err := ledger.Sign(tx, n.funder); err != nil {
		return err
	}
	blob, err := ledger.Encode(tx)
	if err != nil {
		return err
	}
	res, err := n.Submit(ctx, blob)
	if err != nil {
		return err
	}
	if !res.Accepted {
		return errors.Wrapf(errors.ErrLedger, "fund %s: %s %s", account, res.Code, res.Log)
	}
	return nil
}

// Close stops the underlying client if it is a running service.
func (n *Network) Close() error {
	type service interface {
		IsRunning() bool
		Stop() error
	}
	if s, ok := n.conn.(service); ok && s.IsRunning() {
		return s.Stop()
	}
	return nil
}

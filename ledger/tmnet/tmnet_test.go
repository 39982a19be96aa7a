package tmnet

import (
	"context"
	"fmt"
	"testing"

	"github.com/iov-one/clearpay/crypto"
	"github.com/iov-one/clearpay/errors"
	"github.com/iov-one/clearpay/ledger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	abci "github.com/tendermint/tendermint/abci/types"
	cmn "github.com/tendermint/tendermint/libs/common"
	ctypes "github.com/tendermint/tendermint/rpc/core/types"
	tmtypes "github.com/tendermint/tendermint/types"
)

// fakeConn answers queries from a static state and records broadcasts.
type fakeConn struct {
	height    int64
	accounts  map[string][]byte
	lines     map[string][]byte
	deliver   abci.ResponseDeliverTx
	broadcast []tmtypes.Tx
	err       error
}

func (f *fakeConn) Status() (*ctypes.ResultStatus, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &ctypes.ResultStatus{SyncInfo: ctypes.SyncInfo{LatestBlockHeight: f.height}}, nil
}

func (f *fakeConn) ABCIQuery(path string, data cmn.HexBytes) (*ctypes.ResultABCIQuery, error) {
	if f.err != nil {
		return nil, f.err
	}
	var value []byte
	switch path {
	case AccountsPath:
		value = f.accounts[string(data)]
	case TrustLinesPath:
		value = f.lines[string(data)]
	default:
		return &ctypes.ResultABCIQuery{Response: abci.ResponseQuery{Code: 6, Log: "unknown path"}}, nil
	}
	return &ctypes.ResultABCIQuery{Response: abci.ResponseQuery{Value: value, Height: f.height}}, nil
}

func (f *fakeConn) BroadcastTxCommit(tx tmtypes.Tx) (*ctypes.ResultBroadcastTxCommit, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.broadcast = append(f.broadcast, tx)
	return &ctypes.ResultBroadcastTxCommit{
		DeliverTx: f.deliver,
		Hash:      tx.Hash(),
		Height:    f.height + 1,
	}, nil
}

func TestQueries(t *testing.T) {
	ctx := context.Background()
	alice := crypto.GenPrivKeyEd25519().Address()
	issuer := crypto.GenPrivKeyEd25519().Address()

	info, err := ledger.EncodeAccountInfo(&ledger.AccountInfo{Account: alice, Sequence: 5, Balance: 300})
	require.NoError(t, err)
	lines, err := ledger.EncodeTrustLines([]ledger.TrustLine{
		{Account: alice, Issuer: issuer, Currency: "USD", Limit: decimal.NewFromInt(1000), Balance: decimal.RequireFromString("12.5")},
	})
	require.NoError(t, err)

	conn := &fakeConn{
		height:   77,
		accounts: map[string][]byte{alice.String(): info},
		lines:    map[string][]byte{alice.String(): lines},
	}
	n := New(conn, nil, 12)

	index, err := n.LedgerIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(77), index)

	got, err := n.AccountInfo(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), got.Sequence)
	assert.Equal(t, uint64(300), got.Balance)
	assert.Equal(t, uint64(77), got.LedgerIndex)

	gotLines, err := n.TrustLines(ctx, alice)
	require.NoError(t, err)
	require.Len(t, gotLines, 1)
	assert.Equal(t, issuer, gotLines[0].Issuer)
	assert.True(t, gotLines[0].Balance.Equal(decimal.RequireFromString("12.5")))

	_, err = n.AccountInfo(ctx, issuer)
	assert.True(t, errors.ErrNotFound.Is(err))
	noLines, err := n.TrustLines(ctx, issuer)
	require.NoError(t, err)
	assert.Empty(t, noLines)

	conn.err = fmt.Errorf("connection refused")
	_, err = n.LedgerIndex(ctx)
	assert.True(t, errors.ErrNetwork.Is(err))
	_, err = n.AccountInfo(ctx, alice)
	assert.True(t, errors.ErrNetwork.Is(err))
}

func TestSubmitAndFund(t *testing.T) {
	ctx := context.Background()
	funder := crypto.GenPrivKeyEd25519()
	info, err := ledger.EncodeAccountInfo(&ledger.AccountInfo{Account: funder.Address(), Sequence: 9, Balance: 1e9})
	require.NoError(t, err)
	conn := &fakeConn{
		height:   10,
		accounts: map[string][]byte{funder.Address().String(): info},
	}
	n := New(conn, funder, 12)

	target := crypto.GenPrivKeyEd25519().Address()
	require.NoError(t, n.Fund(ctx, target, 5000))
	require.Len(t, conn.broadcast, 1)

	tx, err := ledger.Decode(conn.broadcast[0])
	require.NoError(t, err)
	assert.Equal(t, funder.Address(), tx.Account)
	assert.Equal(t, target, tx.Destination)
	assert.Equal(t, uint64(9), tx.Sequence)
	assert.True(t, tx.Amount.Value.Equal(decimal.NewFromInt(5000)))
	_, err = ledger.VerifySingle(tx)
	require.NoError(t, err)

	res, err := n.Submit(ctx, conn.broadcast[0])
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, ledger.BlobHash(conn.broadcast[0]), res.Hash)
	assert.Equal(t, uint64(11), res.LedgerIndex)

	conn.deliver = abci.ResponseDeliverTx{Code: 3, Info: ledger.CodePastSeq, Log: "sequence already used"}
	res, err = n.Submit(ctx, conn.broadcast[0])
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, ledger.CodePastSeq, res.Code)

	err = n.Fund(ctx, target, 5000)
	assert.True(t, errors.ErrLedger.Is(err))

	err = New(conn, nil, 12).Fund(ctx, target, 1)
	assert.True(t, errors.ErrHuman.Is(err))
	assert.NoError(t, n.Close())
}

package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/iov-one/clearpay"
	"github.com/iov-one/clearpay/errors"
	"github.com/iov-one/clearpay/ledger"
	"github.com/iov-one/clearpay/signing"
	"github.com/iov-one/clearpay/store"
	"github.com/iov-one/clearpay/x/transfer"
	"github.com/shopspring/decimal"
	"github.com/tendermint/tendermint/libs/log"
)

// Transfers is the functionality of transfer.Machine exposed over HTTP.
type Transfers interface {
	Vendors(ctx context.Context) ([]*store.Vendor, error)
	Create(ctx context.Context, req transfer.CreateRequest) (*transfer.Created, error)
	Transactions(ctx context.Context, f store.Filter) ([]*store.Transaction, error)
	Transaction(ctx context.Context, id string) (*store.Transaction, error)
	Act(ctx context.Context, id string, actor clearpay.Address, d clearpay.Decision) (*signing.Payload, error)
	BuildTrustLine(ctx context.Context, account clearpay.Address) (*signing.Payload, error)
	PayloadStatus(ctx context.Context, payloadID string) (transfer.PayloadState, error)
	TokenBalance(ctx context.Context, account clearpay.Address) (ledger.Balance, error)
}

var _ Transfers = (*transfer.Machine)(nil)

// maxBodySize limits the size of accepted request bodies.
const maxBodySize = 1 << 16

type VendorsHandler struct {
	Transfers Transfers
	Log       log.Logger
	Debug     bool
}

func (h *VendorsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	vendors, err := h.Transfers.Vendors(r.Context())
	if err != nil {
		JSONFail(w, h.Log, h.Debug, err)
		return
	}
	JSONResp(w, h.Log, http.StatusOK, struct {
		Objects []*store.Vendor `json:"objects"`
	}{
		Objects: vendors,
	})
}

type CreateTransactionHandler struct {
	Transfers Transfers
	Log       log.Logger
	Debug     bool
}

type createTransactionRequest struct {
	Sender    clearpay.Address `json:"sender"`
	Recipient clearpay.Address `json:"recipient"`
	Amount    decimal.Decimal  `json:"amount"`
	VendorIDs []string         `json:"vendor_ids"`
}

func (h *CreateTransactionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := decodeBody(r, &req); err != nil {
		JSONFail(w, h.Log, h.Debug, err)
		return
	}
	created, err := h.Transfers.Create(r.Context(), transfer.CreateRequest{
		Sender:    req.Sender,
		Recipient: req.Recipient,
		Amount:    req.Amount,
		VendorIDs: req.VendorIDs,
	})
	if err != nil {
		JSONFail(w, h.Log, h.Debug, err)
		return
	}
	JSONResp(w, h.Log, http.StatusCreated, struct {
		Transaction *store.Transaction `json:"transaction"`
		Payload     *signing.Payload   `json:"payload"`
	}{
		Transaction: created.Transaction,
		Payload:     created.Payload,
	})
}

type TransactionsHandler struct {
	Transfers Transfers
	Log       log.Logger
	Debug     bool
}

func (h *TransactionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f store.Filter
	if s := q.Get("sender"); s != "" {
		f.Sender = clearpay.Address(s)
		if err := f.Sender.Validate(); err != nil {
			JSONFail(w, h.Log, h.Debug, errors.Field("sender", err, "sender filter"))
			return
		}
	}
	if s := q.Get("recipient"); s != "" {
		f.Recipient = clearpay.Address(s)
		if err := f.Recipient.Validate(); err != nil {
			JSONFail(w, h.Log, h.Debug, errors.Field("recipient", err, "recipient filter"))
			return
		}
	}
	if s := q.Get("escrow_funded"); s != "" {
		funded, err := strconv.ParseBool(s)
		if err != nil {
			JSONFail(w, h.Log, h.Debug, errors.Wrap(errors.ErrInput, "escrow_funded must be a boolean"))
			return
		}
		f.EscrowFunded = funded
	}

	txs, err := h.Transfers.Transactions(r.Context(), f)
	if err != nil {
		JSONFail(w, h.Log, h.Debug, err)
		return
	}
	JSONResp(w, h.Log, http.StatusOK, struct {
		Objects []*store.Transaction `json:"objects"`
	}{
		Objects: txs,
	})
}

type TransactionDetailHandler struct {
	Transfers Transfers
	Log       log.Logger
	Debug     bool
}

func (h *TransactionDetailHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tx, err := h.Transfers.Transaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		JSONFail(w, h.Log, h.Debug, err)
		return
	}
	JSONResp(w, h.Log, http.StatusOK, tx)
}

// DecisionHandler records the approval or the rejection of an escrowed
// transaction by one of its parties.
type DecisionHandler struct {
	Transfers Transfers
	Decision  clearpay.Decision
	Log       log.Logger
	Debug     bool
}

type decisionRequest struct {
	Address clearpay.Address `json:"address"`
}

func (h *DecisionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := decodeBody(r, &req); err != nil {
		JSONFail(w, h.Log, h.Debug, err)
		return
	}
	if err := req.Address.Validate(); err != nil {
		JSONFail(w, h.Log, h.Debug, errors.Field("address", err, "actor"))
		return
	}
	payload, err := h.Transfers.Act(r.Context(), chi.URLParam(r, "id"), req.Address, h.Decision)
	if err != nil {
		JSONFail(w, h.Log, h.Debug, err)
		return
	}
	JSONResp(w, h.Log, http.StatusAccepted, payload)
}

type TrustLineHandler struct {
	Transfers Transfers
	Log       log.Logger
	Debug     bool
}

type trustLineRequest struct {
	Account clearpay.Address `json:"account"`
}

func (h *TrustLineHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req trustLineRequest
	if err := decodeBody(r, &req); err != nil {
		JSONFail(w, h.Log, h.Debug, err)
		return
	}
	payload, err := h.Transfers.BuildTrustLine(r.Context(), req.Account)
	if err != nil {
		JSONFail(w, h.Log, h.Debug, err)
		return
	}
	JSONResp(w, h.Log, http.StatusAccepted, payload)
}

type PayloadHandler struct {
	Transfers Transfers
	Log       log.Logger
	Debug     bool
}

func (h *PayloadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	state, err := h.Transfers.PayloadStatus(r.Context(), id)
	if err != nil {
		JSONFail(w, h.Log, h.Debug, err)
		return
	}
	JSONResp(w, h.Log, http.StatusOK, struct {
		ID     string                `json:"id"`
		Status transfer.PayloadState `json:"status"`
	}{
		ID:     id,
		Status: state,
	})
}

type BalanceHandler struct {
	Transfers Transfers
	Log       log.Logger
	Debug     bool
}

func (h *BalanceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	account := clearpay.Address(chi.URLParam(r, "address"))
	b, err := h.Transfers.TokenBalance(r.Context(), account)
	if err != nil {
		JSONFail(w, h.Log, h.Debug, err)
		return
	}
	JSONResp(w, h.Log, http.StatusOK, struct {
		Account      clearpay.Address `json:"account"`
		Balance      decimal.Decimal  `json:"balance"`
		HasTrustLine bool             `json:"has_trust_line"`
	}{
		Account:      account,
		Balance:      b.Balance,
		HasTrustLine: b.HasTrustLine,
	})
}

// Settings is the public part of the service configuration.
type Settings struct {
	Arbiter       clearpay.Address `json:"arbiter"`
	Issuer        clearpay.Address `json:"issuer"`
	Currency      string           `json:"currency"`
	ExpiryHorizon uint64           `json:"expiry_horizon"`
}

type ConfigHandler struct {
	Settings Settings
	Log      log.Logger
}

func (h *ConfigHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	JSONResp(w, h.Log, http.StatusOK, h.Settings)
}

type InfoHandler struct {
	Log log.Logger
}

func (h *InfoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	JSONResp(w, h.Log, http.StatusOK, struct {
		Version string `json:"version"`
	}{
		Version: clearpay.Version(),
	})
}

// decodeBody unmarshals the JSON request body into dest.
func decodeBody(r *http.Request, dest interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return errors.Wrapf(errors.ErrInput, "request body: %s", err)
	}
	return nil
}

// JSONResp write content as JSON encoded response.
func JSONResp(w http.ResponseWriter, logger log.Logger, code int, content interface{}) {
	b, err := json.MarshalIndent(content, "", "\t")
	if err != nil {
		logger.Error("cannot JSON serialize response", "err", err)
		code = http.StatusInternalServerError
		b = []byte(`{"errors":["Internal Server Error"]}`)
	}
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(code)
	_, _ = w.Write(b)
}

// JSONErr write single error as JSON encoded response.
func JSONErr(w http.ResponseWriter, logger log.Logger, code int, errText string) {
	JSONResp(w, logger, code, struct {
		Errors []string `json:"errors"`
	}{
		Errors: []string{errText},
	})
}

// JSONFail writes the response describing given error. The status code is
// derived from the registered root error.
func JSONFail(w http.ResponseWriter, logger log.Logger, debug bool, err error) {
	code, msg := errors.HTTPInfo(err, debug)
	if code >= http.StatusInternalServerError {
		logger.Error("request failed", "code", code, "err", err)
	}
	JSONErr(w, logger, code, msg)
}

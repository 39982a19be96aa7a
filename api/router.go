/*
Package api exposes the transfer service over HTTP.

All responses are JSON encoded. Failed requests return an object with an
"errors" list and a status code derived from the kind of the error.
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/iov-one/clearpay"
	"github.com/tendermint/tendermint/libs/log"
)

// NewRouter returns the handler serving all API endpoints. When debug is
// set, error responses include stack traces.
func NewRouter(t Transfers, settings Settings, logger log.Logger, debug bool) http.Handler {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	logger = logger.With("module", "api")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		JSONErr(w, logger, http.StatusNotFound, http.StatusText(http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		JSONErr(w, logger, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	})

	r.Method(http.MethodGet, "/info", &InfoHandler{Log: logger})
	r.Method(http.MethodGet, "/config", &ConfigHandler{Settings: settings, Log: logger})
	r.Method(http.MethodGet, "/vendors", &VendorsHandler{Transfers: t, Log: logger, Debug: debug})
	r.Route("/transactions", func(r chi.Router) {
		r.Method(http.MethodGet, "/", &TransactionsHandler{Transfers: t, Log: logger, Debug: debug})
		r.Method(http.MethodPost, "/", &CreateTransactionHandler{Transfers: t, Log: logger, Debug: debug})
		r.Method(http.MethodGet, "/{id}", &TransactionDetailHandler{Transfers: t, Log: logger, Debug: debug})
		r.Method(http.MethodPost, "/{id}/approve", &DecisionHandler{Transfers: t, Decision: clearpay.Approve, Log: logger, Debug: debug})
		r.Method(http.MethodPost, "/{id}/reject", &DecisionHandler{Transfers: t, Decision: clearpay.Reject, Log: logger, Debug: debug})
	})
	r.Method(http.MethodPost, "/trustlines", &TrustLineHandler{Transfers: t, Log: logger, Debug: debug})
	r.Method(http.MethodGet, "/payloads/{id}", &PayloadHandler{Transfers: t, Log: logger, Debug: debug})
	r.Method(http.MethodGet, "/accounts/{address}/balance", &BalanceHandler{Transfers: t, Log: logger, Debug: debug})
	return r
}

func requestLogger(logger log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"took", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()))
		})
	}
}

package signing

import (
	"context"
	"time"

	"github.com/iov-one/clearpay"
	"github.com/iov-one/clearpay/errors"
	"github.com/iov-one/clearpay/ledger"
	"github.com/tendermint/tendermint/libs/log"
)

const (
	DefaultInterval = 500 * time.Millisecond
	DefaultTimeout  = 3 * time.Minute
)

// Mode tells the monitor what to do with a signed request.
type Mode int

const (
	// SubmitSigned submits the signed transaction to the ledger.
	SubmitSigned Mode = iota
	// CollectSignature only extracts the signer credential. It is used
	// for signer list contributions that are submitted together later.
	CollectSignature
)

func (m Mode) String() string {
	switch m {
	case SubmitSigned:
		return "submit"
	case CollectSignature:
		return "collect"
	default:
		return "unknown"
	}
}

// Submitter broadcasts signed transactions.
type Submitter interface {
	Submit(ctx context.Context, blob []byte) (*ledger.SubmitResult, error)
}

// Result is the outcome of a resolved request.
type Result struct {
	Resolved bool
	Signed   bool
	// Accepted and Hash are set once a signed transaction was submitted.
	Accepted bool
	Hash     string
	Signer   *clearpay.Signer
	Blob     []byte
}

// Monitor waits for signing requests to be resolved.
type Monitor struct {
	provider  Provider
	submitter Submitter
	logger    log.Logger

	Interval time.Duration
	Timeout  time.Duration
}

// NewMonitor returns a monitor using the default interval and timeout.
func NewMonitor(p Provider, s Submitter, logger log.Logger) *Monitor {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Monitor{
		provider:  p,
		submitter: s,
		logger:    logger.With("module", "signing"),
		Interval:  DefaultInterval,
		Timeout:   DefaultTimeout,
	}
}

// Provider returns the signing provider the monitor polls.
func (m *Monitor) Provider() Provider {
	return m.provider
}

// Await polls the provider until the request is resolved.
//
// A declined request returns a result with Signed unset. If the request is
// not resolved before the timeout, or the context is cancelled, ErrTimeout
// is returned. Failed polls are retried on the next tick. An error returned
// together with a resolved result means the signed transaction could not be
// processed.
func (m *Monitor) Await(ctx context.Context, id string, mode Mode) (*Result, error) {
	logger := m.logger.With("payload", id, "mode", mode)

	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()
	deadline := time.NewTimer(m.Timeout)
	defer deadline.Stop()

	for {
		st, err := m.provider.Status(ctx, id)
		switch {
		case err != nil:
			logger.Debug("poll failed", "err", err)
		case st.Resolved:
			return m.resolve(ctx, logger, st, mode)
		default:
			logger.Debug("payload pending")
		}

		select {
		case <-ticker.C:
		case <-deadline.C:
			logger.Info("payload not resolved in time", "timeout", m.Timeout)
			return nil, errors.Wrapf(errors.ErrTimeout, "payload %s", id)
		case <-ctx.Done():
			return nil, errors.Wrapf(errors.ErrTimeout, "payload %s: %s", id, ctx.Err())
		}
	}
}

func (m *Monitor) resolve(ctx context.Context, logger log.Logger, st *Status, mode Mode) (*Result, error) {
	res := &Result{Resolved: true, Signed: st.Signed}
	if !st.Signed {
		logger.Info("payload declined")
		return res, nil
	}
	res.Blob = st.Blob

	signer, err := ledger.DecodeSigner(st.Blob)
	if err != nil {
		return res, errors.Wrap(err, "signed blob")
	}
	res.Signer = signer

	if mode == CollectSignature {
		logger.Info("signature collected", "signer", signer.Account)
		return res, nil
	}

	sub, err := m.submitter.Submit(ctx, st.Blob)
	if err != nil {
		return res, errors.Wrap(err, "submit signed blob")
	}
	res.Accepted = sub.Accepted
	res.Hash = sub.Hash
	logger.Info("signed payload submitted", "hash", sub.Hash, "accepted", sub.Accepted, "code", sub.Code)
	return res, nil
}

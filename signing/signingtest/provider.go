/*
Package signingtest provides an in-memory signing provider holding the
private keys of test accounts.
*/
package signingtest

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/iov-one/clearpay"
	"github.com/iov-one/clearpay/crypto"
	"github.com/iov-one/clearpay/errors"
	"github.com/iov-one/clearpay/ledger"
	"github.com/iov-one/clearpay/signing"
)

// Policy decides how new requests are resolved.
type Policy int

const (
	// Manual requests stay pending until Sign or Decline is called.
	Manual Policy = iota
	// AutoSign signs every request as soon as it is created.
	AutoSign
	// AutoDecline declines every request as soon as it is created.
	AutoDecline
)

type request struct {
	signing.Request
	status signing.Status
	polls  int
}

// Provider is a signing.Provider that signs with locally held keys.
type Provider struct {
	mu       sync.Mutex
	policy   Policy
	keys     map[clearpay.Address]crypto.PrivateKey
	requests map[string]*request
	order    []string
	failNext int
}

var _ signing.Provider = (*Provider)(nil)

// NewProvider returns a provider resolving requests with given policy.
func NewProvider(policy Policy) *Provider {
	return &Provider{
		policy:   policy,
		keys:     make(map[clearpay.Address]crypto.PrivateKey),
		requests: make(map[string]*request),
	}
}

// SetPolicy changes how requests created from now on are resolved.
func (p *Provider) SetPolicy(policy Policy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.policy = policy
}

// AddKey makes the provider able to sign for the key account.
func (p *Provider) AddKey(key crypto.PrivateKey) clearpay.Address {
	p.mu.Lock()
	defer p.mu.Unlock()
	addr := key.Address()
	p.keys[addr] = key
	return addr
}

// NewKey generates a key the provider can sign with.
func (p *Provider) NewKey() crypto.PrivateKey {
	key := crypto.GenPrivKeyEd25519()
	p.AddKey(key)
	return key
}

// FailNext makes the next count status calls fail with a network error.
func (p *Provider) FailNext(count int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failNext = count
}

func (p *Provider) CreateRequest(ctx context.Context, r signing.Request) (*signing.Payload, error) {
	if _, err := ledger.Decode(r.Tx); err != nil {
		return nil, errors.Wrap(err, "request tx")
	}
	id := uuid.New().String()

	p.mu.Lock()
	defer p.mu.Unlock()
	req := &request{Request: r}
	p.requests[id] = req
	p.order = append(p.order, id)

	switch p.policy {
	case AutoSign:
		if err := p.sign(req); err != nil {
			return nil, err
		}
	case AutoDecline:
		req.status = signing.Status{Resolved: true}
	}
	return &signing.Payload{ID: id, URL: "memory://payloads/" + id}, nil
}

func (p *Provider) Status(ctx context.Context, id string) (*signing.Status, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failNext > 0 {
		p.failNext--
		return nil, errors.Wrap(errors.ErrNetwork, "provider unavailable")
	}
	req, ok := p.requests[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "payload %s", id)
	}
	req.polls++
	st := req.status
	return &st, nil
}

// Sign resolves a pending request with a signature of the requested
// signer.
func (p *Provider) Sign(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	req, err := p.pending(id)
	if err != nil {
		return err
	}
	return p.sign(req)
}

// SignTx resolves a pending request with a signature of the requested
// signer over given transaction blob instead of the requested one.
func (p *Provider) SignTx(id string, blob []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	req, err := p.pending(id)
	if err != nil {
		return err
	}
	return p.signBlob(req, blob)
}

// Decline resolves a pending request without signing it.
func (p *Provider) Decline(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	req, err := p.pending(id)
	if err != nil {
		return err
	}
	req.status = signing.Status{Resolved: true}
	return nil
}

// Requests returns the ids of all created requests, oldest first.
func (p *Provider) Requests() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.order...)
}

// Request returns a created request.
func (p *Provider) Request(id string) (signing.Request, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	req, ok := p.requests[id]
	if !ok {
		return signing.Request{}, false
	}
	return req.Request, true
}

// Polls returns how many times the status of a request was asked for.
func (p *Provider) Polls(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if req, ok := p.requests[id]; ok {
		return req.polls
	}
	return 0
}

func (p *Provider) pending(id string) (*request, error) {
	req, ok := p.requests[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "payload %s", id)
	}
	if req.status.Resolved {
		return nil, errors.Wrapf(errors.ErrState, "payload %s already resolved", id)
	}
	return req, nil
}

// sign must be called with the lock held.
func (p *Provider) sign(req *request) error {
	return p.signBlob(req, req.Tx)
}

func (p *Provider) signBlob(req *request, unsigned []byte) error {
	key, ok := p.keys[req.Signer]
	if !ok {
		return errors.Wrapf(errors.ErrUnauthorized, "no key for %q", req.Signer)
	}
	tx, err := ledger.Decode(unsigned)
	if err != nil {
		return err
	}
	if req.Multisign {
		s, err := ledger.MultiSign(tx, key)
		if err != nil {
			return err
		}
		tx.Signers = []clearpay.Signer{s}
	} else if err := ledger.Sign(tx, key); err != nil {
		return err
	}
	blob, err := ledger.Encode(tx)
	if err != nil {
		return err
	}
	req.status = signing.Status{Resolved: true, Signed: true, Blob: blob, Account: key.Address()}
	return nil
}

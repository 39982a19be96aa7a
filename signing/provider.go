/*
Package signing talks to the external provider that collects user
signatures for ledger transactions.

A transaction is handed to the provider as a signing request. The user
resolves the request in their wallet by signing or declining it. The
Monitor polls the provider until the request is resolved or a ceiling is
reached, and then either submits the signed transaction to the ledger or
only extracts the signer credential from it.
*/
package signing

import (
	"context"

	"github.com/iov-one/clearpay"
)

// Provider is the external signing service.
type Provider interface {
	// CreateRequest registers a transaction to be signed.
	CreateRequest(ctx context.Context, r Request) (*Payload, error)
	// Status returns the current state of a request. It returns
	// errors.ErrNotFound for unknown requests.
	Status(ctx context.Context, id string) (*Status, error)
}

// Request is a transaction waiting for a signature.
type Request struct {
	// Tx is the encoded, unsigned ledger transaction.
	Tx []byte
	// Signer is the account expected to sign. It is a hint for the
	// provider and may be empty.
	Signer clearpay.Address
	// Multisign requests a signer list contribution instead of a
	// complete single signature.
	Multisign bool
}

// Payload identifies a created request.
type Payload struct {
	ID string `json:"id"`
	// URL is where the user can review and sign the request.
	URL string `json:"url"`
}

// Status is the state of a request.
type Status struct {
	Resolved bool `json:"resolved"`
	Signed   bool `json:"signed"`
	// Blob is the signed transaction. Set only when signed.
	Blob    []byte           `json:"blob,omitempty"`
	Account clearpay.Address `json:"account,omitempty"`
}

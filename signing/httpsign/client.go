/*
Package httpsign is a client of a signing provider exposing a REST API.

	POST /payloads       create a signing request
	GET  /payloads/{id}  read the state of a request

Every request is authenticated with an API key and secret pair sent in the
X-API-Key and X-API-Secret headers.
*/
package httpsign

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"time"

	"github.com/iov-one/clearpay"
	"github.com/iov-one/clearpay/errors"
	"github.com/iov-one/clearpay/signing"
)

// Client implements signing.Provider using HTTP transport.
type Client struct {
	apiURL    string
	apiKey    string
	apiSecret string
	cli       http.Client
}

var _ signing.Provider = (*Client)(nil)

// NewClient returns a client of the provider API at apiURL.
func NewClient(apiURL, apiKey, apiSecret string, timeout time.Duration) *Client {
	return &Client{
		apiURL:    apiURL,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		cli:       http.Client{Timeout: timeout},
	}
}

type createRequest struct {
	TxBlob    string `json:"txblob"`
	Signer    string `json:"signer,omitempty"`
	Multisign bool   `json:"multisign"`
}

type statusResponse struct {
	Resolved bool   `json:"resolved"`
	Signed   bool   `json:"signed"`
	Hex      string `json:"hex"`
	Account  string `json:"account"`
}

func (c *Client) CreateRequest(ctx context.Context, r signing.Request) (*signing.Payload, error) {
	body := createRequest{
		TxBlob:    hex.EncodeToString(r.Tx),
		Signer:    r.Signer.String(),
		Multisign: r.Multisign,
	}
	var payload signing.Payload
	if err := c.do(ctx, "POST", "/payloads", body, &payload); err != nil {
		return nil, err
	}
	if payload.ID == "" {
		return nil, errors.Wrap(errors.ErrInput, "response without payload id")
	}
	return &payload, nil
}

func (c *Client) Status(ctx context.Context, id string) (*signing.Status, error) {
	var resp statusResponse
	if err := c.do(ctx, "GET", "/payloads/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	st := &signing.Status{
		Resolved: resp.Resolved,
		Signed:   resp.Signed,
		Account:  clearpay.Address(resp.Account),
	}
	if resp.Signed {
		blob, err := hex.DecodeString(resp.Hex)
		if err != nil {
			return nil, errors.Wrap(errors.ErrInput, "signed blob hex")
		}
		st.Blob = blob
	}
	return st, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, dest interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(errors.ErrHuman, err.Error())
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.apiURL+path, body)
	if err != nil {
		return errors.Wrap(errors.ErrInput, err.Error())
	}
	req = req.WithContext(ctx)
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("X-API-Secret", c.apiSecret)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.cli.Do(req)
	if err != nil {
		return errors.Wrapf(errors.ErrNetwork, "do request: %s", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := ioutil.ReadAll(io.LimitReader(resp.Body, 1e5))
		return errors.Wrapf(responseError(resp.StatusCode), "bad response: %d %s", resp.StatusCode, string(b))
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1e6)).Decode(dest); err != nil {
		return errors.Wrapf(errors.ErrNetwork, "decode response: %s", err)
	}
	return nil
}

func responseError(code int) *errors.Error {
	switch {
	case code == http.StatusNotFound:
		return errors.ErrNotFound
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return errors.ErrUnauthorized
	case code >= 500:
		return errors.ErrNetwork
	default:
		return errors.ErrInput
	}
}

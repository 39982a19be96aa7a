package httpsign

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/iov-one/clearpay/crypto"
	"github.com/iov-one/clearpay/errors"
	"github.com/iov-one/clearpay/signing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient(t *testing.T) {
	signer := crypto.GenPrivKeyEd25519().Address()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "key" || r.Header.Get("X-API-Secret") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch {
		case r.Method == "POST" && r.URL.Path == "/payloads":
			var req createRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Fatalf("cannot decode request: %s", err)
			}
			if req.TxBlob != "0a0b" || req.Signer != signer.String() || !req.Multisign {
				t.Fatalf("unexpected request: %+v", req)
			}
			_, _ = io.WriteString(w, `{"id": "p-1", "url": "https://sign.example/p-1"}`)
		case r.Method == "GET" && r.URL.Path == "/payloads/p-1":
			_, _ = io.WriteString(w, `{"resolved": true, "signed": true, "hex": "cafe", "account": "`+signer.String()+`"}`)
		case r.Method == "GET" && r.URL.Path == "/payloads/p-2":
			_, _ = io.WriteString(w, `{"resolved": false, "signed": false}`)
		case r.Method == "GET" && r.URL.Path == "/payloads/broken":
			http.Error(w, "upstream down", http.StatusBadGateway)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	c := NewClient(srv.URL, "key", "secret", time.Second)

	payload, err := c.CreateRequest(ctx, signing.Request{Tx: []byte{0x0a, 0x0b}, Signer: signer, Multisign: true})
	require.NoError(t, err)
	assert.Equal(t, &signing.Payload{ID: "p-1", URL: "https://sign.example/p-1"}, payload)

	st, err := c.Status(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, &signing.Status{Resolved: true, Signed: true, Blob: []byte{0xca, 0xfe}, Account: signer}, st)

	st, err = c.Status(ctx, "p-2")
	require.NoError(t, err)
	assert.False(t, st.Resolved)
	assert.Nil(t, st.Blob)

	cases := map[string]struct {
		client  *Client
		id      string
		wantErr *errors.Error
	}{
		"unknown payload": {
			client:  c,
			id:      "p-3",
			wantErr: errors.ErrNotFound,
		},
		"provider failure": {
			client:  c,
			id:      "broken",
			wantErr: errors.ErrNetwork,
		},
		"wrong credentials": {
			client:  NewClient(srv.URL, "key", "guess", time.Second),
			id:      "p-1",
			wantErr: errors.ErrUnauthorized,
		},
		"unreachable provider": {
			client:  NewClient("http://127.0.0.1:1", "key", "secret", time.Second),
			id:      "p-1",
			wantErr: errors.ErrNetwork,
		},
	}
	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			_, err := tc.client.Status(ctx, tc.id)
			if !tc.wantErr.Is(err) {
				t.Fatalf("want %q error, got %+v", tc.wantErr, err)
			}
		})
	}
}

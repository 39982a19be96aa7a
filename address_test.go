package clearpay_test

import (
	"testing"

	"github.com/iov-one/clearpay"
	"github.com/iov-one/clearpay/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAddress(t *testing.T) {
	addr := clearpay.NewAddress([]byte("foo"))
	assert.Equal(t, clearpay.Address("cpay19sntg6mgllrgl7vmg57p6vzpxsf5ytts8mx0g4"), addr)
	require.NoError(t, addr.Validate())
	assert.Len(t, addr.Bytes(), clearpay.AddressLength)
}

func TestParseAddress(t *testing.T) {
	cases := map[string]struct {
		raw     string
		wantErr *errors.Error
	}{
		"valid address": {
			raw: "cpay19sntg6mgllrgl7vmg57p6vzpxsf5ytts8mx0g4",
		},
		"empty": {
			raw:     "",
			wantErr: errors.ErrEmpty,
		},
		"wrong prefix": {
			raw:     "tiov19sntg6mgllrgl7vmg57p6vzpxsf5ytts39lfvn",
			wantErr: errors.ErrInput,
		},
		"short payload": {
			raw:     "cpay1w3jhxapdwpshjmr0v9jqdymhl3",
			wantErr: errors.ErrInput,
		},
		"broken checksum": {
			raw:     "cpay19sntg6mgllrgl7vmg57p6vzpxsf5ytts8mx0g5",
			wantErr: errors.ErrInput,
		},
		"not bech32": {
			raw:     "rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh",
			wantErr: errors.ErrInput,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			addr, err := clearpay.ParseAddress(tc.raw)
			if !tc.wantErr.Is(err) {
				t.Fatalf("unexpected error: %+v", err)
			}
			if tc.wantErr == nil && addr.String() != tc.raw {
				t.Fatalf("unexpected address: %q", addr)
			}
		})
	}
}

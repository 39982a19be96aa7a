package crypto

import (
	"bytes"
	"testing"

	"github.com/iov-one/clearpay"
	"github.com/iov-one/clearpay/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEd25519Signing(t *testing.T) {
	private := GenPrivKeyEd25519()
	public := private.PublicKey()

	msg := []byte("foobar")
	msg2 := []byte("dingbooms")

	sig, err := private.Sign(msg)
	require.NoError(t, err)
	sig2, err := private.Sign(msg2)
	require.NoError(t, err)

	if bytes.Equal(sig, sig2) {
		t.Fatal("different messages produce the same signature")
	}

	if !public.Verify(msg, sig) {
		t.Fatal("cannot verify a message signed with this public key")
	}
	if !public.Verify(msg2, sig2) {
		t.Fatal("cannot verify a message signed with this public key")
	}
	if public.Verify(msg, sig2) {
		t.Fatal("verified message signature of the wrong message")
	}
	if public.Verify(msg, nil) {
		t.Fatal("verified a nil signature of a message")
	}
}

func TestEd25519Address(t *testing.T) {
	pub := PublicKey(make([]byte, 32))
	assert.Equal(t, clearpay.Address("cpay15veq4xf8j9svnhyxysq5za540z6a6ldr0aveg7"), pub.Address())

	a := GenPrivKeyEd25519()
	b := GenPrivKeyEd25519()
	require.NoError(t, a.Address().Validate())
	assert.NotEqual(t, a.Address(), b.Address())
}

func TestSeedRoundTrip(t *testing.T) {
	key := PrivKeyEd25519FromSeed(bytes.Repeat([]byte{7}, 32))
	restored, err := ParseSeed(key.Seed())
	require.NoError(t, err)
	assert.Equal(t, key.Address(), restored.Address())

	if _, err := ParseSeed("abcd"); !errors.ErrInput.Is(err) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParsePublicKey(t *testing.T) {
	key := GenPrivKeyEd25519().PublicKey()
	got, err := ParsePublicKey(key.Hex())
	require.NoError(t, err)
	assert.Equal(t, key, got)

	if _, err := ParsePublicKey("zz"); !errors.ErrInput.Is(err) {
		t.Fatalf("unexpected error: %v", err)
	}
}

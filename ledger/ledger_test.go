package ledger

import (
	"crypto/ed25519"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoProgramID_RoundTrips(t *testing.T) {
	require.Equal(t, "MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr", MemoProgramID.String())
	require.False(t, MemoProgramID.IsZero())
}

func TestParsePublicKey_RejectsWrongLength(t *testing.T) {
	_, err := ParsePublicKey("3yZe7d")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrInvalidPublicKey))

	_, err = ParsePublicKey("0OIl")
	require.True(t, errors.Is(err, ErrInvalidPublicKey))
}

func TestSignature_TextRoundTrip(t *testing.T) {
	var sig Signature
	for i := range sig {
		sig[i] = byte(i + 1)
	}
	text, err := sig.MarshalText()
	require.NoError(t, err)

	var got Signature
	require.NoError(t, got.UnmarshalText(text))
	require.Equal(t, sig, got)

	_, err = ParseSignature(MemoProgramID.String())
	require.True(t, errors.Is(err, ErrInvalidSignature))
}

func TestPublicKeyFromEd25519(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	priv := ed25519.NewKeyFromSeed(seed)
	k, err := PublicKeyFromEd25519(priv.Public().(ed25519.PublicKey))
	require.NoError(t, err)

	parsed, err := ParsePublicKey(k.String())
	require.NoError(t, err)
	require.Equal(t, k, parsed)

	_, err = PublicKeyFromEd25519(ed25519.PublicKey{1, 2, 3})
	require.True(t, errors.Is(err, ErrInvalidPublicKey))
}

func TestParseHash(t *testing.T) {
	var h Hash
	h[0] = 9
	got, err := ParseHash(h.String())
	require.NoError(t, err)
	require.Equal(t, h, got)
}

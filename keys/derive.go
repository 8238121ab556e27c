package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"

	"xdao.co/memoproof/ledger"
)

// AddressFromSeed returns the ledger address (base-58 public key) for an
// ed25519 seed.
func AddressFromSeed(seed []byte) (ledger.PublicKey, error) {
	if len(seed) != ed25519.SeedSize {
		return ledger.PublicKey{}, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return ledger.PublicKeyFromEd25519(priv.Public().(ed25519.PublicKey))
}

// DeriveLabelSeed deterministically derives a labeled ed25519 seed from a
// root seed.
func DeriveLabelSeed(rootSeed []byte, label string) ([]byte, error) {
	if len(rootSeed) != ed25519.SeedSize {
		return nil, fmt.Errorf("root seed must be %d bytes", ed25519.SeedSize)
	}
	if err := CheckLabel(label); err != nil {
		return nil, err
	}

	h := sha256.New()
	_, _ = h.Write(rootSeed)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte("xdao-memoproof-keys-v1"))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte("label:"))
	_, _ = h.Write([]byte(label))
	sum := h.Sum(nil)
	out := make([]byte, ed25519.SeedSize)
	copy(out, sum[:ed25519.SeedSize])
	return out, nil
}

package keys

import (
	"crypto/ed25519"
	"testing"
)

func TestDeriveLabelSeedDeterministic(t *testing.T) {
	root := make([]byte, ed25519.SeedSize)
	for i := range root {
		root[i] = byte(i)
	}

	a, err := DeriveLabelSeed(root, "registrar")
	if err != nil {
		t.Fatalf("DeriveLabelSeed: %v", err)
	}
	b, err := DeriveLabelSeed(root, "registrar")
	if err != nil {
		t.Fatalf("DeriveLabelSeed: %v", err)
	}
	if string(a) != string(b) {
		t.Fatalf("expected deterministic derivation")
	}

	c, err := DeriveLabelSeed(root, "ops")
	if err != nil {
		t.Fatalf("DeriveLabelSeed: %v", err)
	}
	if string(a) == string(c) {
		t.Fatalf("expected different labels to derive different seeds")
	}

	if _, err := DeriveLabelSeed(root, "bad label"); err == nil {
		t.Fatalf("expected invalid label to fail")
	}
	if _, err := DeriveLabelSeed(root[:10], "ops"); err == nil {
		t.Fatalf("expected short root seed to fail")
	}
}

func TestAddressFromSeed(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = 0x42
	}
	addr, err := AddressFromSeed(seed)
	if err != nil {
		t.Fatalf("AddressFromSeed: %v", err)
	}
	pub := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	if string(addr[:]) != string(pub) {
		t.Fatalf("address does not match public key")
	}
	if len(addr.String()) < 32 {
		t.Fatalf("unexpected base58 address %q", addr.String())
	}
}

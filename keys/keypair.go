package keys

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ReadKeypairFile reads a keypair file in the ledger CLI format: a JSON
// array of 64 integers, the seed followed by the public key. The public half
// must match the seed.
func ReadKeypairFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseKeypairJSON(data)
}

func ParseKeypairJSON(data []byte) ([]byte, error) {
	var raw []int
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("keypair: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("keypair: expected %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}
	b := make([]byte, len(raw))
	for i, v := range raw {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("keypair: byte %d out of range: %d", i, v)
		}
		b[i] = byte(v)
	}
	seed := b[:ed25519.SeedSize]
	priv := ed25519.NewKeyFromSeed(seed)
	if !bytes.Equal(priv[ed25519.SeedSize:], b[ed25519.SeedSize:]) {
		return nil, fmt.Errorf("keypair: public key does not match seed")
	}
	return append([]byte(nil), seed...), nil
}

// MarshalKeypairJSON renders seed in the ledger CLI keypair format.
func MarshalKeypairJSON(seed []byte) ([]byte, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("expected seed length of %d bytes", ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	raw := make([]int, len(priv))
	for i, v := range priv {
		raw[i] = int(v)
	}
	return json.Marshal(raw)
}

// WriteKeypairFile writes seed to path in the ledger CLI format.
func WriteKeypairFile(path string, seed []byte, overwrite bool) error {
	data, err := MarshalKeypairJSON(seed)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Close()
}

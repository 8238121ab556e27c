// Package ledger defines the identifiers of the host ledger: account
// addresses, transaction signatures and block hashes, all rendered in
// base-58 the way the ledger's RPC interface does.
package ledger

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

const (
	PublicKeySize = 32
	SignatureSize = 64
	HashSize      = 32

	// MaxMemoBytes is the largest memo payload the annotation program accepts
	// in a single instruction.
	MaxMemoBytes = 566

	// MaxSignaturesForAddress is the largest page getSignaturesForAddress returns.
	MaxSignaturesForAddress = 1000
)

// MemoProgramID is the well-known annotation (SPL Memo v2) program.
var MemoProgramID = MustPublicKey("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")

var (
	ErrInvalidPublicKey = errors.New("ledger: invalid public key")
	ErrInvalidSignature = errors.New("ledger: invalid signature")
	ErrInvalidHash      = errors.New("ledger: invalid hash")
)

// PublicKey is an account address.
type PublicKey [PublicKeySize]byte

func (k PublicKey) String() string { return base58.Encode(k[:]) }

func (k PublicKey) IsZero() bool { return k == PublicKey{} }

func (k PublicKey) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *PublicKey) UnmarshalText(b []byte) error {
	parsed, err := ParsePublicKey(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParsePublicKey decodes a base-58 address.
func ParsePublicKey(s string) (PublicKey, error) {
	var k PublicKey
	b, err := base58.Decode(s)
	if err != nil {
		return k, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	if len(b) != PublicKeySize {
		return k, fmt.Errorf("%w: got %d bytes", ErrInvalidPublicKey, len(b))
	}
	copy(k[:], b)
	return k, nil
}

// MustPublicKey is like ParsePublicKey but panics on error. Use for constants.
func MustPublicKey(s string) PublicKey {
	k, err := ParsePublicKey(s)
	if err != nil {
		panic(err)
	}
	return k
}

// PublicKeyFromEd25519 converts an ed25519 public key into an address.
func PublicKeyFromEd25519(pub ed25519.PublicKey) (PublicKey, error) {
	var k PublicKey
	if len(pub) != ed25519.PublicKeySize {
		return k, fmt.Errorf("%w: got %d bytes", ErrInvalidPublicKey, len(pub))
	}
	copy(k[:], pub)
	return k, nil
}

// Signature is a transaction signature. The first signature of a
// transaction is its submission identifier.
type Signature [SignatureSize]byte

func (s Signature) String() string { return base58.Encode(s[:]) }

func (s Signature) IsZero() bool { return s == Signature{} }

func (s Signature) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Signature) UnmarshalText(b []byte) error {
	parsed, err := ParseSignature(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSignature decodes a base-58 transaction signature.
func ParseSignature(s string) (Signature, error) {
	var sig Signature
	b, err := base58.Decode(s)
	if err != nil {
		return sig, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if len(b) != SignatureSize {
		return sig, fmt.Errorf("%w: got %d bytes", ErrInvalidSignature, len(b))
	}
	copy(sig[:], b)
	return sig, nil
}

// Hash is a block hash (a transaction's recent blockhash).
type Hash [HashSize]byte

func (h Hash) String() string { return base58.Encode(h[:]) }

// ParseHash decodes a base-58 block hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := base58.Decode(s)
	if err != nil {
		return h, fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}
	if len(b) != HashSize {
		return h, fmt.Errorf("%w: got %d bytes", ErrInvalidHash, len(b))
	}
	copy(h[:], b)
	return h, nil
}

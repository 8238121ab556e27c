// Package wallet signs memo transactions and hands them to the ledger.
package wallet

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"

	"xdao.co/memoproof/ledger"
	"xdao.co/memoproof/txmsg"
)

// Wallet signs a transaction as its fee payer and submits it.
type Wallet interface {
	PublicKey() ledger.PublicKey
	SignAndSend(ctx context.Context, tx *txmsg.Transaction) (ledger.Signature, error)
}

// Sender submits serialized transactions. *chainrpc.Client satisfies it.
type Sender interface {
	SendTransaction(ctx context.Context, wire []byte) (ledger.Signature, error)
}

var ErrNotSigner = errors.New("wallet: key is not a required signer of the message")

// Keypair is a Wallet backed by a local ed25519 key.
type Keypair struct {
	priv   ed25519.PrivateKey
	pub    ledger.PublicKey
	sender Sender
}

func NewKeypair(seed []byte, sender Sender) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("wallet: seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	if sender == nil {
		return nil, errors.New("wallet: nil sender")
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub, err := ledger.PublicKeyFromEd25519(priv.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, err
	}
	return &Keypair{priv: priv, pub: pub, sender: sender}, nil
}

func (k *Keypair) PublicKey() ledger.PublicKey { return k.pub }

// Sign fills the keypair's signature slot of tx. The slot is the position of
// the keypair's key among the message's required signers.
func (k *Keypair) Sign(tx *txmsg.Transaction) (ledger.Signature, error) {
	m := &tx.Message
	n := int(m.Header.NumRequiredSignatures)
	if n > len(m.AccountKeys) {
		return ledger.Signature{}, fmt.Errorf("wallet: header requires %d signers, message has %d keys", n, len(m.AccountKeys))
	}
	slot := -1
	for i := 0; i < n; i++ {
		if m.AccountKeys[i] == k.pub {
			slot = i
			break
		}
	}
	if slot < 0 {
		return ledger.Signature{}, ErrNotSigner
	}
	msg, err := m.MarshalBinary()
	if err != nil {
		return ledger.Signature{}, fmt.Errorf("wallet: serialize message: %w", err)
	}
	if len(tx.Signatures) != n {
		sigs := make([]ledger.Signature, n)
		copy(sigs, tx.Signatures)
		tx.Signatures = sigs
	}
	var sig ledger.Signature
	copy(sig[:], ed25519.Sign(k.priv, msg))
	tx.Signatures[slot] = sig
	return sig, nil
}

// SignAndSend signs tx and submits it. The returned signature is the one the
// ledger reports, which equals the fee payer's signature.
func (k *Keypair) SignAndSend(ctx context.Context, tx *txmsg.Transaction) (ledger.Signature, error) {
	if _, err := k.Sign(tx); err != nil {
		return ledger.Signature{}, err
	}
	wire, err := tx.MarshalBinary()
	if err != nil {
		return ledger.Signature{}, fmt.Errorf("wallet: serialize transaction: %w", err)
	}
	return k.sender.SendTransaction(ctx, wire)
}

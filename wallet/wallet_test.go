package wallet

import (
	"context"
	"crypto/ed25519"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"xdao.co/memoproof/ledger"
	"xdao.co/memoproof/memo"
	"xdao.co/memoproof/txmsg"
)

type recordingSender struct {
	wire []byte
	err  error
}

func (s *recordingSender) SendTransaction(_ context.Context, wire []byte) (ledger.Signature, error) {
	s.wire = wire
	if s.err != nil {
		return ledger.Signature{}, s.err
	}
	tx, err := txmsg.DecodeTransaction(wire)
	if err != nil {
		return ledger.Signature{}, err
	}
	return tx.Signatures[0], nil
}

func seed(b byte) []byte {
	s := make([]byte, ed25519.SeedSize)
	for i := range s {
		s[i] = b
	}
	return s
}

func memoTx(payer ledger.PublicKey) *txmsg.Transaction {
	return &txmsg.Transaction{Message: txmsg.Message{
		Version:     txmsg.VersionLegacy,
		Header:      txmsg.Header{NumRequiredSignatures: 1, NumReadonlyUnsignedAccounts: 1},
		AccountKeys: []ledger.PublicKey{payer, ledger.MemoProgramID},
		Instructions: []txmsg.CompiledInstruction{
			{ProgramIDIndex: 1, Accounts: []uint8{}, Data: memo.BytesPayload([]byte("x"))},
		},
	}}
}

func TestKeypair_SignAndSend(t *testing.T) {
	sender := &recordingSender{}
	kp, err := NewKeypair(seed(1), sender)
	require.NoError(t, err)

	tx := memoTx(kp.PublicKey())
	sig, err := kp.SignAndSend(context.Background(), tx)
	require.NoError(t, err)
	require.False(t, sig.IsZero())

	sent, err := txmsg.DecodeTransaction(sender.wire)
	require.NoError(t, err)
	require.Equal(t, sig, sent.Signatures[0])

	msg, err := sent.Message.MarshalBinary()
	require.NoError(t, err)
	pub := kp.PublicKey()
	require.True(t, ed25519.Verify(ed25519.PublicKey(pub[:]), msg, sig[:]))
}

func TestKeypair_RejectsForeignMessage(t *testing.T) {
	kp, err := NewKeypair(seed(1), &recordingSender{})
	require.NoError(t, err)
	other, err := NewKeypair(seed(2), &recordingSender{})
	require.NoError(t, err)

	_, err = kp.SignAndSend(context.Background(), memoTx(other.PublicKey()))
	require.ErrorIs(t, err, ErrNotSigner)
}

func TestKeypair_PropagatesSendError(t *testing.T) {
	boom := errors.New("node rejected")
	kp, err := NewKeypair(seed(1), &recordingSender{err: boom})
	require.NoError(t, err)
	_, err = kp.SignAndSend(context.Background(), memoTx(kp.PublicKey()))
	require.ErrorIs(t, err, boom)
}

func TestNewKeypair_Rejects(t *testing.T) {
	_, err := NewKeypair(seed(1)[:5], &recordingSender{})
	require.Error(t, err)
	_, err = NewKeypair(seed(1), nil)
	require.Error(t, err)
}

package submit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"xdao.co/memoproof/chainrpc"
	"xdao.co/memoproof/digest"
	"xdao.co/memoproof/fault"
	"xdao.co/memoproof/ledger"
	"xdao.co/memoproof/memo"
	"xdao.co/memoproof/txmsg"
)

type fakeChain struct {
	hash ledger.Hash
	err  error
}

func (c fakeChain) GetLatestBlockhash(context.Context) (chainrpc.Blockhash, error) {
	return chainrpc.Blockhash{Hash: c.hash, LastValidBlockHeight: 100}, c.err
}

type fakeWallet struct {
	pub  ledger.PublicKey
	sent *txmsg.Transaction
	sig  ledger.Signature
	err  error
}

func (w *fakeWallet) PublicKey() ledger.PublicKey { return w.pub }

func (w *fakeWallet) SignAndSend(_ context.Context, tx *txmsg.Transaction) (ledger.Signature, error) {
	w.sent = tx
	return w.sig, w.err
}

func fill32(b byte) [32]byte {
	var out [32]byte
	for i := range out {
		out[i] = b
	}
	return out
}

func TestSubmit_BuildsSingleMemoInstruction(t *testing.T) {
	w := &fakeWallet{pub: ledger.PublicKey(fill32(1)), sig: ledger.Signature{9}}
	p := New(fakeChain{hash: ledger.Hash(fill32(2))}, w, nil)
	d := digest.Sum([]byte("file"))

	res, err := p.Submit(context.Background(), d)
	require.NoError(t, err)
	require.Equal(t, ledger.Signature{9}, res.Signature)
	require.Equal(t, d, res.Digest)
	require.Equal(t, w.pub, res.Payer)
	require.Nil(t, res.BlockTime)
	require.False(t, res.SubmittedAt.IsZero())

	m := w.sent.Message
	require.Equal(t, txmsg.VersionLegacy, m.Version)
	require.Equal(t, ledger.Hash(fill32(2)), m.RecentBlockhash)
	require.Len(t, m.Instructions, 1)
	ix := m.Instructions[0]
	require.Empty(t, ix.Accounts)
	require.Equal(t, ledger.MemoProgramID, m.AccountKeys[ix.ProgramIDIndex])
	require.Equal(t, []byte(d.String()), ix.Data.Bytes)

	// The built transaction is found by the same path verification uses.
	_, ok := memo.Match(txmsg.Normalize(&txmsg.Fetched{Transaction: *w.sent}), ledger.MemoProgramID, d)
	require.True(t, ok)
}

func TestSubmit_FailuresAreSubmissionErrors(t *testing.T) {
	d := digest.Sum([]byte("file"))
	rejected := errors.New("user rejected the request")

	cases := map[string]*Pipeline{
		"blockhash": New(fakeChain{err: errors.New("rpc down")}, &fakeWallet{}, nil),
		"wallet":    New(fakeChain{}, &fakeWallet{err: rejected}, nil),
		"unwired":   {},
	}
	for name, p := range cases {
		_, err := p.Submit(context.Background(), d)
		require.Error(t, err, name)
		require.True(t, fault.IsKind(err, fault.KindSubmission), name)
	}

	_, err := cases["wallet"].Submit(context.Background(), d)
	require.ErrorIs(t, err, rejected)

	_, err = New(fakeChain{}, &fakeWallet{}, nil).Submit(context.Background(), digest.Digest("ABC"))
	require.True(t, fault.IsKind(err, fault.KindSubmission))
}

package registrar

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"xdao.co/memoproof/chainrpc"
	"xdao.co/memoproof/digest"
	"xdao.co/memoproof/ledger"
	"xdao.co/memoproof/memo"
	"xdao.co/memoproof/receipt"
	"xdao.co/memoproof/submit"
	"xdao.co/memoproof/txmsg"
	"xdao.co/memoproof/verify"
)

// chain is a fake ledger that indexes a submitted transaction after a
// number of lookups.
type chain struct {
	mu      sync.Mutex
	txs     map[ledger.Signature]*txmsg.Fetched
	lookups map[ledger.Signature]int
	lag     int
	history []ledger.Signature
	next    byte
}

func newChain(lag int) *chain {
	return &chain{txs: map[ledger.Signature]*txmsg.Fetched{}, lookups: map[ledger.Signature]int{}, lag: lag}
}

func (c *chain) anchor(d digest.Digest) ledger.Signature {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	var sig ledger.Signature
	sig[0], sig[1] = c.next, 0x5A
	bt := time.Unix(1700000000+int64(c.next), 0).UTC()
	c.txs[sig] = &txmsg.Fetched{
		Slot:      uint64(1000 + int(c.next)),
		BlockTime: &bt,
		Transaction: txmsg.Transaction{
			Signatures: []ledger.Signature{sig},
			Message: txmsg.Message{
				Version:     txmsg.VersionLegacy,
				AccountKeys: []ledger.PublicKey{{9}, ledger.MemoProgramID},
				Instructions: []txmsg.CompiledInstruction{
					{ProgramIDIndex: 1, Data: memo.BytesPayload([]byte(d.String()))},
				},
			},
		},
	}
	c.history = append([]ledger.Signature{sig}, c.history...)
	return sig
}

func (c *chain) GetTransaction(_ context.Context, sig ledger.Signature) (*txmsg.Fetched, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lookups[sig]++
	if c.lookups[sig] <= c.lag {
		return nil, nil
	}
	return c.txs[sig], nil
}

func (c *chain) GetSignaturesForAddress(_ context.Context, _ ledger.PublicKey, limit int) ([]chainrpc.SignatureInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := []chainrpc.SignatureInfo{}
	for _, s := range c.history {
		out = append(out, chainrpc.SignatureInfo{Signature: s})
	}
	return out, nil
}

type submitter struct {
	chain *chain
	err   error
	calls int
}

func (s *submitter) Submit(_ context.Context, d digest.Digest) (submit.Result, error) {
	s.calls++
	if s.err != nil {
		return submit.Result{}, s.err
	}
	return submit.Result{
		Signature:   s.chain.anchor(d),
		Digest:      d,
		Payer:       ledger.PublicKey{9},
		SubmittedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}, nil
}

func newService(lag int) (*Service, *chain, *submitter, *verify.InstantClock) {
	c := newChain(lag)
	sub := &submitter{chain: c}
	clock := verify.NewInstantClock(time.Unix(0, 0))
	engine := verify.New(c, nil)
	engine.Clock = clock
	return &Service{
		Submitter: sub,
		Engine:    engine,
		Receipts:  receipt.NewMemoryStore(),
		Cluster:   "devnet",
	}, c, sub, clock
}

func TestRegister_SubmitsSavesAndConfirms(t *testing.T) {
	s, _, _, clock := newService(2)
	ctx := context.Background()
	d := digest.Sum([]byte("contract.pdf"))

	reg, err := s.Register(ctx, d, RegisterOptions{})
	require.NoError(t, err)
	require.NoError(t, reg.ReceiptErr)
	require.True(t, reg.Outcome.Found())
	require.Equal(t, 3, reg.Outcome.Attempts)
	require.NotNil(t, reg.Result.BlockTime)

	// Initial delay, then two poll intervals.
	require.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second, 2 * time.Second}, clock.Waits())

	stored, err := s.Receipt(ctx, d)
	require.NoError(t, err)
	require.Equal(t, reg.Result.Signature, stored.Signature)
	require.Equal(t, "devnet", stored.Cluster)
	require.True(t, stored.Confirmed())
}

func TestRegister_NoInitialDelay(t *testing.T) {
	s, _, _, clock := newService(1)
	s.InitialDelay = NoInitialDelay

	reg, err := s.Register(context.Background(), digest.Sum([]byte("now")), RegisterOptions{})
	require.NoError(t, err)
	require.True(t, reg.Outcome.Found())
	require.Equal(t, []time.Duration{2 * time.Second}, clock.Waits())
}

func TestRegister_RefusesDuplicateUnlessForced(t *testing.T) {
	s, _, sub, _ := newService(0)
	ctx := context.Background()
	d := digest.Sum([]byte("dup"))

	first, err := s.Register(ctx, d, RegisterOptions{SkipVerify: true})
	require.NoError(t, err)

	again, err := s.Register(ctx, d, RegisterOptions{})
	require.ErrorIs(t, err, ErrAlreadyRegistered)
	require.Equal(t, first.Result.Signature, again.Receipt.Signature)
	require.Equal(t, 1, sub.calls)

	// A forced second anchor succeeds; the first receipt stays canonical.
	forced, err := s.Register(ctx, d, RegisterOptions{Force: true, SkipVerify: true})
	require.NoError(t, err)
	require.ErrorIs(t, forced.ReceiptErr, receipt.ErrImmutable)
	require.Equal(t, 2, sub.calls)
}

func TestRegister_SubmissionFailure(t *testing.T) {
	s, _, sub, _ := newService(0)
	boom := errors.New("wallet disconnected")
	sub.err = boom
	_, err := s.Register(context.Background(), digest.Sum([]byte("x")), RegisterOptions{})
	require.ErrorIs(t, err, boom)
}

func TestVerify_PrefersReceiptThenScans(t *testing.T) {
	s, c, _, _ := newService(0)
	ctx := context.Background()
	d := digest.Sum([]byte("kept"))

	reg, err := s.Register(ctx, d, RegisterOptions{SkipVerify: true})
	require.NoError(t, err)

	out := s.Verify(ctx, d, VerifyOptions{})
	require.True(t, out.Found())
	require.Equal(t, verify.StrategyDirect, out.Strategy)
	require.Equal(t, reg.Result.Signature, out.Signature)
	stored, err := s.Receipt(ctx, d)
	require.NoError(t, err)
	require.True(t, stored.Confirmed())

	// Without a receipt the scan finds it.
	other := digest.Sum([]byte("no receipt"))
	c.anchor(other)
	out = s.Verify(ctx, other, VerifyOptions{})
	require.True(t, out.Found())
	require.Equal(t, verify.StrategyScan, out.Strategy)

	out = s.Verify(ctx, d, VerifyOptions{Scan: true})
	require.Equal(t, verify.StrategyScan, out.Strategy)
	require.True(t, out.Found())
}

func TestVerify_ExplicitSignatureIsDirectOnly(t *testing.T) {
	s, c, _, _ := newService(0)
	ctx := context.Background()
	d := digest.Sum([]byte("pasted"))
	sig := c.anchor(digest.Sum([]byte("something else")))

	out := s.Verify(ctx, d, VerifyOptions{Signature: sig})
	require.Equal(t, verify.StatusNotFound, out.Status)
	require.Equal(t, verify.ReasonNoMatch, out.Reason)
	require.Equal(t, verify.StrategyDirect, out.Strategy)

	var unknown ledger.Signature
	unknown[0] = 0xEE
	out = s.Verify(ctx, d, VerifyOptions{Signature: unknown})
	require.Equal(t, verify.ReasonTxMissing, out.Reason)
}

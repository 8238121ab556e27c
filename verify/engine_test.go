package verify

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"xdao.co/memoproof/chainrpc"
	"xdao.co/memoproof/digest"
	"xdao.co/memoproof/ledger"
	"xdao.co/memoproof/memo"
	"xdao.co/memoproof/txmsg"
)

// fakeLedger serves transactions that become visible after a number of
// GetTransaction calls for their signature.
type fakeLedger struct {
	mu        sync.Mutex
	txs       map[ledger.Signature]*txmsg.Fetched
	visibleAt map[ledger.Signature]int
	errs      map[ledger.Signature]error
	calls     map[ledger.Signature]int
	history   []ledger.Signature
	sigErr    error
	limits    []int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		txs:       map[ledger.Signature]*txmsg.Fetched{},
		visibleAt: map[ledger.Signature]int{},
		errs:      map[ledger.Signature]error{},
		calls:     map[ledger.Signature]int{},
	}
}

func (l *fakeLedger) GetTransaction(ctx context.Context, sig ledger.Signature) (*txmsg.Fetched, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls[sig]++
	if err := l.errs[sig]; err != nil {
		return nil, err
	}
	if l.calls[sig] < l.visibleAt[sig] {
		return nil, nil
	}
	return l.txs[sig], nil
}

func (l *fakeLedger) GetSignaturesForAddress(_ context.Context, _ ledger.PublicKey, limit int) ([]chainrpc.SignatureInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limits = append(l.limits, limit)
	if l.sigErr != nil {
		return nil, l.sigErr
	}
	out := make([]chainrpc.SignatureInfo, 0, len(l.history))
	for _, s := range l.history {
		out = append(out, chainrpc.SignatureInfo{Signature: s})
	}
	return out, nil
}

func (l *fakeLedger) callsFor(sig ledger.Signature) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[sig]
}

func sigN(n int) ledger.Signature {
	var s ledger.Signature
	s[0] = byte(n)
	s[1] = byte(n >> 8)
	s[2] = 0xAA
	return s
}

func memoFetched(sig ledger.Signature, programID ledger.PublicKey, data []byte) *txmsg.Fetched {
	bt := time.Unix(1700000000, 0).UTC()
	return &txmsg.Fetched{
		Slot:      99,
		BlockTime: &bt,
		Transaction: txmsg.Transaction{
			Signatures: []ledger.Signature{sig},
			Message: txmsg.Message{
				Version:     txmsg.VersionLegacy,
				Header:      txmsg.Header{NumRequiredSignatures: 1, NumReadonlyUnsignedAccounts: 1},
				AccountKeys: []ledger.PublicKey{{1}, programID},
				Instructions: []txmsg.CompiledInstruction{
					{ProgramIDIndex: 1, Data: memo.BytesPayload(data)},
				},
			},
		},
	}
}

func (l *fakeLedger) put(sig ledger.Signature, d digest.Digest, visibleAt int) {
	l.txs[sig] = memoFetched(sig, ledger.MemoProgramID, []byte(d.String()))
	l.visibleAt[sig] = visibleAt
}

func newEngine(l Ledger) (*Engine, *InstantClock) {
	clock := NewInstantClock(time.Unix(0, 0))
	e := New(l, nil)
	e.Clock = clock
	return e, clock
}

func TestPoll_ConvergesWhenIndexedWithinBudget(t *testing.T) {
	l := newFakeLedger()
	d := digest.Sum([]byte("report.pdf"))
	l.put(sigN(1), d, 3)
	e, clock := newEngine(l)

	out := e.Poll(context.Background(), d, sigN(1))
	require.Equal(t, StatusFound, out.Status)
	require.Equal(t, sigN(1), out.Signature)
	require.Equal(t, 3, out.Attempts)
	require.Equal(t, uint64(99), out.Slot)
	require.NotNil(t, out.BlockTime)
	require.Equal(t, 3, l.callsFor(sigN(1)))
	require.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, clock.Waits())
}

func TestPoll_NeverIndexedExhaustsExactly(t *testing.T) {
	l := newFakeLedger()
	d := digest.Sum([]byte("missing"))
	e, clock := newEngine(l)

	out := e.Poll(context.Background(), d, sigN(7))
	require.Equal(t, StatusNotFound, out.Status)
	require.Equal(t, ReasonAttemptsExhausted, out.Reason)
	require.Equal(t, DefaultPollAttempts, out.Attempts)
	require.Equal(t, DefaultPollAttempts, l.callsFor(sigN(7)))
	require.Len(t, clock.Waits(), DefaultPollAttempts-1)
}

func TestPoll_TransientErrorsRetryThenNotFound(t *testing.T) {
	l := newFakeLedger()
	boom := errors.New("node is behind")
	l.errs[sigN(2)] = boom
	e, _ := newEngine(l)
	e.PollAttempts = 4

	out := e.Poll(context.Background(), digest.Sum([]byte("x")), sigN(2))
	require.Equal(t, StatusNotFound, out.Status)
	require.Equal(t, ReasonAttemptsExhausted, out.Reason)
	require.ErrorIs(t, out.Err, boom)
	require.Equal(t, 4, l.callsFor(sigN(2)))
}

func TestPoll_IndexedWithoutMatchEndsEarly(t *testing.T) {
	l := newFakeLedger()
	l.put(sigN(3), digest.Sum([]byte("other")), 1)
	e, _ := newEngine(l)

	out := e.Poll(context.Background(), digest.Sum([]byte("mine")), sigN(3))
	require.Equal(t, StatusNotFound, out.Status)
	require.Equal(t, ReasonNoMatch, out.Reason)
	require.Equal(t, 1, l.callsFor(sigN(3)))
}

func TestPoll_Canceled(t *testing.T) {
	l := newFakeLedger()
	e := New(l, nil)
	e.PollInterval = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := e.Poll(ctx, digest.Sum([]byte("x")), sigN(1))
	require.Equal(t, StatusError, out.Status)
	require.ErrorIs(t, out.Err, context.Canceled)
}

func TestScan_RespectsWindowBound(t *testing.T) {
	d := digest.Sum([]byte("deep"))
	for _, tc := range []struct {
		name     string
		position int
		want     Status
	}{
		{"first", 0, StatusFound},
		{"last in window", DefaultScanLimit - 1, StatusFound},
		{"beyond window", DefaultScanLimit, StatusNotFound},
	} {
		t.Run(tc.name, func(t *testing.T) {
			l := newFakeLedger()
			for i := 0; i <= DefaultScanLimit; i++ {
				sig := sigN(i)
				l.history = append(l.history, sig)
				if i == tc.position {
					l.put(sig, d, 0)
				} else {
					l.put(sig, digest.Sum([]byte{byte(i), byte(i >> 8)}), 0)
				}
			}
			e, _ := newEngine(l)
			out := e.Scan(context.Background(), d)
			require.Equal(t, tc.want, out.Status)
			require.Equal(t, []int{DefaultScanLimit}, l.limits)
			if tc.want == StatusFound {
				require.Equal(t, sigN(tc.position), out.Signature)
			} else {
				require.Equal(t, ReasonWindowExhausted, out.Reason)
				require.Zero(t, l.callsFor(sigN(DefaultScanLimit)))
			}
		})
	}
}

func TestScan_MostRecentMatchWinsAndMissingSkipped(t *testing.T) {
	l := newFakeLedger()
	d := digest.Sum([]byte("dup"))
	l.history = []ledger.Signature{sigN(1), sigN(2), sigN(3)}
	l.visibleAt[sigN(1)] = 99 // not indexed: skipped
	l.put(sigN(2), d, 0)
	l.put(sigN(3), d, 0)
	e, _ := newEngine(l)

	out := e.Scan(context.Background(), d)
	require.Equal(t, StatusFound, out.Status)
	require.Equal(t, sigN(2), out.Signature)
	require.Zero(t, l.callsFor(sigN(3)))
}

func TestScan_RPCErrorIsError(t *testing.T) {
	l := newFakeLedger()
	l.sigErr = errors.New("rate limited")
	e, _ := newEngine(l)
	out := e.Scan(context.Background(), digest.Sum([]byte("x")))
	require.Equal(t, StatusError, out.Status)

	l = newFakeLedger()
	l.history = []ledger.Signature{sigN(1)}
	l.errs[sigN(1)] = errors.New("boom")
	e, _ = newEngine(l)
	out = e.Scan(context.Background(), digest.Sum([]byte("x")))
	require.Equal(t, StatusError, out.Status)
}

func TestDirect(t *testing.T) {
	l := newFakeLedger()
	d := digest.Sum([]byte("pasted"))
	l.put(sigN(1), d, 0)
	l.put(sigN(2), digest.Sum([]byte("other")), 0)
	l.errs[sigN(3)] = errors.New("boom")
	// Same payload under a different program is not a match.
	l.txs[sigN(4)] = memoFetched(sigN(4), ledger.PublicKey{7}, []byte(d.String()))
	e, clock := newEngine(l)
	ctx := context.Background()

	out := e.Direct(ctx, d, sigN(1))
	require.True(t, out.Found())
	require.Equal(t, StrategyDirect, out.Strategy)

	out = e.Direct(ctx, d, sigN(2))
	require.Equal(t, StatusNotFound, out.Status)
	require.Equal(t, ReasonNoMatch, out.Reason)
	require.Equal(t, "hash not found in this transaction", out.Message)

	out = e.Direct(ctx, d, sigN(9))
	require.Equal(t, StatusNotFound, out.Status)
	require.Equal(t, ReasonTxMissing, out.Reason)
	require.Equal(t, "transaction not found", out.Message)

	out = e.Direct(ctx, d, sigN(3))
	require.Equal(t, StatusError, out.Status)

	out = e.Direct(ctx, d, sigN(4))
	require.Equal(t, ReasonNoMatch, out.Reason)

	require.Empty(t, clock.Waits())
	require.Equal(t, 1, l.callsFor(sigN(9)))
}

func TestDirect_Base64WrappedPayload(t *testing.T) {
	d := digest.Sum([]byte("enc"))
	l := newFakeLedger()
	wrapped := base64.StdEncoding.EncodeToString([]byte(d.String()))
	l.txs[sigN(1)] = memoFetched(sigN(1), ledger.MemoProgramID, []byte(wrapped))
	e, _ := newEngine(l)
	require.True(t, e.Direct(context.Background(), d, sigN(1)).Found())
}

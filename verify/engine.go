// Package verify locates a digest's memo record in ledger history.
//
// Three strategies are offered: Poll retries a known signature until the
// ledger indexes it, Scan walks the memo program's recent history when no
// signature is known, and Direct checks a single signature once. Every
// strategy resolves to an Outcome; codec and normalizer failures only ever
// mean "no match".
package verify

import (
	"context"
	"io"
	"log/slog"
	"time"

	"xdao.co/memoproof/chainrpc"
	"xdao.co/memoproof/digest"
	"xdao.co/memoproof/fault"
	"xdao.co/memoproof/ledger"
	"xdao.co/memoproof/memo"
	"xdao.co/memoproof/txmsg"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultPollAttempts = 10
	DefaultScanLimit    = ledger.MaxSignaturesForAddress
)

// Ledger is the read side of the ledger RPC. A nil transaction with a nil
// error means "not indexed (yet)". *chainrpc.Client satisfies it.
type Ledger interface {
	GetTransaction(ctx context.Context, sig ledger.Signature) (*txmsg.Fetched, error)
	GetSignaturesForAddress(ctx context.Context, addr ledger.PublicKey, limit int) ([]chainrpc.SignatureInfo, error)
}

type Engine struct {
	Ledger       Ledger
	Clock        Clock
	Logger       *slog.Logger
	ProgramID    ledger.PublicKey
	PollInterval time.Duration
	PollAttempts int
	ScanLimit    int
}

func New(l Ledger, logger *slog.Logger) *Engine {
	return &Engine{
		Ledger:       l,
		Clock:        RealClock,
		Logger:       logger,
		ProgramID:    ledger.MemoProgramID,
		PollInterval: DefaultPollInterval,
		PollAttempts: DefaultPollAttempts,
		ScanLimit:    DefaultScanLimit,
	}
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (e *Engine) clock() Clock {
	if e.Clock != nil {
		return e.Clock
	}
	return RealClock
}

func (e *Engine) programID() ledger.PublicKey {
	if e.ProgramID.IsZero() {
		return ledger.MemoProgramID
	}
	return e.ProgramID
}

func (e *Engine) pollInterval() time.Duration {
	if e.PollInterval > 0 {
		return e.PollInterval
	}
	return DefaultPollInterval
}

func (e *Engine) pollAttempts() int {
	if e.PollAttempts > 0 {
		return e.PollAttempts
	}
	return DefaultPollAttempts
}

func (e *Engine) scanLimit() int {
	if e.ScanLimit > 0 && e.ScanLimit <= ledger.MaxSignaturesForAddress {
		return e.ScanLimit
	}
	return DefaultScanLimit
}

// match reports whether f carries a memo record for d.
func (e *Engine) match(f *txmsg.Fetched, d digest.Digest) bool {
	_, ok := memo.Match(txmsg.Normalize(f), e.programID(), d)
	return ok
}

// Wait blocks for d on the engine's clock or until ctx is done.
func (e *Engine) Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e.clock().After(d):
		return nil
	}
}

// Poll checks sig repeatedly at a fixed interval until the ledger indexes
// it. A transaction that is indexed but carries no matching record ends the
// poll early with ReasonNoMatch; it does not wait out the remaining
// attempts. Running out of attempts is NotFound, never Error; the last
// transient error, if any, is kept in Outcome.Err.
func (e *Engine) Poll(ctx context.Context, d digest.Digest, sig ledger.Signature) Outcome {
	max := e.pollAttempts()
	log := e.logger().With("strategy", string(StrategyPoll), "digest", d.String(), "signature", sig.String())

	var lastErr error
	for attempt := 1; attempt <= max; attempt++ {
		if attempt > 1 {
			if err := e.Wait(ctx, e.pollInterval()); err != nil {
				return failed(StrategyPoll, d, attempt-1, fault.Wrap(fault.KindInternal, "MEMO-VERIFY-001", "verification canceled", err))
			}
		}
		log.Info("searching", "attempt", attempt, "max_attempts", max)

		f, err := e.Ledger.GetTransaction(ctx, sig)
		if err != nil {
			if ctx.Err() != nil {
				return failed(StrategyPoll, d, attempt, fault.Wrap(fault.KindInternal, "MEMO-VERIFY-001", "verification canceled", ctx.Err()))
			}
			lastErr = err
			log.Debug("fetch failed, will retry", "attempt", attempt, "err", err)
			continue
		}
		if f == nil {
			log.Debug("transaction not indexed yet", "attempt", attempt)
			continue
		}
		if e.match(f, d) {
			log.Info("found", "attempt", attempt, "slot", f.Slot)
			return found(StrategyPoll, d, sig, f.Slot, f.BlockTime, attempt)
		}
		log.Info("transaction has no matching record", "attempt", attempt)
		return notFound(StrategyPoll, d, ReasonNoMatch, attempt, "hash not found in this transaction")
	}

	log.Info("attempts exhausted", "max_attempts", max)
	out := notFound(StrategyPoll, d, ReasonAttemptsExhausted, max, "transaction not indexed after retries")
	out.Err = lastErr
	return out
}

// Scan walks the most recent signatures of the memo program, newest first,
// and returns the first transaction carrying d. Records older than the
// window are unreachable. Any RPC error ends the scan with Error.
func (e *Engine) Scan(ctx context.Context, d digest.Digest) Outcome {
	limit := e.scanLimit()
	log := e.logger().With("strategy", string(StrategyScan), "digest", d.String())
	log.Info("scanning memo history", "limit", limit)

	sigs, err := e.Ledger.GetSignaturesForAddress(ctx, e.programID(), limit)
	if err != nil {
		return failed(StrategyScan, d, 0, err)
	}
	if len(sigs) > limit {
		sigs = sigs[:limit]
	}

	examined := 0
	for i, info := range sigs {
		if err := ctx.Err(); err != nil {
			return failed(StrategyScan, d, examined, fault.Wrap(fault.KindInternal, "MEMO-VERIFY-001", "verification canceled", err))
		}
		f, err := e.Ledger.GetTransaction(ctx, info.Signature)
		if err != nil {
			log.Warn("fetch failed", "position", i, "signature", info.Signature.String(), "err", err)
			return failed(StrategyScan, d, examined, err)
		}
		if f == nil {
			continue
		}
		examined++
		if e.match(f, d) {
			log.Info("found", "position", i, "signature", info.Signature.String())
			return found(StrategyScan, d, info.Signature, f.Slot, f.BlockTime, examined)
		}
	}
	log.Info("window exhausted", "signatures", len(sigs), "examined", examined)
	return notFound(StrategyScan, d, ReasonWindowExhausted, examined, "hash not found in recent memo history")
}

// Direct checks sig exactly once.
func (e *Engine) Direct(ctx context.Context, d digest.Digest, sig ledger.Signature) Outcome {
	log := e.logger().With("strategy", string(StrategyDirect), "digest", d.String(), "signature", sig.String())

	f, err := e.Ledger.GetTransaction(ctx, sig)
	if err != nil {
		log.Warn("fetch failed", "err", err)
		return failed(StrategyDirect, d, 1, err)
	}
	if f == nil {
		return notFound(StrategyDirect, d, ReasonTxMissing, 1, "transaction not found")
	}
	if e.match(f, d) {
		log.Info("found", "slot", f.Slot)
		return found(StrategyDirect, d, sig, f.Slot, f.BlockTime, 1)
	}
	return notFound(StrategyDirect, d, ReasonNoMatch, 1, "hash not found in this transaction")
}

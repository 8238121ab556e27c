// Package registrar ties the pieces together: anchor a digest, keep a
// receipt, and prove the digest later with the cheapest strategy available.
package registrar

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"xdao.co/memoproof/digest"
	"xdao.co/memoproof/fault"
	"xdao.co/memoproof/ledger"
	"xdao.co/memoproof/receipt"
	"xdao.co/memoproof/submit"
	"xdao.co/memoproof/verify"
)

// DefaultInitialDelay is how long Register waits after dispatch before the
// first poll.
const DefaultInitialDelay = 2 * time.Second

// NoInitialDelay makes Register poll immediately after dispatch.
const NoInitialDelay time.Duration = -1

// ErrAlreadyRegistered is returned by Register when a receipt for the digest
// exists and RegisterOptions.Force is not set.
var ErrAlreadyRegistered = errors.New("registrar: digest already has a receipt")

// ErrNoSubmitter is returned by Register on a read-only service.
var ErrNoSubmitter = fault.New(fault.KindSubmission, "MEMO-REG-001", "no fee payer configured")

// Submitter dispatches a memo transaction. *submit.Pipeline satisfies it.
type Submitter interface {
	Submit(ctx context.Context, d digest.Digest) (submit.Result, error)
}

type Service struct {
	Submitter Submitter
	Engine    *verify.Engine
	// Receipts is optional. Without it, Verify without a signature always
	// scans.
	Receipts receipt.Store
	Cluster  string
	// InitialDelay defaults to DefaultInitialDelay when zero. Use
	// NoInitialDelay to skip the wait.
	InitialDelay time.Duration
	Logger       *slog.Logger
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type RegisterOptions struct {
	// Force submits even when a receipt for the digest exists.
	Force bool
	// SkipVerify returns right after dispatch.
	SkipVerify bool
}

// Registration reports what Register did. Outcome is the zero value when
// verification was skipped. ReceiptErr records a failure to persist the
// receipt; the submission itself still succeeded.
type Registration struct {
	Result     submit.Result
	Receipt    receipt.Receipt
	Outcome    verify.Outcome
	ReceiptErr error
}

// Register anchors d, records a receipt, waits the initial delay and polls
// the new signature until it is indexed.
func (s *Service) Register(ctx context.Context, d digest.Digest, opts RegisterOptions) (Registration, error) {
	if s.Submitter == nil {
		return Registration{}, ErrNoSubmitter
	}
	log := s.logger().With("digest", d.String())
	if s.Receipts != nil && !opts.Force {
		existing, err := s.Receipts.Get(ctx, d)
		switch {
		case err == nil:
			return Registration{Receipt: existing}, ErrAlreadyRegistered
		case receipt.IsNotFound(err):
		default:
			log.Warn("receipt lookup failed", "err", err)
		}
	}

	res, err := s.Submitter.Submit(ctx, d)
	if err != nil {
		return Registration{}, err
	}
	reg := Registration{
		Result: res,
		Receipt: receipt.Receipt{
			Digest:      res.Digest,
			Signature:   res.Signature,
			Payer:       res.Payer,
			Cluster:     s.Cluster,
			SubmittedAt: res.SubmittedAt,
		},
	}
	reg.ReceiptErr = s.save(ctx, reg.Receipt)

	if opts.SkipVerify || s.Engine == nil {
		return reg, nil
	}

	delay := s.InitialDelay
	switch {
	case delay == 0:
		delay = DefaultInitialDelay
	case delay < 0:
		delay = 0
	}
	if err := s.Engine.Wait(ctx, delay); err != nil {
		return reg, err
	}
	reg.Outcome = s.Engine.Poll(ctx, d, res.Signature)
	if reg.Outcome.Found() {
		reg.Result.BlockTime = reg.Outcome.BlockTime
		reg.Receipt.Slot = reg.Outcome.Slot
		reg.Receipt.BlockTime = reg.Outcome.BlockTime
		if err := s.save(ctx, reg.Receipt); err != nil && reg.ReceiptErr == nil {
			reg.ReceiptErr = err
		}
	}
	return reg, nil
}

func (s *Service) save(ctx context.Context, r receipt.Receipt) error {
	if s.Receipts == nil {
		return nil
	}
	if err := s.Receipts.Put(ctx, r); err != nil {
		s.logger().Warn("saving receipt failed", "digest", r.Digest.String(), "signature", r.Signature.String(), "err", err)
		return err
	}
	return nil
}

type VerifyOptions struct {
	// Signature, when set, is checked directly and nothing else is tried.
	Signature ledger.Signature
	// Scan skips the receipt lookup and goes straight to the history scan.
	Scan bool
}

// Verify proves d. With a signature it runs a single direct check. Without
// one it checks the saved receipt's signature first and falls back to
// scanning recent memo history.
func (s *Service) Verify(ctx context.Context, d digest.Digest, opts VerifyOptions) verify.Outcome {
	if !opts.Signature.IsZero() {
		return s.Engine.Direct(ctx, d, opts.Signature)
	}
	log := s.logger().With("digest", d.String())

	if s.Receipts != nil && !opts.Scan {
		r, err := s.Receipts.Get(ctx, d)
		switch {
		case err == nil:
			out := s.Engine.Direct(ctx, d, r.Signature)
			if out.Found() {
				if !r.Confirmed() {
					r.Slot = out.Slot
					r.BlockTime = out.BlockTime
					_ = s.save(ctx, r)
				}
				return out
			}
			log.Info("receipt signature did not verify, scanning", "signature", r.Signature.String(), "reason", string(out.Reason))
		case receipt.IsNotFound(err):
		default:
			log.Warn("receipt lookup failed", "err", err)
		}
	}
	return s.Engine.Scan(ctx, d)
}

// Receipt returns the stored receipt for d.
func (s *Service) Receipt(ctx context.Context, d digest.Digest) (receipt.Receipt, error) {
	if s.Receipts == nil {
		return receipt.Receipt{}, receipt.ErrNotFound
	}
	return s.Receipts.Get(ctx, d)
}

// Package testkit holds the conformance suite every receipt.Store backend
// runs in its own tests.
package testkit

import (
	"context"
	"testing"
	"time"

	"xdao.co/memoproof/digest"
	"xdao.co/memoproof/ledger"
	"xdao.co/memoproof/receipt"
)

// NewStore constructs a fresh, empty Store for a test.
// The returned Store MUST be isolated from other tests.
type NewStore func(t *testing.T) receipt.Store

// Sample returns a valid unconfirmed receipt for content.
func Sample(content string) receipt.Receipt {
	var sig ledger.Signature
	copy(sig[:], []byte(content+"-signature-padding-padding-padding-padding-padding-padding-pad"))
	var payer ledger.PublicKey
	payer[0] = 7
	return receipt.Receipt{
		Digest:      digest.Sum([]byte(content)),
		Signature:   sig,
		Payer:       payer,
		Cluster:     "devnet",
		SubmittedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func RunStoreConformance(t *testing.T, newStore NewStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		s := newStore(t)
		want := Sample("round trip")
		if err := s.Put(ctx, want); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, err := s.Get(ctx, want.Digest)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Digest != want.Digest || got.Signature != want.Signature || got.Payer != want.Payer {
			t.Fatalf("Get mismatch: got %+v want %+v", got, want)
		}
		if got.Cluster != want.Cluster || !got.SubmittedAt.Equal(want.SubmittedAt) {
			t.Fatalf("Get metadata mismatch: got %+v want %+v", got, want)
		}
		if got.Confirmed() {
			t.Fatalf("expected unconfirmed receipt")
		}
	})

	t.Run("PutIdempotent", func(t *testing.T) {
		s := newStore(t)
		r := Sample("same")
		if err := s.Put(ctx, r); err != nil {
			t.Fatalf("Put(1) failed: %v", err)
		}
		if err := s.Put(ctx, r); err != nil {
			t.Fatalf("Put(2) failed: %v", err)
		}
	})

	t.Run("HasAndNotFound", func(t *testing.T) {
		s := newStore(t)
		r := Sample("missing")
		if s.Has(ctx, r.Digest) {
			t.Fatalf("Has returned true for missing digest")
		}
		if _, err := s.Get(ctx, r.Digest); !receipt.IsNotFound(err) {
			t.Fatalf("Get missing: got err=%v want ErrNotFound", err)
		}
		if err := s.Put(ctx, r); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if !s.Has(ctx, r.Digest) {
			t.Fatalf("Has returned false after Put")
		}
	})

	t.Run("ConfirmationFillIn", func(t *testing.T) {
		s := newStore(t)
		r := Sample("confirm")
		if err := s.Put(ctx, r); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		bt := time.Date(2024, 3, 1, 12, 0, 5, 0, time.UTC)
		confirmed := r
		confirmed.Slot = 1234
		confirmed.BlockTime = &bt
		if err := s.Put(ctx, confirmed); err != nil {
			t.Fatalf("Put(confirmed) failed: %v", err)
		}
		got, err := s.Get(ctx, r.Digest)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Slot != 1234 || got.BlockTime == nil || !got.BlockTime.Equal(bt) {
			t.Fatalf("confirmation not stored: %+v", got)
		}

		// A later unconfirmed write must not erase confirmation.
		if err := s.Put(ctx, r); err != nil {
			t.Fatalf("Put(unconfirmed again) failed: %v", err)
		}
		got, err = s.Get(ctx, r.Digest)
		if err != nil || got.Slot != 1234 {
			t.Fatalf("confirmation lost: %+v, %v", got, err)
		}

		moved := confirmed
		moved.Slot = 99
		if err := s.Put(ctx, moved); !receipt.IsImmutable(err) {
			t.Fatalf("changing slot: got %v want ErrImmutable", err)
		}
	})

	t.Run("RejectConflictingSignature", func(t *testing.T) {
		s := newStore(t)
		r := Sample("conflict")
		if err := s.Put(ctx, r); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		other := r
		other.Signature[0] ^= 0xff
		if err := s.Put(ctx, other); !receipt.IsImmutable(err) {
			t.Fatalf("Put conflicting: got %v want ErrImmutable", err)
		}
		got, err := s.Get(ctx, r.Digest)
		if err != nil || got.Signature != r.Signature {
			t.Fatalf("original receipt not kept: %+v, %v", got, err)
		}
	})

	t.Run("RejectInvalid", func(t *testing.T) {
		s := newStore(t)
		bad := Sample("bad")
		bad.Digest = "not-a-digest"
		if err := s.Put(ctx, bad); err == nil {
			t.Fatalf("Put should fail for an invalid digest")
		}
		if s.Has(ctx, "not-a-digest") {
			t.Fatalf("Has should be false for an invalid digest")
		}
		if _, err := s.Get(ctx, "not-a-digest"); err == nil {
			t.Fatalf("Get should fail for an invalid digest")
		}
	})
}

package fault

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestWrap_PreservesKindAndCause(t *testing.T) {
	err := Wrap(KindDigest, "MEMO-DIGEST-001", "read blob", io.ErrUnexpectedEOF)
	outer := fmt.Errorf("register: %w", err)

	if !IsKind(outer, KindDigest) {
		t.Fatalf("expected KindDigest, got %q", KindOf(outer))
	}
	if Code(outer) != "MEMO-DIGEST-001" {
		t.Fatalf("unexpected code %q", Code(outer))
	}
	if !errors.Is(outer, io.ErrUnexpectedEOF) {
		t.Fatalf("expected cause to be reachable via errors.Is")
	}
	if got := err.Error(); got != "read blob: unexpected EOF" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestWrap_NilCauseIsNew(t *testing.T) {
	err := Wrap(KindConfig, "MEMO-CFG-001", "missing endpoint", nil)
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if e.Cause != nil {
		t.Fatalf("expected nil cause")
	}
	if IsKind(errors.New("plain"), KindConfig) {
		t.Fatalf("plain errors have no kind")
	}
	if Code(errors.New("plain")) != "" {
		t.Fatalf("plain errors have no code")
	}
}

package verify

import (
	"time"

	"xdao.co/memoproof/digest"
	"xdao.co/memoproof/ledger"
)

type Status int

const (
	StatusError Status = iota
	StatusFound
	StatusNotFound
)

func (s Status) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusNotFound:
		return "not_found"
	default:
		return "error"
	}
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// NotFoundReason says which bound was exhausted.
type NotFoundReason string

const (
	ReasonNone              NotFoundReason = ""
	ReasonAttemptsExhausted NotFoundReason = "attempts_exhausted"
	// ReasonNoMatch: the transaction is indexed but has no record for the
	// digest. Poll stops here instead of spending its remaining attempts,
	// since a confirmed transaction does not change.
	ReasonNoMatch         NotFoundReason = "no_match"
	ReasonTxMissing       NotFoundReason = "tx_missing"
	ReasonWindowExhausted NotFoundReason = "window_exhausted"
)

type Strategy string

const (
	StrategyPoll   Strategy = "poll"
	StrategyScan   Strategy = "scan"
	StrategyDirect Strategy = "direct"
)

// Outcome is the terminal result of one verification. Found carries the
// matching signature and, when the ledger reports one, the block time.
type Outcome struct {
	Status    Status
	Strategy  Strategy
	Digest    digest.Digest
	Signature ledger.Signature
	Slot      uint64
	BlockTime *time.Time
	// Attempts counts fetches for poll/direct and examined transactions for
	// scan.
	Attempts int
	Reason   NotFoundReason
	// Message is a short human-readable summary. Err is set for StatusError
	// and, for exhausted polls, holds the last transient error seen.
	Message string
	Err     error
}

func (o Outcome) Found() bool { return o.Status == StatusFound }

func found(s Strategy, d digest.Digest, sig ledger.Signature, slot uint64, bt *time.Time, attempts int) Outcome {
	return Outcome{
		Status:    StatusFound,
		Strategy:  s,
		Digest:    d,
		Signature: sig,
		Slot:      slot,
		BlockTime: bt,
		Attempts:  attempts,
		Message:   "hash found on chain",
	}
}

func notFound(s Strategy, d digest.Digest, reason NotFoundReason, attempts int, msg string) Outcome {
	return Outcome{Status: StatusNotFound, Strategy: s, Digest: d, Reason: reason, Attempts: attempts, Message: msg}
}

func failed(s Strategy, d digest.Digest, attempts int, err error) Outcome {
	return Outcome{Status: StatusError, Strategy: s, Digest: d, Attempts: attempts, Message: err.Error(), Err: err}
}

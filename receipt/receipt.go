// Package receipt persists submission receipts so a digest can be verified
// later by its signature instead of a bounded history scan.
package receipt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"xdao.co/memoproof/digest"
	"xdao.co/memoproof/ledger"
)

// Receipt is the durable record of one successful submission.
//
// Digest, Signature, Payer, Cluster and SubmittedAt never change once
// stored. Slot and BlockTime start unset and may be filled in once the
// transaction is observed confirmed.
type Receipt struct {
	Digest      digest.Digest    `json:"digest"`
	Signature   ledger.Signature `json:"signature"`
	Payer       ledger.PublicKey `json:"payer"`
	Cluster     string           `json:"cluster,omitempty"`
	SubmittedAt time.Time        `json:"submitted_at"`
	Slot        uint64           `json:"slot,omitempty"`
	BlockTime   *time.Time       `json:"block_time,omitempty"`
}

func (r Receipt) Confirmed() bool { return r.Slot != 0 || r.BlockTime != nil }

func (r Receipt) Validate() error {
	if !r.Digest.Valid() {
		return ErrInvalidDigest
	}
	if r.Signature.IsZero() {
		return fmt.Errorf("receipt: missing signature")
	}
	return nil
}

// Marshal encodes r as compact JSON with UTC timestamps.
func Marshal(r Receipt) ([]byte, error) {
	r.SubmittedAt = r.SubmittedAt.UTC()
	if r.BlockTime != nil {
		bt := r.BlockTime.UTC()
		r.BlockTime = &bt
	}
	return json.Marshal(r)
}

func Unmarshal(b []byte) (Receipt, error) {
	var r Receipt
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&r); err != nil {
		return Receipt{}, fmt.Errorf("receipt: decode: %w", err)
	}
	return r, r.Validate()
}

// Merge applies incoming on top of existing. It returns the result and
// whether anything changed. Incoming may only fill in unset confirmation
// fields; any other difference is ErrImmutable.
func Merge(existing, incoming Receipt) (Receipt, bool, error) {
	if existing.Digest != incoming.Digest ||
		existing.Signature != incoming.Signature ||
		existing.Payer != incoming.Payer ||
		existing.Cluster != incoming.Cluster ||
		!existing.SubmittedAt.Equal(incoming.SubmittedAt) {
		return existing, false, ErrImmutable
	}
	out := existing
	changed := false
	if incoming.Slot != 0 {
		switch existing.Slot {
		case 0:
			out.Slot = incoming.Slot
			changed = true
		case incoming.Slot:
		default:
			return existing, false, ErrImmutable
		}
	}
	if incoming.BlockTime != nil {
		switch {
		case existing.BlockTime == nil:
			bt := incoming.BlockTime.UTC()
			out.BlockTime = &bt
			changed = true
		case !existing.BlockTime.Equal(*incoming.BlockTime):
			return existing, false, ErrImmutable
		}
	}
	return out, changed, nil
}

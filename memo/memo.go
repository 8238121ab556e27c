// Package memo encodes digests as annotation-program instruction data and
// decodes them back out of historical instructions.
//
// Historical memos were written by several client versions, so decoding is
// a cascade of independent decoders tried in a fixed order. A decoder that
// cannot make sense of a payload reports a miss; it never returns an error.
package memo

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mr-tron/base58"

	"xdao.co/memoproof/digest"
	"xdao.co/memoproof/fault"
	"xdao.co/memoproof/ledger"
)

// Payload is instruction data as it was fetched. Exactly one form is set:
// Bytes for binary (wire-decoded) data, Text for the base-58 string the
// JSON transaction encoding carries.
type Payload struct {
	Bytes  []byte
	Text   string
	IsText bool
}

func BytesPayload(b []byte) Payload { return Payload{Bytes: b} }

func TextPayload(s string) Payload { return Payload{Text: s, IsText: true} }

// Raw returns the binary instruction data, decoding the base-58 text form
// if necessary.
func (p Payload) Raw() ([]byte, error) {
	if !p.IsText {
		return p.Bytes, nil
	}
	if p.Text == "" {
		return []byte{}, nil
	}
	b, err := base58.Decode(p.Text)
	if err != nil {
		return nil, fault.Wrap(fault.KindEncoding, "MEMO-ENC-001", "instruction data is not base-58", err)
	}
	return b, nil
}

// Record is one instruction lifted out of a historical transaction.
type Record struct {
	ProgramID ledger.PublicKey
	Data      Payload
}

// Encode serializes d as the UTF-8 bytes of its hex text.
func Encode(d digest.Digest) ([]byte, error) {
	if !d.Valid() {
		return nil, fault.Wrap(fault.KindEncoding, "MEMO-ENC-010", "encode memo", digest.ErrInvalid)
	}
	b := []byte(d.String())
	if len(b) > ledger.MaxMemoBytes {
		return nil, fault.New(fault.KindEncoding, "MEMO-ENC-011", fmt.Sprintf("memo exceeds %d bytes", ledger.MaxMemoBytes))
	}
	return b, nil
}

// Decoder is one interpretation of a payload.
type Decoder struct {
	Name   string
	Decode func(Payload) (digest.Digest, bool)
}

// Decoders is the fixed priority order Decode walks.
var Decoders = []Decoder{
	{Name: "utf8", Decode: decodeUTF8},
	{Name: "base64", Decode: decodeBase64},
	{Name: "base58", Decode: decodeBase58},
	{Name: "text", Decode: decodeVerbatim},
}

// Decode returns the digest carried by p, or false when no decoder yields
// a plausible digest.
func Decode(p Payload) (digest.Digest, bool) {
	d, _, ok := DecodeWith(p)
	return d, ok
}

// DecodeWith is Decode that also names the decoder that matched.
func DecodeWith(p Payload) (digest.Digest, string, bool) {
	for _, dec := range Decoders {
		if d, ok := dec.Decode(p); ok {
			return d, dec.Name, true
		}
	}
	return "", "", false
}

func plausible(b []byte) (digest.Digest, bool) {
	if !utf8.Valid(b) {
		return "", false
	}
	d, err := digest.Parse(string(b))
	if err != nil {
		return "", false
	}
	return d, true
}

func decodeUTF8(p Payload) (digest.Digest, bool) {
	if p.IsText {
		return "", false
	}
	return plausible(p.Bytes)
}

func decodeBase64(p Payload) (digest.Digest, bool) {
	if p.IsText || len(p.Bytes) == 0 {
		return "", false
	}
	text := strings.TrimSpace(string(p.Bytes))
	b, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		b, err = base64.RawStdEncoding.DecodeString(text)
		if err != nil {
			return "", false
		}
	}
	return plausible(b)
}

func decodeBase58(p Payload) (digest.Digest, bool) {
	if !p.IsText || p.Text == "" {
		return "", false
	}
	b, err := base58.Decode(p.Text)
	if err != nil {
		return "", false
	}
	return plausible(b)
}

func decodeVerbatim(p Payload) (digest.Digest, bool) {
	if !p.IsText {
		return "", false
	}
	return plausible([]byte(p.Text))
}

// Match returns the index of the first record addressed to programID whose
// decoded payload equals d. Program and digest must match exactly.
func Match(records []Record, programID ledger.PublicKey, d digest.Digest) (int, bool) {
	for i, r := range records {
		if r.ProgramID != programID {
			continue
		}
		got, ok := Decode(r.Data)
		if ok && got == d {
			return i, true
		}
	}
	return -1, false
}

// Package digest computes content digests: the lowercase hex SHA-256 of a
// blob's full byte content. A Digest is an equality key and nothing more.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"

	"github.com/ipfs/go-cid"

	"xdao.co/memoproof/cidutil"
	"xdao.co/memoproof/fault"
)

// Size is the length of a digest in hex characters.
const Size = 2 * sha256.Size

var ErrInvalid = errors.New("digest: not a 64-char lowercase hex string")

// Digest is the lowercase hex SHA-256 of a blob. The zero value is invalid.
type Digest string

// Sum returns the digest of b. An empty b is valid input.
func Sum(b []byte) Digest {
	s := sha256.Sum256(b)
	return Digest(hex.EncodeToString(s[:]))
}

// FromReader digests everything r yields. Read failures are KindDigest errors.
func FromReader(r io.Reader) (Digest, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fault.Wrap(fault.KindDigest, "MEMO-DIGEST-001", "read blob", err)
	}
	return Digest(hex.EncodeToString(h.Sum(nil))), nil
}

// File digests the file at path.
func File(path string) (Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fault.Wrap(fault.KindDigest, "MEMO-DIGEST-002", "open blob", err)
	}
	defer f.Close()
	return FromReader(f)
}

// Parse accepts exactly 64 lowercase hex characters. Uppercase input is
// rejected, not folded: digests compare byte for byte.
func Parse(s string) (Digest, error) {
	if len(s) != Size {
		return "", ErrInvalid
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') {
			continue
		}
		return "", ErrInvalid
	}
	return Digest(s), nil
}

func (d Digest) String() string { return string(d) }

func (d Digest) Valid() bool {
	_, err := Parse(string(d))
	return err == nil
}

// Bytes returns the raw 32-byte hash.
func (d Digest) Bytes() ([]byte, error) {
	if !d.Valid() {
		return nil, ErrInvalid
	}
	return hex.DecodeString(string(d))
}

// CID projects the digest into a CIDv1 (raw + sha2-256). It is the content
// identifier of the digested blob itself.
func (d Digest) CID() (cid.Cid, error) {
	b, err := d.Bytes()
	if err != nil {
		return cid.Undef, err
	}
	return cidutil.FromSHA256(b)
}

// FromCID is the inverse of Digest.CID.
func FromCID(id cid.Cid) (Digest, error) {
	b, err := cidutil.SHA256(id)
	if err != nil {
		return "", err
	}
	return Digest(hex.EncodeToString(b)), nil
}

// ParseAny accepts either a hex digest or a sha2-256 CID string.
func ParseAny(s string) (Digest, error) {
	if d, err := Parse(s); err == nil {
		return d, nil
	}
	id, err := cid.Decode(s)
	if err != nil {
		return "", ErrInvalid
	}
	return FromCID(id)
}

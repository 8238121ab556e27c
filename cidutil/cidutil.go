package cidutil

import (
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// SHA256Size is the length of a sha2-256 digest.
const SHA256Size = 32

// CIDv1RawSHA256 returns a CIDv1 string using the "raw" multicodec
// and a sha2-256 multihash of data.
func CIDv1RawSHA256(data []byte) string {
	id, err := CIDv1RawSHA256CID(data)
	if err != nil {
		return ""
	}
	return id.String()
}

// CIDv1RawSHA256CID returns a CIDv1 (raw + sha2-256) derived from data.
func CIDv1RawSHA256CID(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// FromSHA256 wraps an already computed sha2-256 digest in a CIDv1 (raw)
// without rehashing. The result equals CIDv1RawSHA256CID of the original bytes.
func FromSHA256(sum []byte) (cid.Cid, error) {
	if len(sum) != SHA256Size {
		return cid.Undef, fmt.Errorf("cidutil: sha2-256 digest must be %d bytes, got %d", SHA256Size, len(sum))
	}
	mh, err := multihash.Encode(sum, multihash.SHA2_256)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, mh), nil
}

// SHA256 extracts the sha2-256 digest carried by id.
func SHA256(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, fmt.Errorf("cidutil: undefined cid")
	}
	decoded, err := multihash.Decode(id.Hash())
	if err != nil {
		return nil, err
	}
	if decoded.Code != multihash.SHA2_256 {
		return nil, fmt.Errorf("cidutil: cid %s is not sha2-256", id)
	}
	return decoded.Digest, nil
}

package receipt

import (
	"context"

	"xdao.co/memoproof/digest"
)

// Store is a durable receipt store keyed by digest.
//
// Contract:
// - Put MUST be idempotent.
// - Stored receipts MUST be immutable, except that unset Slot/BlockTime may
//   be filled in (see Merge); any other change is ErrImmutable.
// - Get MUST return ErrNotFound when the digest is absent.
type Store interface {
	Put(ctx context.Context, r Receipt) error
	Get(ctx context.Context, d digest.Digest) (Receipt, error)
	Has(ctx context.Context, d digest.Digest) bool
}

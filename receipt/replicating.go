package receipt

import (
	"context"
	"fmt"

	"xdao.co/memoproof/digest"
)

// NamedStore associates a Store with a stable backend name for reporting.
type NamedStore struct {
	Name  string
	Store Store
}

// ReplicatingStore writes to every backend and reads in order.
type ReplicatingStore struct {
	Backends []NamedStore
}

var _ Store = (*ReplicatingStore)(nil)

// PutAll writes r to every backend and returns per-backend errors. The
// combined error is the first failure, wrapped with its backend name.
func (s ReplicatingStore) PutAll(ctx context.Context, r Receipt) (map[string]error, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if len(s.Backends) == 0 {
		return nil, fmt.Errorf("receipt: ReplicatingStore has no backends")
	}
	out := make(map[string]error, len(s.Backends))
	var first error
	for _, b := range s.Backends {
		if b.Store == nil {
			return out, fmt.Errorf("receipt: nil store for backend %q", b.Name)
		}
		err := b.Store.Put(ctx, r)
		out[b.Name] = err
		if err != nil && first == nil {
			first = fmt.Errorf("receipt: backend %q: %w", b.Name, err)
		}
	}
	return out, first
}

func (s ReplicatingStore) Put(ctx context.Context, r Receipt) error {
	_, err := s.PutAll(ctx, r)
	return err
}

func (s ReplicatingStore) Get(ctx context.Context, d digest.Digest) (Receipt, error) {
	for _, b := range s.Backends {
		if b.Store == nil {
			continue
		}
		r, err := b.Store.Get(ctx, d)
		if err == nil {
			return r, nil
		}
		if IsNotFound(err) {
			continue
		}
		return Receipt{}, err
	}
	return Receipt{}, ErrNotFound
}

func (s ReplicatingStore) Has(ctx context.Context, d digest.Digest) bool {
	for _, b := range s.Backends {
		if b.Store != nil && b.Store.Has(ctx, d) {
			return true
		}
	}
	return false
}

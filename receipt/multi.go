package receipt

import (
	"context"
	"errors"

	"xdao.co/memoproof/digest"
)

// MultiStore provides ordered fallback across stores.
//
// Reads try Stores in slice order. Put writes only to the first store.
type MultiStore struct {
	Stores []Store
}

func (m MultiStore) Put(ctx context.Context, r Receipt) error {
	if len(m.Stores) == 0 {
		return errors.New("receipt: MultiStore has no stores")
	}
	return m.Stores[0].Put(ctx, r)
}

func (m MultiStore) Get(ctx context.Context, d digest.Digest) (Receipt, error) {
	for _, s := range m.Stores {
		r, err := s.Get(ctx, d)
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

func (m MultiStore) Has(ctx context.Context, d digest.Digest) bool {
	for _, s := range m.Stores {
		if s.Has(ctx, d) {
			return true
		}
	}
	return false
}

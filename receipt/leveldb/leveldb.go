// Package leveldb stores receipts in an embedded LevelDB database.
package leveldb

import (
	"context"
	"errors"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"

	"xdao.co/memoproof/digest"
	"xdao.co/memoproof/receipt"
)

var keyPrefix = []byte("receipt/")

// Store keeps receipt JSON under "receipt/<digest>".
type Store struct {
	db *leveldb.DB
	// Serializes read-merge-write in Put.
	mu sync.Mutex
}

var _ receipt.Store = (*Store)(nil)

// Open opens (creating if needed) a database directory at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("leveldb: path is required")
	}
	db, err := leveldb.OpenFile(path, &opt.Options{
		BlockCacheCapacity: 8 * opt.MiB,
		WriteBuffer:        4 * opt.MiB,
	})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// OpenMemory opens a database that lives only in memory.
func OpenMemory() (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func key(d digest.Digest) []byte {
	return append(append([]byte(nil), keyPrefix...), d...)
}

func (s *Store) Put(ctx context.Context, r receipt.Receipt) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.Get(ctx, r.Digest)
	switch {
	case err == nil:
		merged, changed, err := receipt.Merge(existing, r)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		r = merged
	case receipt.IsNotFound(err):
	default:
		return err
	}

	b, err := receipt.Marshal(r)
	if err != nil {
		return err
	}
	return s.db.Put(key(r.Digest), b, &opt.WriteOptions{Sync: true})
}

func (s *Store) Get(ctx context.Context, d digest.Digest) (receipt.Receipt, error) {
	if !d.Valid() {
		return receipt.Receipt{}, receipt.ErrInvalidDigest
	}
	b, err := s.db.Get(key(d), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return receipt.Receipt{}, receipt.ErrNotFound
		}
		return receipt.Receipt{}, err
	}
	r, err := receipt.Unmarshal(b)
	if err != nil {
		return receipt.Receipt{}, err
	}
	if r.Digest != d {
		return receipt.Receipt{}, receipt.ErrImmutable
	}
	return r, nil
}

func (s *Store) Has(ctx context.Context, d digest.Digest) bool {
	if !d.Valid() {
		return false
	}
	ok, err := s.db.Has(key(d), nil)
	return err == nil && ok
}

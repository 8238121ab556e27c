// Package localfs stores receipts as JSON files on the local filesystem.
package localfs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"xdao.co/memoproof/digest"
	"xdao.co/memoproof/receipt"
)

// Store keeps one JSON file per digest, named by the digest's CID and
// sharded by the CID's last two characters.
//
// Files are written to a temporary name and renamed into place, so readers
// never observe a partial receipt.
type Store struct {
	root string
	mu   sync.Mutex
}

var _ receipt.Store = (*Store)(nil)

// New constructs a filesystem store rooted at root. The directory will be
// created if needed.
func New(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("localfs: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root}, nil
}

func (s *Store) Put(ctx context.Context, r receipt.Receipt) error {
	if err := r.Validate(); err != nil {
		return err
	}
	path, err := s.pathFor(r.Digest)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.read(path, r.Digest)
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
		// An unreadable or corrupted file is never repaired by a write.
		return receipt.ErrImmutable
	}

	b, err := receipt.Marshal(r)
	if err != nil {
		return err
	}
	return writeAtomic(path, b)
}

func (s *Store) Get(ctx context.Context, d digest.Digest) (receipt.Receipt, error) {
	path, err := s.pathFor(d)
	if err != nil {
		return receipt.Receipt{}, err
	}
	return s.read(path, d)
}

func (s *Store) Has(ctx context.Context, d digest.Digest) bool {
	path, err := s.pathFor(d)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

func (s *Store) read(path string, d digest.Digest) (receipt.Receipt, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
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

func (s *Store) pathFor(d digest.Digest) (string, error) {
	id, err := d.CID()
	if err != nil {
		return "", receipt.ErrInvalidDigest
	}
	name := id.String()
	return filepath.Join(s.root, name[len(name)-2:], name+".json"), nil
}

func writeAtomic(path string, b []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(path), ".receipt-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Chmod(tmp, 0o444); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

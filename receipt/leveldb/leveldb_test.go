package leveldb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"xdao.co/memoproof/receipt"
	"xdao.co/memoproof/receipt/testkit"
)

func TestLevelDB_Conformance(t *testing.T) {
	testkit.RunStoreConformance(t, func(t *testing.T) receipt.Store {
		t.Helper()
		s, err := OpenMemory()
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestLevelDB_PersistsAcrossReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	ctx := context.Background()
	r := testkit.Sample("reopen")

	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, r))
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get(ctx, r.Digest)
	require.NoError(t, err)
	require.Equal(t, r.Signature, got.Signature)
}

package storeconfig

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"xdao.co/memoproof/receipt"
	_ "xdao.co/memoproof/receipt/leveldb"
	_ "xdao.co/memoproof/receipt/localfs"
	"xdao.co/memoproof/receipt/registry"
	"xdao.co/memoproof/receipt/testkit"
)

func TestValidate(t *testing.T) {
	require.Error(t, Config{}.Validate())
	require.Error(t, Config{Backends: []BackendConfig{{}}}.Validate())
	require.Error(t, Config{Backends: []BackendConfig{{Name: "memory"}, {Name: "memory"}}}.Validate())
	require.NoError(t, Config{Backends: []BackendConfig{{Name: "memory"}, {Name: "memory", ID: "second"}}}.Validate())
	require.Error(t, Config{WritePolicy: "some", Backends: []BackendConfig{{Name: "memory"}}}.Validate())
}

func TestLoadFileAndOpen_ReplicatesToAll(t *testing.T) {
	dir := t.TempDir()
	fsDir := filepath.Join(dir, "fs")
	dbDir := filepath.Join(dir, "db")
	path := filepath.Join(dir, "receipts.yaml")
	yml := "write_policy: all\nbackends:\n" +
		"  - name: localfs\n    config: {localfs-dir: \"" + fsDir + "\"}\n" +
		"  - name: leveldb\n    id: index\n    config: {leveldb-path: \"" + dbDir + "\"}\n"
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, cfg.Backends, 2)

	s, closeFn, err := cfg.Open(registry.UsageCLI, "")
	require.NoError(t, err)
	defer closeFn()

	rs, ok := s.(receipt.ReplicatingStore)
	require.True(t, ok)
	require.Equal(t, "localfs", rs.Backends[0].Name)
	require.Equal(t, "index", rs.Backends[1].Name)

	r := testkit.Sample("config")
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, r))
	for _, b := range rs.Backends {
		require.True(t, b.Store.Has(ctx, r.Digest), b.Name)
	}
}

func TestOpen_PreferredFirst(t *testing.T) {
	cfg := Config{Backends: []BackendConfig{
		{Name: "memory", ID: "a"},
		{Name: "memory", ID: "b"},
	}}
	s, _, err := cfg.Open(registry.UsageCLI, "b")
	require.NoError(t, err)
	_, ok := s.(receipt.MultiStore)
	require.True(t, ok)

	_, _, err = cfg.Open(registry.UsageCLI, "zzz")
	require.Error(t, err)

	_, _, err = Config{Backends: []BackendConfig{{Name: "localfs"}}}.Open(registry.UsageCLI, "")
	require.Error(t, err, "missing localfs-dir")
}

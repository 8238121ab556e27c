package registry

import (
	"context"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"xdao.co/memoproof/receipt"
	"xdao.co/memoproof/receipt/testkit"
)

func TestRegister_Validates(t *testing.T) {
	require.Error(t, Register(Backend{}))
	require.Error(t, Register(Backend{Name: "x"}))
	require.Error(t, Register(Backend{Name: "x", RegisterFlags: func(*pflag.FlagSet) {}}))
	require.Error(t, Register(Backend{Name: "memory", Usage: UsageCLI,
		RegisterFlags: func(*pflag.FlagSet) {},
		Open:          func() (receipt.Store, func() error, error) { return nil, nil, nil },
		OpenConfig:    func(map[string]string) (receipt.Store, func() error, error) { return nil, nil, nil },
	}), "duplicate name")
}

func TestUsageFiltering(t *testing.T) {
	MustRegister(Backend{
		Name:          "daemon-only-test",
		Usage:         UsageDaemon,
		RegisterFlags: func(fs *pflag.FlagSet) { fs.String("daemon-only-test-flag", "", "") },
		Open:          func() (receipt.Store, func() error, error) { return receipt.NewMemoryStore(), nil, nil },
		OpenConfig: func(map[string]string) (receipt.Store, func() error, error) {
			return receipt.NewMemoryStore(), nil, nil
		},
	})

	require.Contains(t, Names(UsageDaemon), "daemon-only-test")
	require.NotContains(t, Names(UsageCLI), "daemon-only-test")
	require.Contains(t, Names(UsageCLI), "memory")

	_, _, err := Open("daemon-only-test", UsageCLI)
	require.Error(t, err)
	_, _, err = Open("nope", UsageCLI)
	require.Error(t, err)

	fs := pflag.NewFlagSet("t", pflag.ContinueOnError)
	RegisterFlags(fs, UsageDaemon)
	require.NotNil(t, fs.Lookup("daemon-only-test-flag"))
}

func TestOpenMemory(t *testing.T) {
	s, closeFn, err := OpenWithConfig("memory", UsageCLI, nil)
	require.NoError(t, err)
	require.Nil(t, closeFn)

	r := testkit.Sample("registry")
	require.NoError(t, s.Put(context.Background(), r))
	require.True(t, s.Has(context.Background(), r.Digest))
}

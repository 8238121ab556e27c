package leveldb

import (
	"fmt"

	"github.com/spf13/pflag"

	"xdao.co/memoproof/receipt"
	"xdao.co/memoproof/receipt/registry"
)

var flagPath string

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "leveldb",
		Description: "Embedded LevelDB receipt store",
		Usage:       registry.UsageCLI | registry.UsageDaemon,
		RegisterFlags: func(fs *pflag.FlagSet) {
			fs.StringVar(&flagPath, "leveldb-path", "", "LevelDB directory (for --receipts-backend=leveldb)")
		},
		Open: func() (receipt.Store, func() error, error) {
			return open(flagPath)
		},
		OpenConfig: func(cfg map[string]string) (receipt.Store, func() error, error) {
			return open(cfg["leveldb-path"])
		},
	})
}

func open(path string) (receipt.Store, func() error, error) {
	if path == "" {
		return nil, nil, fmt.Errorf("missing --leveldb-path")
	}
	s, err := Open(path)
	if err != nil {
		return nil, nil, err
	}
	return s, s.Close, nil
}

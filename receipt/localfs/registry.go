package localfs

import (
	"fmt"

	"github.com/spf13/pflag"

	"xdao.co/memoproof/receipt"
	"xdao.co/memoproof/receipt/registry"
)

var flagDir string

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "localfs",
		Description: "Local filesystem receipt store (directory of JSON files)",
		Usage:       registry.UsageCLI | registry.UsageDaemon,
		RegisterFlags: func(fs *pflag.FlagSet) {
			fs.StringVar(&flagDir, "localfs-dir", "", "Receipt directory (for --receipts-backend=localfs)")
		},
		Open: func() (receipt.Store, func() error, error) {
			return open(flagDir)
		},
		OpenConfig: func(cfg map[string]string) (receipt.Store, func() error, error) {
			return open(cfg["localfs-dir"])
		},
	})
}

func open(dir string) (receipt.Store, func() error, error) {
	if dir == "" {
		return nil, nil, fmt.Errorf("missing --localfs-dir")
	}
	s, err := New(dir)
	if err != nil {
		return nil, nil, err
	}
	return s, nil, nil
}

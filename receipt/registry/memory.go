package registry

import (
	"github.com/spf13/pflag"

	"xdao.co/memoproof/receipt"
)

func init() {
	open := func() (receipt.Store, func() error, error) {
		return receipt.NewMemoryStore(), nil, nil
	}
	MustRegister(Backend{
		Name:          "memory",
		Description:   "In-process receipt store (lost on exit)",
		Usage:         UsageCLI | UsageDaemon,
		RegisterFlags: func(*pflag.FlagSet) {},
		Open:          open,
		OpenConfig:    func(map[string]string) (receipt.Store, func() error, error) { return open() },
	})
}

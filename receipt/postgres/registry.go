package postgres

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"xdao.co/memoproof/receipt"
	"xdao.co/memoproof/receipt/registry"
)

var flagDSN string

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "postgres",
		Description: "PostgreSQL receipt store",
		Usage:       registry.UsageDaemon,
		RegisterFlags: func(fs *pflag.FlagSet) {
			fs.StringVar(&flagDSN, "postgres-dsn", "", "PostgreSQL connection string (for --receipts-backend=postgres)")
		},
		Open: func() (receipt.Store, func() error, error) {
			return open(flagDSN)
		},
		OpenConfig: func(cfg map[string]string) (receipt.Store, func() error, error) {
			return open(cfg["postgres-dsn"])
		},
	})
}

func open(dsn string) (receipt.Store, func() error, error) {
	if dsn == "" {
		return nil, nil, fmt.Errorf("missing --postgres-dsn")
	}
	s, err := Open(context.Background(), &Config{DSN: dsn})
	if err != nil {
		return nil, nil, err
	}
	return s, s.Close, nil
}

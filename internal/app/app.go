// Package app wires configuration into a ready registrar for the commands.
package app

import (
	"context"
	"errors"
	"log/slog"

	"xdao.co/memoproof/chainrpc"
	"xdao.co/memoproof/config"
	"xdao.co/memoproof/keys"
	"xdao.co/memoproof/receipt"
	"xdao.co/memoproof/receipt/registry"
	"xdao.co/memoproof/registrar"
	"xdao.co/memoproof/submit"
	"xdao.co/memoproof/verify"
	"xdao.co/memoproof/wallet"
)

// Options override parts of the loaded configuration.
type Options struct {
	// Receipts, when set, is used instead of opening cfg.Receipts.
	Receipts receipt.Store
	// SeedHex is a fee payer seed given on the command line.
	SeedHex string
	// ReadOnly skips loading a fee payer.
	ReadOnly bool
}

type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Chain    *chainrpc.Client
	Receipts receipt.Store
	Wallet   *wallet.Keypair
	Engine   *verify.Engine
	Service  *registrar.Service

	closers []func() error
}

// Open dials the ledger, opens receipts and, unless ReadOnly, loads the fee
// payer. Close releases everything Open acquired.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger, usage registry.Usage, opts Options) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	chainOpts := cfg.ChainOptions()
	chainOpts.Logger = logger
	chain, err := chainrpc.Dial(ctx, cfg.RPC.Endpoint, chainOpts)
	if err != nil {
		return nil, err
	}
	a.Chain = chain
	a.closers = append(a.closers, chain.Close)

	a.Receipts = opts.Receipts
	if a.Receipts == nil {
		store, closeFn, err := cfg.Receipts.Open(usage, "")
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.Receipts = store
		if closeFn != nil {
			a.closers = append(a.closers, closeFn)
		}
	}

	a.Engine = verify.New(chain, logger)
	cfg.Verify.Apply(a.Engine)
	a.Service = &registrar.Service{
		Engine:       a.Engine,
		Receipts:     a.Receipts,
		Cluster:      cfg.Cluster,
		InitialDelay: cfg.Verify.InitialDelay,
		Logger:       logger,
	}
	if cfg.Verify.InitialDelay == 0 {
		a.Service.InitialDelay = registrar.NoInitialDelay
	}

	if !opts.ReadOnly {
		w, err := LoadWallet(cfg.Keys, opts.SeedHex, chain)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.Wallet = w
		a.Service.Submitter = submit.New(chain, w, logger)
	}
	return a, nil
}

// LoadWallet builds the fee payer from a seed, a keypair file or the key
// store, in that order.
func LoadWallet(kc config.KeysConfig, seedHex string, sender wallet.Sender) (*wallet.Keypair, error) {
	ks, err := keys.CreateKeyStore(kc.Directory)
	if err != nil {
		return nil, err
	}
	seed, err := ks.LoadSeed(seedHex, kc.Identifier, kc.Label, kc.KeypairFile)
	if err != nil {
		return nil, err
	}
	return wallet.NewKeypair(seed, sender)
}

// Defer registers fn to run on Close, before the resources Open acquired.
func (a *App) Defer(fn func() error) { a.closers = append(a.closers, fn) }

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

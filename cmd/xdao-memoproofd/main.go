package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"xdao.co/memoproof/api/httpserver"
	"xdao.co/memoproof/config"
	"xdao.co/memoproof/internal/app"
	"xdao.co/memoproof/receipt"
	"xdao.co/memoproof/receipt/registry"

	_ "xdao.co/memoproof/receipt/grpcstore"
	_ "xdao.co/memoproof/receipt/leveldb"
	_ "xdao.co/memoproof/receipt/localfs"
	_ "xdao.co/memoproof/receipt/postgres"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	configPath string
	listen     string
	rpcURL     string
	backend    string
	readOnly   bool
	seedHex    string
	keyFile    string
	signer     string
	label      string
	keysDir    string
	list       bool
}

func (o *options) bind(fs *pflag.FlagSet) {
	fs.StringVar(&o.configPath, "config", "", "YAML config file")
	fs.StringVar(&o.listen, "listen", "", "Listen address (overrides http.listen)")
	fs.StringVar(&o.rpcURL, "rpc-url", "", "Ledger JSON-RPC endpoint (overrides rpc.endpoint)")
	fs.StringVar(&o.backend, "receipts-backend", "", "Receipt backend name (overrides config receipts)")
	fs.BoolVar(&o.readOnly, "read-only", false, "Serve digest/verify/receipts only; /v1/register fails")
	fs.StringVar(&o.seedHex, "seed-hex", "", "Fee payer ed25519 seed as 64 hex chars")
	fs.StringVar(&o.keyFile, "key-file", "", "Fee payer seed file (hex or keypair JSON)")
	fs.StringVar(&o.signer, "signer", "", "Fee payer key name in the key store")
	fs.StringVar(&o.label, "signer-label", "", "Derived label under --signer")
	fs.StringVar(&o.keysDir, "keys-dir", "", "Key store directory")
	fs.BoolVar(&o.list, "list-backends", false, "List supported receipt backends and exit")
	registry.RegisterFlags(fs, registry.UsageDaemon)
}

func (o *options) config() (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return cfg, err
	}
	if o.listen != "" {
		cfg.HTTP.Listen = o.listen
	}
	if o.rpcURL != "" {
		cfg.RPC.Endpoint = o.rpcURL
	}
	if o.keysDir != "" {
		cfg.Keys.Directory = o.keysDir
	}
	if o.signer != "" {
		cfg.Keys.Identifier, cfg.Keys.Label = o.signer, o.label
	}
	if o.keyFile != "" {
		cfg.Keys.KeypairFile = o.keyFile
	}
	return cfg, cfg.Validate()
}

func run(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("xdao-memoproofd", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	var o options
	o.bind(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if o.list {
		for _, b := range registry.List(registry.UsageDaemon) {
			fmt.Fprintf(out, "%s\t%s\n", b.Name, b.Description)
		}
		return 0
	}

	cfg, err := o.config()
	if err != nil {
		fmt.Fprintf(errOut, "config: %v\n", err)
		return 2
	}
	logger := cfg.Log.NewLogger(errOut)

	a, handler, err := build(ctx, cfg, logger, o)
	if err != nil {
		logger.Error("startup failed", "err", err)
		return 1
	}
	defer a.Close()

	lis, err := net.Listen("tcp", cfg.HTTP.Listen)
	if err != nil {
		logger.Error("listen failed", "addr", cfg.HTTP.Listen, "err", err)
		return 1
	}
	if err := serve(ctx, lis, handler, cfg.HTTP, logger); err != nil {
		logger.Error("server stopped", "err", err)
		return 1
	}
	return 0
}

// build opens the application and its HTTP handler.
func build(ctx context.Context, cfg config.Config, logger *slog.Logger, o options) (*app.App, http.Handler, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	var (
		store    receipt.Store
		closeFn  func() error
		storeErr error
	)
	if o.backend != "" {
		store, closeFn, storeErr = registry.Open(o.backend, registry.UsageDaemon)
		if storeErr != nil {
			return nil, nil, storeErr
		}
	}
	a, err := app.Open(ctx, cfg, logger, registry.UsageDaemon, app.Options{
		Receipts: store,
		SeedHex:  o.seedHex,
		ReadOnly: o.readOnly,
	})
	if err != nil {
		if closeFn != nil {
			_ = closeFn()
		}
		return nil, nil, err
	}
	if closeFn != nil {
		a.Defer(closeFn)
	}
	if a.Wallet != nil {
		logger.Info("fee payer loaded", "address", a.Wallet.PublicKey().String())
	}

	srv := httpserver.New(a.Service, logger)
	srv.MaxUploadBytes = cfg.HTTP.MaxUploadBytes
	return a, srv.Handler(), nil
}

func serve(ctx context.Context, lis net.Listener, h http.Handler, hc config.HTTPConfig, logger *slog.Logger) error {
	s := &http.Server{
		Handler:      h,
		ReadTimeout:  hc.ReadTimeout,
		WriteTimeout: hc.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(lis) }()
	logger.Info("xdao-memoproofd listening", "addr", lis.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), hc.ShutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("xdao-memoproofd stopped")
	return nil
}

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"google.golang.org/grpc"

	"xdao.co/memoproof/config"
	"xdao.co/memoproof/receipt"
	"xdao.co/memoproof/receipt/grpcstore"
	"xdao.co/memoproof/receipt/registry"
	"xdao.co/memoproof/receipt/storeconfig"

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

func run(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("xdao-receiptd", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	listen := fs.String("listen", "127.0.0.1:7443", "listen address")
	backend := fs.String("backend", "localfs", "Receipt backend name")
	storesPath := fs.String("stores", "", "Receipt store YAML (write_policy + backends); overrides --backend")
	logLevel := fs.String("log-level", "info", "debug, info, warn or error")
	logFormat := fs.String("log-format", "text", "text or json")
	maxMsg := fs.Int("max-msg-bytes", 0, "Max gRPC message size in bytes; 0 uses grpc defaults")
	listBackends := fs.Bool("list-backends", false, "List supported backends and exit")

	registry.RegisterFlags(fs, registry.UsageDaemon)

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *listBackends {
		for _, b := range registry.List(registry.UsageDaemon) {
			if b.Name == "grpc" {
				continue
			}
			if b.Description == "" {
				fmt.Fprintf(out, "%s\n", b.Name)
				continue
			}
			fmt.Fprintf(out, "%s\t%s\n", b.Name, b.Description)
		}
		return 0
	}

	logCfg := config.LogConfig{Level: *logLevel, Format: *logFormat}
	if _, err := config.ParseLevel(logCfg.Level); err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	logger := logCfg.NewLogger(errOut)

	store, closeFn, err := openStore(*storesPath, *backend)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	if closeFn != nil {
		defer closeFn()
	}

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer lis.Close()

	logger.Info("xdao-receiptd listening", "addr", lis.Addr().String(), "backend", *backend)
	if err := serve(ctx, lis, store, *maxMsg, logger); err != nil {
		logger.Error("serve failed", "err", err)
		return 1
	}
	return 0
}

func openStore(storesPath, backend string) (receipt.Store, func() error, error) {
	if storesPath == "" {
		if backend == "grpc" {
			return nil, nil, fmt.Errorf("backend %q would proxy to itself", backend)
		}
		return registry.Open(backend, registry.UsageDaemon)
	}
	cfg, err := storeconfig.LoadFile(storesPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg.Open(registry.UsageDaemon, "")
}

// serve runs the Receipts service on lis until ctx is done.
func serve(ctx context.Context, lis net.Listener, store receipt.Store, maxMsg int, logger *slog.Logger) error {
	var opts []grpc.ServerOption
	if maxMsg > 0 {
		opts = append(opts, grpc.MaxRecvMsgSize(maxMsg), grpc.MaxSendMsgSize(maxMsg))
	}
	s := grpc.NewServer(opts...)
	grpcstore.RegisterReceiptsServer(s, &grpcstore.Server{Store: store, Logger: logger})

	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(lis) }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.GracefulStop()
		<-errCh
		return nil
	}
}

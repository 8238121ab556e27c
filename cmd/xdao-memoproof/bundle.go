package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"xdao.co/memoproof/digest"
	"xdao.co/memoproof/receipt"
	"xdao.co/memoproof/receipt/bundle"
	"xdao.co/memoproof/receipt/registry"
)

func cmdBundle(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: xdao-memoproof bundle <export|import> ...")
		return 2
	}
	switch args[0] {
	case "export":
		return cmdBundleExport(ctx, args[1:], out, errOut)
	case "import":
		return cmdBundleImport(ctx, args[1:], out, errOut)
	default:
		fmt.Fprintf(errOut, "unknown bundle subcommand: %s\n", args[0])
		return 2
	}
}

// openReceipts opens the store selected by flags or, failing that, config.
func (c *common) openReceipts() (receipt.Store, func() error, error) {
	store, closeFn, err := c.receipts()
	if err != nil || store != nil {
		return store, closeFn, err
	}
	cfg, err := c.config()
	if err != nil {
		return nil, nil, err
	}
	return cfg.Receipts.Open(registry.UsageCLI, "")
}

func cmdBundleExport(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("bundle export", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	var c common
	c.bind(fs, false)
	outPath := fs.String("out", "", "Destination .tar file")
	index := fs.Bool("index", true, "Include index.json")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *outPath == "" || fs.NArg() == 0 {
		fmt.Fprintln(errOut, "usage: xdao-memoproof bundle export --out <file.tar> <digest|cid|file>...")
		return 2
	}
	ds := make([]digest.Digest, 0, fs.NArg())
	for _, arg := range fs.Args() {
		d, err := digest.ParseAny(arg)
		if err != nil {
			d, err = digest.File(arg)
		}
		if err != nil {
			fmt.Fprintf(errOut, "%s: not a digest, CID or readable file\n", arg)
			return 2
		}
		ds = append(ds, d)
	}

	store, closeFn, err := c.openReceipts()
	if err != nil {
		fmt.Fprintf(errOut, "receipts: %v\n", err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}

	f, err := os.OpenFile(*outPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		fmt.Fprintf(errOut, "create: %v\n", err)
		return 1
	}
	if err := bundle.Export(ctx, f, store, ds, bundle.ExportOptions{IncludeIndex: *index}); err != nil {
		_ = f.Close()
		_ = os.Remove(*outPath)
		fmt.Fprintf(errOut, "export: %v\n", err)
		return 1
	}
	if err := f.Close(); err != nil {
		fmt.Fprintf(errOut, "close: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Exported %d receipts to %s\n", len(ds), *outPath)
	return 0
}

func cmdBundleImport(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("bundle import", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	var c common
	c.bind(fs, false)
	ignoreUnknown := fs.Bool("ignore-unknown", false, "Skip entries that are not receipts")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: xdao-memoproof bundle import <file.tar>")
		return 2
	}

	store, closeFn, err := c.openReceipts()
	if err != nil {
		fmt.Fprintf(errOut, "receipts: %v\n", err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "open: %v\n", err)
		return 1
	}
	defer f.Close()
	n, err := bundle.Import(ctx, f, store, bundle.ImportOptions{IgnoreUnknown: *ignoreUnknown})
	if err != nil {
		fmt.Fprintf(errOut, "import: %v (after %d receipts)\n", err, n)
		return 1
	}
	fmt.Fprintf(out, "Imported %d receipts\n", n)
	return 0
}

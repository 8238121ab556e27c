package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"xdao.co/memoproof/config"
	"xdao.co/memoproof/digest"
	"xdao.co/memoproof/internal/app"
	"xdao.co/memoproof/model"
	"xdao.co/memoproof/receipt"
	"xdao.co/memoproof/receipt/registry"
	"xdao.co/memoproof/registrar"
	"xdao.co/memoproof/verify"

	_ "xdao.co/memoproof/receipt/grpcstore"
	_ "xdao.co/memoproof/receipt/leveldb"
	_ "xdao.co/memoproof/receipt/localfs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "digest":
		return cmdDigest(args[1:], out, errOut)
	case "register":
		return cmdRegister(ctx, args[1:], out, errOut)
	case "verify":
		return cmdVerify(ctx, args[1:], out, errOut)
	case "receipts":
		return cmdReceipts(ctx, args[1:], out, errOut)
	case "key":
		return cmdKey(args[1:], out, errOut)
	case "bundle":
		return cmdBundle(ctx, args[1:], out, errOut)
	case "backends":
		for _, b := range registry.List(registry.UsageCLI) {
			fmt.Fprintf(out, "%s\t%s\n", b.Name, b.Description)
		}
		return 0
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "xdao-memoproof: anchor file digests in ledger memos and prove them later")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  xdao-memoproof digest <file>")
	fmt.Fprintln(w, "  xdao-memoproof register (<file> | --digest <hex|cid>) [--force] [--no-verify] [signer flags]")
	fmt.Fprintln(w, "  xdao-memoproof verify (<file> | --digest <hex|cid>) [--signature <sig>] [--scan]")
	fmt.Fprintln(w, "  xdao-memoproof receipts (<file> | --digest <hex|cid>)")
	fmt.Fprintln(w, "  xdao-memoproof key init --name <name> [--seed-hex <64hex>] [--force]")
	fmt.Fprintln(w, "  xdao-memoproof key derive --from <name> --label <label> [--force]")
	fmt.Fprintln(w, "  xdao-memoproof key import --name <name> --file <keypair.json> [--force]")
	fmt.Fprintln(w, "  xdao-memoproof key export --name <name> [--label <label>] --out <keypair.json> [--force]")
	fmt.Fprintln(w, "  xdao-memoproof key address --name <name> [--label <label>]")
	fmt.Fprintln(w, "  xdao-memoproof key list")
	fmt.Fprintln(w, "  xdao-memoproof bundle export --out <file.tar> <digest|cid|file>...")
	fmt.Fprintln(w, "  xdao-memoproof bundle import [--ignore-unknown] <file.tar>")
	fmt.Fprintln(w, "  xdao-memoproof backends")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Common flags:")
	fmt.Fprintln(w, "  --config <file>            YAML configuration (rpc, verify, receipts, keys, log)")
	fmt.Fprintln(w, "  --rpc-url <url>            ledger JSON-RPC endpoint")
	fmt.Fprintln(w, "  --receipts-backend <name>  receipt backend (see `backends`); default localfs under ~/.xdao/memoproof/receipts")
	fmt.Fprintln(w, "  --json                     print API-shaped JSON instead of text")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Signer flags (register):")
	fmt.Fprintln(w, "  --seed-hex <64hex> | --key-file <path> | --signer <name> [--signer-label <label>]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Exit status: 0 found/ok, 1 not found or failed, 2 usage error")
}

// common holds flags shared by the commands that talk to the ledger.
type common struct {
	configPath  string
	rpcURL      string
	cluster     string
	backend     string
	keysDir     string
	seedHex     string
	keyFile     string
	signer      string
	signerLabel string
	digestArg   string
	logLevel    string
	jsonOut     bool
}

func (c *common) bind(fs *pflag.FlagSet, withSigner bool) {
	fs.StringVar(&c.configPath, "config", "", "YAML config file")
	fs.StringVar(&c.rpcURL, "rpc-url", "", "Ledger JSON-RPC endpoint (overrides config)")
	fs.StringVar(&c.cluster, "cluster", "", "Cluster label stored in receipts (overrides config)")
	fs.StringVar(&c.backend, "receipts-backend", "", "Receipt backend name (overrides config receipts)")
	fs.StringVar(&c.digestArg, "digest", "", "Digest as 64 hex chars or CID instead of a file")
	fs.StringVar(&c.logLevel, "log-level", "", "debug, info, warn or error (overrides config)")
	fs.BoolVar(&c.jsonOut, "json", false, "Print JSON")
	fs.StringVar(&c.keysDir, "keys-dir", "", "Key store directory (default ~/.xdao/memoproof/keys)")
	if withSigner {
		fs.StringVar(&c.seedHex, "seed-hex", "", "Fee payer ed25519 seed as 64 hex chars")
		fs.StringVar(&c.keyFile, "key-file", "", "Fee payer seed file (hex or keypair JSON)")
		fs.StringVar(&c.signer, "signer", "", "Fee payer key name in the key store")
		fs.StringVar(&c.signerLabel, "signer-label", "", "Derived label under --signer")
	}
	registry.RegisterFlags(fs, registry.UsageCLI)
}

func (c *common) config() (config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return cfg, err
	}
	if c.rpcURL != "" {
		cfg.RPC.Endpoint = c.rpcURL
	}
	if c.cluster != "" {
		cfg.Cluster = c.cluster
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	if c.keysDir != "" {
		cfg.Keys.Directory = c.keysDir
	}
	if c.signer != "" {
		cfg.Keys.Identifier, cfg.Keys.Label, cfg.Keys.KeypairFile = c.signer, c.signerLabel, ""
	}
	if c.keyFile != "" {
		cfg.Keys.KeypairFile = c.keyFile
	}
	return cfg, cfg.Validate()
}

// receipts opens the flag-selected backend. With no flag and no config file
// it falls back to localfs under the default directory.
func (c *common) receipts() (receipt.Store, func() error, error) {
	if c.backend != "" {
		return registry.Open(c.backend, registry.UsageCLI)
	}
	if c.configPath != "" {
		return nil, nil, nil
	}
	dir, err := defaultReceiptsDir()
	if err != nil {
		return nil, nil, err
	}
	return registry.OpenWithConfig("localfs", registry.UsageCLI, map[string]string{"localfs-dir": dir})
}

func defaultReceiptsDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".xdao", "memoproof", "receipts"), nil
}

func (c *common) open(ctx context.Context, errOut io.Writer, readOnly bool) (*app.App, bool) {
	cfg, err := c.config()
	if err != nil {
		fmt.Fprintf(errOut, "config: %v\n", err)
		return nil, false
	}
	store, closeStore, err := c.receipts()
	if err != nil {
		fmt.Fprintf(errOut, "receipts: %v\n", err)
		return nil, false
	}
	a, err := app.Open(ctx, cfg, cfg.Log.NewLogger(errOut), registry.UsageCLI, app.Options{
		Receipts: store,
		SeedHex:  c.seedHex,
		ReadOnly: readOnly,
	})
	if err != nil {
		if closeStore != nil {
			_ = closeStore()
		}
		fmt.Fprintf(errOut, "open: %v\n", err)
		return nil, false
	}
	if closeStore != nil {
		a.Defer(closeStore)
	}
	return a, true
}

// subject resolves the positional file or --digest into a digest.
func (c *common) subject(fs *pflag.FlagSet, errOut io.Writer) (digest.Digest, bool) {
	switch {
	case c.digestArg != "" && fs.NArg() == 0:
		d, err := digest.ParseAny(strings.TrimSpace(c.digestArg))
		if err != nil {
			fmt.Fprintf(errOut, "invalid --digest: %v\n", err)
			return "", false
		}
		return d, true
	case c.digestArg == "" && fs.NArg() == 1:
		d, err := digest.File(fs.Arg(0))
		if err != nil {
			fmt.Fprintf(errOut, "digest: %v\n", err)
			return "", false
		}
		return d, true
	default:
		fmt.Fprintln(errOut, "expected exactly one of <file> or --digest")
		return "", false
	}
}

func writeJSON(out io.Writer, v any) {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func cmdDigest(args []string, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("digest", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	jsonOut := fs.Bool("json", false, "Print JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: xdao-memoproof digest <file>")
		return 2
	}
	f, err := os.Open(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "open: %v\n", err)
		return 1
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		fmt.Fprintf(errOut, "stat: %v\n", err)
		return 1
	}
	d, err := digest.FromReader(f)
	if err != nil {
		fmt.Fprintf(errOut, "digest: %v\n", err)
		return 1
	}
	resp, err := model.NewDigestResponse(d, filepath.Base(fs.Arg(0)), st.Size())
	if err != nil {
		fmt.Fprintf(errOut, "cid: %v\n", err)
		return 1
	}
	if *jsonOut {
		writeJSON(out, resp)
		return 0
	}
	fmt.Fprintln(out, resp.Digest)
	fmt.Fprintf(out, "cid: %s\n", resp.CID)
	return 0
}

func cmdRegister(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("register", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	var c common
	c.bind(fs, true)
	force := fs.Bool("force", false, "Submit even if a receipt already exists")
	noVerify := fs.Bool("no-verify", false, "Return after dispatch without polling for confirmation")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	d, ok := c.subject(fs, errOut)
	if !ok {
		return 2
	}
	a, ok := c.open(ctx, errOut, false)
	if !ok {
		return 1
	}
	defer a.Close()

	reg, err := a.Service.Register(ctx, d, registrar.RegisterOptions{Force: *force, SkipVerify: *noVerify})
	if errors.Is(err, registrar.ErrAlreadyRegistered) {
		fmt.Fprintf(errOut, "already registered with signature %s (use --force to submit again)\n", reg.Receipt.Signature)
		return 1
	}
	if err != nil {
		fmt.Fprintf(errOut, "register: %v\n", err)
		return 1
	}
	if reg.ReceiptErr != nil {
		fmt.Fprintf(errOut, "warning: receipt not saved: %v\n", reg.ReceiptErr)
	}

	if c.jsonOut {
		writeJSON(out, model.NewRegisterResponse(reg))
	} else {
		fmt.Fprintf(out, "Submitted: %s\n", reg.Result.Signature)
		fmt.Fprintf(out, "Digest: %s\n", d)
		fmt.Fprintf(out, "Payer: %s\n", reg.Result.Payer)
		if reg.Outcome.Strategy != "" {
			printOutcome(out, reg.Outcome)
		}
	}
	if reg.Outcome.Strategy != "" && !reg.Outcome.Found() {
		return 1
	}
	return 0
}

func cmdVerify(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("verify", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	var c common
	c.bind(fs, false)
	sigArg := fs.String("signature", "", "Check only this transaction signature")
	scan := fs.Bool("scan", false, "Skip the receipt and scan recent memo history")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	d, ok := c.subject(fs, errOut)
	if !ok {
		return 2
	}
	req := model.VerifyRequest{Signature: *sigArg, Scan: *scan}
	opts, err := req.Options()
	if err != nil {
		fmt.Fprintf(errOut, "invalid --signature: %v\n", err)
		return 2
	}
	a, ok := c.open(ctx, errOut, true)
	if !ok {
		return 1
	}
	defer a.Close()

	o := a.Service.Verify(ctx, d, opts)
	if c.jsonOut {
		writeJSON(out, model.NewVerifyResponse(o))
	} else {
		printOutcome(out, o)
	}
	if !o.Found() {
		return 1
	}
	return 0
}

func printOutcome(out io.Writer, o verify.Outcome) {
	switch o.Status {
	case verify.StatusFound:
		fmt.Fprintf(out, "FOUND (%s) signature=%s slot=%d", o.Strategy, o.Signature, o.Slot)
		if o.BlockTime != nil {
			fmt.Fprintf(out, " block_time=%s", o.BlockTime.UTC().Format("2006-01-02T15:04:05Z"))
		}
		fmt.Fprintln(out)
	case verify.StatusNotFound:
		fmt.Fprintf(out, "NOT FOUND (%s, %s after %d): %s\n", o.Strategy, o.Reason, o.Attempts, o.Message)
	default:
		fmt.Fprintf(out, "ERROR (%s): %s\n", o.Strategy, o.Message)
	}
}

func cmdReceipts(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("receipts", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	var c common
	c.bind(fs, false)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	d, ok := c.subject(fs, errOut)
	if !ok {
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

	r, err := store.Get(ctx, d)
	if receipt.IsNotFound(err) {
		fmt.Fprintf(errOut, "no receipt for %s\n", d)
		return 1
	}
	if err != nil {
		fmt.Fprintf(errOut, "receipts: %v\n", err)
		return 1
	}
	if c.jsonOut {
		writeJSON(out, model.NewReceiptResponse(r))
		return 0
	}
	fmt.Fprintf(out, "Digest: %s\n", r.Digest)
	fmt.Fprintf(out, "Signature: %s\n", r.Signature)
	fmt.Fprintf(out, "Payer: %s\n", r.Payer)
	if r.Cluster != "" {
		fmt.Fprintf(out, "Cluster: %s\n", r.Cluster)
	}
	fmt.Fprintf(out, "Submitted: %s\n", r.SubmittedAt.UTC().Format("2006-01-02T15:04:05Z"))
	if r.Confirmed() {
		fmt.Fprintf(out, "Confirmed: slot %d\n", r.Slot)
	} else {
		fmt.Fprintln(out, "Confirmed: no")
	}
	return 0
}

package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"

	"xdao.co/memoproof/keys"
)

func cmdKey(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printKeyUsage(errOut)
		return 2
	}
	switch args[0] {
	case "init":
		return cmdKeyInit(args[1:], out, errOut)
	case "derive":
		return cmdKeyDerive(args[1:], out, errOut)
	case "import":
		return cmdKeyImport(args[1:], out, errOut)
	case "export":
		return cmdKeyExport(args[1:], out, errOut)
	case "address":
		return cmdKeyAddress(args[1:], out, errOut)
	case "list":
		return cmdKeyList(args[1:], out, errOut)
	case "help", "-h", "--help":
		printKeyUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown key subcommand: %s\n\n", args[0])
		printKeyUsage(errOut)
		return 2
	}
}

func printKeyUsage(w io.Writer) {
	fmt.Fprintln(w, "xdao-memoproof key: local fee payer key management")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  xdao-memoproof key init --name <name> [--seed-hex <64hex>] [--force]")
	fmt.Fprintln(w, "  xdao-memoproof key derive --from <name> --label <label> [--force]")
	fmt.Fprintln(w, "  xdao-memoproof key import --name <name> --file <keypair.json> [--force]")
	fmt.Fprintln(w, "  xdao-memoproof key export --name <name> [--label <label>] --out <keypair.json> [--force]")
	fmt.Fprintln(w, "  xdao-memoproof key address --name <name> [--label <label>]")
	fmt.Fprintln(w, "  xdao-memoproof key list")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "All subcommands accept --keys-dir (default ~/.xdao/memoproof/keys).")
}

func keyFlags(name string, errOut io.Writer) (*pflag.FlagSet, *string) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(errOut)
	dir := fs.String("keys-dir", "", "Key store directory")
	return fs, dir
}

func openKeyStore(dir string, errOut io.Writer) (*keys.KeyStore, bool) {
	ks, err := keys.CreateKeyStore(dir)
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return nil, false
	}
	return ks, true
}

func cmdKeyInit(args []string, out io.Writer, errOut io.Writer) int {
	fs, dir := keyFlags("key init", errOut)
	name := fs.String("name", "", "Key name (directory under the key store)")
	seedHex := fs.String("seed-hex", "", "Optional ed25519 seed as 64 hex chars (for reproducible demos)")
	force := fs.Bool("force", false, "Overwrite existing key files")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *name == "" {
		fmt.Fprintln(errOut, "missing --name")
		return 2
	}
	if err := keys.CheckKeyName(*name); err != nil {
		fmt.Fprintf(errOut, "invalid --name: %v\n", err)
		return 2
	}

	var seed []byte
	if *seedHex != "" {
		var err error
		seed, err = keys.ParseSeedHex(*seedHex)
		if err != nil {
			fmt.Fprintf(errOut, "invalid --seed-hex: %v\n", err)
			return 2
		}
	} else {
		seed = make([]byte, ed25519.SeedSize)
		if _, err := rand.Read(seed); err != nil {
			fmt.Fprintf(errOut, "rand: %v\n", err)
			return 1
		}
	}

	ks, ok := openKeyStore(*dir, errOut)
	if !ok {
		return 1
	}
	addr, path, err := ks.InitializeRootKey(*name, seed, *force)
	if err != nil {
		fmt.Fprintf(errOut, "write key: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Created root key: %s\n", addr)
	fmt.Fprintf(out, "Stored at: %s\n", path)
	return 0
}

func cmdKeyDerive(args []string, out io.Writer, errOut io.Writer) int {
	fs, dir := keyFlags("key derive", errOut)
	from := fs.String("from", "", "Root key name")
	label := fs.String("label", "", "Label for the derived key (e.g. registrar, ci)")
	force := fs.Bool("force", false, "Overwrite existing key files")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *from == "" || *label == "" {
		fmt.Fprintln(errOut, "missing --from or --label")
		return 2
	}
	ks, ok := openKeyStore(*dir, errOut)
	if !ok {
		return 1
	}
	addr, path, err := ks.DeriveLabelKey(*from, *label, *force)
	if err != nil {
		fmt.Fprintf(errOut, "derive key: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Created label key: %s\n", addr)
	fmt.Fprintf(out, "Stored at: %s\n", path)
	return 0
}

func cmdKeyImport(args []string, out io.Writer, errOut io.Writer) int {
	fs, dir := keyFlags("key import", errOut)
	name := fs.String("name", "", "Key name")
	file := fs.String("file", "", "Ledger CLI keypair JSON file")
	force := fs.Bool("force", false, "Overwrite existing key files")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *name == "" || *file == "" {
		fmt.Fprintln(errOut, "missing --name or --file")
		return 2
	}
	ks, ok := openKeyStore(*dir, errOut)
	if !ok {
		return 1
	}
	addr, path, err := ks.ImportKeypair(*name, *file, *force)
	if err != nil {
		fmt.Fprintf(errOut, "import key: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Imported root key: %s\n", addr)
	fmt.Fprintf(out, "Stored at: %s\n", path)
	return 0
}

func cmdKeyExport(args []string, out io.Writer, errOut io.Writer) int {
	fs, dir := keyFlags("key export", errOut)
	name := fs.String("name", "", "Key name")
	label := fs.String("label", "", "Optional label (exports the derived key)")
	outPath := fs.String("out", "", "Destination keypair JSON file")
	force := fs.Bool("force", false, "Overwrite the destination")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *name == "" || *outPath == "" {
		fmt.Fprintln(errOut, "missing --name or --out")
		return 2
	}
	ks, ok := openKeyStore(*dir, errOut)
	if !ok {
		return 1
	}
	seed, err := ks.LoadSeed("", *name, *label, "")
	if err != nil {
		fmt.Fprintf(errOut, "load key: %v\n", err)
		return 1
	}
	if err := keys.WriteKeypairFile(*outPath, seed, *force); err != nil {
		fmt.Fprintf(errOut, "write keypair: %v\n", err)
		return 1
	}
	addr, _ := keys.AddressFromSeed(seed)
	fmt.Fprintf(out, "Exported %s to %s\n", addr, *outPath)
	return 0
}

func cmdKeyAddress(args []string, out io.Writer, errOut io.Writer) int {
	fs, dir := keyFlags("key address", errOut)
	name := fs.String("name", "", "Key name")
	label := fs.String("label", "", "Optional label")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *name == "" {
		fmt.Fprintln(errOut, "missing --name")
		return 2
	}
	ks, ok := openKeyStore(*dir, errOut)
	if !ok {
		return 1
	}
	addr, err := ks.Address(*name, *label)
	if err != nil {
		fmt.Fprintf(errOut, "address: %v\n", err)
		return 1
	}
	fmt.Fprintln(out, addr)
	return 0
}

func cmdKeyList(args []string, out io.Writer, errOut io.Writer) int {
	fs, dir := keyFlags("key list", errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	ks, ok := openKeyStore(*dir, errOut)
	if !ok {
		return 1
	}
	entries, err := ks.ListKeys()
	if err != nil {
		fmt.Fprintf(errOut, "list keys: %v\n", err)
		return 1
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No keys found.")
		return 0
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s\t%s", e.Identifier, e.Address)
		if len(e.Labels) > 0 {
			fmt.Fprintf(out, "\tlabels: %s", strings.Join(e.Labels, ", "))
		}
		fmt.Fprintln(out)
	}
	return 0
}

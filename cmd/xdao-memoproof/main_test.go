package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"xdao.co/memoproof/digest"
	"xdao.co/memoproof/internal/chaintest"
	"xdao.co/memoproof/ledger"
	"xdao.co/memoproof/receipt/localfs"
	"xdao.co/memoproof/receipt/testkit"
)

const seedHex = "9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60"

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(context.Background(), args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestUsage(t *testing.T) {
	code, _, _ := runCLI(t)
	require.Equal(t, 2, code)

	code, _, errOut := runCLI(t, "frobnicate")
	require.Equal(t, 2, code)
	require.Contains(t, errOut, "unknown command")

	code, out, _ := runCLI(t, "help")
	require.Equal(t, 0, code)
	require.Contains(t, out, "xdao-memoproof verify")

	code, out, _ = runCLI(t, "backends")
	require.Equal(t, 0, code)
	require.Contains(t, out, "localfs")
	require.Contains(t, out, "leveldb")
}

func TestDigest(t *testing.T) {
	p := writeFile(t, t.TempDir(), "hello.txt", "hello")

	code, out, errOut := runCLI(t, "digest", p)
	require.Equal(t, 0, code, errOut)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", lines[0])
	require.True(t, strings.HasPrefix(lines[1], "cid: "))

	code, _, _ = runCLI(t, "digest")
	require.Equal(t, 2, code)
}

func TestKeyCommands(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "keys")

	code, out, errOut := runCLI(t, "key", "init", "--keys-dir", dir, "--name", "ops", "--seed-hex", seedHex)
	require.Equal(t, 0, code, errOut)
	require.Contains(t, out, "Created root key: ")
	root := strings.TrimSpace(strings.TrimPrefix(strings.Split(out, "\n")[0], "Created root key: "))

	code, out, _ = runCLI(t, "key", "address", "--keys-dir", dir, "--name", "ops")
	require.Equal(t, 0, code)
	require.Equal(t, root, strings.TrimSpace(out))

	code, _, _ = runCLI(t, "key", "init", "--keys-dir", dir, "--name", "ops", "--seed-hex", seedHex)
	require.Equal(t, 1, code, "existing key must not be overwritten without --force")

	code, out, errOut = runCLI(t, "key", "derive", "--keys-dir", dir, "--from", "ops", "--label", "registrar")
	require.Equal(t, 0, code, errOut)
	require.Contains(t, out, "Created label key: ")

	code, out, _ = runCLI(t, "key", "list", "--keys-dir", dir)
	require.Equal(t, 0, code)
	require.Contains(t, out, "ops\t"+root)
	require.Contains(t, out, "registrar")

	exported := filepath.Join(t.TempDir(), "ops.json")
	code, _, errOut = runCLI(t, "key", "export", "--keys-dir", dir, "--name", "ops", "--out", exported)
	require.Equal(t, 0, code, errOut)

	code, out, errOut = runCLI(t, "key", "import", "--keys-dir", dir, "--name", "copy", "--file", exported)
	require.Equal(t, 0, code, errOut)
	require.Contains(t, out, root)

	code, _, _ = runCLI(t, "key", "init", "--keys-dir", dir, "--name", "../escape")
	require.Equal(t, 2, code)
}

func TestRegisterVerifyReceipts(t *testing.T) {
	node := chaintest.NewNode(t)
	dir := t.TempDir()
	cfg := writeFile(t, dir, "memoproof.yaml", "verify:\n  poll_interval: 1ms\n  initial_delay: 1ms\n")
	doc := writeFile(t, dir, "contract.txt", "signed contract v1")
	common := []string{
		"--config", cfg,
		"--rpc-url", node.URL,
		"--receipts-backend", "localfs",
		"--localfs-dir", filepath.Join(dir, "receipts"),
	}
	with := func(cmd string, extra ...string) []string {
		return append(append([]string{cmd}, common...), extra...)
	}

	code, out, errOut := runCLI(t, with("register", doc, "--seed-hex", seedHex)...)
	require.Equal(t, 0, code, errOut)
	require.Contains(t, out, "Submitted: ")
	require.Contains(t, out, "FOUND (poll)")
	require.Equal(t, 1, node.Calls("sendTransaction"))

	code, _, errOut = runCLI(t, with("register", doc, "--seed-hex", seedHex)...)
	require.Equal(t, 1, code)
	require.Contains(t, errOut, "already registered")
	require.Equal(t, 1, node.Calls("sendTransaction"))

	code, out, errOut = runCLI(t, with("receipts", doc)...)
	require.Equal(t, 0, code, errOut)
	require.Contains(t, out, "Confirmed: slot 1000")

	code, out, errOut = runCLI(t, with("verify", doc)...)
	require.Equal(t, 0, code, errOut)
	require.Contains(t, out, "FOUND (direct)")

	code, out, errOut = runCLI(t, with("verify", doc, "--scan")...)
	require.Equal(t, 0, code, errOut)
	require.Contains(t, out, "FOUND (scan)")
	require.Contains(t, out, "block_time=2024-03-01T12:00:00Z")

	other := writeFile(t, dir, "other.txt", "never anchored")
	code, out, _ = runCLI(t, with("verify", other)...)
	require.Equal(t, 1, code)
	require.Contains(t, out, "NOT FOUND (scan, window_exhausted")

	var unknown ledger.Signature
	unknown[0] = 9
	code, out, _ = runCLI(t, with("verify", other, "--signature", unknown.String())...)
	require.Equal(t, 1, code)
	require.Contains(t, out, "tx_missing")

	code, _, errOut = runCLI(t, with("receipts", other)...)
	require.Equal(t, 1, code)
	require.Contains(t, errOut, "no receipt")
}

func TestRegister_RequiresSigner(t *testing.T) {
	node := chaintest.NewNode(t)
	dir := t.TempDir()
	code, _, errOut := runCLI(t, "register", "--digest", strings.Repeat("ab", 32),
		"--rpc-url", node.URL,
		"--keys-dir", filepath.Join(dir, "keys"),
		"--receipts-backend", "memory")
	require.Equal(t, 1, code)
	require.Contains(t, errOut, "no signer provided")
	require.Equal(t, 0, node.Calls("sendTransaction"))
}

func TestVerify_BadArguments(t *testing.T) {
	code, _, _ := runCLI(t, "verify")
	require.Equal(t, 2, code)

	code, _, _ = runCLI(t, "verify", "--digest", "nothex")
	require.Equal(t, 2, code)

	code, _, _ = runCLI(t, "verify", "--digest", strings.Repeat("ab", 32), "--signature", "0OIl")
	require.Equal(t, 2, code)
}

func TestBundleExportImport(t *testing.T) {
	dir := t.TempDir()
	srcDir, dstDir := filepath.Join(dir, "src"), filepath.Join(dir, "dst")
	src, err := localfs.New(srcDir)
	require.NoError(t, err)
	r := testkit.Sample("bundled")
	require.NoError(t, src.Put(context.Background(), r))

	tarPath := filepath.Join(dir, "receipts.tar")
	code, out, errOut := runCLI(t, "bundle", "export", "--receipts-backend", "localfs", "--localfs-dir", srcDir, "--out", tarPath, r.Digest.String())
	require.Equal(t, 0, code, errOut)
	require.Contains(t, out, "Exported 1 receipts")

	code, out, errOut = runCLI(t, "bundle", "import", "--receipts-backend", "localfs", "--localfs-dir", dstDir, tarPath)
	require.Equal(t, 0, code, errOut)
	require.Contains(t, out, "Imported 1 receipts")

	code, out, errOut = runCLI(t, "receipts", "--digest", r.Digest.String(), "--receipts-backend", "localfs", "--localfs-dir", dstDir)
	require.Equal(t, 0, code, errOut)
	require.Contains(t, out, "Signature: "+r.Signature.String())

	code, _, _ = runCLI(t, "bundle", "export", "--receipts-backend", "localfs", "--localfs-dir", srcDir, "--out", filepath.Join(dir, "missing.tar"), digestOf("absent"))
	require.Equal(t, 1, code)
}

func digestOf(s string) string { return digest.Sum([]byte(s)).String() }

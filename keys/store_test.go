package keys

import (
	"crypto/ed25519"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testSeed(b byte) []byte {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = b
	}
	return seed
}

func TestKeyStore_RootAndLabels(t *testing.T) {
	ks, err := CreateKeyStore(t.TempDir())
	if err != nil {
		t.Fatalf("CreateKeyStore: %v", err)
	}

	addr, path, err := ks.InitializeRootKey("alice", testSeed(1), false)
	if err != nil {
		t.Fatalf("InitializeRootKey: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("root key not written: %v", err)
	}
	if _, _, err := ks.InitializeRootKey("alice", testSeed(2), false); err == nil {
		t.Fatalf("expected existing root key to be kept without overwrite")
	}

	got, err := ks.Address("alice", "")
	if err != nil || got != addr {
		t.Fatalf("Address: got %v, %v want %v", got, err, addr)
	}

	labelAddr, _, err := ks.DeriveLabelKey("alice", "registrar", false)
	if err != nil {
		t.Fatalf("DeriveLabelKey: %v", err)
	}
	if labelAddr == addr {
		t.Fatalf("expected labeled key to differ from root")
	}
	again, err := ks.Address("alice", "registrar")
	if err != nil || again != labelAddr {
		t.Fatalf("Address(label): got %v, %v want %v", again, err, labelAddr)
	}

	list, err := ks.ListKeys()
	if err != nil {
		t.Fatalf("ListKeys: %v", err)
	}
	if len(list) != 1 || list[0].Identifier != "alice" || list[0].Address != addr {
		t.Fatalf("unexpected list: %+v", list)
	}
	if len(list[0].Labels) != 1 || list[0].Labels[0] != "registrar" {
		t.Fatalf("unexpected labels: %+v", list[0].Labels)
	}
}

func TestKeyStore_ListMissingDirectory(t *testing.T) {
	ks := &KeyStore{Directory: filepath.Join(t.TempDir(), "absent")}
	list, err := ks.ListKeys()
	if err != nil || list != nil {
		t.Fatalf("expected empty list, got %v, %v", list, err)
	}
}

func TestKeypairFile_RoundTripAndImport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "id.json")
	if err := WriteKeypairFile(path, testSeed(9), false); err != nil {
		t.Fatalf("WriteKeypairFile: %v", err)
	}
	seed, err := ReadKeypairFile(path)
	if err != nil {
		t.Fatalf("ReadKeypairFile: %v", err)
	}
	if string(seed) != string(testSeed(9)) {
		t.Fatalf("seed mismatch")
	}

	ks := &KeyStore{Directory: filepath.Join(dir, "keys")}
	addr, _, err := ks.ImportKeypair("ops", path, false)
	if err != nil {
		t.Fatalf("ImportKeypair: %v", err)
	}
	want, _ := AddressFromSeed(testSeed(9))
	if addr != want {
		t.Fatalf("imported address mismatch")
	}

	viaFile, err := ks.LoadSeed("", "", "", path)
	if err != nil || string(viaFile) != string(testSeed(9)) {
		t.Fatalf("LoadSeed(keyFile): %v", err)
	}
}

func TestParseKeypairJSON_Rejects(t *testing.T) {
	good, err := MarshalKeypairJSON(testSeed(3))
	if err != nil {
		t.Fatalf("MarshalKeypairJSON: %v", err)
	}
	if _, err := ParseKeypairJSON(good); err != nil {
		t.Fatalf("ParseKeypairJSON: %v", err)
	}
	cases := map[string]string{
		"short":    "[1,2,3]",
		"range":    "[" + strings.Repeat("300,", 63) + "1]",
		"not json": "abc",
	}
	for name, in := range cases {
		if _, err := ParseKeypairJSON([]byte(in)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}

	// Public half that does not belong to the seed.
	var raw []int
	if err := json.Unmarshal(good, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	raw[len(raw)-1] = (raw[len(raw)-1] + 1) % 256
	tampered, _ := json.Marshal(raw)
	if _, err := ParseKeypairJSON(tampered); err == nil {
		t.Fatalf("expected mismatched public key to fail")
	}
}

func TestParseSeedHex(t *testing.T) {
	if _, err := ParseSeedHex("0x" + strings.Repeat("ab", 32)); err != nil {
		t.Fatalf("ParseSeedHex: %v", err)
	}
	if _, err := ParseSeedHex("abcd"); err == nil {
		t.Fatalf("expected short seed to fail")
	}
}

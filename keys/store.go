package keys

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"xdao.co/memoproof/ledger"
)

// KeyStore keeps ed25519 seeds under Directory:
//
//	<identifier>/root.key
//	<identifier>/labels/<label>.key
//
// Files hold the hex-encoded 32-byte seed.
type KeyStore struct {
	Directory string
}

type KeyEntry struct {
	Identifier string
	Address    ledger.PublicKey
	Labels     []string
}

func GetDefaultDirectory() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".xdao", "memoproof", "keys"), nil
}

func CreateKeyStore(directory string) (*KeyStore, error) {
	if directory == "" {
		var err error
		directory, err = GetDefaultDirectory()
		if err != nil {
			return nil, err
		}
	}
	return &KeyStore{Directory: directory}, nil
}

func (ks *KeyStore) rootKeyPath(identifier string) string {
	return filepath.Join(ks.Directory, identifier, "root.key")
}

func (ks *KeyStore) labelKeyPath(identifier, label string) string {
	return filepath.Join(ks.Directory, identifier, "labels", label+".key")
}

func checkName(kind, name string) error {
	if name == "" {
		return fmt.Errorf("%s cannot be empty", kind)
	}
	for _, char := range name {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9') || char == '-' || char == '_' {
			continue
		}
		return fmt.Errorf("invalid character %q in %s", char, kind)
	}
	return nil
}

func CheckKeyName(identifier string) error { return checkName("identifier", identifier) }

func CheckLabel(label string) error { return checkName("label", label) }

func ParseSeedHex(seedHex string) ([]byte, error) {
	seedHex = strings.TrimSpace(seedHex)
	seedHex = strings.TrimPrefix(seedHex, "0x")
	data, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, err
	}
	if len(data) != ed25519.SeedSize {
		return nil, fmt.Errorf("expected seed length of %d bytes, got %d", ed25519.SeedSize, len(data))
	}
	return data, nil
}

func saveSeed(path string, seed []byte, overwrite bool) error {
	if len(seed) != ed25519.SeedSize {
		return fmt.Errorf("expected seed length of %d bytes", ed25519.SeedSize)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	file, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return err
	}
	defer file.Close()
	if _, err := file.WriteString(hex.EncodeToString(seed) + "\n"); err != nil {
		return err
	}
	return file.Close()
}

func loadSeed(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSeedHex(string(data))
}

// InitializeRootKey stores seed as identifier's root key and returns its
// address.
func (ks *KeyStore) InitializeRootKey(identifier string, seed []byte, overwrite bool) (ledger.PublicKey, string, error) {
	if err := CheckKeyName(identifier); err != nil {
		return ledger.PublicKey{}, "", err
	}
	addr, err := AddressFromSeed(seed)
	if err != nil {
		return ledger.PublicKey{}, "", err
	}
	path := ks.rootKeyPath(identifier)
	if err := saveSeed(path, seed, overwrite); err != nil {
		return ledger.PublicKey{}, "", err
	}
	return addr, path, nil
}

// ImportKeypair stores the seed of a ledger CLI keypair file as
// identifier's root key.
func (ks *KeyStore) ImportKeypair(identifier, keypairPath string, overwrite bool) (ledger.PublicKey, string, error) {
	seed, err := ReadKeypairFile(keypairPath)
	if err != nil {
		return ledger.PublicKey{}, "", err
	}
	return ks.InitializeRootKey(identifier, seed, overwrite)
}

// DeriveLabelKey derives and stores a labeled subkey of identifier's root.
func (ks *KeyStore) DeriveLabelKey(identifier, label string, overwrite bool) (ledger.PublicKey, string, error) {
	if err := CheckKeyName(identifier); err != nil {
		return ledger.PublicKey{}, "", err
	}
	if err := CheckLabel(label); err != nil {
		return ledger.PublicKey{}, "", err
	}
	rootSeed, err := loadSeed(ks.rootKeyPath(identifier))
	if err != nil {
		return ledger.PublicKey{}, "", err
	}
	seed, err := DeriveLabelSeed(rootSeed, label)
	if err != nil {
		return ledger.PublicKey{}, "", err
	}
	path := ks.labelKeyPath(identifier, label)
	if err := saveSeed(path, seed, overwrite); err != nil {
		return ledger.PublicKey{}, "", err
	}
	addr, err := AddressFromSeed(seed)
	return addr, path, err
}

// Address returns the address of identifier's root key, or of its labeled
// subkey when label is non-empty.
func (ks *KeyStore) Address(identifier, label string) (ledger.PublicKey, error) {
	seed, err := ks.LoadSeed("", identifier, label, "")
	if err != nil {
		return ledger.PublicKey{}, err
	}
	return AddressFromSeed(seed)
}

// LoadSeed resolves a seed from the first non-empty source: a hex seed, a
// key file (hex or ledger CLI keypair JSON), or a stored identifier/label.
func (ks *KeyStore) LoadSeed(seedHex, identifier, label, keyFile string) ([]byte, error) {
	if seedHex != "" {
		return ParseSeedHex(seedHex)
	}
	if keyFile != "" {
		data, err := os.ReadFile(keyFile)
		if err != nil {
			return nil, err
		}
		if trimmed := strings.TrimSpace(string(data)); strings.HasPrefix(trimmed, "[") {
			return ParseKeypairJSON(data)
		}
		return ParseSeedHex(string(data))
	}
	if identifier != "" {
		if err := CheckKeyName(identifier); err != nil {
			return nil, err
		}
		if label == "" {
			return loadSeed(ks.rootKeyPath(identifier))
		}
		if err := CheckLabel(label); err != nil {
			return nil, err
		}
		return loadSeed(ks.labelKeyPath(identifier, label))
	}
	return nil, errors.New("no signer provided")
}

func (ks *KeyStore) ListKeys() ([]KeyEntry, error) {
	entries, err := os.ReadDir(ks.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var identifiers []string
	for _, entry := range entries {
		if entry.IsDir() {
			identifiers = append(identifiers, entry.Name())
		}
	}
	sort.Strings(identifiers)

	var result []KeyEntry
	for _, identifier := range identifiers {
		entry := KeyEntry{Identifier: identifier}
		if seed, err := loadSeed(ks.rootKeyPath(identifier)); err == nil {
			entry.Address, _ = AddressFromSeed(seed)
		}
		labelEntries, lerr := os.ReadDir(filepath.Join(ks.Directory, identifier, "labels"))
		if lerr == nil {
			for _, le := range labelEntries {
				if le.IsDir() {
					continue
				}
				if strings.HasSuffix(le.Name(), ".key") {
					entry.Labels = append(entry.Labels, strings.TrimSuffix(le.Name(), ".key"))
				}
			}
			sort.Strings(entry.Labels)
		}
		result = append(result, entry)
	}
	return result, nil
}

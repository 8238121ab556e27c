package txmsg

import (
	"bytes"
	"encoding/json"
	"fmt"

	"xdao.co/memoproof/ledger"
	"xdao.co/memoproof/memo"
)

// JSONMessage is the "json" transaction encoding of the RPC interface.
// Instruction data is base-58 text.
type JSONMessage struct {
	Header              JSONHeader          `json:"header"`
	AccountKeys         []string            `json:"accountKeys"`
	RecentBlockhash     string              `json:"recentBlockhash"`
	Instructions        []JSONInstruction   `json:"instructions"`
	AddressTableLookups []JSONAddressLookup `json:"addressTableLookups,omitempty"`
}

type JSONHeader struct {
	NumRequiredSignatures       uint8 `json:"numRequiredSignatures"`
	NumReadonlySignedAccounts   uint8 `json:"numReadonlySignedAccounts"`
	NumReadonlyUnsignedAccounts uint8 `json:"numReadonlyUnsignedAccounts"`
}

type JSONInstruction struct {
	ProgramIDIndex int    `json:"programIdIndex"`
	Accounts       []int  `json:"accounts"`
	Data           string `json:"data"`
}

type JSONAddressLookup struct {
	AccountKey      string `json:"accountKey"`
	WritableIndexes []int  `json:"writableIndexes"`
	ReadonlyIndexes []int  `json:"readonlyIndexes"`
}

// JSONTransaction is the "json" encoding of a signed transaction.
type JSONTransaction struct {
	Signatures []string    `json:"signatures"`
	Message    JSONMessage `json:"message"`
}

// VersionFromJSON resolves the RPC "version" field: the string "legacy", the
// number 0, or absent. When absent, the presence of address table lookups
// decides.
func VersionFromJSON(raw json.RawMessage, hasLookups bool) Version {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		if hasLookups {
			return VersionV0
		}
		return VersionLegacy
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "legacy" {
			return VersionLegacy
		}
		return VersionUnknown
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil && n == 0 {
		return VersionV0
	}
	return VersionUnknown
}

// FromJSON converts the JSON encoding into a Transaction of the given version.
func FromJSON(jt JSONTransaction, version Version) (Transaction, error) {
	var tx Transaction
	tx.Signatures = make([]ledger.Signature, 0, len(jt.Signatures))
	for _, s := range jt.Signatures {
		sig, err := ledger.ParseSignature(s)
		if err != nil {
			return Transaction{}, err
		}
		tx.Signatures = append(tx.Signatures, sig)
	}

	jm := jt.Message
	m := Message{
		Version: version,
		Header: Header{
			NumRequiredSignatures:       jm.Header.NumRequiredSignatures,
			NumReadonlySignedAccounts:   jm.Header.NumReadonlySignedAccounts,
			NumReadonlyUnsignedAccounts: jm.Header.NumReadonlyUnsignedAccounts,
		},
	}
	keys, err := parseKeys(jm.AccountKeys)
	if err != nil {
		return Transaction{}, err
	}
	m.AccountKeys = keys
	if jm.RecentBlockhash != "" {
		if m.RecentBlockhash, err = ledger.ParseHash(jm.RecentBlockhash); err != nil {
			return Transaction{}, err
		}
	}
	for i, ji := range jm.Instructions {
		if ji.ProgramIDIndex < 0 || ji.ProgramIDIndex > 0xff {
			return Transaction{}, fmt.Errorf("txmsg: instruction %d: program index %d out of range", i, ji.ProgramIDIndex)
		}
		accounts, err := indexes(ji.Accounts)
		if err != nil {
			return Transaction{}, fmt.Errorf("txmsg: instruction %d: %w", i, err)
		}
		m.Instructions = append(m.Instructions, CompiledInstruction{
			ProgramIDIndex: uint8(ji.ProgramIDIndex),
			Accounts:       accounts,
			Data:           memo.TextPayload(ji.Data),
		})
	}
	for _, jl := range jm.AddressTableLookups {
		key, err := ledger.ParsePublicKey(jl.AccountKey)
		if err != nil {
			return Transaction{}, err
		}
		w, err := indexes(jl.WritableIndexes)
		if err != nil {
			return Transaction{}, err
		}
		r, err := indexes(jl.ReadonlyIndexes)
		if err != nil {
			return Transaction{}, err
		}
		m.AddressTableLookups = append(m.AddressTableLookups, AddressTableLookup{AccountKey: key, WritableIndexes: w, ReadonlyIndexes: r})
	}
	tx.Message = m
	return tx, nil
}

// ParseLoadedAddresses converts the base-58 lists reported in transaction meta.
func ParseLoadedAddresses(writable, readonly []string) (LoadedAddresses, error) {
	w, err := parseKeys(writable)
	if err != nil {
		return LoadedAddresses{}, err
	}
	r, err := parseKeys(readonly)
	if err != nil {
		return LoadedAddresses{}, err
	}
	return LoadedAddresses{Writable: w, Readonly: r}, nil
}

func parseKeys(in []string) ([]ledger.PublicKey, error) {
	out := make([]ledger.PublicKey, 0, len(in))
	for _, s := range in {
		k, err := ledger.ParsePublicKey(s)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}

func indexes(in []int) ([]uint8, error) {
	out := make([]uint8, 0, len(in))
	for _, v := range in {
		if v < 0 || v > 0xff {
			return nil, fmt.Errorf("index %d out of range", v)
		}
		out = append(out, uint8(v))
	}
	return out, nil
}

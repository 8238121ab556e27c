// Package txmsg decodes ledger transactions in both historical message
// encodings and normalizes their instructions into memo records.
//
// The encoding is resolved once when a transaction is ingested and kept as
// an explicit Version on the Message; nothing downstream probes shapes.
package txmsg

import (
	"errors"
	"fmt"

	"xdao.co/memoproof/ledger"
	"xdao.co/memoproof/memo"
)

// Version discriminates the message encodings.
type Version int

const (
	VersionUnknown Version = iota
	// VersionLegacy is the original flat message: a single account-key table
	// indexed directly by every instruction.
	VersionLegacy
	// VersionV0 is the versioned message whose account-key table is the
	// static keys extended by addresses loaded from lookup tables.
	VersionV0
)

func (v Version) String() string {
	switch v {
	case VersionLegacy:
		return "legacy"
	case VersionV0:
		return "v0"
	default:
		return "unknown"
	}
}

const versionPrefix = 0x80

var (
	ErrTruncated          = errors.New("txmsg: truncated input")
	ErrUnsupportedVersion = errors.New("txmsg: unsupported message version")
	ErrTrailingBytes      = errors.New("txmsg: trailing bytes")
	ErrTextData           = errors.New("txmsg: instruction data is not binary")
)

// Header counts signer and read-only accounts at the front of the key table.
type Header struct {
	NumRequiredSignatures       uint8
	NumReadonlySignedAccounts   uint8
	NumReadonlyUnsignedAccounts uint8
}

// CompiledInstruction references its program and accounts by key-table index.
type CompiledInstruction struct {
	ProgramIDIndex uint8
	Accounts       []uint8
	Data           memo.Payload
}

// AddressTableLookup selects loaded addresses out of an on-chain lookup table.
type AddressTableLookup struct {
	AccountKey      ledger.PublicKey
	WritableIndexes []uint8
	ReadonlyIndexes []uint8
}

// Message is a transaction message in either encoding. For VersionLegacy,
// AccountKeys is the full table and AddressTableLookups is empty. For
// VersionV0, AccountKeys holds only the static keys.
type Message struct {
	Version             Version
	Header              Header
	AccountKeys         []ledger.PublicKey
	RecentBlockhash     ledger.Hash
	Instructions        []CompiledInstruction
	AddressTableLookups []AddressTableLookup
}

// LoadedAddresses are the lookup-table addresses the runtime resolved for a
// v0 message, as reported in transaction metadata.
type LoadedAddresses struct {
	Writable []ledger.PublicKey
	Readonly []ledger.PublicKey
}

// Transaction is a signed message.
type Transaction struct {
	Signatures []ledger.Signature
	Message    Message
}

// MarshalBinary serializes the message in its own encoding.
func (m *Message) MarshalBinary() ([]byte, error) {
	var out []byte
	switch m.Version {
	case VersionLegacy:
	case VersionV0:
		out = append(out, versionPrefix)
	default:
		return nil, ErrUnsupportedVersion
	}
	if err := m.checkLengths(); err != nil {
		return nil, err
	}
	out = append(out, m.Header.NumRequiredSignatures, m.Header.NumReadonlySignedAccounts, m.Header.NumReadonlyUnsignedAccounts)
	out = appendShortVec(out, len(m.AccountKeys))
	for _, k := range m.AccountKeys {
		out = append(out, k[:]...)
	}
	out = append(out, m.RecentBlockhash[:]...)
	out = appendShortVec(out, len(m.Instructions))
	for i, ix := range m.Instructions {
		if ix.Data.IsText {
			return nil, fmt.Errorf("instruction %d: %w", i, ErrTextData)
		}
		out = append(out, ix.ProgramIDIndex)
		out = appendShortVec(out, len(ix.Accounts))
		out = append(out, ix.Accounts...)
		out = appendShortVec(out, len(ix.Data.Bytes))
		out = append(out, ix.Data.Bytes...)
	}
	if m.Version == VersionV0 {
		out = appendShortVec(out, len(m.AddressTableLookups))
		for _, l := range m.AddressTableLookups {
			out = append(out, l.AccountKey[:]...)
			out = appendShortVec(out, len(l.WritableIndexes))
			out = append(out, l.WritableIndexes...)
			out = appendShortVec(out, len(l.ReadonlyIndexes))
			out = append(out, l.ReadonlyIndexes...)
		}
	}
	return out, nil
}

func (m *Message) checkLengths() error {
	if err := checkShortVec("account keys", len(m.AccountKeys)); err != nil {
		return err
	}
	if err := checkShortVec("instructions", len(m.Instructions)); err != nil {
		return err
	}
	for i, ix := range m.Instructions {
		if err := checkShortVec(fmt.Sprintf("instruction %d accounts", i), len(ix.Accounts)); err != nil {
			return err
		}
		if err := checkShortVec(fmt.Sprintf("instruction %d data", i), len(ix.Data.Bytes)); err != nil {
			return err
		}
	}
	if m.Version != VersionV0 {
		return nil
	}
	if err := checkShortVec("address table lookups", len(m.AddressTableLookups)); err != nil {
		return err
	}
	for i, l := range m.AddressTableLookups {
		if err := checkShortVec(fmt.Sprintf("lookup %d writable", i), len(l.WritableIndexes)); err != nil {
			return err
		}
		if err := checkShortVec(fmt.Sprintf("lookup %d readonly", i), len(l.ReadonlyIndexes)); err != nil {
			return err
		}
	}
	return nil
}

// MarshalBinary serializes signatures followed by the message.
func (tx *Transaction) MarshalBinary() ([]byte, error) {
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if err := checkShortVec("signatures", len(tx.Signatures)); err != nil {
		return nil, err
	}
	out := appendShortVec(nil, len(tx.Signatures))
	for _, s := range tx.Signatures {
		out = append(out, s[:]...)
	}
	return append(out, msg...), nil
}

// DecodeMessage parses a serialized message, resolving its version from the
// prefix byte.
func DecodeMessage(b []byte) (Message, error) {
	r := &reader{b: b}
	m, err := r.message()
	if err != nil {
		return Message{}, err
	}
	if r.off != len(b) {
		return Message{}, ErrTrailingBytes
	}
	return m, nil
}

// DecodeTransaction parses a serialized signed transaction.
func DecodeTransaction(b []byte) (Transaction, error) {
	r := &reader{b: b}
	n, err := r.shortVec()
	if err != nil {
		return Transaction{}, err
	}
	tx := Transaction{Signatures: make([]ledger.Signature, n)}
	for i := range tx.Signatures {
		raw, err := r.take(ledger.SignatureSize)
		if err != nil {
			return Transaction{}, err
		}
		copy(tx.Signatures[i][:], raw)
	}
	tx.Message, err = r.message()
	if err != nil {
		return Transaction{}, err
	}
	if r.off != len(b) {
		return Transaction{}, ErrTrailingBytes
	}
	return tx, nil
}

type reader struct {
	b   []byte
	off int
}

func (r *reader) take(n int) ([]byte, error) {
	if n < 0 || r.off+n > len(r.b) {
		return nil, ErrTruncated
	}
	out := r.b[r.off : r.off+n]
	r.off += n
	return out, nil
}

func (r *reader) u8() (byte, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) shortVec() (int, error) {
	v, n, err := readShortVec(r.b[r.off:])
	if err != nil {
		return 0, err
	}
	r.off += n
	return v, nil
}

func (r *reader) bytesVec() ([]byte, error) {
	n, err := r.shortVec()
	if err != nil {
		return nil, err
	}
	b, err := r.take(n)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

func (r *reader) key() (ledger.PublicKey, error) {
	var k ledger.PublicKey
	b, err := r.take(ledger.PublicKeySize)
	if err != nil {
		return k, err
	}
	copy(k[:], b)
	return k, nil
}

func (r *reader) message() (Message, error) {
	var m Message
	first, err := r.u8()
	if err != nil {
		return m, err
	}
	if first&versionPrefix != 0 {
		if v := first &^ versionPrefix; v != 0 {
			return m, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
		}
		m.Version = VersionV0
		if first, err = r.u8(); err != nil {
			return m, err
		}
	} else {
		m.Version = VersionLegacy
	}
	m.Header.NumRequiredSignatures = first
	if m.Header.NumReadonlySignedAccounts, err = r.u8(); err != nil {
		return m, err
	}
	if m.Header.NumReadonlyUnsignedAccounts, err = r.u8(); err != nil {
		return m, err
	}

	nkeys, err := r.shortVec()
	if err != nil {
		return m, err
	}
	m.AccountKeys = make([]ledger.PublicKey, nkeys)
	for i := range m.AccountKeys {
		if m.AccountKeys[i], err = r.key(); err != nil {
			return m, err
		}
	}
	bh, err := r.take(ledger.HashSize)
	if err != nil {
		return m, err
	}
	copy(m.RecentBlockhash[:], bh)

	nix, err := r.shortVec()
	if err != nil {
		return m, err
	}
	m.Instructions = make([]CompiledInstruction, nix)
	for i := range m.Instructions {
		ix := &m.Instructions[i]
		if ix.ProgramIDIndex, err = r.u8(); err != nil {
			return m, err
		}
		if ix.Accounts, err = r.bytesVec(); err != nil {
			return m, err
		}
		data, err := r.bytesVec()
		if err != nil {
			return m, err
		}
		ix.Data = memo.BytesPayload(data)
	}

	if m.Version == VersionV0 {
		nl, err := r.shortVec()
		if err != nil {
			return m, err
		}
		m.AddressTableLookups = make([]AddressTableLookup, nl)
		for i := range m.AddressTableLookups {
			l := &m.AddressTableLookups[i]
			if l.AccountKey, err = r.key(); err != nil {
				return m, err
			}
			if l.WritableIndexes, err = r.bytesVec(); err != nil {
				return m, err
			}
			if l.ReadonlyIndexes, err = r.bytesVec(); err != nil {
				return m, err
			}
		}
	}
	return m, nil
}

package txmsg

import (
	"time"

	"xdao.co/memoproof/ledger"
	"xdao.co/memoproof/memo"
)

// Fetched is a historical transaction as returned by the ledger. It is
// read-only once constructed.
type Fetched struct {
	Slot            uint64
	BlockTime       *time.Time
	Transaction     Transaction
	LoadedAddresses LoadedAddresses
	// Failed is set when the ledger recorded an execution error.
	Failed bool
}

// Signature returns the transaction's identifier (its first signature).
func (f *Fetched) Signature() (ledger.Signature, bool) {
	if f == nil || len(f.Transaction.Signatures) == 0 {
		return ledger.Signature{}, false
	}
	return f.Transaction.Signatures[0], true
}

// AccountKeys returns the key table instructions of m index into. For v0
// messages it is the static keys followed by the loaded writable and then
// loaded readonly addresses.
func AccountKeys(m *Message, loaded LoadedAddresses) []ledger.PublicKey {
	switch m.Version {
	case VersionLegacy:
		return m.AccountKeys
	case VersionV0:
		keys := make([]ledger.PublicKey, 0, len(m.AccountKeys)+len(loaded.Writable)+len(loaded.Readonly))
		keys = append(keys, m.AccountKeys...)
		keys = append(keys, loaded.Writable...)
		return append(keys, loaded.Readonly...)
	default:
		return nil
	}
}

// Normalize lifts every instruction of f into a (program, payload) record,
// in instruction order. Instructions whose program index falls outside the
// key table are skipped; an unrecognized message yields no records.
func Normalize(f *Fetched) []memo.Record {
	if f == nil {
		return nil
	}
	m := &f.Transaction.Message
	keys := AccountKeys(m, f.LoadedAddresses)
	if keys == nil {
		return nil
	}
	out := make([]memo.Record, 0, len(m.Instructions))
	for _, ix := range m.Instructions {
		idx := int(ix.ProgramIDIndex)
		if idx >= len(keys) {
			continue
		}
		out = append(out, memo.Record{ProgramID: keys[idx], Data: ix.Data})
	}
	return out
}

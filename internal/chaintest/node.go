// Package chaintest provides an in-process fake of the ledger JSON-RPC
// methods memoproof uses.
package chaintest

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"xdao.co/memoproof/ledger"
)

// Node accepts sendTransaction, remembers the wire bytes and serves them back
// from getTransaction and getSignaturesForAddress. It does not verify
// signatures.
type Node struct {
	*httptest.Server

	// Slot and BlockTime are reported for every stored transaction.
	Slot      uint64
	BlockTime int64

	mu    sync.Mutex
	txs   map[string][]byte
	order []string
	calls map[string]int
}

func NewNode(t testing.TB) *Node {
	n := &Node{
		Slot:      1000,
		BlockTime: 1709294400,
		txs:       map[string][]byte{},
		calls:     map[string]int{},
	}
	n.Server = httptest.NewServer(http.HandlerFunc(n.serve))
	t.Cleanup(n.Close)
	return n
}

// Store adds a signed wire transaction as if it had been confirmed.
func (n *Node) Store(wire []byte) ledger.Signature {
	var sig ledger.Signature
	// One signature: shortvec count byte, then the signature.
	copy(sig[:], wire[1:1+len(sig)])
	n.mu.Lock()
	defer n.mu.Unlock()
	key := sig.String()
	if _, ok := n.txs[key]; !ok {
		n.order = append(n.order, key)
	}
	n.txs[key] = append([]byte(nil), wire...)
	return sig
}

// Calls returns how many times method was invoked.
func (n *Node) Calls(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

type request struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (n *Node) serve(w http.ResponseWriter, r *http.Request) {
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	n.mu.Lock()
	n.calls[req.Method]++
	n.mu.Unlock()

	result, rerr := n.dispatch(req)
	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if rerr != nil {
		resp["error"] = rerr
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (n *Node) dispatch(req request) (any, *rpcError) {
	param := func(i int) string {
		if i >= len(req.Params) {
			return ""
		}
		var s string
		_ = json.Unmarshal(req.Params[i], &s)
		return s
	}

	switch req.Method {
	case "getLatestBlockhash":
		return map[string]any{
			"context": map[string]any{"slot": n.Slot},
			"value": map[string]any{
				"blockhash":            ledger.Hash{7}.String(),
				"lastValidBlockHeight": n.Slot + 150,
			},
		}, nil
	case "sendTransaction":
		wire, err := base64.StdEncoding.DecodeString(param(0))
		if err != nil || len(wire) < 65 {
			return nil, &rpcError{Code: -32602, Message: "invalid transaction"}
		}
		return n.Store(wire).String(), nil
	case "getTransaction":
		n.mu.Lock()
		wire, ok := n.txs[param(0)]
		n.mu.Unlock()
		if !ok {
			return nil, nil
		}
		return map[string]any{
			"slot":        n.Slot,
			"blockTime":   n.BlockTime,
			"meta":        map[string]any{"err": nil},
			"transaction": []string{base64.StdEncoding.EncodeToString(wire), "base64"},
		}, nil
	case "getSignaturesForAddress":
		n.mu.Lock()
		defer n.mu.Unlock()
		out := make([]map[string]any, 0, len(n.order))
		for i := len(n.order) - 1; i >= 0; i-- {
			out = append(out, map[string]any{
				"signature":          n.order[i],
				"slot":               n.Slot,
				"blockTime":          n.BlockTime,
				"err":                nil,
				"memo":               nil,
				"confirmationStatus": "confirmed",
			})
		}
		return out, nil
	default:
		return nil, &rpcError{Code: -32601, Message: "Method not found"}
	}
}

// Package chainrpc is a JSON-RPC client for the ledger's history and
// submission endpoints.
//
// A null result is "not found yet" and is returned as (nil, nil), never as
// an error. Errors are fault.Error values classified as transient or
// permanent.
package chainrpc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	lru "github.com/hashicorp/golang-lru/v2"

	"xdao.co/memoproof/fault"
	"xdao.co/memoproof/ledger"
	"xdao.co/memoproof/txmsg"
)

const (
	CommitmentProcessed = "processed"
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"

	EncodingBase64 = "base64"
	EncodingJSON   = "json"
)

type Options struct {
	// Commitment defaults to "confirmed".
	Commitment string
	// Encoding selects the getTransaction encoding: "base64" (wire bytes,
	// default) or "json" (base-58 instruction data).
	Encoding string
	// Timeout applies per call when non-zero.
	Timeout time.Duration
	// CacheSize bounds the cache of indexed transactions. 0 disables it.
	CacheSize int
	Headers   map[string]string
	// HTTPClient overrides the transport (tests, proxies).
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to a single RPC endpoint.
type Client struct {
	rpc        *rpc.Client
	commitment string
	encoding   string
	timeout    time.Duration
	cache      *lru.Cache[ledger.Signature, *txmsg.Fetched]
	log        *slog.Logger
}

// Dial connects to endpoint. HTTP endpoints do not open a connection until
// the first call.
func Dial(ctx context.Context, endpoint string, opts Options) (*Client, error) {
	if endpoint == "" {
		return nil, fault.New(fault.KindConfig, "MEMO-RPC-001", "missing rpc endpoint")
	}
	c := &Client{
		commitment: opts.Commitment,
		encoding:   opts.Encoding,
		timeout:    opts.Timeout,
		log:        opts.Logger,
	}
	if c.log == nil {
		c.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.commitment == "" {
		c.commitment = CommitmentConfirmed
	}
	switch c.encoding {
	case "":
		c.encoding = EncodingBase64
	case EncodingBase64, EncodingJSON:
	default:
		return nil, fault.New(fault.KindConfig, "MEMO-RPC-002", fmt.Sprintf("unsupported encoding %q", opts.Encoding))
	}
	if opts.CacheSize > 0 {
		cache, err := lru.New[ledger.Signature, *txmsg.Fetched](opts.CacheSize)
		if err != nil {
			return nil, fault.Wrap(fault.KindConfig, "MEMO-RPC-003", "transaction cache", err)
		}
		c.cache = cache
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	clientOpts := []rpc.ClientOption{rpc.WithHTTPClient(hc)}
	for k, v := range opts.Headers {
		clientOpts = append(clientOpts, rpc.WithHeader(k, v))
	}
	rc, err := rpc.DialOptions(ctx, endpoint, clientOpts...)
	if err != nil {
		return nil, fault.Wrap(fault.KindConfig, "MEMO-RPC-004", "dial rpc endpoint", err)
	}
	c.rpc = rc
	return c, nil
}

func (c *Client) Close() error {
	if c == nil || c.rpc == nil {
		return nil
	}
	c.rpc.Close()
	return nil
}

// Commitment returns the commitment level used for reads.
func (c *Client) Commitment() string { return c.commitment }

func (c *Client) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return classify(method, c.rpc.CallContext(ctx, result, method, args...))
}

type transactionResult struct {
	Slot        uint64           `json:"slot"`
	BlockTime   *int64           `json:"blockTime"`
	Meta        *transactionMeta `json:"meta"`
	Transaction json.RawMessage  `json:"transaction"`
	Version     json.RawMessage  `json:"version"`
}

type transactionMeta struct {
	Err             json.RawMessage `json:"err"`
	LoadedAddresses *struct {
		Writable []string `json:"writable"`
		Readonly []string `json:"readonly"`
	} `json:"loadedAddresses"`
}

// GetTransaction fetches the transaction identified by sig. It returns
// (nil, nil) when the ledger has not indexed it (yet).
//
// A transaction whose message cannot be decoded is still returned, with
// slot and block time set and a zero Transaction (VersionUnknown), so it
// normalizes to no records. Only an unreadable result envelope is an error.
func (c *Client) GetTransaction(ctx context.Context, sig ledger.Signature) (*txmsg.Fetched, error) {
	if c.cache != nil {
		if f, ok := c.cache.Get(sig); ok {
			return f, nil
		}
	}
	cfg := map[string]interface{}{
		"encoding":                       c.encoding,
		"commitment":                     c.commitment,
		"maxSupportedTransactionVersion": 0,
	}
	var raw json.RawMessage
	if err := c.call(ctx, &raw, "getTransaction", sig.String(), cfg); err != nil {
		return nil, err
	}
	if isNull(raw) {
		return nil, nil
	}
	var res transactionResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fault.Wrap(fault.KindRPC, "MEMO-RPC-201", "decode getTransaction result", err)
	}
	f := res.header()
	if err := res.decodeInto(f); err != nil {
		c.log.Debug("unrecognized transaction", "signature", sig.String(), "slot", f.Slot, "err", err)
		f.Transaction = txmsg.Transaction{}
		f.LoadedAddresses = txmsg.LoadedAddresses{}
	}
	if c.cache != nil {
		c.cache.Add(sig, f)
	}
	return f, nil
}

// header carries the fields that do not depend on the message encoding.
func (r *transactionResult) header() *txmsg.Fetched {
	f := &txmsg.Fetched{Slot: r.Slot}
	if r.BlockTime != nil {
		t := time.Unix(*r.BlockTime, 0).UTC()
		f.BlockTime = &t
	}
	if r.Meta != nil {
		f.Failed = !isNull(r.Meta.Err)
	}
	return f
}

func (r *transactionResult) decodeInto(f *txmsg.Fetched) error {
	if r.Meta != nil {
		if la := r.Meta.LoadedAddresses; la != nil {
			loaded, err := txmsg.ParseLoadedAddresses(la.Writable, la.Readonly)
			if err != nil {
				return err
			}
			f.LoadedAddresses = loaded
		}
	}

	body := bytes.TrimSpace(r.Transaction)
	if len(body) > 0 && body[0] == '[' {
		var pair []string
		if err := json.Unmarshal(body, &pair); err != nil {
			return err
		}
		if len(pair) != 2 || pair[1] != EncodingBase64 {
			return fmt.Errorf("unsupported transaction encoding %v", pair)
		}
		wire, err := base64.StdEncoding.DecodeString(pair[0])
		if err != nil {
			return err
		}
		tx, err := txmsg.DecodeTransaction(wire)
		if err != nil {
			return err
		}
		f.Transaction = tx
		return nil
	}

	var jt txmsg.JSONTransaction
	if err := json.Unmarshal(body, &jt); err != nil {
		return err
	}
	version := txmsg.VersionFromJSON(r.Version, jt.Message.AddressTableLookups != nil)
	tx, err := txmsg.FromJSON(jt, version)
	if err != nil {
		return err
	}
	f.Transaction = tx
	return nil
}

// SignatureInfo is one entry of an address's signature history.
type SignatureInfo struct {
	Signature          ledger.Signature
	Slot               uint64
	BlockTime          *time.Time
	Failed             bool
	Memo               string
	ConfirmationStatus string
}

type signatureResult struct {
	Signature          string          `json:"signature"`
	Slot               uint64          `json:"slot"`
	Err                json.RawMessage `json:"err"`
	Memo               *string         `json:"memo"`
	BlockTime          *int64          `json:"blockTime"`
	ConfirmationStatus string          `json:"confirmationStatus"`
}

// GetSignaturesForAddress returns up to limit signatures involving addr,
// most recent first.
func (c *Client) GetSignaturesForAddress(ctx context.Context, addr ledger.PublicKey, limit int) ([]SignatureInfo, error) {
	return c.GetSignaturesForAddressBefore(ctx, addr, limit, ledger.Signature{})
}

// GetSignaturesForAddressBefore pages backwards from before (exclusive).
// A zero before starts at the most recent signature.
func (c *Client) GetSignaturesForAddressBefore(ctx context.Context, addr ledger.PublicKey, limit int, before ledger.Signature) ([]SignatureInfo, error) {
	if limit <= 0 || limit > ledger.MaxSignaturesForAddress {
		limit = ledger.MaxSignaturesForAddress
	}
	cfg := map[string]interface{}{
		"limit":      limit,
		"commitment": c.commitment,
	}
	if !before.IsZero() {
		cfg["before"] = before.String()
	}
	var res []signatureResult
	if err := c.call(ctx, &res, "getSignaturesForAddress", addr.String(), cfg); err != nil {
		return nil, err
	}
	out := make([]SignatureInfo, 0, len(res))
	for _, r := range res {
		sig, err := ledger.ParseSignature(r.Signature)
		if err != nil {
			return nil, fault.Wrap(fault.KindRPC, "MEMO-RPC-301", "decode getSignaturesForAddress result", err)
		}
		info := SignatureInfo{
			Signature:          sig,
			Slot:               r.Slot,
			Failed:             !isNull(r.Err),
			ConfirmationStatus: r.ConfirmationStatus,
		}
		if r.Memo != nil {
			info.Memo = *r.Memo
		}
		if r.BlockTime != nil {
			t := time.Unix(*r.BlockTime, 0).UTC()
			info.BlockTime = &t
		}
		out = append(out, info)
	}
	return out, nil
}

// Blockhash is a recent blockhash and the last block height at which a
// transaction referencing it is still accepted.
type Blockhash struct {
	Hash                 ledger.Hash
	LastValidBlockHeight uint64
}

// GetLatestBlockhash returns a blockhash to build a transaction against.
func (c *Client) GetLatestBlockhash(ctx context.Context) (Blockhash, error) {
	var res struct {
		Value struct {
			Blockhash            string `json:"blockhash"`
			LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
		} `json:"value"`
	}
	if err := c.call(ctx, &res, "getLatestBlockhash", map[string]interface{}{"commitment": c.commitment}); err != nil {
		return Blockhash{}, err
	}
	h, err := ledger.ParseHash(res.Value.Blockhash)
	if err != nil {
		return Blockhash{}, fault.Wrap(fault.KindRPC, "MEMO-RPC-401", "decode getLatestBlockhash result", err)
	}
	return Blockhash{Hash: h, LastValidBlockHeight: res.Value.LastValidBlockHeight}, nil
}

// SendTransaction submits a signed, serialized transaction and returns the
// signature the node assigned to it.
func (c *Client) SendTransaction(ctx context.Context, wire []byte) (ledger.Signature, error) {
	cfg := map[string]interface{}{
		"encoding":            EncodingBase64,
		"preflightCommitment": c.commitment,
	}
	var res string
	if err := c.call(ctx, &res, "sendTransaction", base64.StdEncoding.EncodeToString(wire), cfg); err != nil {
		return ledger.Signature{}, err
	}
	sig, err := ledger.ParseSignature(res)
	if err != nil {
		return ledger.Signature{}, fault.Wrap(fault.KindRPC, "MEMO-RPC-501", "decode sendTransaction result", err)
	}
	return sig, nil
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

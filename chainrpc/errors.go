package chainrpc

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/ethereum/go-ethereum/rpc"

	"xdao.co/memoproof/fault"
)

// JSON-RPC error codes the ledger uses for conditions that clear on their own.
var transientCodes = map[int]bool{
	-32603: true, // internal error
	-32004: true, // block not available for slot
	-32005: true, // node is behind / unhealthy
	-32007: true, // slot skipped or missing due to ledger jump
	-32009: true, // slot skipped or missing in long-term storage
	-32014: true, // block status not yet available
	-32016: true, // minimum context slot not reached
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool { return fault.IsKind(err, fault.KindRPCTransient) }

func classify(method string, err error) error {
	if err == nil {
		return nil
	}
	msg := method + " failed"
	if errors.Is(err, context.Canceled) {
		return fault.Wrap(fault.KindRPC, "MEMO-RPC-100", msg, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fault.Wrap(fault.KindRPCTransient, "MEMO-RPC-101", msg, err)
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return classifyStatus(msg, httpErr.StatusCode, err)
	}
	var httpErrPtr *rpc.HTTPError
	if errors.As(err, &httpErrPtr) && httpErrPtr != nil {
		return classifyStatus(msg, httpErrPtr.StatusCode, err)
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		if transientCodes[rpcErr.ErrorCode()] {
			return fault.Wrap(fault.KindRPCTransient, "MEMO-RPC-110", msg, err)
		}
		return fault.Wrap(fault.KindRPC, "MEMO-RPC-111", msg, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fault.Wrap(fault.KindRPCTransient, "MEMO-RPC-120", msg, err)
	}
	// Unclassified transport failures (connection resets, truncated bodies).
	return fault.Wrap(fault.KindRPCTransient, "MEMO-RPC-199", msg, err)
}

func classifyStatus(msg string, status int, err error) error {
	if status == http.StatusTooManyRequests || status >= 500 {
		return fault.Wrap(fault.KindRPCTransient, "MEMO-RPC-102", msg, err)
	}
	return fault.Wrap(fault.KindRPC, "MEMO-RPC-103", msg, err)
}

// Package grpcstore is a receipt.Store backed by a remote xdao-receiptd, and
// the gRPC service that daemon serves.
package grpcstore

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/memoproof/digest"
	"xdao.co/memoproof/receipt"
)

// Client implements receipt.Store over the Receipts gRPC service.
type Client struct {
	cc     *grpc.ClientConn
	client ReceiptsClient

	// Timeout applies per RPC when non-zero.
	Timeout time.Duration
}

var _ receipt.Store = (*Client)(nil)

type DialOptions struct {
	// MaxMsgBytes sets both send/recv max sizes when non-zero.
	MaxMsgBytes int
}

// Dial creates a client for target. The connection is established lazily
// on the first call.
func Dial(target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts,
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
				grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
			),
		)
	}
	cc, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, err
	}
	return NewClient(cc), nil
}

// NewClient wraps an existing connection.
func NewClient(cc *grpc.ClientConn) *Client {
	return &Client{cc: cc, client: NewReceiptsClient(cc)}
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

func (c *Client) Put(ctx context.Context, r receipt.Receipt) error {
	if err := r.Validate(); err != nil {
		return err
	}
	b, err := receipt.Marshal(r)
	if err != nil {
		return err
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.Put(ctx, wrapperspb.Bytes(b))
	if err != nil {
		return fromStatus(err)
	}
	if reply.GetValue() != r.Digest.String() {
		return fmt.Errorf("grpcstore: server acknowledged %q for %q", reply.GetValue(), r.Digest)
	}
	return nil
}

func (c *Client) Get(ctx context.Context, d digest.Digest) (receipt.Receipt, error) {
	if !d.Valid() {
		return receipt.Receipt{}, receipt.ErrInvalidDigest
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.Get(ctx, wrapperspb.String(d.String()))
	if err != nil {
		return receipt.Receipt{}, fromStatus(err)
	}
	r, err := receipt.Unmarshal(reply.GetValue())
	if err != nil {
		return receipt.Receipt{}, err
	}
	if r.Digest != d {
		return receipt.Receipt{}, receipt.ErrImmutable
	}
	return r, nil
}

func (c *Client) Has(ctx context.Context, d digest.Digest) bool {
	if !d.Valid() {
		return false
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.Has(ctx, wrapperspb.String(d.String()))
	if err != nil {
		return false
	}
	return reply.GetValue()
}

func (c *Client) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, c.Timeout)
}

package model

import (
	"strings"
	"time"

	"xdao.co/memoproof/digest"
	"xdao.co/memoproof/ledger"
	"xdao.co/memoproof/receipt"
	"xdao.co/memoproof/registrar"
	"xdao.co/memoproof/verify"
)

// DigestResponse describes a hashed upload.
type DigestResponse struct {
	Digest string `json:"digest"`
	CID    string `json:"cid"`
	Name   string `json:"name,omitempty"`
	Size   int64  `json:"size"`
}

func NewDigestResponse(d digest.Digest, name string, size int64) (DigestResponse, error) {
	id, err := d.CID()
	if err != nil {
		return DigestResponse{}, err
	}
	return DigestResponse{Digest: d.String(), CID: id.String(), Name: name, Size: size}, nil
}

// Subject names a digest either as hex or as a CID. Exactly one MUST be set.
type Subject struct {
	Digest string `json:"digest,omitempty"`
	CID    string `json:"cid,omitempty"`
}

func (s Subject) Resolve() (digest.Digest, error) {
	hex, id := strings.TrimSpace(s.Digest), strings.TrimSpace(s.CID)
	switch {
	case hex != "" && id != "":
		return "", NewError(ErrInvalidRequest, "set only one of digest or cid")
	case hex != "":
		d, err := digest.Parse(hex)
		if err != nil {
			return "", NewError(ErrInvalidDigest, err.Error())
		}
		return d, nil
	case id != "":
		d, err := digest.ParseAny(id)
		if err != nil {
			return "", NewError(ErrInvalidDigest, err.Error())
		}
		return d, nil
	default:
		return "", NewError(ErrInvalidRequest, "digest or cid is required")
	}
}

type VerifyRequest struct {
	Subject
	// Signature restricts verification to one transaction.
	Signature string `json:"signature,omitempty"`
	// Scan skips the receipt and searches recent memo history.
	Scan bool `json:"scan,omitempty"`
}

func (r VerifyRequest) Options() (registrar.VerifyOptions, error) {
	opts := registrar.VerifyOptions{Scan: r.Scan}
	if r.Signature == "" {
		return opts, nil
	}
	sig, err := ledger.ParseSignature(r.Signature)
	if err != nil {
		return opts, NewError(ErrInvalidRequest, err.Error())
	}
	opts.Signature = sig
	return opts, nil
}

type VerifyResponse struct {
	Status    string      `json:"status"`
	Strategy  string      `json:"strategy"`
	Digest    string      `json:"digest"`
	Signature string      `json:"signature,omitempty"`
	Slot      uint64      `json:"slot,omitempty"`
	BlockTime *time.Time  `json:"blockTime,omitempty"`
	Attempts  int         `json:"attempts"`
	Reason    string      `json:"reason,omitempty"`
	Message   string      `json:"message"`
	Error     *CodedError `json:"error,omitempty"`
}

func NewVerifyResponse(o verify.Outcome) VerifyResponse {
	resp := VerifyResponse{
		Status:   o.Status.String(),
		Strategy: string(o.Strategy),
		Digest:   o.Digest.String(),
		Slot:     o.Slot,
		Attempts: o.Attempts,
		Reason:   string(o.Reason),
		Message:  o.Message,
	}
	if !o.Signature.IsZero() {
		resp.Signature = o.Signature.String()
	}
	if o.BlockTime != nil {
		t := o.BlockTime.UTC()
		resp.BlockTime = &t
	}
	if o.Status == verify.StatusError && o.Err != nil {
		resp.Error = ErrorFrom(o.Err)
	}
	return resp
}

type RegisterRequest struct {
	Subject
	Force      bool `json:"force,omitempty"`
	SkipVerify bool `json:"skipVerify,omitempty"`
}

func (r RegisterRequest) Options() registrar.RegisterOptions {
	return registrar.RegisterOptions{Force: r.Force, SkipVerify: r.SkipVerify}
}

type RegisterResponse struct {
	Receipt      ReceiptResponse `json:"receipt"`
	Verification *VerifyResponse `json:"verification,omitempty"`
	// ReceiptError is set when the transaction was sent but the receipt could
	// not be stored.
	ReceiptError string `json:"receiptError,omitempty"`
}

func NewRegisterResponse(reg registrar.Registration) RegisterResponse {
	resp := RegisterResponse{Receipt: NewReceiptResponse(reg.Receipt)}
	if reg.Outcome.Strategy != "" {
		v := NewVerifyResponse(reg.Outcome)
		resp.Verification = &v
	}
	if reg.ReceiptErr != nil {
		resp.ReceiptError = reg.ReceiptErr.Error()
	}
	return resp
}

type ReceiptResponse struct {
	Digest      string     `json:"digest"`
	CID         string     `json:"cid,omitempty"`
	Signature   string     `json:"signature"`
	Payer       string     `json:"payer"`
	Cluster     string     `json:"cluster,omitempty"`
	SubmittedAt time.Time  `json:"submittedAt"`
	Confirmed   bool       `json:"confirmed"`
	Slot        uint64     `json:"slot,omitempty"`
	BlockTime   *time.Time `json:"blockTime,omitempty"`
}

func NewReceiptResponse(r receipt.Receipt) ReceiptResponse {
	resp := ReceiptResponse{
		Digest:      r.Digest.String(),
		Signature:   r.Signature.String(),
		Payer:       r.Payer.String(),
		Cluster:     r.Cluster,
		SubmittedAt: r.SubmittedAt.UTC(),
		Confirmed:   r.Confirmed(),
		Slot:        r.Slot,
	}
	if id, err := r.Digest.CID(); err == nil {
		resp.CID = id.String()
	}
	if r.BlockTime != nil {
		t := r.BlockTime.UTC()
		resp.BlockTime = &t
	}
	return resp
}

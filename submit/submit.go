// Package submit builds and dispatches the one-instruction transaction that
// anchors a digest on the ledger.
package submit

import (
	"context"
	"io"
	"log/slog"
	"time"

	"xdao.co/memoproof/chainrpc"
	"xdao.co/memoproof/digest"
	"xdao.co/memoproof/fault"
	"xdao.co/memoproof/ledger"
	"xdao.co/memoproof/memo"
	"xdao.co/memoproof/txmsg"
	"xdao.co/memoproof/wallet"
)

// Chain provides the recent blockhash a transaction is built against.
// *chainrpc.Client satisfies it.
type Chain interface {
	GetLatestBlockhash(ctx context.Context) (chainrpc.Blockhash, error)
}

// Result is what a successful dispatch leaves behind. The signature is the
// only durable evidence of submission; BlockTime stays nil until the
// transaction is observed confirmed.
type Result struct {
	Signature   ledger.Signature
	Digest      digest.Digest
	Payer       ledger.PublicKey
	SubmittedAt time.Time
	BlockTime   *time.Time
}

type Pipeline struct {
	Chain     Chain
	Wallet    wallet.Wallet
	ProgramID ledger.PublicKey
	Logger    *slog.Logger
	Now       func() time.Time
}

func New(chain Chain, w wallet.Wallet, logger *slog.Logger) *Pipeline {
	return &Pipeline{Chain: chain, Wallet: w, ProgramID: ledger.MemoProgramID, Logger: logger}
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Build returns the unsigned memo transaction for d: a legacy message whose
// only instruction targets the memo program with no account references.
func Build(payer, programID ledger.PublicKey, blockhash ledger.Hash, d digest.Digest) (*txmsg.Transaction, error) {
	data, err := memo.Encode(d)
	if err != nil {
		return nil, err
	}
	return &txmsg.Transaction{
		Signatures: make([]ledger.Signature, 1),
		Message: txmsg.Message{
			Version: txmsg.VersionLegacy,
			Header: txmsg.Header{
				NumRequiredSignatures:       1,
				NumReadonlySignedAccounts:   0,
				NumReadonlyUnsignedAccounts: 1,
			},
			AccountKeys:     []ledger.PublicKey{payer, programID},
			RecentBlockhash: blockhash,
			Instructions: []txmsg.CompiledInstruction{
				{ProgramIDIndex: 1, Accounts: []uint8{}, Data: memo.BytesPayload(data)},
			},
		},
	}, nil
}

// Submit anchors d and returns the ledger-assigned signature. Failures are
// fault.KindSubmission errors wrapping the cause; nothing is retried.
func (p *Pipeline) Submit(ctx context.Context, d digest.Digest) (Result, error) {
	if !d.Valid() {
		return Result{}, fault.Wrap(fault.KindSubmission, "MEMO-SUBMIT-001", "invalid digest", digest.ErrInvalid)
	}
	if p.Chain == nil || p.Wallet == nil {
		return Result{}, fault.New(fault.KindSubmission, "MEMO-SUBMIT-002", "pipeline missing chain or wallet")
	}
	programID := p.ProgramID
	if programID.IsZero() {
		programID = ledger.MemoProgramID
	}
	log := p.logger().With("digest", d.String())

	bh, err := p.Chain.GetLatestBlockhash(ctx)
	if err != nil {
		return Result{}, fault.Wrap(fault.KindSubmission, "MEMO-SUBMIT-010", "fetch recent blockhash", err)
	}
	payer := p.Wallet.PublicKey()
	tx, err := Build(payer, programID, bh.Hash, d)
	if err != nil {
		return Result{}, fault.Wrap(fault.KindSubmission, "MEMO-SUBMIT-011", "build memo transaction", err)
	}
	sig, err := p.Wallet.SignAndSend(ctx, tx)
	if err != nil {
		log.Warn("submission failed", "err", err)
		return Result{}, fault.Wrap(fault.KindSubmission, "MEMO-SUBMIT-020", "sign and send", err)
	}

	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	log.Info("submitted", "signature", sig.String(), "payer", payer.String())
	return Result{Signature: sig, Digest: d, Payer: payer, SubmittedAt: now().UTC()}, nil
}

package chain

import (
	"context"
	"time"
)

// ReceiptStatus is the chain-confirmed outcome of a submitted transaction.
type ReceiptStatus int

const (
	// ReceiptUnknown means the provider has no record of the hash yet —
	// it may still be propagating, or it may never have been accepted.
	ReceiptUnknown ReceiptStatus = iota
	ReceiptPending
	ReceiptSuccess
	ReceiptReverted
)

// Receipt is the outcome of TxStatus for a previously submitted hash.
type Receipt struct {
	Status ReceiptStatus
	Hash   Hash
}

// SignedTx is a fully built, signed transaction ready for submission.
// Fee fields are carried as decimal wei strings so the broadcaster's bump
// loop can scale them without a big.Int dependency leaking across the
// package boundary.
type SignedTx struct {
	To           Address
	Data         []byte
	Nonce        uint64
	GasFeeCapWei string
	GasTipCapWei string
	GasLimit     uint64
	Raw          []byte // provider-specific signed envelope
}

// Provider is the abstract ledger collaborator from SPEC_FULL.md §6.1: a
// read/write interface with call, send_tx and tx_status. Everything
// contract-shaped (TaskQueue, WorkflowEngine, SubnetControlPlane) is
// built on top of these four methods; the core never talks to a
// provider-specific RPC client directly.
type Provider interface {
	// Call performs a read-only contract call and returns the raw
	// ABI-encoded return value.
	Call(ctx context.Context, to Address, data []byte) ([]byte, error)

	// SendTx submits a signed transaction and returns its hash.
	SendTx(ctx context.Context, tx *SignedTx) (Hash, error)

	// TxStatus queries the current on-chain status of a previously
	// submitted transaction hash.
	TxStatus(ctx context.Context, hash Hash) (Receipt, error)

	// PendingNonceAt returns the next nonce to use for account, per the
	// provider's own pending-pool view — used to resynchronize
	// nonce:last after a nonce-drift error (SPEC_FULL.md §7).
	PendingNonceAt(ctx context.Context, account Address) (uint64, error)
}

// CallTimeout is the per-call ledger timeout from SPEC_FULL.md §5.
const CallTimeout = 15 * time.Second

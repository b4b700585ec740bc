package chain

import (
	"context"
	"sync"
)

// FakeProvider is a scriptable Provider test double: it lets chain,
// scheduler, supervisor and broadcaster tests exercise the nonce-drift,
// revert, bump and confirmation paths (spec.md §8 scenarios S2/S3/S5)
// without a real ledger. Its behavior is driven by the exported hook
// fields and the Receipts/CallReturn maps a test populates before
// exercising the code under test, in the spirit of
// `original_source/src/bin/sim_confirm.rs`'s manual staging of confirmed
// state for test scenarios.
type FakeProvider struct {
	mu sync.Mutex

	// CallReturn, keyed by to.Hex()+":"+string(data), is the raw return value
	// Call should produce; PendingNonce is the value PendingNonceAt
	// should return.
	CallReturn   map[string][]byte
	PendingNonce uint64

	// CallErr/SendErr/TxStatusErr/PendingNonceErr, if set, are returned
	// in place of the normal behavior — used to simulate the error
	// taxonomy (transient/nonce-drift/revert/fatal) a real Provider
	// would surface as an opaque error string.
	CallErr         error
	SendErr         error
	TxStatusErr     error
	PendingNonceErr error

	// Receipts, keyed by hash hex, is consulted by TxStatus; entries
	// are seeded by a test to simulate confirmation/reversion landing
	// asynchronously after Send.
	Receipts map[string]Receipt

	sent []*SignedTx
}

func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		CallReturn: make(map[string][]byte),
		Receipts:   make(map[string]Receipt),
	}
}

func (f *FakeProvider) callKey(to Address, data []byte) string {
	return to.Hex() + ":" + string(data)
}

func (f *FakeProvider) Call(_ context.Context, to Address, data []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CallErr != nil {
		return nil, f.CallErr
	}
	return f.CallReturn[f.callKey(to, data)], nil
}

// SetCallReturn stages the return value Call should produce for a given
// (to, data) pair.
func (f *FakeProvider) SetCallReturn(to Address, data []byte, ret []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CallReturn[f.callKey(to, data)] = ret
}

func (f *FakeProvider) SendTx(_ context.Context, tx *SignedTx) (Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return Hash{}, f.SendErr
	}
	f.sent = append(f.sent, tx)
	var h Hash
	h[0] = byte(len(f.sent))
	return h, nil
}

func (f *FakeProvider) TxStatus(_ context.Context, hash Hash) (Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.TxStatusErr != nil {
		return Receipt{}, f.TxStatusErr
	}
	if r, ok := f.Receipts[hash.Hex()]; ok {
		return r, nil
	}
	return Receipt{Status: ReceiptUnknown, Hash: hash}, nil
}

// SetReceipt stages the receipt TxStatus should return for a hash.
func (f *FakeProvider) SetReceipt(hash Hash, r Receipt) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Receipts[hash.Hex()] = r
}

func (f *FakeProvider) PendingNonceAt(_ context.Context, _ Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PendingNonceErr != nil {
		return 0, f.PendingNonceErr
	}
	return f.PendingNonce, nil
}

// Sent returns the transactions submitted so far, for test assertions.
func (f *FakeProvider) Sent() []*SignedTx {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*SignedTx, len(f.sent))
	copy(out, f.sent)
	return out
}

// FakeSigner is a deterministic Signer test double: it does not perform
// real cryptography, it just stamps a verifiable Raw payload so tests
// can assert a SignedTx carries the fields it was built from.
type FakeSigner struct {
	Addr Address
}

func (s *FakeSigner) Address() Address { return s.Addr }

func (s *FakeSigner) Sign(to Address, data []byte, nonce uint64, gasFeeCapWei, gasTipCapWei string, gasLimit uint64) (*SignedTx, error) {
	return &SignedTx{
		To:           to,
		Data:         data,
		Nonce:        nonce,
		GasFeeCapWei: gasFeeCapWei,
		GasTipCapWei: gasTipCapWei,
		GasLimit:     gasLimit,
		Raw:          []byte("fake-signed"),
	}, nil
}

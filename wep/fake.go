package wep

import (
	"io"
	"sync"
)

// FakeStream is a scriptable TaskStream test double for Assigner tests
// (spec.md §8 scenarios S1/S4/S5): a test pre-loads the Inbound queue
// with the envelopes WEP would have sent, and inspects Sent afterward
// to assert the Assigner spoke the handshake correctly.
type FakeStream struct {
	mu       sync.Mutex
	Inbound  []*Envelope
	Sent     []*Envelope
	recvIdx  int
	closed   bool
	RecvErr  error // returned once Inbound is exhausted, instead of io.EOF
}

func NewFakeStream(inbound ...*Envelope) *FakeStream {
	return &FakeStream{Inbound: inbound}
}

func (f *FakeStream) Send(kind Kind, payload interface{}) error {
	env, err := Encode(kind, payload)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sent = append(f.Sent, env)
	return nil
}

func (f *FakeStream) Recv() (*Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recvIdx >= len(f.Inbound) {
		if f.RecvErr != nil {
			return nil, f.RecvErr
		}
		return nil, io.EOF
	}
	env := f.Inbound[f.recvIdx]
	f.recvIdx++
	return env, nil
}

func (f *FakeStream) CloseSend() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *FakeStream) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

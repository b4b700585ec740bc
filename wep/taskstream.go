package wep

// TaskStream is the Assigner's view of one per-activity WEP connection:
// just enough surface to drive the handshake/assign/read-loop sequence
// of spec.md §4.3 without depending on a concrete gRPC stream. *Stream
// implements it against a real connection; FakeStream implements it for
// tests.
type TaskStream interface {
	Send(kind Kind, payload interface{}) error
	Recv() (*Envelope, error)
	CloseSend() error
}

package wep

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

func init() {
	encoding.RegisterCodec(Codec{})
}

// serviceMethod is the gRPC method path the task stream is opened
// against, named after `original_source/crates/rpc`'s
// `execution.v1.Execution/TaskStream` service.
const serviceMethod = "/execution.v1.Execution/TaskStream"

// streamDesc describes a single bidirectional-streaming RPC with no
// protoc-generated service definition behind it — message shapes are
// carried entirely by the registered Codec.
var streamDesc = &grpc.StreamDesc{
	StreamName:    "TaskStream",
	ServerStreams: true,
	ClientStreams: true,
}

// DialTimeout bounds how long Dial waits for the initial connection.
const DialTimeout = 10 * time.Second

// Dial opens a connection to the WEP endpoint (spec.md §6 `wep.endpoint`).
func Dial(ctx context.Context, endpoint string) (*grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, DialTimeout)
	defer cancel()
	conn, err := grpc.DialContext(dialCtx, endpoint,
		grpc.WithInsecure(),
		grpc.WithBlock(),
	)
	if err != nil {
		return nil, errors.Wrap(err, "wep: dialing endpoint")
	}
	return conn, nil
}

// Stream is one per-activity bidirectional task stream (spec.md §4.3:
// "one stream per activity"). It is a thin wrapper over grpc.ClientStream
// that speaks Envelope frames.
type Stream struct {
	cs grpc.ClientStream
}

// Open starts a new task stream on conn.
func Open(ctx context.Context, conn *grpc.ClientConn) (*Stream, error) {
	cs, err := conn.NewStream(ctx, streamDesc, serviceMethod, grpc.CallContentSubtype(Codec{}.Name()))
	if err != nil {
		return nil, errors.Wrap(err, "wep: opening task stream")
	}
	return &Stream{cs: cs}, nil
}

// Send writes one envelope onto the stream.
func (s *Stream) Send(kind Kind, payload interface{}) error {
	env, err := Encode(kind, payload)
	if err != nil {
		return err
	}
	if err := s.cs.SendMsg(env); err != nil {
		return errors.Wrapf(err, "wep: sending %s", kind)
	}
	return nil
}

// Recv reads the next envelope off the stream.
func (s *Stream) Recv() (*Envelope, error) {
	var env Envelope
	if err := s.cs.RecvMsg(&env); err != nil {
		return nil, err
	}
	return &env, nil
}

// CloseSend half-closes the client->server direction once Assign has
// been sent and nothing further needs to go out.
func (s *Stream) CloseSend() error {
	return s.cs.CloseSend()
}

package wep

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Envelope is the one wire message every gRPC stream frame carries,
// wrapping exactly one of the Kind-tagged payloads in an encoded form —
// a JSON stand-in for the `oneof` shape of
// `original_source/crates/rpc/src/lib.rs`'s `execution_v1::Envelope`,
// chosen over a protoc-generated type so the message shapes above can
// be expressed as plain Go structs (see SPEC_FULL.md §6.2).
type Envelope struct {
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// Codec implements grpc.Codec-shaped Marshal/Unmarshal over Envelope so
// it can be registered with a ClientConn's stream without a
// protoc-generated service definition.
type Codec struct{}

func (Codec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (Codec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (Codec) Name() string { return "wep-json" }

// Encode wraps a typed payload into an Envelope ready to send.
func Encode(kind Kind, payload interface{}) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "wep: encoding %s payload", kind)
	}
	return &Envelope{Kind: kind, Payload: raw}, nil
}

// DecodeHelloAck, DecodeProgress and DecodeCompletion unwrap an Envelope's payload into its typed form, validating Kind
// first so a misrouted frame fails loudly instead of silently
// zero-valuing the target struct.

func DecodeHelloAck(e *Envelope) (*HelloAck, error) {
	var v HelloAck
	if err := decodeInto(e, KindHelloAck, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func DecodeProgress(e *Envelope) (*Progress, error) {
	var v Progress
	if err := decodeInto(e, KindProgress, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func DecodeCompletion(e *Envelope) (*Completion, error) {
	var v Completion
	if err := decodeInto(e, KindCompletion, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func decodeInto(e *Envelope, want Kind, v interface{}) error {
	if e.Kind != want {
		return errors.Errorf("wep: expected %s envelope, got %s", want, e.Kind)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return errors.Wrapf(err, "wep: decoding %s payload", want)
	}
	return nil
}

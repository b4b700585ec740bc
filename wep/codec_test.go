package wep

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeCompletionRoundTrip(t *testing.T) {
	env, err := Encode(KindCompletion, &Completion{
		ActivityID: "0xaaaa01",
		Status:     StatusSuccess,
		ResultRef:  "r2://out/1",
	})
	require.NoError(t, err)
	assert.Equal(t, KindCompletion, env.Kind)

	decoded, err := DecodeCompletion(env)
	require.NoError(t, err)
	assert.Equal(t, "0xaaaa01", decoded.ActivityID)
	assert.Equal(t, StatusSuccess, decoded.Status)
	assert.Equal(t, "r2://out/1", decoded.ResultRef)
}

func TestDecodeIntoRejectsWrongKind(t *testing.T) {
	env, err := Encode(KindHeartbeat, &Heartbeat{})
	require.NoError(t, err)
	_, err = DecodeCompletion(env)
	assert.Error(t, err)
}

func TestFakeStreamHandshakeSequence(t *testing.T) {
	helloAck, err := Encode(KindHelloAck, &HelloAck{Negotiated: "1.0"})
	require.NoError(t, err)
	completion, err := Encode(KindCompletion, &Completion{ActivityID: "0x1", Status: StatusSuccess, ResultRef: "r2://x"})
	require.NoError(t, err)

	fs := NewFakeStream(helloAck, completion)
	require.NoError(t, fs.Send(KindHello, &Hello{Min: "1.0", Max: "1.0"}))
	require.NoError(t, fs.Send(KindCapabilities, &Capabilities{MaxConcurrency: 1}))
	require.NoError(t, fs.Send(KindAssign, &Assign{ActivityID: "0x1"}))

	ack, err := fs.Recv()
	require.NoError(t, err)
	decodedAck, err := DecodeHelloAck(ack)
	require.NoError(t, err)
	assert.Equal(t, "1.0", decodedAck.Negotiated)

	comp, err := fs.Recv()
	require.NoError(t, err)
	decodedComp, err := DecodeCompletion(comp)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, decodedComp.Status)

	assert.Len(t, fs.Sent, 3)
}

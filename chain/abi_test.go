package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectorStable(t *testing.T) {
	a := selector("pollActivity(string,uint16)")
	b := selector("pollActivity(string,uint16)")
	require.Len(t, a, 4)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, selector("claimActivity(bytes32)"))
}

func TestClaimActivityCalldataShape(t *testing.T) {
	var id Hash
	id[31] = 0x07
	data := ClaimActivityCalldata(id)
	require.Len(t, data, 4+32)
	assert.Equal(t, byte(0x07), data[len(data)-1])
}

func TestIsWorkerActiveCalldataShape(t *testing.T) {
	var addr Address
	addr[19] = 0xAB
	data := IsWorkerActiveCalldata(addr)
	require.Len(t, data, 4+32)
	assert.Equal(t, byte(0xAB), data[len(data)-1])
}

func TestDecodeBoolRoundTrip(t *testing.T) {
	assert.True(t, DecodeBool(word([]byte{1})))
	assert.False(t, DecodeBool(word([]byte{0})))
	assert.False(t, DecodeBool(nil))
}

func TestDecodeStringRoundTrip(t *testing.T) {
	encoded := encodeDynamicBytes([]byte("video/1.0.0/processing"))
	assert.Equal(t, "video/1.0.0/processing", DecodeString(encoded))
}

func TestClassify(t *testing.T) {
	cases := map[string]ErrorKind{
		"nonce too low: have 3 want 9":    ErrKindNonceDrift,
		"nonce too high":                  ErrKindNonceDrift,
		"execution reverted: bad state":   ErrKindRevert,
		"unauthorized caller":             ErrKindFatal,
		"connection refused: timeout":     ErrKindTransient,
	}
	for msg, want := range cases {
		assert.Equal(t, want, Classify(errString(msg)), msg)
	}
	assert.Equal(t, ErrKindTransient, Classify(nil))
}

type errString string

func (e errString) Error() string { return string(e) }

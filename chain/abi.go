package chain

import (
	"encoding/binary"

	"golang.org/x/crypto/sha3"
)

// Hand-encoded calldata for the six contract methods the worker client
// consumes (SPEC_FULL.md §6.1). A full reflective ABI encoder (as
// go-ethereum's accounts/abi provides) would add a large surface for a
// fixed, six-method contract interface; see DESIGN.md for the fuller
// justification. Selectors use keccak256 over the canonical Solidity
// signature, the same primitive go-ethereum/klaytn's crypto stack is
// built on.

// selector returns the first 4 bytes of keccak256(signature).
func selector(signature string) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signature))
	return h.Sum(nil)[:4]
}

// word left-pads b into a 32-byte ABI word.
func word(b []byte) []byte {
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}

func encodeAddress(a Address) []byte { return word(a[:]) }

func encodeBytes32(h Hash) []byte { return word(h[:]) }

func encodeUint8(v uint8) []byte { return word([]byte{v}) }

func encodeUint16(v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return word(b[:])
}

// encodeDynamicBytes ABI-encodes a single trailing `bytes` argument: a
// 32-byte offset word (always 0x20, since it's the sole dynamic arg),
// the length word, and the right-padded data.
func encodeDynamicBytes(data []byte) []byte {
	out := make([]byte, 0, 32+32+((len(data)+31)/32)*32)
	out = append(out, word([]byte{0x20})...)
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(data)))
	out = append(out, word(lenBuf[:])...)
	padded := make([]byte, ((len(data)+31)/32)*32)
	copy(padded, data)
	out = append(out, padded...)
	return out
}

// PollActivityCalldata encodes TaskQueue.pollActivity(string,uint16).
// The queue name is the contract's sole dynamic argument; limit follows
// the static head.
func PollActivityCalldata(queue string, limit uint16) []byte {
	sig := selector("pollActivity(string,uint16)")
	// head: offset to dynamic string (after the two static/offset words),
	// then the uint16 limit.
	headOffset := word([]byte{0x40})
	limitWord := encodeUint16(limit)
	// The head already carries the offset word, so encodeDynamicBytes's
	// own leading offset word is dropped: the tail is length + data.
	strEncoded := encodeDynamicBytes([]byte(queue))[32:]
	out := append([]byte{}, sig...)
	out = append(out, headOffset...)
	out = append(out, limitWord...)
	out = append(out, strEncoded...)
	return out
}

// ClaimActivityCalldata encodes TaskQueue.claimActivity(bytes32).
func ClaimActivityCalldata(activityID Hash) []byte {
	out := append([]byte{}, selector("claimActivity(bytes32)")...)
	out = append(out, encodeBytes32(activityID)...)
	return out
}

// CompleteActivityCalldata encodes
// WorkflowEngine.completeActivity(bytes32,bytes,uint8).
func CompleteActivityCalldata(activityID Hash, resultRef []byte, status uint8) []byte {
	sig := selector("completeActivity(bytes32,bytes,uint8)")
	out := append([]byte{}, sig...)
	out = append(out, encodeBytes32(activityID)...)
	out = append(out, word([]byte{0x60})...) // offset to dynamic bytes, after 3 head words
	out = append(out, encodeUint8(status)...)
	out = append(out, encodeDynamicBytes(resultRef)[32:]...) // tail: length + data, without a second offset word
	return out
}

// ResumeWorkflowCalldata encodes WorkflowEngine.resumeWorkflow(bytes32).
func ResumeWorkflowCalldata(workflowInstanceID Hash) []byte {
	out := append([]byte{}, selector("resumeWorkflow(bytes32)")...)
	out = append(out, encodeBytes32(workflowInstanceID)...)
	return out
}

// IsWorkerActiveCalldata encodes SubnetControlPlane.isWorkerActive(address).
func IsWorkerActiveCalldata(worker Address) []byte {
	out := append([]byte{}, selector("isWorkerActive(address)")...)
	out = append(out, encodeAddress(worker)...)
	return out
}

// GetProtocolVersionCalldata encodes SubnetControlPlane.getProtocolVersion().
func GetProtocolVersionCalldata() []byte {
	return selector("getProtocolVersion()")
}

// DecodeBool decodes a single-word ABI bool return value.
func DecodeBool(ret []byte) bool {
	if len(ret) < 32 {
		return false
	}
	return ret[31] != 0
}

// DecodeString decodes a single dynamic-string ABI return value.
func DecodeString(ret []byte) string {
	if len(ret) < 64 {
		return ""
	}
	length := binary.BigEndian.Uint64(ret[56:64])
	if int(64+length) > len(ret) {
		return ""
	}
	return string(ret[64 : 64+length])
}

// EncodeBoolReturn builds a single-word ABI bool return value, the
// mirror of DecodeBool — used by fixtures outside this package (e.g.
// the supervisor startup-gate tests) to stand up a FakeProvider return.
func EncodeBoolReturn(v bool) []byte {
	if v {
		return word([]byte{1})
	}
	return word([]byte{0})
}

// EncodeStringReturn builds a single dynamic-string ABI return value,
// the mirror of DecodeString.
func EncodeStringReturn(s string) []byte {
	return encodeDynamicBytes([]byte(s))
}

// DecodeActivityPoll decodes the (Activity, bool) return of pollActivity
// into the 32-byte activity id and the has_result flag. Activity itself
// is treated as opaque per spec.md §1 (activity-specification files are
// opaque inputs); only the id is extracted.
func DecodeActivityPoll(ret []byte) (id Hash, hasResult bool, ok bool) {
	// Layout: [offset to Activity tuple][bool has_result][Activity tuple...]
	// The Activity tuple's own first word is the 32-byte activity id.
	if len(ret) < 96 {
		return id, false, false
	}
	activityOffset := binary.BigEndian.Uint64(ret[24:32])
	hasResult = ret[63] != 0
	if int(activityOffset)+32 > len(ret) {
		return id, hasResult, false
	}
	copy(id[:], ret[activityOffset:activityOffset+32])
	return id, hasResult, true
}

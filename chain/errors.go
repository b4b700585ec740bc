package chain

import "strings"

// ErrorKind is the broadcaster's error taxonomy (SPEC_FULL.md §7): not a
// Go error type hierarchy, just a classification of what a Provider
// error means for the tx state machine.
type ErrorKind int

const (
	ErrKindTransient ErrorKind = iota
	ErrKindNonceDrift
	ErrKindRevert
	ErrKindFatal
)

// Classify maps a raw Provider error into one of the four kinds the
// broadcaster's sub-loops branch on. Real providers surface these as
// JSON-RPC error strings; this mirrors the substring-matching approach
// most Ethereum-family clients use since error codes aren't standardized
// across node implementations.
func Classify(err error) ErrorKind {
	if err == nil {
		return ErrKindTransient
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "nonce too low"), strings.Contains(msg, "nonce too high"), strings.Contains(msg, "nonce mismatch"):
		return ErrKindNonceDrift
	case strings.Contains(msg, "revert"), strings.Contains(msg, "execution reverted"):
		return ErrKindRevert
	case strings.Contains(msg, "invalid key"), strings.Contains(msg, "unauthorized"), strings.Contains(msg, "forbidden"), strings.Contains(msg, "auth"):
		return ErrKindFatal
	default:
		return ErrKindTransient
	}
}

package store

import "strings"

// Keyspace prefixes. See SPEC_FULL.md §3 for the full keyspace table.
const (
	prefixClaimIntent    = "broadcast:claim:"
	prefixCompleteIntent = "broadcast:complete:"
	prefixResumeIntent   = "broadcast:resume:"
	prefixTx             = "tx:"
	prefixInflight       = "inflight:"
	prefixDone           = "done:"

	KeyNonceLast = "nonce:last"
)

// PrefixClaimIntent, PrefixCompleteIntent and PrefixResumeIntent are the
// three scan roots the broadcaster's submit loop walks every tick.
func PrefixClaimIntent() []byte    { return []byte(prefixClaimIntent) }
func PrefixCompleteIntent() []byte { return []byte(prefixCompleteIntent) }
func PrefixResumeIntent() []byte   { return []byte(prefixResumeIntent) }
func PrefixTx() []byte             { return []byte(prefixTx) }
func PrefixInflight() []byte       { return []byte(prefixInflight) }

func ClaimIntentKey(activityID string) []byte {
	return []byte(prefixClaimIntent + activityID)
}

func CompleteIntentKey(activityID string) []byte {
	return []byte(prefixCompleteIntent + activityID)
}

func ResumeIntentKey(workflowInstanceID string) []byte {
	return []byte(prefixResumeIntent + workflowInstanceID)
}

// TxKey is keyed on (subjectID, kind), not subjectID alone: a claim and
// a complete (or resume) transaction for the same activity id are
// distinct lifecycles and must not collide, otherwise a confirmed claim
// record would be read back in place of the not-yet-submitted complete
// record and silently skip it.
func TxKey(subjectID string, kind TxKind) []byte {
	return []byte(prefixTx + string(kind) + ":" + subjectID)
}

// SplitTxKey recovers the (kind, subjectID) pair from a tx: key trimmed
// of its prefixTx prefix (i.e. the TrimPrefix(key, PrefixTx()) result).
func SplitTxKey(trimmed string) (kind TxKind, subjectID string) {
	i := strings.IndexByte(trimmed, ':')
	if i < 0 {
		return "", trimmed
	}
	return TxKind(trimmed[:i]), trimmed[i+1:]
}

func InflightKey(activityID string) []byte {
	return []byte(prefixInflight + activityID)
}

func DoneKey(activityID string) []byte {
	return []byte(prefixDone + activityID)
}

// TrimPrefix strips a known prefix from a scanned key, returning the
// activity or workflow instance id it was keyed on.
func TrimPrefix(key []byte, prefix []byte) string {
	if len(key) < len(prefix) {
		return string(key)
	}
	return string(key[len(prefix):])
}

package store

import (
	"encoding/json"
	"time"
)

// TxKind identifies which on-chain action a TxRecord tracks.
type TxKind string

const (
	TxKindClaim    TxKind = "claim"
	TxKindComplete TxKind = "complete"
	TxKindResume   TxKind = "resume"
)

// TxStatus is one state in the tx lifecycle state machine (SPEC_FULL.md §4.2).
type TxStatus string

const (
	TxStatusPending   TxStatus = "pending"
	TxStatusSubmitted TxStatus = "submitted"
	TxStatusConfirmed TxStatus = "confirmed"
	TxStatusDropped   TxStatus = "dropped"
	TxStatusReplaced  TxStatus = "replaced"
)

// TxRecord is the value stored at tx:{kind}:{subject_id} (see TxKey).
// It is the single source of truth for one on-chain transaction's
// lifecycle; the broadcaster's sub-loops update its fields in place and
// re-persist it with WriteTx on every state change.
type TxRecord struct {
	ActivityID   string    `json:"activity_id"`
	Kind         TxKind    `json:"kind"`
	Status       TxStatus  `json:"status"`
	TxHash       string    `json:"tx_hash,omitempty"`
	Nonce        uint64    `json:"nonce"`
	SubmittedAt  time.Time `json:"submitted_at"`
	LastBumpAt   time.Time `json:"last_bump_at,omitempty"`
	BumpCount    int       `json:"bump_count"`
	FeeCapWei    string    `json:"fee_cap_wei,omitempty"`
	TipCapWei    string    `json:"tip_cap_wei,omitempty"`
	WorkflowID   string    `json:"workflow_instance_id,omitempty"`
	ResultRef    string    `json:"result_ref,omitempty"`
	CompleteStat uint8     `json:"complete_status,omitempty"`
}

// ClaimIntent is the value stored at broadcast:claim:{activity_id}.
type ClaimIntent struct {
	Queue        string    `json:"queue"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// CompleteIntent is the value stored at broadcast:complete:{activity_id}.
type CompleteIntent struct {
	ResultRef string `json:"result_ref"`
	Status    uint8  `json:"status"`
}

// ResumeIntent is the value stored at broadcast:resume:{workflow_instance_id}.
type ResumeIntent struct {
	Reason string `json:"reason"`
}

// AssignmentStatus tracks where an inflight activity sits in the Assigner's
// per-activity handler.
type AssignmentStatus string

const (
	AssignmentUnscheduled AssignmentStatus = "unscheduled"
	AssignmentRunning     AssignmentStatus = "running"
)

// Inflight is the value stored at inflight:{activity_id}.
type Inflight struct {
	Queue              string           `json:"queue"`
	ClaimedAt          time.Time        `json:"claimed_at"`
	AssignmentStatus   AssignmentStatus `json:"assignment_status"`
	WorkflowInstanceID string           `json:"workflow_instance_id"`
}

// DoneStatus is the terminal value stored at done:{activity_id}.
type DoneStatus string

const (
	DoneOK      DoneStatus = "ok"
	DoneFailed  DoneStatus = "failed"
	DoneTimeout DoneStatus = "timeout"
)

func marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }

func unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

// Package wep implements the worker client's side of the Worker
// Execution Plane stream protocol (spec.md §4.3/§6): one bidirectional
// gRPC stream per activity, carrying a small fixed set of JSON-encoded
// message kinds wrapped in an Envelope.
package wep

// Kind discriminates the payload carried by an Envelope. Named after
// the message types spec.md §6 lists verbatim.
type Kind string

const (
	KindHello        Kind = "hello"
	KindHelloAck     Kind = "hello_ack"
	KindCapabilities Kind = "capabilities"
	KindAssign       Kind = "assign"
	KindHeartbeat    Kind = "heartbeat"
	KindProgress     Kind = "progress"
	KindCompletion   Kind = "completion"
)

// CompletionStatus is the terminal outcome WEP reports for an activity.
type CompletionStatus string

const (
	StatusSuccess CompletionStatus = "SUCCESS"
	StatusFailed  CompletionStatus = "FAILED"
)

// Hello is the first message the Assigner sends on a freshly opened
// stream: the protocol version range it supports.
type Hello struct {
	Min string `json:"min"`
	Max string `json:"max"`
}

// HelloAck is WEP's reply: the negotiated single version, or an empty
// string if the ranges don't overlap.
type HelloAck struct {
	Negotiated string `json:"negotiated"`
}

// Capabilities advertises the worker's concurrency limit and any
// routing tags (e.g. hardware class) WEP can use to place the task.
type Capabilities struct {
	MaxConcurrency int      `json:"max_concurrency"`
	Tags           []string `json:"tags"`
}

// InputDescriptor is one input artifact reference for an Assign
// message — a named reference into external storage, or inline data,
// grounded on the original assigner's InputDescriptor shape.
type InputDescriptor struct {
	Name         string `json:"name"`
	MediaType    string `json:"media_type"`
	Ref          string `json:"ref"`
	InlineJSON   string `json:"inline_json,omitempty"`
	InlineBase64 string `json:"inline_bytes,omitempty"`
}

// Assign is the task assignment sent once Hello/Capabilities have been
// exchanged (spec.md §4.3 step 4).
type Assign struct {
	ActivityID         string            `json:"activity_id"`
	WorkflowInstanceID string            `json:"workflow_instance_id"`
	RunID              string            `json:"run_id"`
	TaskKind           string            `json:"task_kind"`
	TaskVersion        string            `json:"task_version"`
	Inputs             []InputDescriptor `json:"inputs"`
	UploadPrefix       string            `json:"upload_prefix"`
	SoftDeadlineUnix   int64             `json:"soft_deadline_unix"`
	HeartbeatIntervalS int32             `json:"heartbeat_interval_s"`
}

// Heartbeat carries no payload; its presence alone resets the stream's
// read-gap timeout.
type Heartbeat struct{}

// Progress reports coarse completion percentage, 0..100.
type Progress struct {
	Pct int `json:"pct"`
}

// Completion is the terminal message for an activity's stream.
type Completion struct {
	ActivityID string           `json:"activity_id"`
	Status     CompletionStatus `json:"status"`
	ResultRef  string           `json:"result_ref,omitempty"`
	Error      string           `json:"error,omitempty"`
}

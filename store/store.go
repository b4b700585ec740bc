// Package store provides the durable key-value namespace the worker client
// process uses for its intent log: claim/complete/resume intents, tx
// records, inflight claims and terminal outcomes. All keys are ASCII,
// colon-delimited and hierarchical (see keys.go); all values are JSON.
package store

import "io"

// Store is the durable KV engine the supervisor opens once and hands to
// every component. Implementations must provide single-key atomic writes
// and prefix-ordered snapshot scans; they do not need to provide
// cross-key transactions.
type Store interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Put(key, value []byte) error
	Delete(key []byte) error

	// NewIteratorWithPrefix returns a snapshot iterator over all keys
	// sharing the given prefix, ordered lexicographically. Callers must
	// call Release when done.
	NewIteratorWithPrefix(prefix []byte) Iterator

	NewBatch() Batch

	io.Closer
}

// Iterator walks a prefix-scan snapshot. Next must be called before the
// first Key/Value access.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Release()
	Error() error
}

// Batch buffers writes for a single atomic flush.
type Batch interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	Write() error
	Reset()
	ValueSize() int
}

// ErrNotFound is returned by Get when the key is absent. Implementations
// translate their engine-native not-found error into this sentinel so
// callers never need an engine-specific type switch.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "store: key not found" }

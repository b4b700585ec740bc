package store

import (
	"encoding/binary"
	"errors"
)

// Typed read/write helpers over Store, mirroring the ReadX/WriteX accessor
// convention of klaytn's storage/database.DBManager — one pair per
// keyspace row in SPEC_FULL.md §3.

func ReadTx(s Store, subjectID string, kind TxKind) (*TxRecord, error) {
	data, err := s.Get(TxKey(subjectID, kind))
	if err != nil {
		return nil, err
	}
	var rec TxRecord
	if err := unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func WriteTx(s Store, rec *TxRecord) error {
	data, err := marshal(rec)
	if err != nil {
		return err
	}
	return s.Put(TxKey(rec.ActivityID, rec.Kind), data)
}

func ReadClaimIntent(s Store, activityID string) (*ClaimIntent, error) {
	data, err := s.Get(ClaimIntentKey(activityID))
	if err != nil {
		return nil, err
	}
	var v ClaimIntent
	if err := unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func WriteClaimIntent(s Store, activityID string, v *ClaimIntent) error {
	data, err := marshal(v)
	if err != nil {
		return err
	}
	return s.Put(ClaimIntentKey(activityID), data)
}

func ReadCompleteIntent(s Store, activityID string) (*CompleteIntent, error) {
	data, err := s.Get(CompleteIntentKey(activityID))
	if err != nil {
		return nil, err
	}
	var v CompleteIntent
	if err := unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func WriteCompleteIntent(s Store, activityID string, v *CompleteIntent) error {
	data, err := marshal(v)
	if err != nil {
		return err
	}
	return s.Put(CompleteIntentKey(activityID), data)
}

func ReadResumeIntent(s Store, workflowInstanceID string) (*ResumeIntent, error) {
	data, err := s.Get(ResumeIntentKey(workflowInstanceID))
	if err != nil {
		return nil, err
	}
	var v ResumeIntent
	if err := unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func WriteResumeIntent(s Store, workflowInstanceID string, v *ResumeIntent) error {
	data, err := marshal(v)
	if err != nil {
		return err
	}
	return s.Put(ResumeIntentKey(workflowInstanceID), data)
}

func ReadInflight(s Store, activityID string) (*Inflight, error) {
	data, err := s.Get(InflightKey(activityID))
	if err != nil {
		return nil, err
	}
	var v Inflight
	if err := unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func WriteInflight(s Store, activityID string, v *Inflight) error {
	data, err := marshal(v)
	if err != nil {
		return err
	}
	return s.Put(InflightKey(activityID), data)
}

func WriteDone(s Store, activityID string, status DoneStatus) error {
	return s.Put(DoneKey(activityID), []byte(status))
}

func ReadDone(s Store, activityID string) (DoneStatus, bool, error) {
	ok, err := s.Has(DoneKey(activityID))
	if err != nil || !ok {
		return "", false, err
	}
	data, err := s.Get(DoneKey(activityID))
	if err != nil {
		return "", false, err
	}
	return DoneStatus(data), true, nil
}

// ReadNonceLast returns the last-issued account nonce, or (0, false) if
// none has been persisted yet (a fresh account/store).
func ReadNonceLast(s Store) (uint64, bool, error) {
	ok, err := s.Has([]byte(KeyNonceLast))
	if err != nil || !ok {
		return 0, false, err
	}
	data, err := s.Get([]byte(KeyNonceLast))
	if err != nil {
		return 0, false, err
	}
	if len(data) != 8 {
		return 0, false, errors.New("store: corrupt nonce:last value")
	}
	return binary.BigEndian.Uint64(data), true, nil
}

// WriteNonceLast persists the last-issued account nonce. Callers must
// write this before submitting the transaction that consumes it
// (spec invariant: nonce monotonic across restarts).
func WriteNonceLast(s Store, nonce uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], nonce)
	return s.Put([]byte(KeyNonceLast), buf[:])
}

// ErrStopIteration is a sentinel a scan callback can return to stop a
// Walk early without signalling a real error.
var ErrStopIteration = errors.New("store: stop iteration")

// Walk runs fn over every key/value pair under prefix, in order, stopping
// early (without error) if fn returns ErrStopIteration.
func Walk(s Store, prefix []byte, fn func(key, value []byte) error) error {
	it := s.NewIteratorWithPrefix(prefix)
	defer it.Release()
	for it.Next() {
		if err := fn(it.Key(), it.Value()); err != nil {
			if errors.Is(err, ErrStopIteration) {
				return nil
			}
			return err
		}
	}
	return it.Error()
}

// Package assigner implements the Assigner (spec.md §4.3): it moves
// inflight activities through the WEP bidirectional stream under a
// concurrency cap, and produces the completion/resume intents the
// Broadcaster submits on-chain.
package assigner

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rcrowley/go-metrics"
	"go.uber.org/zap"

	"github.com/piplabs/subnet-worker-client/store"
	"github.com/piplabs/subnet-worker-client/wep"
)

var (
	assignedCounter   = metrics.NewRegisteredCounter("assigner/assigned", nil)
	completedCounter  = metrics.NewRegisteredCounter("assigner/completed", nil)
	failedCounter     = metrics.NewRegisteredCounter("assigner/failed", nil)
	timedOutCounter   = metrics.NewRegisteredCounter("assigner/timedOut", nil)
	handshakeAbortCtr = metrics.NewRegisteredCounter("assigner/handshakeAborted", nil)
)

// Dialer opens a new per-activity WEP task stream. The production
// implementation dials a gRPC endpoint (wep.Dial + wep.Open); tests
// substitute an in-memory FakeStream.
type Dialer interface {
	OpenStream(ctx context.Context) (wep.TaskStream, error)
}

// Config is the Assigner's tuning surface (spec.md §6 `scheduler.*`,
// `wep.*`, `protocol.*`, `dev_mode`).
type Config struct {
	MaxInflight        int
	ProtocolMin        string
	ProtocolMax        string
	MaxConcurrencyTag  int
	Tags               []string
	HeartbeatIntervalS int32
	// AssignmentTTL bounds how long an activity may remain inflight
	// before the Assigner gives up and records `done = timeout`
	// (spec.md §4.3 "bounded by overall soft deadline").
	AssignmentTTL time.Duration
	// DevMode short-circuits every handler to a synthetic SUCCESS
	// completion without touching WEP at all (spec.md §6 `dev_mode`).
	DevMode bool
	// TaskKind/TaskVersion are the fixed task-shape fields every
	// Assign message carries; the contract surface this exercise
	// targets is single-task-shape (spec.md treats Activity as
	// opaque beyond its id).
	TaskKind    string
	TaskVersion string
}

// Assigner is the Assigner component: one long-lived scan loop that
// fans out bounded per-activity handler goroutines.
type Assigner struct {
	store  store.Store
	dialer Dialer
	cfg    Config
	log    *zap.Logger

	inProgress int32
}

func New(s store.Store, dialer Dialer, cfg Config, log *zap.Logger) *Assigner {
	return &Assigner{store: s, dialer: dialer, cfg: cfg, log: log}
}

// tickInterval mirrors the original assigner's poll cadence.
const tickInterval = 500 * time.Millisecond

// Name identifies this loop to the supervisor.
func (a *Assigner) Name() string { return "assigner" }

// Run blocks, scanning inflight activities until ctx is cancelled.
func (a *Assigner) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if err := a.tick(ctx); err != nil {
			a.log.Warn("assigner tick error", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(tickInterval):
		}
	}
}

func (a *Assigner) tick(ctx context.Context) error {
	ids, err := scanInflightIDs(a.store)
	if err != nil {
		return err
	}
	for _, activityID := range ids {
		if atomic.LoadInt32(&a.inProgress) >= int32(a.cfg.MaxInflight) {
			break
		}
		inflight, err := store.ReadInflight(a.store, activityID)
		if err != nil {
			continue
		}
		if inflight.AssignmentStatus != store.AssignmentUnscheduled {
			continue
		}

		// Flip and persist Running synchronously, before spawning the
		// handler goroutine — handleOne's own dial/handshake/Assign
		// round trips can easily outlast one 500ms tick, and a second
		// tick rescanning inflight:* while still Unscheduled would
		// otherwise spawn a second concurrent WEP stream for the same
		// activity id.
		inflight.AssignmentStatus = store.AssignmentRunning
		if err := store.WriteInflight(a.store, activityID, inflight); err != nil {
			a.log.Warn("failed to persist running status, skipping this cycle", zap.String("activityID", activityID), zap.Error(err))
			continue
		}

		atomic.AddInt32(&a.inProgress, 1)
		go func(id string, inf *store.Inflight) {
			defer atomic.AddInt32(&a.inProgress, -1)
			a.handleOne(ctx, id, inf)
		}(activityID, inflight)
	}
	return nil
}

func scanInflightIDs(s store.Store) ([]string, error) {
	var ids []string
	err := store.Walk(s, store.PrefixInflight(), func(key, _ []byte) error {
		ids = append(ids, store.TrimPrefix(key, store.PrefixInflight()))
		return nil
	})
	return ids, err
}

package assigner

import (
	"context"
	"time"

	"github.com/hashicorp/go-uuid"
	"go.uber.org/zap"

	"github.com/piplabs/subnet-worker-client/chain"
	"github.com/piplabs/subnet-worker-client/semver"
	"github.com/piplabs/subnet-worker-client/store"
	"github.com/piplabs/subnet-worker-client/wep"
)

// handleOne drives one inflight activity's per-activity WEP stream
// (spec.md §4.3), or the dev_mode short-circuit.
func (a *Assigner) handleOne(ctx context.Context, activityID string, inflight *store.Inflight) {
	if a.cfg.DevMode {
		a.completeDevMode(activityID, inflight)
		return
	}

	workflowInstanceID := inflight.WorkflowInstanceID
	if workflowInstanceID == "" {
		// The contract's Activity descriptor is treated as opaque
		// beyond its id (spec.md §1); this worker resolves a
		// workflow instance id by reusing the activity id, since
		// the two share an on-chain bytes32 identifier space.
		workflowInstanceID = activityID
	}

	stream, err := a.dialer.OpenStream(ctx)
	if err != nil {
		a.log.Warn("failed to open WEP stream, will retry next cycle", zap.String("activityID", activityID), zap.Error(err))
		a.resetUnscheduled(activityID, workflowInstanceID, inflight.ClaimedAt)
		return
	}

	negotiated, ok := a.handshake(stream, activityID)
	if !ok {
		handshakeAbortCtr.Inc(1)
		_ = stream.CloseSend()
		a.resetUnscheduled(activityID, workflowInstanceID, inflight.ClaimedAt)
		return
	}
	_ = negotiated

	runID, err := uuid.GenerateUUID()
	if err != nil {
		a.log.Warn("failed to generate run id, will retry next cycle", zap.String("activityID", activityID), zap.Error(err))
		_ = stream.CloseSend()
		a.resetUnscheduled(activityID, workflowInstanceID, inflight.ClaimedAt)
		return
	}

	if err := stream.Send(wep.KindAssign, &wep.Assign{
		ActivityID:         activityID,
		WorkflowInstanceID: workflowInstanceID,
		RunID:              runID,
		TaskKind:           a.cfg.TaskKind,
		TaskVersion:        a.cfg.TaskVersion,
		UploadPrefix:       "workflows/" + activityID + "/preprocess",
		SoftDeadlineUnix:   time.Now().Add(a.cfg.AssignmentTTL).Unix(),
		HeartbeatIntervalS: a.cfg.HeartbeatIntervalS,
	}); err != nil {
		a.log.Warn("failed to send assign, will retry next cycle", zap.String("activityID", activityID), zap.Error(err))
		a.resetUnscheduled(activityID, workflowInstanceID, inflight.ClaimedAt)
		return
	}
	assignedCounter.Inc(1)

	// AssignmentStatus is already Running, flipped synchronously by
	// tick before this handler was spawned; persist the resolved
	// workflow instance id alongside it.
	inflight.WorkflowInstanceID = workflowInstanceID
	if err := store.WriteInflight(a.store, activityID, inflight); err != nil {
		a.log.Warn("failed to persist workflow instance id", zap.String("activityID", activityID), zap.Error(err))
	}

	a.readLoop(ctx, stream, activityID, workflowInstanceID, inflight.ClaimedAt)
	_ = stream.CloseSend()
}

// handshake sends Hello and validates the HelloAck's negotiated
// version falls in the range both sides accept (spec.md §4.3 step 2).
func (a *Assigner) handshake(stream wep.TaskStream, activityID string) (string, bool) {
	if err := stream.Send(wep.KindHello, &wep.Hello{Min: a.cfg.ProtocolMin, Max: a.cfg.ProtocolMax}); err != nil {
		a.log.Warn("failed to send hello", zap.String("activityID", activityID), zap.Error(err))
		return "", false
	}
	env, err := stream.Recv()
	if err != nil {
		a.log.Warn("failed to receive hello_ack", zap.String("activityID", activityID), zap.Error(err))
		return "", false
	}
	ack, err := wep.DecodeHelloAck(env)
	if err != nil {
		a.log.Warn("malformed hello_ack", zap.String("activityID", activityID), zap.Error(err))
		return "", false
	}
	if ack.Negotiated == "" {
		a.log.Warn("no protocol version overlap", zap.String("activityID", activityID))
		return "", false
	}
	negotiated, err := semver.Parse(ack.Negotiated)
	if err != nil {
		a.log.Warn("unparseable negotiated version", zap.String("activityID", activityID), zap.Error(err))
		return "", false
	}
	min, errMin := semver.Parse(a.cfg.ProtocolMin)
	max, errMax := semver.Parse(a.cfg.ProtocolMax)
	if errMin != nil || errMax != nil || !semver.InRange(negotiated, min, max) {
		a.log.Warn("negotiated version out of range", zap.String("activityID", activityID), zap.String("negotiated", ack.Negotiated))
		return "", false
	}

	if err := stream.Send(wep.KindCapabilities, &wep.Capabilities{MaxConcurrency: a.cfg.MaxConcurrencyTag, Tags: a.cfg.Tags}); err != nil {
		a.log.Warn("failed to send capabilities", zap.String("activityID", activityID), zap.Error(err))
		return "", false
	}
	return ack.Negotiated, true
}

// readLoop consumes Heartbeat/Progress/Completion until a terminal
// Completion arrives, the read gap exceeds 2x the heartbeat interval,
// or the activity's soft deadline elapses (spec.md §4.3 step 5-6,
// "Timeouts").
func (a *Assigner) readLoop(ctx context.Context, stream wep.TaskStream, activityID, workflowInstanceID string, claimedAt time.Time) {
	readGap := time.Duration(a.cfg.HeartbeatIntervalS) * 2 * time.Second
	if readGap <= 0 {
		readGap = 20 * time.Second
	}
	deadline := claimedAt.Add(a.cfg.AssignmentTTL)

	type recvResult struct {
		env *wep.Envelope
		err error
	}
	resultCh := make(chan recvResult, 1)

	for {
		go func() {
			env, err := stream.Recv()
			resultCh <- recvResult{env, err}
		}()

		select {
		case <-ctx.Done():
			return
		case <-time.After(readGap):
			if time.Now().After(deadline) {
				a.onTimeout(activityID)
			}
			// Leave inflight for the next cycle; reset to
			// unscheduled so the capacity gate can retry it.
			a.resetUnscheduled(activityID, workflowInstanceID, claimedAt)
			return
		case r := <-resultCh:
			if r.err != nil {
				a.log.Warn("WEP stream read failed", zap.String("activityID", activityID), zap.Error(r.err))
				a.resetUnscheduled(activityID, workflowInstanceID, claimedAt)
				return
			}
			switch r.env.Kind {
			case wep.KindHeartbeat:
				continue
			case wep.KindProgress:
				if p, err := wep.DecodeProgress(r.env); err == nil {
					a.log.Debug("progress", zap.String("activityID", activityID), zap.Int("pct", p.Pct))
				}
				continue
			case wep.KindCompletion:
				completion, err := wep.DecodeCompletion(r.env)
				if err != nil {
					a.log.Warn("malformed completion, skipping", zap.String("activityID", activityID), zap.Error(err))
					continue
				}
				a.onCompletion(activityID, workflowInstanceID, completion)
				return
			default:
				// Unknown message kind: non-fatal decode/format
				// error per spec.md §7, skip and keep reading.
				continue
			}
		}
	}
}

func (a *Assigner) onCompletion(activityID, workflowInstanceID string, c *wep.Completion) {
	switch c.Status {
	case wep.StatusSuccess:
		if err := store.WriteCompleteIntent(a.store, activityID, &store.CompleteIntent{ResultRef: c.ResultRef, Status: uint8(chain.ReceiptSuccess)}); err != nil {
			a.log.Error("failed to write complete intent", zap.String("activityID", activityID), zap.Error(err))
			return
		}
		if err := store.WriteResumeIntent(a.store, workflowInstanceID, &store.ResumeIntent{Reason: "activity completed"}); err != nil {
			a.log.Error("failed to write resume intent", zap.String("activityID", activityID), zap.Error(err))
			return
		}
		if err := store.WriteDone(a.store, activityID, store.DoneOK); err != nil {
			a.log.Error("failed to write done=ok", zap.String("activityID", activityID), zap.Error(err))
			return
		}
		if err := a.store.Delete(store.InflightKey(activityID)); err != nil {
			a.log.Error("failed to delete inflight", zap.String("activityID", activityID), zap.Error(err))
			return
		}
		completedCounter.Inc(1)
		a.log.Info("activity completed", zap.String("activityID", activityID), zap.String("resultRef", c.ResultRef))
	case wep.StatusFailed:
		if err := store.WriteDone(a.store, activityID, store.DoneFailed); err != nil {
			a.log.Error("failed to write done=failed", zap.String("activityID", activityID), zap.Error(err))
			return
		}
		if err := a.store.Delete(store.InflightKey(activityID)); err != nil {
			a.log.Error("failed to delete inflight", zap.String("activityID", activityID), zap.Error(err))
			return
		}
		failedCounter.Inc(1)
		a.log.Warn("activity failed", zap.String("activityID", activityID), zap.String("error", c.Error))
	}
}

func (a *Assigner) onTimeout(activityID string) {
	if err := store.WriteDone(a.store, activityID, store.DoneTimeout); err != nil {
		a.log.Error("failed to write done=timeout", zap.String("activityID", activityID), zap.Error(err))
		return
	}
	if err := a.store.Delete(store.InflightKey(activityID)); err != nil {
		a.log.Error("failed to delete inflight after timeout", zap.String("activityID", activityID), zap.Error(err))
		return
	}
	timedOutCounter.Inc(1)
}

// resetUnscheduled leaves inflight in place so the next capacity-gate
// cycle retries the activity, unless the soft deadline has already
// elapsed, in which case it records the timeout via onTimeout.
func (a *Assigner) resetUnscheduled(activityID, workflowInstanceID string, claimedAt time.Time) {
	exists, err := a.store.Has(store.InflightKey(activityID))
	if err != nil || !exists {
		return
	}
	if time.Now().After(claimedAt.Add(a.cfg.AssignmentTTL)) {
		a.onTimeout(activityID)
		return
	}
	inflight, err := store.ReadInflight(a.store, activityID)
	if err != nil {
		return
	}
	inflight.AssignmentStatus = store.AssignmentUnscheduled
	if err := store.WriteInflight(a.store, activityID, inflight); err != nil {
		a.log.Warn("failed to reset inflight to unscheduled", zap.String("activityID", activityID), zap.Error(err))
	}
}

// completeDevMode bypasses WEP entirely: every inflight activity is
// synthetically completed SUCCESS (spec.md §6 `dev_mode`), grounded on
// `original_source/src/components/assigner.rs`'s `DEV_MOCK_ASSIGNER`
// short-circuit.
func (a *Assigner) completeDevMode(activityID string, inflight *store.Inflight) {
	workflowInstanceID := inflight.WorkflowInstanceID
	if workflowInstanceID == "" {
		workflowInstanceID = activityID
	}
	if err := store.WriteCompleteIntent(a.store, activityID, &store.CompleteIntent{ResultRef: "dev-mode://synthetic", Status: uint8(chain.ReceiptSuccess)}); err != nil {
		a.log.Error("dev_mode: failed to write complete intent", zap.String("activityID", activityID), zap.Error(err))
		return
	}
	if err := store.WriteResumeIntent(a.store, workflowInstanceID, &store.ResumeIntent{Reason: "dev_mode synthetic completion"}); err != nil {
		a.log.Error("dev_mode: failed to write resume intent", zap.String("activityID", activityID), zap.Error(err))
		return
	}
	if err := store.WriteDone(a.store, activityID, store.DoneOK); err != nil {
		a.log.Error("dev_mode: failed to write done", zap.String("activityID", activityID), zap.Error(err))
		return
	}
	if err := a.store.Delete(store.InflightKey(activityID)); err != nil {
		a.log.Error("dev_mode: failed to delete inflight", zap.String("activityID", activityID), zap.Error(err))
		return
	}
	completedCounter.Inc(1)
	a.log.Info("dev_mode: synthetic SUCCESS completion", zap.String("activityID", activityID))
}

package broadcaster

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/piplabs/subnet-worker-client/chain"
	"github.com/piplabs/subnet-worker-client/store"
)

// submitLoop scans the three intent prefixes every tick and drives each
// through allocate-nonce -> sign -> persist-pending -> send (spec.md
// §4.2 "Submit loop").
func (b *Broadcaster) submitLoop(ctx context.Context) error {
	for {
		if err := b.submitTick(ctx); err != nil {
			return err
		}
		if !b.sleepOrDone(ctx) {
			return nil
		}
	}
}

func (b *Broadcaster) submitTick(ctx context.Context) error {
	if err := b.submitClaims(ctx); err != nil {
		return err
	}
	if err := b.submitCompletes(ctx); err != nil {
		return err
	}
	return b.submitResumes(ctx)
}

func (b *Broadcaster) submitClaims(ctx context.Context) error {
	ids, err := scanIDs(b.store, store.PrefixClaimIntent())
	if err != nil {
		return err
	}
	for _, activityID := range ids {
		id, err := chain.ParseHash(activityID)
		if err != nil {
			b.log.Warn("malformed claim activity id, skipping", zap.String("activityID", activityID), zap.Error(err))
			continue
		}
		if err := b.submitOne(ctx, activityID, store.TxKindClaim, b.client.TaskQueueAddress(), b.client.ClaimCalldata(id), store.ClaimIntentKey(activityID), nil); err != nil {
			return err
		}
	}
	return nil
}

func (b *Broadcaster) submitCompletes(ctx context.Context) error {
	ids, err := scanIDs(b.store, store.PrefixCompleteIntent())
	if err != nil {
		return err
	}
	for _, activityID := range ids {
		intent, err := store.ReadCompleteIntent(b.store, activityID)
		if err != nil {
			b.log.Warn("unreadable complete intent, skipping", zap.String("activityID", activityID), zap.Error(err))
			continue
		}
		id, err := chain.ParseHash(activityID)
		if err != nil {
			b.log.Warn("malformed complete activity id, skipping", zap.String("activityID", activityID), zap.Error(err))
			continue
		}
		calldata := b.client.CompleteCalldata(id, []byte(intent.ResultRef), intent.Status)
		extra := func(rec *store.TxRecord) {
			rec.ResultRef = intent.ResultRef
			rec.CompleteStat = intent.Status
		}
		if err := b.submitOne(ctx, activityID, store.TxKindComplete, b.client.WorkflowEngineAddress(), calldata, store.CompleteIntentKey(activityID), extra); err != nil {
			return err
		}
	}
	return nil
}

func (b *Broadcaster) submitResumes(ctx context.Context) error {
	ids, err := scanIDs(b.store, store.PrefixResumeIntent())
	if err != nil {
		return err
	}
	for _, workflowInstanceID := range ids {
		id, err := chain.ParseHash(workflowInstanceID)
		if err != nil {
			b.log.Warn("malformed workflow instance id, skipping", zap.String("workflowInstanceID", workflowInstanceID), zap.Error(err))
			continue
		}
		extra := func(rec *store.TxRecord) { rec.WorkflowID = workflowInstanceID }
		if err := b.submitOne(ctx, workflowInstanceID, store.TxKindResume, b.client.WorkflowEngineAddress(), b.client.ResumeCalldata(id), store.ResumeIntentKey(workflowInstanceID), extra); err != nil {
			return err
		}
	}
	return nil
}

// submitOne drives one intent through the submit loop's state machine
// (spec.md §4.2 steps 1-6). subjectID is an activity id for
// claim/complete, a workflow instance id for resume; combined with kind
// it forms the tx:{kind}:{subjectID} key this record lives at, so a
// confirmed claim for an activity can never shadow that same
// activity's complete/resume record.
func (b *Broadcaster) submitOne(ctx context.Context, subjectID string, kind store.TxKind, to chain.Address, calldata []byte, intentKey []byte, decorate func(*store.TxRecord)) error {
	existing, err := store.ReadTx(b.store, subjectID, kind)
	if err != nil && err != store.ErrNotFound {
		return errors.Wrap(err, "broadcaster: reading tx record")
	}
	if existing != nil && (existing.Status == store.TxStatusSubmitted || existing.Status == store.TxStatusConfirmed) {
		return nil
	}

	nonce, err := b.client.AllocateNonce(ctx)
	if err != nil {
		return errors.Wrap(err, "broadcaster: allocating nonce")
	}

	tx, err := b.client.Sign(to, calldata, nonce, b.policy.BaseFeeCapWei, b.policy.BaseTipCapWei, b.policy.GasLimit)
	if err != nil {
		return errors.Wrap(err, "broadcaster: signing tx")
	}

	rec := &store.TxRecord{
		ActivityID:  subjectID,
		Kind:        kind,
		Status:      store.TxStatusPending,
		Nonce:       nonce,
		SubmittedAt: time.Now(),
		FeeCapWei:   b.policy.BaseFeeCapWei,
		TipCapWei:   b.policy.BaseTipCapWei,
	}
	if decorate != nil {
		decorate(rec)
	}
	if err := store.WriteTx(b.store, rec); err != nil {
		return errors.Wrap(err, "broadcaster: persisting pending tx record")
	}

	hash, sendErr := b.client.SendTx(ctx, tx)
	if sendErr != nil {
		switch chain.Classify(sendErr) {
		case chain.ErrKindNonceDrift:
			nonceDriftCounter.Inc(1)
			rec.Status = store.TxStatusDropped
			if err := store.WriteTx(b.store, rec); err != nil {
				return errors.Wrap(err, "broadcaster: persisting dropped tx record")
			}
			droppedCounter.Inc(1)
			if err := b.client.ResyncNonce(ctx); err != nil {
				return errors.Wrap(err, "broadcaster: resyncing nonce after drift")
			}
			b.log.Warn("nonce drift on submit, resynced", zap.String("subjectID", subjectID), zap.Error(sendErr))
			return nil
		case chain.ErrKindFatal:
			return errors.Wrap(sendErr, "broadcaster: fatal send error")
		default:
			// Transient or revert-on-send: leave pending, retry next
			// tick with the same nonce.
			b.log.Warn("submit failed, will retry", zap.String("subjectID", subjectID), zap.Error(sendErr))
			return nil
		}
	}

	rec.Status = store.TxStatusSubmitted
	rec.TxHash = hash.Hex()
	if err := store.WriteTx(b.store, rec); err != nil {
		return errors.Wrap(err, "broadcaster: persisting submitted tx record")
	}
	submittedCounter.Inc(1)

	if err := b.store.Delete(intentKey); err != nil {
		return errors.Wrap(err, "broadcaster: deleting originating intent")
	}
	return nil
}

// scanIDs collects the trimmed ids under prefix into a slice up front,
// so the submit functions can mutate the store (delete intents) while
// iterating without holding the scan's snapshot iterator open.
func scanIDs(s store.Store, prefix []byte) ([]string, error) {
	var ids []string
	err := store.Walk(s, prefix, func(key, _ []byte) error {
		ids = append(ids, store.TrimPrefix(key, prefix))
		return nil
	})
	return ids, err
}

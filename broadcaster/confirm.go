package broadcaster

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/piplabs/subnet-worker-client/chain"
	"github.com/piplabs/subnet-worker-client/store"
)

// confirmLoop scans submitted transactions and advances them to
// confirmed/dropped based on their on-chain receipt (spec.md §4.2
// "Confirm loop").
func (b *Broadcaster) confirmLoop(ctx context.Context) error {
	for {
		if err := b.confirmTick(ctx); err != nil {
			return err
		}
		if !b.sleepOrDone(ctx) {
			return nil
		}
	}
}

func (b *Broadcaster) confirmTick(ctx context.Context) error {
	composites, err := scanIDs(b.store, store.PrefixTx())
	if err != nil {
		return errors.Wrap(err, "broadcaster: scanning tx records")
	}

	for _, composite := range composites {
		kind, subjectID := store.SplitTxKey(composite)
		rec, err := store.ReadTx(b.store, subjectID, kind)
		if err != nil {
			b.log.Warn("malformed tx record, skipping", zap.String("subjectID", subjectID), zap.Error(err))
			continue
		}
		if rec.Status != store.TxStatusSubmitted {
			continue
		}
		if err := b.confirmOne(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (b *Broadcaster) confirmOne(ctx context.Context, rec *store.TxRecord) error {
	hash, err := chain.ParseHash(rec.TxHash)
	if err != nil {
		b.log.Warn("malformed tx hash, skipping", zap.String("activityID", rec.ActivityID), zap.Error(err))
		return nil
	}

	receipt, err := b.client.TxStatus(ctx, hash)
	if err != nil {
		if chain.Classify(err) == chain.ErrKindFatal {
			return errors.Wrap(err, "broadcaster: fatal tx status error")
		}
		b.log.Warn("tx status query failed, will retry", zap.String("activityID", rec.ActivityID), zap.Error(err))
		return nil
	}

	switch receipt.Status {
	case chain.ReceiptSuccess:
		return b.onConfirmSuccess(rec)
	case chain.ReceiptReverted:
		return b.onConfirmRevert(rec)
	case chain.ReceiptPending:
		return nil
	default: // ReceiptUnknown
		if time.Since(rec.SubmittedAt) > droppedGraceWindow {
			rec.Status = store.TxStatusDropped
			droppedCounter.Inc(1)
			return errors.Wrap(store.WriteTx(b.store, rec), "broadcaster: persisting dropped tx record")
		}
		return nil
	}
}

func (b *Broadcaster) onConfirmSuccess(rec *store.TxRecord) error {
	rec.Status = store.TxStatusConfirmed
	if err := store.WriteTx(b.store, rec); err != nil {
		return errors.Wrap(err, "broadcaster: persisting confirmed tx record")
	}
	confirmedCounter.Inc(1)

	switch rec.Kind {
	case store.TxKindClaim:
		inflight := &store.Inflight{
			Queue:            "",
			ClaimedAt:        time.Now(),
			AssignmentStatus: store.AssignmentUnscheduled,
		}
		if err := store.WriteInflight(b.store, rec.ActivityID, inflight); err != nil {
			return errors.Wrap(err, "broadcaster: writing inflight on claim confirm")
		}
	case store.TxKindComplete:
		if err := store.WriteDone(b.store, rec.ActivityID, store.DoneOK); err != nil {
			return errors.Wrap(err, "broadcaster: writing done on complete confirm")
		}
	case store.TxKindResume:
		// No post-effect: done was already written by the Assigner on
		// WEP SUCCESS (spec.md §4.3 step 6).
	}
	b.log.Info("tx confirmed", zap.String("subjectID", rec.ActivityID), zap.String("kind", string(rec.Kind)))
	return nil
}

func (b *Broadcaster) onConfirmRevert(rec *store.TxRecord) error {
	rec.Status = store.TxStatusConfirmed
	if err := store.WriteTx(b.store, rec); err != nil {
		return errors.Wrap(err, "broadcaster: persisting reverted tx record")
	}
	confirmedCounter.Inc(1)

	switch rec.Kind {
	case store.TxKindClaim:
		// Activity stays claimable by others; nothing further to do.
	case store.TxKindComplete:
		if err := store.WriteDone(b.store, rec.ActivityID, store.DoneFailed); err != nil {
			return errors.Wrap(err, "broadcaster: writing done=failed on complete revert")
		}
	case store.TxKindResume:
	}
	b.log.Warn("tx reverted", zap.String("subjectID", rec.ActivityID), zap.String("kind", string(rec.Kind)))
	return nil
}

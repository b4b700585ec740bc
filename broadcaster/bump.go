package broadcaster

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/piplabs/subnet-worker-client/chain"
	"github.com/piplabs/subnet-worker-client/store"
)

// bumpLoop replaces stalled submitted transactions with a resubmission
// at the same nonce and higher fees (spec.md §4.2 "Bump loop").
func (b *Broadcaster) bumpLoop(ctx context.Context) error {
	for {
		if err := b.bumpTick(ctx); err != nil {
			return err
		}
		if !b.sleepOrDone(ctx) {
			return nil
		}
	}
}

func (b *Broadcaster) bumpTick(ctx context.Context) error {
	composites, err := scanIDs(b.store, store.PrefixTx())
	if err != nil {
		return errors.Wrap(err, "broadcaster: scanning tx records")
	}

	threshold := time.Duration(b.policy.BumpThresholdSeconds) * time.Second
	for _, composite := range composites {
		kind, subjectID := store.SplitTxKey(composite)
		rec, err := store.ReadTx(b.store, subjectID, kind)
		if err != nil {
			continue
		}
		if rec.Status != store.TxStatusSubmitted {
			continue
		}
		if time.Since(rec.SubmittedAt) <= threshold {
			continue
		}
		if err := b.bumpOne(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (b *Broadcaster) bumpOne(ctx context.Context, rec *store.TxRecord) error {
	if rec.BumpCount >= b.policy.MaxBumpCount {
		rec.Status = store.TxStatusDropped
		droppedCounter.Inc(1)
		b.log.Warn("tx abandoned after max bumps", zap.String("subjectID", rec.ActivityID), zap.Int("bumpCount", rec.BumpCount))
		return errors.Wrap(store.WriteTx(b.store, rec), "broadcaster: persisting abandoned tx record")
	}

	to, calldata, err := b.rebuild(rec)
	if err != nil {
		b.log.Warn("cannot rebuild calldata for bump, skipping", zap.String("subjectID", rec.ActivityID), zap.Error(err))
		return nil
	}

	newFeeCap := BumpFee(rec.FeeCapWei, b.policy.GasBumpPercent)
	newTipCap := BumpFee(rec.TipCapWei, b.policy.GasBumpPercent)

	tx, err := b.client.Sign(to, calldata, rec.Nonce, newFeeCap, newTipCap, b.policy.GasLimit)
	if err != nil {
		return errors.Wrap(err, "broadcaster: signing bumped tx")
	}

	hash, sendErr := b.client.SendTx(ctx, tx)
	if sendErr != nil {
		if chain.Classify(sendErr) == chain.ErrKindFatal {
			return errors.Wrap(sendErr, "broadcaster: fatal bump send error")
		}
		b.log.Warn("bump send failed, will retry", zap.String("subjectID", rec.ActivityID), zap.Error(sendErr))
		return nil
	}

	rec.TxHash = hash.Hex()
	rec.FeeCapWei = newFeeCap
	rec.TipCapWei = newTipCap
	rec.BumpCount++
	rec.LastBumpAt = time.Now()
	bumpedCounter.Inc(1)
	return errors.Wrap(store.WriteTx(b.store, rec), "broadcaster: persisting bumped tx record")
}

// rebuild recomputes the calldata for a stalled tx from its kind and
// persisted fields — the bump loop has no access to the originating
// intent (it may already be deleted), so it works entirely from the
// TxRecord.
func (b *Broadcaster) rebuild(rec *store.TxRecord) (chain.Address, []byte, error) {
	switch rec.Kind {
	case store.TxKindClaim:
		id, err := chain.ParseHash(rec.ActivityID)
		if err != nil {
			return chain.Address{}, nil, err
		}
		return b.client.TaskQueueAddress(), b.client.ClaimCalldata(id), nil
	case store.TxKindComplete:
		id, err := chain.ParseHash(rec.ActivityID)
		if err != nil {
			return chain.Address{}, nil, err
		}
		return b.client.WorkflowEngineAddress(), b.client.CompleteCalldata(id, []byte(rec.ResultRef), rec.CompleteStat), nil
	case store.TxKindResume:
		id, err := chain.ParseHash(rec.ActivityID)
		if err != nil {
			return chain.Address{}, nil, err
		}
		return b.client.WorkflowEngineAddress(), b.client.ResumeCalldata(id), nil
	default:
		return chain.Address{}, nil, errors.Errorf("broadcaster: unknown tx kind %q", rec.Kind)
	}
}

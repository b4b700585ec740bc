package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/piplabs/subnet-worker-client/chain"
	"github.com/piplabs/subnet-worker-client/store"
)

func newTestPoller(t *testing.T) (*Poller, *chain.FakeProvider, store.Store) {
	t.Helper()
	db := store.NewMemDatabase()
	fp := chain.NewFakeProvider()
	c := chain.NewClient(fp, &chain.FakeSigner{Addr: chain.Address{0x01}}, db, chain.Contracts{
		TaskQueue: chain.Address{0x10},
	}, zap.NewNop())
	return New(c, db, "video/1.0.0/processing", 10*time.Millisecond, zap.NewNop()), fp, db
}

func pollFixture(id chain.Hash, hasResult bool) []byte {
	// Layout matches chain.DecodeActivityPoll: offset word, bool word,
	// then the Activity tuple with id as its first word.
	word := func(b []byte) []byte {
		out := make([]byte, 32)
		copy(out[32-len(b):], b)
		return out
	}
	out := append([]byte{}, word([]byte{0x40})...)
	b := byte(0)
	if hasResult {
		b = 1
	}
	out = append(out, word([]byte{b})...)
	out = append(out, id[:]...)
	return out
}

func TestTickWritesClaimIntentOnce(t *testing.T) {
	p, fp, db := newTestPoller(t)
	var id chain.Hash
	id[31] = 0x01
	calldata := chain.PollActivityCalldata("video/1.0.0/processing", MaxBatch)
	fp.SetCallReturn(chain.Address{0x10}, calldata, pollFixture(id, true))

	require.NoError(t, p.tick(context.Background()))

	exists, err := db.Has(store.ClaimIntentKey(id.Hex()))
	require.NoError(t, err)
	assert.True(t, exists)

	// A second tick observing the same activity must not clobber or
	// duplicate the intent (spec.md §4.1 idempotence contract).
	require.NoError(t, p.tick(context.Background()))
	intent, err := store.ReadClaimIntent(db, id.Hex())
	require.NoError(t, err)
	assert.Equal(t, "video/1.0.0/processing", intent.Queue)
}

// Regression: once an activity id is in the in-memory seen cache, a
// later tick must still re-enqueue it if the store's claim_intent key
// is genuinely absent (e.g. consumed by the broadcaster, then the
// activity becomes claimable again) — seen must never substitute for
// the store.Has read.
func TestTickReEnqueuesAfterIntentConsumedEvenIfSeen(t *testing.T) {
	p, fp, db := newTestPoller(t)
	var id chain.Hash
	id[31] = 0x02
	calldata := chain.PollActivityCalldata("video/1.0.0/processing", MaxBatch)
	fp.SetCallReturn(chain.Address{0x10}, calldata, pollFixture(id, true))

	require.NoError(t, p.tick(context.Background()))
	require.True(t, p.seen.Contains(id.Hex()))

	require.NoError(t, db.Delete(store.ClaimIntentKey(id.Hex())))

	require.NoError(t, p.tick(context.Background()))

	exists, err := db.Has(store.ClaimIntentKey(id.Hex()))
	require.NoError(t, err)
	assert.True(t, exists, "seen must not short-circuit the store read for a genuinely re-claimable activity")
}

func TestTickNoResultWritesNothing(t *testing.T) {
	p, fp, db := newTestPoller(t)
	calldata := chain.PollActivityCalldata("video/1.0.0/processing", MaxBatch)
	fp.SetCallReturn(chain.Address{0x10}, calldata, pollFixture(chain.Hash{}, false))

	require.NoError(t, p.tick(context.Background()))

	var seen int
	err := store.Walk(db, store.PrefixClaimIntent(), func(k, v []byte) error {
		seen++
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, seen)
}

func TestBackoffDoublesOnFailureUpToCeiling(t *testing.T) {
	p, _, _ := newTestPoller(t)
	p.pollInterval = time.Second
	p.failures = 0
	assert.Equal(t, time.Second, p.backoff())
	p.failures = 1
	assert.Equal(t, 2*time.Second, p.backoff())
	p.failures = 10
	assert.Equal(t, MaxBackoff, p.backoff())
}

package assigner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/piplabs/subnet-worker-client/store"
	"github.com/piplabs/subnet-worker-client/wep"
)

type fakeDialer struct {
	streams []*wep.FakeStream
	idx     int
}

func (d *fakeDialer) OpenStream(ctx context.Context) (wep.TaskStream, error) {
	s := d.streams[d.idx]
	d.idx++
	return s, nil
}

func testConfig() Config {
	return Config{
		MaxInflight:        4,
		ProtocolMin:        "1.0.0",
		ProtocolMax:        "1.0.0",
		MaxConcurrencyTag:  4,
		Tags:               []string{"cpu"},
		HeartbeatIntervalS: 10,
		AssignmentTTL:      time.Minute,
		TaskKind:           "video.preprocess",
		TaskVersion:        "1.0.0",
	}
}

func envelope(t *testing.T, kind wep.Kind, payload interface{}) *wep.Envelope {
	t.Helper()
	env, err := wep.Encode(kind, payload)
	require.NoError(t, err)
	return env
}

// S1 — happy path: HelloAck negotiates, Completion SUCCESS writes the
// complete/resume intents, done=ok and deletes inflight.
func TestHandleOneSuccessCompletion(t *testing.T) {
	db := store.NewMemDatabase()
	activityID := "0xaaaa01"
	require.NoError(t, store.WriteInflight(db, activityID, &store.Inflight{
		Queue: "video/1.0.0/processing", ClaimedAt: time.Now(), AssignmentStatus: store.AssignmentUnscheduled,
	}))

	fs := wep.NewFakeStream(
		envelope(t, wep.KindHelloAck, &wep.HelloAck{Negotiated: "1.0.0"}),
		envelope(t, wep.KindCompletion, &wep.Completion{ActivityID: activityID, Status: wep.StatusSuccess, ResultRef: "r2://out/1"}),
	)
	a := New(db, &fakeDialer{streams: []*wep.FakeStream{fs}}, testConfig(), zap.NewNop())

	inflight, err := store.ReadInflight(db, activityID)
	require.NoError(t, err)
	a.handleOne(context.Background(), activityID, inflight)

	status, ok, err := store.ReadDone(db, activityID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, store.DoneOK, status)

	_, err = store.ReadInflight(db, activityID)
	assert.Error(t, err, "inflight must be deleted on success")

	intent, err := store.ReadCompleteIntent(db, activityID)
	require.NoError(t, err)
	assert.Equal(t, "r2://out/1", intent.ResultRef)

	_, err = store.ReadResumeIntent(db, activityID)
	require.NoError(t, err)

	assert.Len(t, fs.Sent, 3) // hello, capabilities, assign
}

// S4 — WEP FAILED completion: done=failed, no complete intent written.
func TestHandleOneFailedCompletion(t *testing.T) {
	db := store.NewMemDatabase()
	activityID := "0xaaaa02"
	require.NoError(t, store.WriteInflight(db, activityID, &store.Inflight{
		Queue: "q", ClaimedAt: time.Now(), AssignmentStatus: store.AssignmentUnscheduled,
	}))

	fs := wep.NewFakeStream(
		envelope(t, wep.KindHelloAck, &wep.HelloAck{Negotiated: "1.0.0"}),
		envelope(t, wep.KindCompletion, &wep.Completion{ActivityID: activityID, Status: wep.StatusFailed, Error: "decode"}),
	)
	a := New(db, &fakeDialer{streams: []*wep.FakeStream{fs}}, testConfig(), zap.NewNop())

	inflight, err := store.ReadInflight(db, activityID)
	require.NoError(t, err)
	a.handleOne(context.Background(), activityID, inflight)

	status, ok, err := store.ReadDone(db, activityID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, store.DoneFailed, status)

	_, err = store.ReadCompleteIntent(db, activityID)
	assert.Error(t, err, "no complete intent on FAILED")
}

// Heartbeat/Progress are consumed without ending the stream; only
// Completion is terminal.
func TestHandleOneConsumesHeartbeatAndProgress(t *testing.T) {
	db := store.NewMemDatabase()
	activityID := "0xaaaa03"
	require.NoError(t, store.WriteInflight(db, activityID, &store.Inflight{
		Queue: "q", ClaimedAt: time.Now(), AssignmentStatus: store.AssignmentUnscheduled,
	}))

	fs := wep.NewFakeStream(
		envelope(t, wep.KindHelloAck, &wep.HelloAck{Negotiated: "1.0.0"}),
		envelope(t, wep.KindHeartbeat, &wep.Heartbeat{}),
		envelope(t, wep.KindProgress, &wep.Progress{Pct: 50}),
		envelope(t, wep.KindCompletion, &wep.Completion{ActivityID: activityID, Status: wep.StatusSuccess, ResultRef: "r2://out/3"}),
	)
	a := New(db, &fakeDialer{streams: []*wep.FakeStream{fs}}, testConfig(), zap.NewNop())

	inflight, err := store.ReadInflight(db, activityID)
	require.NoError(t, err)
	a.handleOne(context.Background(), activityID, inflight)

	status, ok, err := store.ReadDone(db, activityID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, store.DoneOK, status)
}

// Handshake abort on version mismatch leaves inflight untouched.
func TestHandshakeAbortOnVersionMismatch(t *testing.T) {
	db := store.NewMemDatabase()
	activityID := "0xaaaa04"
	require.NoError(t, store.WriteInflight(db, activityID, &store.Inflight{
		Queue: "q", ClaimedAt: time.Now(), AssignmentStatus: store.AssignmentUnscheduled,
	}))

	fs := wep.NewFakeStream(envelope(t, wep.KindHelloAck, &wep.HelloAck{Negotiated: "9.9.9"}))
	a := New(db, &fakeDialer{streams: []*wep.FakeStream{fs}}, testConfig(), zap.NewNop())

	inflight, err := store.ReadInflight(db, activityID)
	require.NoError(t, err)
	a.handleOne(context.Background(), activityID, inflight)

	got, err := store.ReadInflight(db, activityID)
	require.NoError(t, err)
	assert.Equal(t, store.AssignmentUnscheduled, got.AssignmentStatus)

	_, ok, err := store.ReadDone(db, activityID)
	require.NoError(t, err)
	assert.False(t, ok)
}

// dev_mode bypasses WEP entirely.
func TestDevModeSyntheticCompletion(t *testing.T) {
	db := store.NewMemDatabase()
	activityID := "0xaaaa05"
	require.NoError(t, store.WriteInflight(db, activityID, &store.Inflight{
		Queue: "q", ClaimedAt: time.Now(), AssignmentStatus: store.AssignmentUnscheduled,
	}))

	cfg := testConfig()
	cfg.DevMode = true
	a := New(db, &fakeDialer{}, cfg, zap.NewNop())

	inflight, err := store.ReadInflight(db, activityID)
	require.NoError(t, err)
	a.handleOne(context.Background(), activityID, inflight)

	status, ok, err := store.ReadDone(db, activityID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, store.DoneOK, status)

	_, err = store.ReadInflight(db, activityID)
	assert.Error(t, err)
}

func TestTickEventuallyCompletesAllUnderCap(t *testing.T) {
	db := store.NewMemDatabase()
	cfg := testConfig()
	cfg.MaxInflight = 1
	cfg.DevMode = true
	a := New(db, &fakeDialer{}, cfg, zap.NewNop())

	require.NoError(t, store.WriteInflight(db, "0xaaaa06", &store.Inflight{AssignmentStatus: store.AssignmentUnscheduled, ClaimedAt: time.Now()}))
	require.NoError(t, store.WriteInflight(db, "0xaaaa07", &store.Inflight{AssignmentStatus: store.AssignmentUnscheduled, ClaimedAt: time.Now()}))

	// Multiple ticks, as the Run loop would perform, must eventually
	// drain both activities even though only one may be admitted per
	// tick at MaxInflight=1.
	for i := 0; i < 10; i++ {
		require.NoError(t, a.tick(context.Background()))
		time.Sleep(10 * time.Millisecond)
	}

	var doneCount int
	for _, id := range []string{"0xaaaa06", "0xaaaa07"} {
		if _, ok, _ := store.ReadDone(db, id); ok {
			doneCount++
		}
	}
	assert.Equal(t, 2, doneCount)
}

// blockingDialer counts OpenStream calls and blocks each one until
// release is closed, simulating a handler whose dial/handshake round
// trip outlasts a tick.
type blockingDialer struct {
	mu      sync.Mutex
	opened  int
	release chan struct{}
}

func (d *blockingDialer) OpenStream(ctx context.Context) (wep.TaskStream, error) {
	d.mu.Lock()
	d.opened++
	d.mu.Unlock()
	<-d.release
	return nil, errors.New("dial unavailable")
}

func (d *blockingDialer) openCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened
}

// Regression: tick must flip AssignmentStatus to Running synchronously,
// before the handler's dial/handshake round trip — otherwise a second
// tick racing a slow handler would see the activity still Unscheduled
// and spawn a second concurrent WEP stream for it.
func TestTickDoesNotDoubleDispatchSlowHandler(t *testing.T) {
	db := store.NewMemDatabase()
	activityID := "0xaaaa08"
	require.NoError(t, store.WriteInflight(db, activityID, &store.Inflight{
		AssignmentStatus: store.AssignmentUnscheduled, ClaimedAt: time.Now(),
	}))

	dialer := &blockingDialer{release: make(chan struct{})}
	cfg := testConfig()
	a := New(db, dialer, cfg, zap.NewNop())

	require.NoError(t, a.tick(context.Background()))
	// Give the spawned handler goroutine time to reach OpenStream and
	// block there, still holding the activity inflight.
	time.Sleep(20 * time.Millisecond)

	inflight, err := store.ReadInflight(db, activityID)
	require.NoError(t, err)
	assert.Equal(t, store.AssignmentRunning, inflight.AssignmentStatus, "tick must persist Running before the handler dials")

	// A second tick while the first handler is still blocked in
	// OpenStream must not dial again for the same activity.
	require.NoError(t, a.tick(context.Background()))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, dialer.openCount())

	close(dialer.release)
	time.Sleep(20 * time.Millisecond)

	// Once the blocked dial fails, the activity must be reset so a
	// later tick can retry it.
	inflight, err = store.ReadInflight(db, activityID)
	require.NoError(t, err)
	assert.Equal(t, store.AssignmentUnscheduled, inflight.AssignmentStatus)
}

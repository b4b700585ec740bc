// Package broadcaster owns the entire on-chain transaction life cycle
// (spec.md §4.2): compose, sign, submit, monitor for confirmation, bump
// on stall, record all states durably. It is three concurrent sub-loops
// sharing one account and one nonce critical section.
package broadcaster

import (
	"context"
	"sync"
	"time"

	"github.com/rcrowley/go-metrics"
	"go.uber.org/zap"

	"github.com/piplabs/subnet-worker-client/chain"
	"github.com/piplabs/subnet-worker-client/store"
)

var (
	submittedCounter = metrics.NewRegisteredCounter("broadcaster/submitted", nil)
	confirmedCounter = metrics.NewRegisteredCounter("broadcaster/confirmed", nil)
	droppedCounter   = metrics.NewRegisteredCounter("broadcaster/dropped", nil)
	bumpedCounter    = metrics.NewRegisteredCounter("broadcaster/bumped", nil)
	nonceDriftCounter = metrics.NewRegisteredCounter("broadcaster/nonceDrift", nil)
)

// droppedGraceWindow is how long a tx may sit with an "unknown" receipt
// before the confirm loop gives up on it (spec.md §4.2 "unknown tx:
// after grace window, mark dropped").
const droppedGraceWindow = 60 * time.Second

// Broadcaster is the Broadcaster component: one long-lived Run call
// owned by the supervisor, internally split into submit/confirm/bump
// sub-loops.
type Broadcaster struct {
	client *chain.Client
	store  store.Store
	policy Policy

	tickInterval time.Duration
	log          *zap.Logger
}

// New builds a Broadcaster. tickInterval governs all three sub-loops;
// spec.md doesn't mandate distinct intervals per loop, and a shared
// interval keeps the concurrency model simple (§5).
func New(client *chain.Client, s store.Store, policy Policy, tickInterval time.Duration, log *zap.Logger) *Broadcaster {
	return &Broadcaster{client: client, store: s, policy: policy, tickInterval: tickInterval, log: log}
}

// Name identifies this loop to the supervisor.
func (b *Broadcaster) Name() string { return "broadcaster" }

// Run blocks until ctx is cancelled or a fatal error halts one of the
// sub-loops (spec.md §7 "Fatal: log and halt the loop; supervisor
// surfaces"). The other two loops are cancelled alongside it.
func (b *Broadcaster) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	loops := []func(context.Context) error{b.submitLoop, b.confirmLoop, b.bumpLoop}
	errCh := make(chan error, len(loops))
	var wg sync.WaitGroup
	wg.Add(len(loops))
	for _, loop := range loops {
		loop := loop
		go func() {
			defer wg.Done()
			errCh <- loop(ctx)
		}()
	}
	go func() {
		wg.Wait()
		close(errCh)
	}()

	var first error
	for err := range errCh {
		if err != nil && first == nil {
			first = err
			cancel()
		}
	}
	return first
}

// sleepOrDone waits for the tick interval, returning false if ctx was
// cancelled first.
func (b *Broadcaster) sleepOrDone(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(b.tickInterval):
		return true
	}
}

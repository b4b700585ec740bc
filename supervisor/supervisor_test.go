package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeService struct {
	name string
	run  func(ctx context.Context) error
}

func (f *fakeService) Name() string                   { return f.name }
func (f *fakeService) Run(ctx context.Context) error  { return f.run(ctx) }

func TestRunReturnsNilOnCleanShutdown(t *testing.T) {
	blockUntilCancel := func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}
	sup := New(zap.NewNop(),
		&fakeService{name: "a", run: blockUntilCancel},
		&fakeService{name: "b", run: blockUntilCancel},
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("supervisor did not return after parent cancellation")
	}
}

func TestRunPropagatesFatalErrorAndCancelsOthers(t *testing.T) {
	boom := errors.New("broadcaster: fatal revert")
	otherCancelled := make(chan struct{})

	sup := New(zap.NewNop(),
		&fakeService{name: "broadcaster", run: func(ctx context.Context) error {
			return boom
		}},
		&fakeService{name: "poller", run: func(ctx context.Context) error {
			<-ctx.Done()
			close(otherCancelled)
			return nil
		}},
	)

	err := sup.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broadcaster")

	select {
	case <-otherCancelled:
	case <-time.After(time.Second):
		t.Fatal("sibling service was not cancelled after the fatal error")
	}
}

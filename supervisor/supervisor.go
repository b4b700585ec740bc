// Package supervisor owns process lifecycle: the startup gate (spec.md
// §6 "Startup requires...") and joining the Poller/Broadcaster/Assigner
// loops, generalized from node/service.go's Service interface with the
// P2P/RPC-specific Protocols()/APIs() methods dropped — there is no
// networking layer here, only independent long-running loops that
// share a store and a chain client.
package supervisor

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Service is one of the three independently running loops (spec.md
// §5 "Concurrency invariant"). Run blocks until ctx is cancelled or an
// unrecoverable error forces the loop to exit; per spec.md §7's
// propagation policy, a single iteration's error never reaches Run —
// only a fatal condition does.
type Service interface {
	Name() string
	Run(ctx context.Context) error
}

// Supervisor joins a fixed set of Services (spec.md §7 "The supervisor
// joins all three loops; if any exits unexpectedly, the process exits
// non-zero"). It never restarts a service in-process — restart is the
// deployer's job.
type Supervisor struct {
	services []Service
	log      *zap.Logger
}

func New(log *zap.Logger, services ...Service) *Supervisor {
	return &Supervisor{services: services, log: log}
}

// Run starts every service in its own goroutine and blocks until the
// first one returns. That return — success or error — cancels the
// shared context for every other service and is then waited for before
// Run itself returns the (possibly nil) error.
func (s *Supervisor) Run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		firstSet bool
	)

	record := func(name string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if !firstSet {
			firstSet = true
			if err != nil {
				firstErr = errors.Wrapf(err, "service %q exited", name)
			}
		}
		cancel()
	}

	for _, svc := range s.services {
		wg.Add(1)
		go func(svc Service) {
			defer wg.Done()
			err := svc.Run(ctx)
			if err != nil {
				s.log.Error("service exited with error", zap.String("service", svc.Name()), zap.Error(err))
			} else {
				s.log.Warn("service exited", zap.String("service", svc.Name()))
			}
			record(svc.Name(), err)
		}(svc)
	}

	wg.Wait()
	return firstErr
}

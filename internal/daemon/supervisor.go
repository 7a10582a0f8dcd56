package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ModuleRunner runs a module within the supervisor.
type ModuleRunner struct {
	Name string
	Run  func(ctx context.Context) error
}

// Supervisor manages module lifecycles.
type Supervisor struct {
	Logger *zap.Logger
}

// Run starts every module and waits for ctx to end or a module to fail. A
// failure cancels the remaining modules; all failures are returned.
func (s Supervisor) Run(ctx context.Context, modules []ModuleRunner) error {
	if len(modules) == 0 {
		return errors.New("no modules enabled")
	}
	log := s.Logger
	if log == nil {
		log = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	for _, m := range modules {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mlog := log.With(zap.String("module", m.Name))
			mlog.Info("starting module")
			if err := m.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				mlog.Error("module exited", zap.Error(err))
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", m.Name, err))
				mu.Unlock()
				cancel()
				return
			}
			mlog.Info("module stopped")
		}()
	}

	<-ctx.Done()
	mu.Lock()
	failed := errs != nil
	mu.Unlock()
	if !failed {
		log.Info("shutdown requested")
	}
	wg.Wait()
	return errs
}

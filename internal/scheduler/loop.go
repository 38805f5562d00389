package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrStepLimit is returned by Tick once LoopConfig.MaxSteps steps have run.
var ErrStepLimit = errors.New("step limit reached")

// LoopConfig holds host loop configuration.
type LoopConfig struct {
	// PollInterval bounds how long the loop sleeps while only outstanding
	// tokens remain, in case a producer forgets to wake it.
	PollInterval time.Duration

	// MaxSteps stops the loop after this many non-empty steps. Zero means
	// no limit.
	MaxSteps int

	// StopOnError makes a failed step end the loop with its error.
	StopOnError bool
}

// DefaultLoopConfig returns sensible defaults.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{PollInterval: 250 * time.Millisecond}
}

// Loop drives a Scheduler until it runs out of work. It is the host side of
// the step contract: RunOnce never blocks, so the loop does the waiting.
type Loop struct {
	sched  *Scheduler
	config LoopConfig
	logger *slog.Logger
	steps  int

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewLoop creates a loop for sched.
func NewLoop(sched *Scheduler, cfg LoopConfig, logger *slog.Logger) *Loop {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultLoopConfig().PollInterval
	}
	return &Loop{
		sched:  sched,
		config: cfg,
		logger: logger.With("component", "loop"),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start runs steps until the scheduler is idle, ctx is cancelled, Stop is
// called or a step returns an error.
func (l *Loop) Start(ctx context.Context) error {
	defer close(l.doneCh)
	l.logger.Info("loop started", "poll_interval", l.config.PollInterval, "max_steps", l.config.MaxSteps)
	ticker := time.NewTicker(l.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("loop stopping (context cancelled)")
			return ctx.Err()
		case <-l.stopCh:
			l.logger.Info("loop stopping (stop called)")
			return nil
		default:
		}

		if l.sched.Stopped() || !l.sched.HasWork() {
			l.logger.Info("loop finished", "steps", l.steps)
			return nil
		}

		res, err := l.Tick(ctx)
		if err != nil {
			return err
		}
		if _, idle := res.(Empty); !idle || l.sched.HasContinuations() || l.sched.HasThreads() || l.sched.Pending() == 0 {
			continue
		}

		// Only outstanding tokens remain; wait for a producer.
		select {
		case <-ctx.Done():
			l.logger.Info("loop stopping (context cancelled)")
			return ctx.Err()
		case <-l.stopCh:
			l.logger.Info("loop stopping (stop called)")
			return nil
		case <-l.sched.WakeC():
		case <-ticker.C:
		}
	}
}

// Stop ends Start and waits for the current step to finish. It is safe to
// call more than once, and before Start has run.
func (l *Loop) Stop() error {
	l.stopOnce.Do(func() { close(l.stopCh) })
	select {
	case <-l.doneCh:
	case <-time.After(l.config.PollInterval):
	}
	return nil
}

// Tick runs a single step and applies the loop policy to its result.
func (l *Loop) Tick(ctx context.Context) (StepResult, error) {
	if err := ctx.Err(); err != nil {
		return Empty{}, err
	}
	if l.config.MaxSteps > 0 && l.steps >= l.config.MaxSteps {
		return Empty{}, fmt.Errorf("after %d steps: %w", l.steps, ErrStepLimit)
	}

	res := l.sched.RunOnce()
	if _, idle := res.(Empty); !idle {
		l.steps++
	}

	switch r := res.(type) {
	case Failure:
		if r.Thread == nil {
			return res, fmt.Errorf("step %d: %w", l.steps, r.Err)
		}
		l.logger.Error("thread failed", "thread", r.Thread.ID, "error", r.Err)
		if l.config.StopOnError {
			return res, fmt.Errorf("step %d: %w", l.steps, r.Err)
		}
	case Unsupported:
		if l.config.StopOnError {
			return res, fmt.Errorf("step %d: unsupported result: %s", l.steps, r.Reason)
		}
	}
	return res, nil
}

// Steps returns the number of non-empty steps run so far.
func (l *Loop) Steps() int {
	return l.steps
}

package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	wasmharness "github.com/wippyai/wasm-harness"
	"github.com/wippyai/wasm-harness/adapter"
)

// DefaultTimeout is the per-target wall-clock bound when none is configured.
const DefaultTimeout = 20 * time.Second

// Config holds scheduler configuration.
type Config struct {
	// Timeout is the hard wall-clock bound per target. Zero selects
	// DefaultTimeout.
	Timeout time.Duration

	// OnResult, when set, observes each completed target as it finishes.
	// Called from the target's goroutine.
	OnResult func(wasmharness.TestRunResult)

	Logger *zap.Logger
}

// Scheduler runs targets against whichever adapter supports their kind.
type Scheduler struct {
	cfg      Config
	adapters []adapter.Adapter
	log      *zap.Logger
}

// New creates a scheduler over the given adapters.
func New(cfg Config, adapters ...adapter.Adapter) *Scheduler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{cfg: cfg, adapters: adapters, log: log}
}

// Run executes every target and aggregates the outcomes. Targets run
// concurrently and independently.
func (s *Scheduler) Run(ctx context.Context, targets []adapter.Target) wasmharness.AggregateReport {
	results := make([]wasmharness.TestRunResult, len(targets))

	var wg sync.WaitGroup
	for i, t := range targets {
		wg.Add(1)
		go func(i int, t adapter.Target) {
			defer wg.Done()
			res := s.runTarget(ctx, t)
			results[i] = res
			if s.cfg.OnResult != nil {
				s.cfg.OnResult(res)
			}
		}(i, t)
	}
	wg.Wait()

	return wasmharness.AggregateReport{Results: results}
}

func (s *Scheduler) runTarget(ctx context.Context, t adapter.Target) wasmharness.TestRunResult {
	started := time.Now()

	ad := s.adapterFor(t.Kind)
	if ad == nil {
		s.log.Error("no adapter for target",
			zap.String("target", t.Name),
			zap.Stringer("kind", t.Kind))
		return wasmharness.TestRunResult{
			Target:   t.Name,
			Kind:     t.Kind,
			Status:   wasmharness.StatusCrashed,
			Duration: time.Since(started),
		}
	}

	r, err := ad.Launch(ctx, t)
	if err != nil {
		// Fatal for this target only; the other targets keep running.
		s.log.Error("launch failed",
			zap.String("target", t.Name),
			zap.Stringer("kind", t.Kind),
			zap.Error(err))
		return wasmharness.TestRunResult{
			Target:   t.Name,
			Kind:     t.Kind,
			Status:   wasmharness.StatusCrashed,
			Duration: time.Since(started),
		}
	}

	res, err := ad.AwaitResult(ctx, r, s.cfg.Timeout)
	if err != nil {
		s.log.Error("collect failed",
			zap.String("target", t.Name),
			zap.Error(err))
		res.Status = wasmharness.WorstOf(res.Status, wasmharness.StatusCrashed)
	}

	s.log.Info("target finished",
		zap.String("target", t.Name),
		zap.Stringer("kind", t.Kind),
		zap.Stringer("status", res.Status),
		zap.Duration("duration", res.Duration))

	return res
}

func (s *Scheduler) adapterFor(k wasmharness.Kind) adapter.Adapter {
	for _, ad := range s.adapters {
		if ad.Supports(k) {
			return ad
		}
	}
	return nil
}

package ingest

import (
	"context"
	"log/slog"
	"time"
)

// Runner drives the windower at the stream's fixed cadence: one step every
// batchSize chunk durations. The source's pop timeout absorbs jitter between
// ticks; timeouts resolve into fallback chunks rather than retries, so the
// cadence never drifts on missing input.
type Runner struct {
	w        *Windower
	interval time.Duration
	logger   *slog.Logger
}

// NewRunner creates a runner stepping every batch * (1/fps) seconds.
func NewRunner(w *Windower, fps, batch int, logger *slog.Logger) *Runner {
	return &Runner{
		w:        w,
		interval: time.Second / time.Duration(fps) * time.Duration(batch),
		logger:   logger.With(slog.String("component", "runner")),
	}
}

// Run warms up the window and then steps until ctx is cancelled. The sync
// channel consumer must already be draining before Run starts: warm-up
// publishes leftStride + rightStride chunks, more than the channel holds.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.w.WarmUp(ctx); err != nil {
		return err
	}
	r.logger.Info("window primed", slog.Duration("step_interval", r.interval))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.w.Step(ctx); err != nil {
				return err
			}
		}
	}
}

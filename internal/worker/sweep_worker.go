package worker

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Reconciler finishes interrupted submissions
type Reconciler interface {
	Reconcile(ctx context.Context) (int, error)
}

// SweepWorker runs the periodic intent sweep
type SweepWorker struct {
	reconciler Reconciler
	logger     *slog.Logger
}

func NewSweepWorker(reconciler Reconciler, logger *slog.Logger) *SweepWorker {
	return &SweepWorker{
		reconciler: reconciler,
		logger:     logger,
	}
}

// ProcessTask handles the sweep task
func (w *SweepWorker) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	n, err := w.reconciler.Reconcile(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		w.logger.Info("sweep requeued jobs", slog.Int("count", n))
	}
	return nil
}

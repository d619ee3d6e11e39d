package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/stemsplit/api/internal/client"
	"github.com/stemsplit/api/internal/service"
)

// CallbackWorker delivers job outcomes to submitter callbacks. Failed
// deliveries are retried by asynq up to the task's MaxRetry.
type CallbackWorker struct {
	deliverer client.CallbackDeliverer
	logger    *slog.Logger
}

func NewCallbackWorker(deliverer client.CallbackDeliverer, logger *slog.Logger) *CallbackWorker {
	return &CallbackWorker{
		deliverer: deliverer,
		logger:    logger,
	}
}

// ProcessTask handles callback delivery
func (w *CallbackWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var task service.CallbackTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		return fmt.Errorf("failed to unmarshal callback task: %v: %w", err, asynq.SkipRetry)
	}

	if err := w.deliverer.Deliver(ctx, task.URL, &task.Payload); err != nil {
		w.logger.Warn("callback delivery failed",
			slog.String("hash", task.Payload.Hash),
			slog.String("url", task.URL),
			slog.Any("error", err),
		)
		return err
	}

	w.logger.Info("callback delivered",
		slog.String("hash", task.Payload.Hash),
		slog.String("status", string(task.Payload.Status)),
	)
	return nil
}

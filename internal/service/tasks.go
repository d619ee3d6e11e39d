package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/stemsplit/api/internal/model"
)

const (
	TaskTypeCallback = "callback:deliver"
	TaskTypeSweep    = "sweep:intents"

	QueueCallbacks   = "callbacks"
	QueueMaintenance = "maintenance"
)

// CallbackTask is the asynq payload of a callback delivery
type CallbackTask struct {
	URL     string                `json:"url"`
	Payload model.CallbackPayload `json:"payload"`
}

// TaskEnqueuer is the subset of *asynq.Client used here
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// CallbackNotifier hands job outcomes to the callback worker. The callback
// stays opaque until here; its URL is resolved only when an outcome is sent.
type CallbackNotifier struct {
	asynqClient TaskEnqueuer
	events      EventLogger
	maxRetry    int
}

func NewCallbackNotifier(asynqClient TaskEnqueuer, events EventLogger, maxRetry int) *CallbackNotifier {
	return &CallbackNotifier{
		asynqClient: asynqClient,
		events:      events,
		maxRetry:    maxRetry,
	}
}

// Notify enqueues a delivery when the descriptor carries a callback. A
// callback without a deliverable URL is logged and skipped.
func (n *CallbackNotifier) Notify(ctx context.Context, desc *model.JobDescriptor, status model.JobStatus, parts []string, errMsg string) error {
	if desc.Callback == nil {
		return nil
	}

	cb, err := model.ResolveCallback(desc.Callback)
	if errors.Is(err, model.ErrUnusableCallback) {
		n.events.Error(ctx, "skipping callback for %s: %v", desc.Hash, err)
		return nil
	}
	if err != nil {
		return err
	}

	task, err := NewCallbackTask(cb, desc, status, parts, errMsg)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	_, err = n.asynqClient.EnqueueContext(ctx, task,
		asynq.Queue(QueueCallbacks),
		asynq.MaxRetry(n.maxRetry),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue callback: %w", err)
	}
	return nil
}

func NewCallbackTask(cb *model.Callback, desc *model.JobDescriptor, status model.JobStatus, parts []string, errMsg string) (*asynq.Task, error) {
	payload := CallbackTask{
		URL: cb.URL,
		Payload: model.CallbackPayload{
			Hash:   desc.Hash,
			Model:  desc.Model,
			Status: status,
			Parts:  parts,
			Error:  errMsg,
			Data:   cb.Data,
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeCallback, data), nil
}

// NewSweepTask creates the periodic intent sweep task
func NewSweepTask() *asynq.Task {
	return asynq.NewTask(TaskTypeSweep, nil)
}

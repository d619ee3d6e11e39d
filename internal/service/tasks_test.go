package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/hibiken/asynq"

	"github.com/stemsplit/api/internal/model"
)

type recordingEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (r *recordingEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.tasks = append(r.tasks, task)
	return &asynq.TaskInfo{ID: "t1", Queue: QueueCallbacks}, nil
}

type recordingEvents struct {
	infos  []string
	errors []string
}

func (r *recordingEvents) Info(_ context.Context, format string, args ...any) {
	r.infos = append(r.infos, fmt.Sprintf(format, args...))
}

func (r *recordingEvents) Error(_ context.Context, format string, args ...any) {
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}

func TestCallbackNotifier(t *testing.T) {
	enq := &recordingEnqueuer{}
	events := &recordingEvents{}
	n := NewCallbackNotifier(enq, events, 3)
	ctx := context.Background()

	// no callback, nothing to deliver
	if err := n.Notify(ctx, &model.JobDescriptor{Hash: "h", Model: testModel}, model.JobStatusSucceeded, nil, ""); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(enq.tasks) != 0 {
		t.Fatalf("expected no task, got %d", len(enq.tasks))
	}

	desc := &model.JobDescriptor{
		Hash:     "h",
		Model:    testModel,
		Callback: json.RawMessage(`{"url":"http://cb.local","token":"abc","data":["opaque"]}`),
	}
	if err := n.Notify(ctx, desc, model.JobStatusSucceeded, []string{"vocals", "bass"}, ""); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(enq.tasks) != 1 || enq.tasks[0].Type() != TaskTypeCallback {
		t.Fatalf("expected one callback task, got %v", enq.tasks)
	}

	var payload CallbackTask
	if err := json.Unmarshal(enq.tasks[0].Payload(), &payload); err != nil {
		t.Fatalf("invalid task payload: %v", err)
	}
	if payload.URL != "http://cb.local" || payload.Payload.Hash != "h" || len(payload.Payload.Parts) != 2 {
		t.Errorf("unexpected payload %+v", payload)
	}
	if string(payload.Payload.Data) != `["opaque"]` {
		t.Errorf("callback data must be forwarded verbatim, got %s", payload.Payload.Data)
	}

	enq.err = errors.New("redis down")
	if err := n.Notify(ctx, desc, model.JobStatusFailed, nil, "boom"); err == nil {
		t.Error("expected enqueue error to surface")
	}
}

func TestCallbackNotifier_UnusableCallback(t *testing.T) {
	enq := &recordingEnqueuer{}
	events := &recordingEvents{}
	n := NewCallbackNotifier(enq, events, 3)
	ctx := context.Background()

	for _, cb := range []string{
		`{"url":"relative/hook","data":{"k":1}}`,
		`{"data":{"k":1}}`,
	} {
		desc := &model.JobDescriptor{Hash: "h", Model: testModel, Callback: json.RawMessage(cb)}
		if err := n.Notify(ctx, desc, model.JobStatusSucceeded, []string{"vocals"}, ""); err != nil {
			t.Fatalf("Notify(%s): %v", cb, err)
		}
	}
	if len(enq.tasks) != 0 {
		t.Fatalf("expected no delivery for unusable callbacks, got %d", len(enq.tasks))
	}
	if len(events.errors) != 2 || !strings.Contains(events.errors[0], "skipping callback for h") {
		t.Errorf("expected unusable callbacks in the event log, got %v", events.errors)
	}
}

package service

import (
	"context"
	"fmt"
	"time"

	"github.com/stemsplit/api/internal/client"
	"github.com/stemsplit/api/internal/model"
)

// ReconcileQueue is what the sweep needs from the work queue
type ReconcileQueue interface {
	Push(ctx context.Context, raw []byte) error
	client.IntentJournal
}

// ReconcileService finishes submissions that were interrupted between the
// input write and the queue push.
type ReconcileService struct {
	store        client.StorageClient
	queue        ReconcileQueue
	events       EventLogger
	inputBucket  string
	defaultModel string
	grace        time.Duration
	now          func() time.Time
}

func NewReconcileService(store client.StorageClient, queue ReconcileQueue, events EventLogger, inputBucket, defaultModel string, grace time.Duration) *ReconcileService {
	return &ReconcileService{
		store:        store,
		queue:        queue,
		events:       events,
		inputBucket:  inputBucket,
		defaultModel: defaultModel,
		grace:        grace,
		now:          time.Now,
	}
}

// Reconcile walks intents older than the grace period. An intent whose input
// blob exists is pushed; one without a blob never got past the store write
// and is dropped. Returns the number of requeued jobs.
func (s *ReconcileService) Reconcile(ctx context.Context) (int, error) {
	stale, err := s.queue.StaleIntents(ctx, s.now().Add(-s.grace))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}

	requeued := 0
	for _, raw := range stale {
		desc, err := model.ParseJobDescriptor([]byte(raw), s.defaultModel)
		if err != nil {
			s.events.Error(ctx, "dropping unreadable intent: %v", err)
			if err := s.queue.Settle(ctx, []byte(raw)); err != nil {
				s.events.Error(ctx, "failed to settle unreadable intent: %v", err)
			}
			continue
		}

		exists, err := s.store.Exists(ctx, s.inputBucket, desc.InputKey())
		if err != nil {
			return requeued, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if !exists {
			s.events.Info(ctx, "dropping intent for %s: input was never stored", desc.Hash)
			if err := s.queue.Settle(ctx, []byte(raw)); err != nil {
				return requeued, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
			}
			continue
		}

		if err := s.queue.Push(ctx, []byte(raw)); err != nil {
			return requeued, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
		}
		if err := s.queue.Settle(ctx, []byte(raw)); err != nil {
			return requeued, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
		}
		s.events.Info(ctx, "requeued %s model=%s after interrupted submission", desc.Hash, desc.Model)
		requeued++
	}
	return requeued, nil
}

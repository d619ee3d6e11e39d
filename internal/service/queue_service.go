package service

import (
	"context"
	"fmt"
)

// QueueReader is the read-only view of the work queue
type QueueReader interface {
	Peek(ctx context.Context) ([]string, error)
	PeekDead(ctx context.Context) ([]string, error)
}

// QueueService exposes queue contents for operators
type QueueService struct {
	queue QueueReader
}

func NewQueueService(queue QueueReader) *QueueService {
	return &QueueService{queue: queue}
}

// PeekAll returns every queued descriptor without consuming any
func (s *QueueService) PeekAll(ctx context.Context) ([]string, error) {
	items, err := s.queue.Peek(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	if items == nil {
		items = []string{}
	}
	return items, nil
}

// PeekDead returns descriptors that failed processing
func (s *QueueService) PeekDead(ctx context.Context) ([]string, error) {
	items, err := s.queue.PeekDead(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	if items == nil {
		items = []string{}
	}
	return items, nil
}

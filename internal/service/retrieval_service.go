package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/stemsplit/api/internal/client"
	"github.com/stemsplit/api/internal/model"
)

// Track is an open output part. The caller closes Body.
type Track struct {
	Key  string
	Size int64
	Body io.ReadCloser
}

// RetrievalService serves and removes separated parts
type RetrievalService struct {
	store        client.StorageClient
	events       EventLogger
	outputBucket string
}

func NewRetrievalService(store client.StorageClient, events EventLogger, outputBucket string) *RetrievalService {
	return &RetrievalService{
		store:        store,
		events:       events,
		outputBucket: outputBucket,
	}
}

// Fetch opens the part for streaming
func (s *RetrievalService) Fetch(ctx context.Context, hash, part string) (*Track, error) {
	key := model.PartKey(hash, part)
	body, size, err := s.store.Get(ctx, s.outputBucket, key)
	if err != nil {
		if errors.Is(err, client.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &Track{Key: key, Size: size, Body: body}, nil
}

// Remove deletes the part and returns its key. Absent parts are reported.
func (s *RetrievalService) Remove(ctx context.Context, hash, part string) (string, error) {
	key := model.PartKey(hash, part)
	exists, err := s.store.Exists(ctx, s.outputBucket, key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !exists {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	if err := s.store.Delete(ctx, s.outputBucket, key); err != nil {
		if errors.Is(err, client.ErrObjectNotFound) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s.events.Info(ctx, "deleted %s", key)
	return key, nil
}

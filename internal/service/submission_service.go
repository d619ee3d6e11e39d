package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/stemsplit/api/internal/client"
	"github.com/stemsplit/api/internal/model"
)

// Fingerprint returns the first 56 hex characters of the SHA-256 digest
func Fingerprint(audio []byte) string {
	sum := sha256.Sum256(audio)
	return hex.EncodeToString(sum[:])[:model.FingerprintLength]
}

// SubmissionQueue is the producer side of the work queue
type SubmissionQueue interface {
	Push(ctx context.Context, raw []byte) error
	client.IntentJournal
}

// SubmissionService stores submitted audio and queues separation jobs
type SubmissionService struct {
	store        client.StorageClient
	queue        SubmissionQueue
	events       EventLogger
	inputBucket  string
	defaultModel string
}

func NewSubmissionService(store client.StorageClient, queue SubmissionQueue, events EventLogger, inputBucket, defaultModel string) *SubmissionService {
	return &SubmissionService{
		store:        store,
		queue:        queue,
		events:       events,
		inputBucket:  inputBucket,
		defaultModel: defaultModel,
	}
}

// SubmitEncoded decodes the base64 payload of a request and submits it
func (s *SubmissionService) SubmitEncoded(ctx context.Context, req *model.SeparateRequest) (*model.SeparateResponse, error) {
	if req == nil || req.MP3 == "" {
		return nil, fmt.Errorf("%w: mp3", ErrMissingField)
	}
	audio, err := base64.StdEncoding.DecodeString(req.MP3)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 in mp3: %v", ErrMalformedInput, err)
	}
	return s.Submit(ctx, audio, req.Model, req.Callback)
}

// Submit stores the audio under its fingerprint and queues a new job.
// Identical audio is never deduplicated; every call queues a descriptor.
func (s *SubmissionService) Submit(ctx context.Context, audio []byte, modelName string, callback json.RawMessage) (*model.SeparateResponse, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: mp3", ErrMissingField)
	}
	if modelName == "" {
		modelName = s.defaultModel
	}
	if !model.ValidModelName(modelName) {
		return nil, fmt.Errorf("%w: invalid model %q", ErrMalformedInput, modelName)
	}

	hash := Fingerprint(audio)
	desc := &model.JobDescriptor{Hash: hash, Model: modelName, Callback: model.NormalizeCallback(callback)}
	raw, err := desc.Encode()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}

	// The intent is journaled first so the sweep can finish a submission
	// interrupted between the store write and the push.
	if err := s.queue.Intend(ctx, raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}

	if err := s.store.EnsureBucket(ctx, s.inputBucket); err != nil {
		s.abandon(ctx, raw)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := s.store.Put(ctx, s.inputBucket, desc.InputKey(), bytes.NewReader(audio), int64(len(audio)), "audio/mpeg"); err != nil {
		s.abandon(ctx, raw)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := s.queue.Push(ctx, raw); err != nil {
		s.abandon(ctx, raw)
		return nil, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	if err := s.queue.Settle(ctx, raw); err != nil {
		s.events.Error(ctx, "failed to settle intent for %s: %v", hash, err)
	}

	s.events.Info(ctx, "queued %s model=%s", hash, modelName)

	return &model.SeparateResponse{
		Hash:   hash,
		Reason: model.ReasonEnqueued,
	}, nil
}

// abandon drops the journaled intent of a submission the caller was told failed
func (s *SubmissionService) abandon(ctx context.Context, raw []byte) {
	if err := s.queue.Settle(ctx, raw); err != nil {
		s.events.Error(ctx, "failed to drop abandoned intent: %v", err)
	}
}

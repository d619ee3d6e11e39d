package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/stemsplit/api/internal/client"
	"github.com/stemsplit/api/internal/config"
	"github.com/stemsplit/api/internal/model"
	"github.com/stemsplit/api/internal/service"
)

// Error codes reported to progress subscribers
const (
	CodeMalformedDescriptor = "MALFORMED_DESCRIPTOR"
	CodeInputUnavailable    = "INPUT_UNAVAILABLE"
	CodeTransformFailed     = "TRANSFORM_FAILED"
	CodeOutputUnavailable   = "OUTPUT_UNAVAILABLE"
)

// ProgressPublisher fans job progress out to subscribers
type ProgressPublisher interface {
	Progress(ctx context.Context, hash, stage, part string)
	Complete(ctx context.Context, hash string, parts []string)
	Fail(ctx context.Context, hash, code, message string)
}

// OutcomeNotifier reports the final state of a job to its submitter
type OutcomeNotifier interface {
	Notify(ctx context.Context, desc *model.JobDescriptor, status model.JobStatus, parts []string, errMsg string) error
}

// SeparationWorker drains the work queue one job at a time
type SeparationWorker struct {
	consumer     string
	queue        client.WorkQueue
	store        client.StorageClient
	separator    client.Separator
	events       service.EventLogger
	progress     ProgressPublisher
	notifier     OutcomeNotifier
	logger       *slog.Logger
	inputBucket  string
	outputBucket string
	defaultModel string
	parts        []string
	dataDir      string
	backoff      time.Duration
}

// NewSeparationWorker creates a worker identified by consumer. Each
// consumer owns its processing list, so ids must be unique per process.
func NewSeparationWorker(consumer string, queue client.WorkQueue, store client.StorageClient, separator client.Separator, events service.EventLogger, cfg *config.Config, logger *slog.Logger) *SeparationWorker {
	return &SeparationWorker{
		consumer:     consumer,
		queue:        queue,
		store:        store,
		separator:    separator,
		events:       events,
		logger:       logger.With(slog.String("consumer", consumer)),
		inputBucket:  cfg.Storage.InputBucket,
		outputBucket: cfg.Storage.OutputBucket,
		defaultModel: cfg.Separator.DefaultModel,
		parts:        cfg.Separator.Parts,
		dataDir:      cfg.Separator.DataDir,
		backoff:      time.Second,
	}
}

// WithProgress attaches a progress publisher
func (w *SeparationWorker) WithProgress(p ProgressPublisher) *SeparationWorker {
	w.progress = p
	return w
}

// WithNotifier attaches a callback notifier
func (w *SeparationWorker) WithNotifier(n OutcomeNotifier) *SeparationWorker {
	w.notifier = n
	return w
}

// Run recovers entries left by a previous crash of this consumer and then
// processes jobs until ctx is cancelled.
func (w *SeparationWorker) Run(ctx context.Context) error {
	n, err := w.queue.Recover(ctx, w.consumer)
	if err != nil {
		w.logger.Error("recover failed", slog.Any("error", err))
	} else if n > 0 {
		w.events.Info(ctx, "%s recovered %d unfinished jobs", w.consumer, n)
	}

	w.logger.Info("worker started")
	for {
		err := w.ProcessNext(ctx)
		if ctx.Err() != nil {
			w.logger.Info("worker stopped")
			return nil
		}
		if errors.Is(err, client.ErrQueueEmpty) {
			continue
		}
		if err != nil {
			w.logger.Warn("queue unavailable", slog.Any("error", err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(w.backoff):
			}
		}
	}
}

// ProcessNext blocks for one descriptor and processes it. Only queue errors
// are returned; job failures are logged and the entry dead-lettered. A job
// that was popped runs to completion even if ctx is cancelled.
func (w *SeparationWorker) ProcessNext(ctx context.Context) error {
	raw, err := w.queue.Pop(ctx, w.consumer)
	if err != nil {
		return err
	}
	w.process(context.WithoutCancel(ctx), raw)
	return nil
}

func (w *SeparationWorker) process(ctx context.Context, raw string) {
	desc, err := model.ParseJobDescriptor([]byte(raw), w.defaultModel)
	if err != nil {
		w.events.Error(ctx, "discarding descriptor: %v", err)
		w.deadLetter(ctx, raw)
		return
	}

	w.events.Info(ctx, "processing %s model=%s", desc.Hash, desc.Model)

	scratch := uuid.NewString()
	inputDir := filepath.Join(w.dataDir, "input", scratch)
	outputDir := filepath.Join(w.dataDir, "output", scratch)
	defer w.cleanup(inputDir, outputDir)

	w.publishProgress(ctx, desc.Hash, model.StageFetching, "")
	inputPath := filepath.Join(inputDir, desc.InputKey())
	if err := client.DownloadFile(ctx, w.store, w.inputBucket, desc.InputKey(), inputPath); err != nil {
		if errors.Is(err, client.ErrObjectNotFound) {
			w.events.Error(ctx, "input %s not found", desc.InputKey())
		} else {
			w.events.Error(ctx, "failed to fetch %s: %v", desc.InputKey(), err)
		}
		w.fail(ctx, desc, raw, CodeInputUnavailable, err.Error())
		return
	}

	w.publishProgress(ctx, desc.Hash, model.StageSeparating, "")
	produced, err := w.separator.Separate(ctx, inputPath, desc.Model, outputDir)
	if err != nil {
		var terr *client.TransformError
		if errors.As(err, &terr) {
			w.events.Error(ctx, "separation of %s failed: %v: %s", desc.Hash, terr.Err, terr.Output)
		} else {
			w.events.Error(ctx, "separation of %s failed: %v", desc.Hash, err)
		}
		w.fail(ctx, desc, raw, CodeTransformFailed, err.Error())
		return
	}

	published, err := w.publish(ctx, desc, produced)
	if err != nil {
		w.events.Error(ctx, "publishing %s failed: %v", desc.Hash, err)
		w.fail(ctx, desc, raw, CodeOutputUnavailable, err.Error())
		return
	}

	if err := w.queue.Ack(ctx, w.consumer, raw); err != nil {
		w.events.Error(ctx, "failed to ack %s: %v", desc.Hash, err)
	}
	w.events.Info(ctx, "finished %s: %d/%d parts", desc.Hash, len(published), len(w.parts))

	if w.progress != nil {
		w.progress.Complete(ctx, desc.Hash, published)
	}
	w.notify(ctx, desc, model.JobStatusSucceeded, published, "")
}

// publish uploads every configured part that was produced. Missing parts and
// failed uploads are skipped independently. It errors when the output bucket
// is unreachable or when no produced part could be uploaded.
func (w *SeparationWorker) publish(ctx context.Context, desc *model.JobDescriptor, produced map[string]string) ([]string, error) {
	published := make([]string, 0, len(w.parts))
	if err := w.store.EnsureBucket(ctx, w.outputBucket); err != nil {
		return nil, fmt.Errorf("output bucket %s unavailable: %w", w.outputBucket, err)
	}

	attempted := 0

	for _, part := range w.parts {
		path, ok := produced[part]
		if !ok {
			w.events.Error(ctx, "missing %s for %s, skipping", part, desc.Hash)
			continue
		}
		w.publishProgress(ctx, desc.Hash, model.StagePublishing, part)
		attempted++

		key := model.PartKey(desc.Hash, part)
		if err := client.UploadFile(ctx, w.store, w.outputBucket, key, path, "audio/mpeg"); err != nil {
			w.events.Error(ctx, "failed to upload %s: %v", key, err)
			continue
		}
		published = append(published, part)
	}
	if attempted > 0 && len(published) == 0 {
		return nil, fmt.Errorf("none of %d produced parts could be uploaded", attempted)
	}
	return published, nil
}

func (w *SeparationWorker) fail(ctx context.Context, desc *model.JobDescriptor, raw, code, msg string) {
	w.deadLetter(ctx, raw)
	if w.progress != nil {
		w.progress.Fail(ctx, desc.Hash, code, msg)
	}
	w.notify(ctx, desc, model.JobStatusFailed, nil, msg)
}

func (w *SeparationWorker) deadLetter(ctx context.Context, raw string) {
	if err := w.queue.DeadLetter(ctx, w.consumer, raw); err != nil {
		w.events.Error(ctx, "failed to dead-letter entry: %v", err)
	}
}

func (w *SeparationWorker) publishProgress(ctx context.Context, hash, stage, part string) {
	if w.progress != nil {
		w.progress.Progress(ctx, hash, stage, part)
	}
}

func (w *SeparationWorker) notify(ctx context.Context, desc *model.JobDescriptor, status model.JobStatus, parts []string, errMsg string) {
	if w.notifier == nil {
		return
	}
	if err := w.notifier.Notify(ctx, desc, status, parts, errMsg); err != nil {
		w.events.Error(ctx, "failed to schedule callback for %s: %v", desc.Hash, err)
	}
}

func (w *SeparationWorker) cleanup(dirs ...string) {
	for _, dir := range dirs {
		if err := os.RemoveAll(dir); err != nil {
			w.logger.Warn("failed to remove scratch dir", slog.String("dir", dir), slog.Any("error", err))
		}
	}
}

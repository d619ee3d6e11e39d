package worker

import (
	"context"
	"testing"
	"time"
)

func TestPool_DrainsQueueAndStops(t *testing.T) {
	env := newWorkerEnv(t)
	env.queue.WithBlockTimeout(time.Second)
	hashes := []string{env.submit("one"), env.submit("two"), env.submit("three")}

	progress := newRecordingProgress()
	pool := NewPool("node", 2, func(consumer string) *SeparationWorker {
		return env.newWorker(consumer, fakeDemucs(allParts, false)).WithProgress(progress)
	}, env.logger)

	if got := pool.Consumer(1); got != "node-1" {
		t.Errorf("unexpected consumer id %s", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		progress.mu.Lock()
		n := len(progress.complete)
		progress.mu.Unlock()
		if n == len(hashes) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("pool processed %d of %d jobs", n, len(hashes))
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not stop after cancel")
	}
}

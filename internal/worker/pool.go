package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Pool runs several separation workers against one queue. Each gets its own
// consumer id so crash recovery only reclaims its own entries.
type Pool struct {
	prefix string
	size   int
	build  func(consumer string) *SeparationWorker
	logger *slog.Logger
}

func NewPool(prefix string, size int, build func(consumer string) *SeparationWorker, logger *slog.Logger) *Pool {
	return &Pool{
		prefix: prefix,
		size:   size,
		build:  build,
		logger: logger,
	}
}

// Consumer returns the consumer id of the i-th worker
func (p *Pool) Consumer(i int) string {
	return fmt.Sprintf("%s-%d", p.prefix, i)
}

// Run blocks until every worker has stopped
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.size; i++ {
		w := p.build(p.Consumer(i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Run(ctx); err != nil {
				p.logger.Error("worker exited", slog.String("consumer", w.consumer), slog.Any("error", err))
			}
		}()
	}
	wg.Wait()
	p.logger.Info("worker pool stopped", slog.Int("size", p.size))
}

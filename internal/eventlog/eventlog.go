// Package eventlog is the append-only operational log shared by the REST
// process and the workers. Entries go to the process logger and to a redis
// list as "{node}.{component}.{kind}:{message}".
package eventlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/stemsplit/api/internal/model"
)

// ErrNoBackend is returned when entries are read from a log without a redis
// client.
var ErrNoBackend = errors.New("event log has no redis backend")

type Log struct {
	redis  redis.UniversalClient
	list   string
	origin string
	logger *slog.Logger
}

func New(redisClient redis.UniversalClient, list, node, component string, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{
		redis:  redisClient,
		list:   list,
		origin: node + "." + component,
		logger: logger.With(slog.String("origin", node+"."+component)),
	}
}

// Info records an informational event
func (l *Log) Info(ctx context.Context, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.logger.Info(msg)
	l.append(ctx, model.LogKindInfo, msg)
}

// Error records a failure
func (l *Log) Error(ctx context.Context, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.logger.Error(msg)
	l.append(ctx, model.LogKindError, msg)
}

func (l *Log) append(ctx context.Context, kind model.LogKind, msg string) {
	if l.redis == nil {
		return
	}
	entry := fmt.Sprintf("%s.%s:%s", l.origin, kind, msg)
	if err := l.redis.LPush(ctx, l.list, entry).Err(); err != nil {
		l.logger.Warn("event log unavailable", slog.Any("error", err))
	}
}

// Entries returns up to limit entries, newest first. A limit <= 0 returns all.
func (l *Log) Entries(ctx context.Context, limit int64) ([]model.LogEntry, error) {
	if l.redis == nil {
		return nil, ErrNoBackend
	}
	stop := int64(-1)
	if limit > 0 {
		stop = limit - 1
	}
	raw, err := l.redis.LRange(ctx, l.list, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", l.list, err)
	}

	entries := make([]model.LogEntry, 0, len(raw))
	for _, line := range raw {
		if entry, ok := ParseEntry(line); ok {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// ParseEntry splits a stored line. Node names may contain dots, so the kind
// and component are taken from the right of the key.
func ParseEntry(line string) (model.LogEntry, bool) {
	key, msg, ok := strings.Cut(line, ":")
	if !ok {
		return model.LogEntry{}, false
	}
	idx := strings.LastIndex(key, ".")
	if idx <= 0 {
		return model.LogEntry{}, false
	}
	return model.LogEntry{
		Origin:  key[:idx],
		Kind:    model.LogKind(key[idx+1:]),
		Message: msg,
	}, true
}

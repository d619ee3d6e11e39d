package service

import (
	"context"
	"errors"
)

var (
	ErrMalformedInput   = errors.New("malformed input")
	ErrMissingField     = errors.New("missing field")
	ErrNotFound         = errors.New("not found")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrQueueUnavailable = errors.New("queue unavailable")
)

// EventLogger is the shared operational log
type EventLogger interface {
	Info(ctx context.Context, format string, args ...any)
	Error(ctx context.Context, format string, args ...any)
}

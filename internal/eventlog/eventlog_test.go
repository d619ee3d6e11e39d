package eventlog

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/stemsplit/api/internal/model"
)

func TestLog_AppendAndEntries(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	l := New(rdb, "logging", "node-1.example", "rest", logger)
	ctx := context.Background()

	l.Info(ctx, "queued %s model=%s", "abc", "mdx_extra_q")
	l.Error(ctx, "failed to fetch input %s.mp3", "abc")

	raw, err := mr.List("logging")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(raw) != 2 || raw[1] != "node-1.example.rest.info:queued abc model=mdx_extra_q" {
		t.Fatalf("unexpected raw list %v", raw)
	}

	entries, err := l.Entries(ctx, 0)
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Kind != model.LogKindError || entries[0].Origin != "node-1.example.rest" {
		t.Errorf("unexpected newest entry %+v", entries[0])
	}
	if entries[1].Message != "queued abc model=mdx_extra_q" {
		t.Errorf("unexpected message %q", entries[1].Message)
	}

	limited, _ := l.Entries(ctx, 1)
	if len(limited) != 1 {
		t.Errorf("expected 1 entry with limit, got %d", len(limited))
	}

	if !strings.Contains(buf.String(), "origin=node-1.example.rest") {
		t.Errorf("expected origin attribute in process log, got %q", buf.String())
	}
}

func TestParseEntry(t *testing.T) {
	entry, ok := ParseEntry("host.worker.error:upload failed h-vocals: timeout")
	if !ok {
		t.Fatal("expected entry to parse")
	}
	if entry.Origin != "host.worker" || entry.Kind != model.LogKindError || entry.Message != "upload failed h-vocals: timeout" {
		t.Errorf("unexpected entry %+v", entry)
	}

	if _, ok := ParseEntry("garbage"); ok {
		t.Error("expected garbage to be rejected")
	}
}

func TestLog_WithoutRedis(t *testing.T) {
	var buf bytes.Buffer
	l := New(nil, "logging", "node-1", "worker", slog.New(slog.NewTextHandler(&buf, nil)))
	ctx := context.Background()

	l.Error(ctx, "still reaches the process logger")
	if !strings.Contains(buf.String(), "still reaches the process logger") {
		t.Errorf("expected message in process log, got %q", buf.String())
	}

	if _, err := l.Entries(ctx, 10); !errors.Is(err, ErrNoBackend) {
		t.Errorf("expected ErrNoBackend, got %v", err)
	}
}

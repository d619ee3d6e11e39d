package client

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMemoryStorage_RoundTrip(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	if err := store.Put(ctx, "output", "k", strings.NewReader("x"), 1, "audio/mpeg"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected missing bucket error, got %v", err)
	}

	if err := store.EnsureBucket(ctx, "output"); err != nil {
		t.Fatalf("EnsureBucket: %v", err)
	}
	if err := store.EnsureBucket(ctx, "output"); err != nil {
		t.Fatalf("EnsureBucket should be idempotent: %v", err)
	}
	if err := store.Put(ctx, "output", "k", strings.NewReader("stem"), 4, "audio/mpeg"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	body, size, err := store.Get(ctx, "output", "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	data, _ := io.ReadAll(body)
	body.Close()
	if string(data) != "stem" || size != 4 {
		t.Errorf("unexpected object %q (%d bytes)", data, size)
	}

	if err := store.Delete(ctx, "output", "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, _, err := store.Get(ctx, "output", "k"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound after delete, got %v", err)
	}
	if err := store.Delete(ctx, "output", "k"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound on second delete, got %v", err)
	}
}

func TestDownloadAndUploadFile(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()
	_ = store.EnsureBucket(ctx, "queue")
	_ = store.EnsureBucket(ctx, "output")
	_ = store.Put(ctx, "queue", "in.mp3", bytes.NewReader([]byte("audio")), 5, "audio/mpeg")

	dir := t.TempDir()
	local := filepath.Join(dir, "nested", "in.mp3")
	if err := DownloadFile(ctx, store, "queue", "in.mp3", local); err != nil {
		t.Fatalf("DownloadFile: %v", err)
	}
	data, err := os.ReadFile(local)
	if err != nil || string(data) != "audio" {
		t.Fatalf("unexpected local copy %q, err=%v", data, err)
	}

	if err := UploadFile(ctx, store, "output", "copy", local, "audio/mpeg"); err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if ok, _ := store.Exists(ctx, "output", "copy"); !ok {
		t.Error("expected uploaded object to exist")
	}

	if err := DownloadFile(ctx, store, "queue", "missing.mp3", filepath.Join(dir, "x")); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
}

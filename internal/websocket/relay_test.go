package websocket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/stemsplit/api/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func receive(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func waitForSubscribers(t *testing.T, hub *Hub, hash string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers(hash) != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d subscribers for %s", n, hash)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRelayDeliversToSubscribers(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(discardLogger())
	go hub.Run(ctx)

	relay, err := NewRelay(ctx, rdb, "separation:events", hub, discardLogger())
	if err != nil {
		t.Fatalf("NewRelay: %v", err)
	}
	go relay.Run(ctx)

	watcher := &Client{Hash: "abc", Send: make(chan []byte, 8)}
	other := &Client{Hash: "xyz", Send: make(chan []byte, 8)}
	hub.Register(watcher)
	hub.Register(other)
	waitForSubscribers(t, hub, "abc", 1)

	pub := NewPublisher(rdb, "separation:events", discardLogger())
	pub.Progress(ctx, "abc", model.StageSeparating, "")
	pub.Complete(ctx, "abc", []string{"vocals"})

	var progress model.WSProgressMessage
	if err := json.Unmarshal(receive(t, watcher.Send), &progress); err != nil {
		t.Fatalf("invalid progress message: %v", err)
	}
	if progress.Type != model.WSMessageTypeProgress || progress.Stage != model.StageSeparating {
		t.Errorf("unexpected progress %+v", progress)
	}

	var complete model.WSCompleteMessage
	if err := json.Unmarshal(receive(t, watcher.Send), &complete); err != nil {
		t.Fatalf("invalid complete message: %v", err)
	}
	if complete.Hash != "abc" || len(complete.Parts) != 1 {
		t.Errorf("unexpected completion %+v", complete)
	}

	select {
	case msg := <-other.Send:
		t.Errorf("subscriber of another job received %s", msg)
	default:
	}
}

func TestHubUnregisterClosesSend(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(discardLogger())
	go hub.Run(ctx)

	client := &Client{Hash: "abc", Send: make(chan []byte, 1)}
	hub.Register(client)
	hub.Unregister(client)

	select {
	case _, ok := <-client.Send:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("send channel was not closed")
	}
	if n := hub.Subscribers("abc"); n != 0 {
		t.Errorf("expected no subscribers, got %d", n)
	}
}

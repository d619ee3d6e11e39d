package e2e

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/stemsplit/api/internal/client"
	"github.com/stemsplit/api/internal/config"
	"github.com/stemsplit/api/internal/eventlog"
	"github.com/stemsplit/api/internal/handler"
	"github.com/stemsplit/api/internal/service"
	"github.com/stemsplit/api/internal/worker"
)

// testApp holds all components needed for testing
type testApp struct {
	app    *fiber.App
	cfg    *config.Config
	redis  *redis.Client
	store  *client.MemoryStorage
	queue  *client.RedisQueue
	events *eventlog.Log
	logger *slog.Logger
}

// setupApp creates a Fiber app wired like cmd/server, backed by miniredis
// and in-memory storage.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	cfg := &config.Config{
		Queue:   config.QueueConfig{Name: "toWorker", LogList: "logging"},
		Storage: config.StorageConfig{InputBucket: "queue", OutputBucket: "output"},
		Separator: config.SeparatorConfig{
			Command:      []string{"demucs"},
			DefaultModel: "mdx_extra_q",
			Parts:        []string{"vocals", "drums", "bass", "other"},
			Extension:    "mp3",
			DataDir:      t.TempDir(),
		},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := client.NewMemoryStorage()
	queue := client.NewRedisQueue(redisClient, cfg.Queue.Name)
	events := eventlog.New(redisClient, cfg.Queue.LogList, "test-node", "rest", logger)
	validate := validator.New()

	submissionService := service.NewSubmissionService(store, queue, events, cfg.Storage.InputBucket, cfg.Separator.DefaultModel)
	retrievalService := service.NewRetrievalService(store, events, cfg.Storage.OutputBucket)
	queueService := service.NewQueueService(queue)

	app := fiber.New(fiber.Config{
		BodyLimit: 50 * 1024 * 1024,
	})
	handler.RegisterRoutes(app, handler.Routes{
		Health: handler.NewHealthHandler("stemsplit", map[string]handler.Check{
			"redis": func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		}),
		Separate: handler.NewSeparateHandler(submissionService, validate),
		Queue:    handler.NewQueueHandler(queueService),
		Track:    handler.NewTrackHandler(retrievalService),
		Logs:     handler.NewLogsHandler(events),
	})

	return &testApp{
		app:    app,
		cfg:    cfg,
		redis:  redisClient,
		store:  store,
		queue:  queue,
		events: events,
		logger: logger,
	}
}

// newWorker builds a worker whose separator writes every configured part
// unless fail is set.
func (ta *testApp) newWorker(consumer string, fail bool) *worker.SeparationWorker {
	separator := client.NewDemucsClient(&ta.cfg.Separator).WithRunner(
		func(_ context.Context, _ string, args ...string) ([]byte, error) {
			if fail {
				return []byte("Segmentation fault"), &exitError{}
			}
			var modelName, outDir string
			for i := 0; i < len(args)-1; i++ {
				switch args[i] {
				case "-n":
					modelName = args[i+1]
				case "--out":
					outDir = args[i+1]
				}
			}
			input := args[len(args)-1]
			stem := strings.TrimSuffix(filepath.Base(input), ".mp3")
			dir := filepath.Join(outDir, modelName, stem)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
			for _, part := range ta.cfg.Separator.Parts {
				if err := os.WriteFile(filepath.Join(dir, part+".mp3"), []byte("stem:"+part), 0o644); err != nil {
					return nil, err
				}
			}
			return nil, nil
		})
	events := eventlog.New(ta.redis, ta.cfg.Queue.LogList, "test-node", "worker", ta.logger)
	return worker.NewSeparationWorker(consumer, ta.queue, ta.store, separator, events, ta.cfg, ta.logger)
}

type exitError struct{}

func (*exitError) Error() string { return "exit status 139" }

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// errorCode extracts error.code from an error envelope.
func errorCode(t *testing.T, body map[string]interface{}) string {
	t.Helper()
	errObj, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error envelope, got %v", body)
	}
	code, _ := errObj["code"].(string)
	return code
}

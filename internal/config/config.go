package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Queue     QueueConfig
	Storage   StorageConfig
	Separator SeparatorConfig
	Worker    WorkerConfig
	Callback  CallbackConfig
	Sweep     SweepConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	LogFormat string
	NodeID    string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns the host:port pair used by both go-redis and asynq.
func (c RedisConfig) Addr() string {
	return net.JoinHostPort(c.Host, fmt.Sprintf("%d", c.Port))
}

type QueueConfig struct {
	Name    string
	LogList string
	Events  string
}

type StorageConfig struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	Secure       bool
	Region       string
	InputBucket  string
	OutputBucket string
}

// URL returns the endpoint with a scheme, honoring the TLS flag when the
// configured endpoint is a bare host:port.
func (c StorageConfig) URL() string {
	if strings.HasPrefix(c.Endpoint, "http://") || strings.HasPrefix(c.Endpoint, "https://") {
		return c.Endpoint
	}
	if c.Secure {
		return "https://" + c.Endpoint
	}
	return "http://" + c.Endpoint
}

type SeparatorConfig struct {
	Command      []string
	Device       string
	DefaultModel string
	Parts        []string
	Extension    string
	DataDir      string
}

type WorkerConfig struct {
	Concurrency int
	Embedded    int
	// BlockTimeout bounds each queue wait so shutdown is noticed
	BlockTimeout time.Duration
}

type CallbackConfig struct {
	Enabled  bool
	Timeout  time.Duration
	MaxRetry int
}

type SweepConfig struct {
	Enabled  bool
	Schedule string
	Grace    time.Duration
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("S3_ACCESS_KEY")
	readSecret("S3_SECRET_KEY")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()

	bindings := map[string]string{
		"server.port":          "SERVER_PORT",
		"server.env":           "SERVER_ENV",
		"server.log_level":     "LOG_LEVEL",
		"server.log_format":    "LOG_FORMAT",
		"server.node_id":       "NODE_ID",
		"redis.host":           "REDIS_HOST",
		"redis.port":           "REDIS_PORT",
		"redis.password":       "REDIS_PASSWORD",
		"redis.db":             "REDIS_DB",
		"queue.name":           "WORK_QUEUE",
		"queue.log_list":       "LOG_LIST",
		"queue.events":         "EVENTS_CHANNEL",
		"storage.endpoint":     "S3_ENDPOINT",
		"storage.access_key":   "S3_ACCESS_KEY",
		"storage.secret_key":   "S3_SECRET_KEY",
		"storage.secure":       "S3_SECURE",
		"storage.region":       "S3_REGION",
		"storage.input":        "INPUT_BUCKET",
		"storage.output":       "OUTPUT_BUCKET",
		"separator.command":    "SEPARATOR_COMMAND",
		"separator.device":     "SEPARATOR_DEVICE",
		"separator.model":      "DEFAULT_MODEL",
		"separator.parts":      "SEPARATOR_PARTS",
		"separator.extension":  "SEPARATOR_EXT",
		"separator.data_dir":   "DATA_DIR",
		"worker.concurrency":   "WORKER_CONCURRENCY",
		"worker.embedded":      "EMBEDDED_WORKERS",
		"worker.block_timeout": "WORKER_BLOCK_TIMEOUT",
		"callback.enabled":     "CALLBACK_ENABLED",
		"callback.timeout":     "CALLBACK_TIMEOUT",
		"callback.max_retry":   "CALLBACK_MAX_RETRY",
		"sweep.enabled":        "SWEEP_ENABLED",
		"sweep.schedule":       "SWEEP_SCHEDULE",
		"sweep.grace":          "SWEEP_GRACE",
	}
	for key, env := range bindings {
		_ = v.BindEnv(key, env)
	}

	// Defaults
	v.SetDefault("server.port", "5000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "text")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("queue.name", "toWorker")
	v.SetDefault("queue.log_list", "logging")
	v.SetDefault("queue.events", "separation:events")

	// Storage defaults match a local MinIO
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.secure", false)
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.input", "queue")
	v.SetDefault("storage.output", "output")

	// Separator defaults
	v.SetDefault("separator.command", "python3 -m demucs")
	v.SetDefault("separator.device", "cpu")
	v.SetDefault("separator.model", "mdx_extra_q")
	v.SetDefault("separator.parts", "vocals,drums,bass,other")
	v.SetDefault("separator.extension", "mp3")
	v.SetDefault("separator.data_dir", "./local_data")

	v.SetDefault("worker.concurrency", 1)
	v.SetDefault("worker.embedded", 0)
	v.SetDefault("worker.block_timeout", 5*time.Second)

	v.SetDefault("callback.enabled", true)
	v.SetDefault("callback.timeout", 10*time.Second)
	v.SetDefault("callback.max_retry", 5)

	v.SetDefault("sweep.enabled", true)
	v.SetDefault("sweep.schedule", "@every 15m")
	v.SetDefault("sweep.grace", 30*time.Minute)

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	nodeID := v.GetString("server.node_id")
	if nodeID == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "localhost"
		}
		nodeID = host
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:      v.GetString("server.port"),
			Env:       v.GetString("server.env"),
			LogLevel:  v.GetString("server.log_level"),
			LogFormat: v.GetString("server.log_format"),
			NodeID:    nodeID,
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Queue: QueueConfig{
			Name:    v.GetString("queue.name"),
			LogList: v.GetString("queue.log_list"),
			Events:  v.GetString("queue.events"),
		},
		Storage: StorageConfig{
			Endpoint:     v.GetString("storage.endpoint"),
			AccessKey:    v.GetString("storage.access_key"),
			SecretKey:    v.GetString("storage.secret_key"),
			Secure:       v.GetBool("storage.secure"),
			Region:       v.GetString("storage.region"),
			InputBucket:  v.GetString("storage.input"),
			OutputBucket: v.GetString("storage.output"),
		},
		Separator: SeparatorConfig{
			Command:      strings.Fields(v.GetString("separator.command")),
			Device:       v.GetString("separator.device"),
			DefaultModel: v.GetString("separator.model"),
			Parts:        splitList(v.GetString("separator.parts")),
			Extension:    strings.TrimPrefix(v.GetString("separator.extension"), "."),
			DataDir:      v.GetString("separator.data_dir"),
		},
		Worker: WorkerConfig{
			Concurrency:  v.GetInt("worker.concurrency"),
			Embedded:     v.GetInt("worker.embedded"),
			BlockTimeout: v.GetDuration("worker.block_timeout"),
		},
		Callback: CallbackConfig{
			Enabled:  v.GetBool("callback.enabled"),
			Timeout:  v.GetDuration("callback.timeout"),
			MaxRetry: v.GetInt("callback.max_retry"),
		},
		Sweep: SweepConfig{
			Enabled:  v.GetBool("sweep.enabled"),
			Schedule: v.GetString("sweep.schedule"),
			Grace:    v.GetDuration("sweep.grace"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.Separator.Command) == 0 {
		return fmt.Errorf("separator command is empty")
	}
	if len(c.Separator.Parts) == 0 {
		return fmt.Errorf("separator parts list is empty")
	}
	if c.Queue.Name == "" {
		return fmt.Errorf("work queue name is empty")
	}
	if c.Storage.InputBucket == "" || c.Storage.OutputBucket == "" {
		return fmt.Errorf("input and output buckets are required")
	}
	if c.Worker.Concurrency < 1 {
		c.Worker.Concurrency = 1
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

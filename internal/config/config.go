package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	MaxUploadMB  int64         `env:"MAX_UPLOAD_MB" envDefault:"32"`

	AuthToken      string   `env:"AUTH_TOKEN"`
	CORSOrigins    []string `env:"CORS_ORIGINS" envSeparator:","`
	RateLimitRPS   float64  `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int      `env:"RATE_LIMIT_BURST" envDefault:"40"`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`

	Model ModelConfig

	// Optional sinks and sources. Empty values disable them.
	DatabaseURL     string        `env:"DATABASE_URL"`
	DBMaxConns      int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns      int32         `env:"DB_MIN_CONNS" envDefault:"1"`
	DBConnTimeout   time.Duration `env:"DB_CONNECT_TIMEOUT" envDefault:"10s"`
	RunRetention    time.Duration `env:"RUN_RETENTION" envDefault:"0s"` // 0 keeps runs forever
	MQTTBrokerURL   string        `env:"MQTT_BROKER_URL"`
	MQTTTopics      string        `env:"MQTT_TOPICS" envDefault:"transcripts/#"`
	MQTTResultTopic string        `env:"MQTT_RESULT_TOPIC" envDefault:"segments"`
	MQTTClientID    string        `env:"MQTT_CLIENT_ID" envDefault:"transcript-segmenter"`
	MQTTUsername    string        `env:"MQTT_USERNAME"`
	MQTTPassword    string        `env:"MQTT_PASSWORD"`

	WatchDir      string `env:"WATCH_DIR"`
	WatchBackfill bool   `env:"WATCH_BACKFILL" envDefault:"true"`
	OutputDir     string `env:"OUTPUT_DIR" envDefault:"./segments"`

	Workers   int `env:"WORKERS" envDefault:"2"`
	QueueSize int `env:"QUEUE_SIZE" envDefault:"100"`

	S3 S3Config
}

// ModelConfig configures the boundary-scoring network and pipeline.
type ModelConfig struct {
	InputDim         int    `env:"MODEL_INPUT_DIM" envDefault:"128"`
	HiddenDim        int    `env:"MODEL_HIDDEN_DIM" envDefault:"256"`
	StartUnit        int    `env:"MODEL_START_UNIT" envDefault:"0"`
	Seed             uint64 `env:"MODEL_SEED" envDefault:"42"`
	Features         string `env:"MODEL_FEATURES" envDefault:"random"` // "random" or "hashed"
	Scorer           string `env:"MODEL_SCORER" envDefault:"pointer"`  // "pointer" or "heuristic"
	AlignToSentences bool   `env:"ALIGN_TO_SENTENCES" envDefault:"false"`
}

// S3Config holds settings for an S3-compatible output store.
type S3Config struct {
	Bucket    string `env:"S3_BUCKET"`
	Endpoint  string `env:"S3_ENDPOINT"`
	Region    string `env:"S3_REGION" envDefault:"us-east-1"`
	AccessKey string `env:"S3_ACCESS_KEY"`
	SecretKey string `env:"S3_SECRET_KEY"`
	Prefix    string `env:"S3_PREFIX"`
}

// Enabled reports whether S3 output is configured.
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile     string
	HTTPAddr    string
	LogLevel    string
	DatabaseURL string
	WatchDir    string
	OutputDir   string
	Seed        *uint64
	Scorer      string
	Features    string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	// Load .env file (silent if missing)
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Apply CLI overrides (non-empty values win)
	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.DatabaseURL != "" {
		cfg.DatabaseURL = overrides.DatabaseURL
	}
	if overrides.WatchDir != "" {
		cfg.WatchDir = overrides.WatchDir
	}
	if overrides.OutputDir != "" {
		cfg.OutputDir = overrides.OutputDir
	}
	if overrides.Seed != nil {
		cfg.Model.Seed = *overrides.Seed
	}
	if overrides.Scorer != "" {
		cfg.Model.Scorer = overrides.Scorer
	}
	if overrides.Features != "" {
		cfg.Model.Features = overrides.Features
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.Model.Scorer {
	case "pointer", "heuristic":
	default:
		return fmt.Errorf("MODEL_SCORER must be pointer or heuristic, got %q", c.Model.Scorer)
	}
	switch c.Model.Features {
	case "random", "hashed":
	default:
		return fmt.Errorf("MODEL_FEATURES must be random or hashed, got %q", c.Model.Features)
	}
	if c.Model.InputDim < 1 {
		return fmt.Errorf("MODEL_INPUT_DIM must be positive, got %d", c.Model.InputDim)
	}
	if c.Model.HiddenDim < 1 {
		return fmt.Errorf("MODEL_HIDDEN_DIM must be positive, got %d", c.Model.HiddenDim)
	}
	if c.Model.StartUnit < 0 {
		return fmt.Errorf("MODEL_START_UNIT must be >= 0, got %d", c.Model.StartUnit)
	}
	// Stored runs record the seed in a signed bigint column.
	if c.Model.Seed > math.MaxInt64 {
		return fmt.Errorf("MODEL_SEED must be <= %d, got %d", int64(math.MaxInt64), c.Model.Seed)
	}
	if c.DBMaxConns < 0 || c.DBMinConns < 0 {
		return fmt.Errorf("DB_MAX_CONNS and DB_MIN_CONNS must be >= 0, got %d/%d", c.DBMaxConns, c.DBMinConns)
	}
	if c.DBMaxConns > 0 && c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.Workers < 1 {
		return fmt.Errorf("WORKERS must be >= 1, got %d", c.Workers)
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("QUEUE_SIZE must be >= 0, got %d", c.QueueSize)
	}
	return nil
}

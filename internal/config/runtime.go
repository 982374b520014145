package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Runtime is the process configuration of the conversion service. Every field
// can be overridden from the environment.
type Runtime struct {
	Addr         string `env:"TTS_ADDR"`
	DataDir      string `env:"TTS_DATA_DIR"`
	SettingsPath string `env:"TTS_SETTINGS"`
	HistoryDB    string `env:"TTS_HISTORY_DB"`

	Engine      string        `env:"TTS_ENGINE"`
	EspeakPath  string        `env:"TTS_ESPEAK_PATH"`
	KokoroURL   string        `env:"TTS_KOKORO_URL"`
	KokoroModel string        `env:"TTS_KOKORO_MODEL"`
	HTTPTimeout time.Duration `env:"TTS_HTTP_TIMEOUT"`

	Workers          int           `env:"TTS_WORKERS"`
	QueueDepth       int           `env:"TTS_QUEUE_DEPTH"`
	ChunkParallelism int           `env:"TTS_CHUNK_PARALLELISM"`
	ChunkRetries     int           `env:"TTS_CHUNK_RETRIES"`
	ChunkTimeout     time.Duration `env:"TTS_CHUNK_TIMEOUT"`

	ReapInterval time.Duration `env:"TTS_REAP_INTERVAL"`
	Retention    time.Duration `env:"TTS_RETENTION"`

	MaxUploadBytes int64         `env:"TTS_MAX_UPLOAD_BYTES"`
	FetchTimeout   time.Duration `env:"TTS_FETCH_TIMEOUT"`
	SubmitRate     float64       `env:"TTS_SUBMIT_RATE"`
	SubmitBurst    int           `env:"TTS_SUBMIT_BURST"`

	LogLevel  string `env:"TTS_LOG_LEVEL"`
	LogFormat string `env:"TTS_LOG_FORMAT"`
}

// DefaultRuntime returns the configuration used when no variable is set.
func DefaultRuntime() Runtime {
	dir := AppDir()
	return Runtime{
		Addr:         "127.0.0.1:5000",
		DataDir:      filepath.Join(dir, "data"),
		SettingsPath: filepath.Join(dir, "settings.json"),
		HistoryDB:    filepath.Join(dir, "history.db"),

		Engine:      "espeak",
		HTTPTimeout: 60 * time.Second,

		Workers:          4,
		QueueDepth:       64,
		ChunkParallelism: 1,
		ChunkRetries:     0,
		ChunkTimeout:     2 * time.Minute,

		ReapInterval: time.Minute,
		Retention:    time.Hour,

		MaxUploadBytes: 16 << 20,
		FetchTimeout:   10 * time.Second,
		SubmitRate:     5,
		SubmitBurst:    10,

		LogLevel:  "info",
		LogFormat: "console",
	}
}

// LoadRuntime applies environment overrides to the defaults.
func LoadRuntime() (Runtime, error) {
	cfg := DefaultRuntime()
	if err := env.Parse(&cfg); err != nil {
		return Runtime{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Runtime{}, err
	}
	return cfg, nil
}

// HistoryEnabled reports whether outcomes are journaled. "off" disables it.
func (r Runtime) HistoryEnabled() bool {
	v := strings.TrimSpace(r.HistoryDB)
	return v != "" && !strings.EqualFold(v, "off")
}

// Validate checks the sizing fields.
func (r Runtime) Validate() error {
	switch {
	case strings.TrimSpace(r.DataDir) == "":
		return fmt.Errorf("TTS_DATA_DIR must not be empty")
	case r.Workers < 1:
		return fmt.Errorf("TTS_WORKERS must be at least 1, got %d", r.Workers)
	case r.QueueDepth < 1:
		return fmt.Errorf("TTS_QUEUE_DEPTH must be at least 1, got %d", r.QueueDepth)
	case r.ChunkParallelism < 1:
		return fmt.Errorf("TTS_CHUNK_PARALLELISM must be at least 1, got %d", r.ChunkParallelism)
	case r.ChunkRetries < 0:
		return fmt.Errorf("TTS_CHUNK_RETRIES must not be negative, got %d", r.ChunkRetries)
	case r.Retention <= 0:
		return fmt.Errorf("TTS_RETENTION must be positive, got %s", r.Retention)
	case r.ReapInterval <= 0:
		return fmt.Errorf("TTS_REAP_INTERVAL must be positive, got %s", r.ReapInterval)
	case r.MaxUploadBytes <= 0:
		return fmt.Errorf("TTS_MAX_UPLOAD_BYTES must be positive, got %d", r.MaxUploadBytes)
	}
	return nil
}

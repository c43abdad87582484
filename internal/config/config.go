package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultListenAddr      = ":8080"
	defaultDBPath          = "gradbridge.db"
	defaultShutdownTimeout = 10 * time.Second
	defaultRetention       = 30 * 24 * time.Hour
	defaultPruneSchedule   = "0 3 * * *"

	envConfigFile      = "GRADBRIDGE_CONFIG"
	envListenAddr      = "GRADBRIDGE_LISTEN_ADDR"
	envDBPath          = "GRADBRIDGE_DB_PATH"
	envLogLevel        = "GRADBRIDGE_LOG_LEVEL"
	envMaxWorkers      = "GRADBRIDGE_MAX_WORKERS"
	envShutdownTimeout = "GRADBRIDGE_SHUTDOWN_TIMEOUT"
	envRetention       = "GRADBRIDGE_JOURNAL_RETENTION"
	envPruneSchedule   = "GRADBRIDGE_PRUNE_SCHEDULE"
)

// Config holds application configuration.
type Config struct {
	ListenAddr string
	DBPath     string
	LogLevel   slog.Level
	// MaxWorkers bounds the number of nodes a batch forward runs at once.
	MaxWorkers      int
	ShutdownTimeout time.Duration

	// JournalRetention is how long lifecycle events are kept. Zero keeps
	// them forever.
	JournalRetention time.Duration
	// PruneSchedule is a standard five-field cron expression. Empty
	// disables scheduled pruning.
	PruneSchedule string

	// File is the YAML file the configuration was overlaid from, if any.
	File string
	// LogLevelFromEnv is set when GRADBRIDGE_LOG_LEVEL pinned the level, in
	// which case file edits must not change it.
	LogLevelFromEnv bool
}

// fileConfig mirrors Config in the optional YAML file.
type fileConfig struct {
	ListenAddr       string  `yaml:"listen_addr"`
	DBPath           string  `yaml:"db_path"`
	LogLevel         string  `yaml:"log_level"`
	MaxWorkers       int     `yaml:"max_workers"`
	ShutdownTimeout  string  `yaml:"shutdown_timeout"`
	JournalRetention string  `yaml:"journal_retention"`
	PruneSchedule    *string `yaml:"prune_schedule"`
}

// Load builds the configuration from defaults, then the YAML file named by
// GRADBRIDGE_CONFIG if set, then environment variables. Environment
// variables always win over the file.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:       defaultListenAddr,
		DBPath:           defaultDBPath,
		LogLevel:         slog.LevelInfo,
		MaxWorkers:       runtime.GOMAXPROCS(0),
		ShutdownTimeout:  defaultShutdownTimeout,
		JournalRetention: defaultRetention,
		PruneSchedule:    defaultPruneSchedule,
	}

	if path := os.Getenv(envConfigFile); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
		cfg.File = path
	}
	applyEnv(&cfg)

	if cfg.MaxWorkers < 1 {
		return Config{}, fmt.Errorf("max workers must be positive, got %d", cfg.MaxWorkers)
	}
	if cfg.JournalRetention < 0 {
		return Config{}, fmt.Errorf("journal retention must not be negative, got %s", cfg.JournalRetention)
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %q: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %q: %w", path, err)
	}

	if fc.ListenAddr != "" {
		cfg.ListenAddr = fc.ListenAddr
	}
	if fc.DBPath != "" {
		cfg.DBPath = fc.DBPath
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = parseLogLevel(fc.LogLevel)
	}
	if fc.MaxWorkers != 0 {
		cfg.MaxWorkers = fc.MaxWorkers
	}
	if fc.ShutdownTimeout != "" {
		d, err := time.ParseDuration(fc.ShutdownTimeout)
		if err != nil {
			return fmt.Errorf("parse shutdown_timeout in %q: %w", path, err)
		}
		cfg.ShutdownTimeout = d
	}
	if fc.JournalRetention != "" {
		d, err := time.ParseDuration(fc.JournalRetention)
		if err != nil {
			return fmt.Errorf("parse journal_retention in %q: %w", path, err)
		}
		cfg.JournalRetention = d
	}
	if fc.PruneSchedule != nil {
		cfg.PruneSchedule = *fc.PruneSchedule
	}
	return nil
}

// applyEnv overrides cfg from the environment. Malformed numbers and
// durations are ignored.
func applyEnv(cfg *Config) {
	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
		cfg.LogLevelFromEnv = true
	}
	if v := os.Getenv(envMaxWorkers); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxWorkers = n
		}
	}
	if v := os.Getenv(envShutdownTimeout); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ShutdownTimeout = d
		}
	}
	if v := os.Getenv(envRetention); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.JournalRetention = d
		}
	}
	if v := os.Getenv(envPruneSchedule); v != "" {
		if v == "off" {
			v = ""
		}
		cfg.PruneSchedule = v
	}
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w. Passing a
// *slog.LevelVar lets the level change while the logger is in use.
func NewLogger(w io.Writer, level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

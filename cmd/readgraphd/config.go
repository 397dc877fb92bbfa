package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultAddr             = "127.0.0.1:8091"
	defaultSampleInterval   = 500 * time.Millisecond
	defaultSnapshotInterval = 30 * time.Second
	defaultOpenAIModel      = "gpt-4o-mini"
)

type Config struct {
	DBPath           string        `validate:"required"`
	BlobDir          string        `validate:"required"`
	Addr             string        `validate:"required,hostname_port"`
	SampleInterval   time.Duration `validate:"gt=0"`
	SnapshotInterval time.Duration `validate:"gt=0"`
	ExportRetention  time.Duration `validate:"gte=0"` // 0 keeps exports forever
	RedisAddr        string        `validate:"omitempty,hostname_port"`
	LogLevel         string        `validate:"omitempty,oneof=debug info warn warning error"`
	LogFile          string
	Development      bool
	OpenAIAPIKey     string
	OpenAIModel      string
	OpenAIBaseURL    string `validate:"omitempty,url"`
}

// fileConfig is the optional YAML layer below env and flags.
type fileConfig struct {
	DBPath           string `yaml:"db_path"`
	BlobDir          string `yaml:"blob_dir"`
	Addr             string `yaml:"addr"`
	SampleInterval   string `yaml:"sample_interval"`
	SnapshotInterval string `yaml:"snapshot_interval"`
	ExportRetention  string `yaml:"export_retention"`
	RedisAddr        string `yaml:"redis_addr"`
	LogLevel         string `yaml:"log_level"`
	LogFile          string `yaml:"log_file"`
	Development      bool   `yaml:"development"`
	OpenAI           struct {
		APIKey  string `yaml:"api_key"`
		Model   string `yaml:"model"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"openai"`
}

// LoadConfig resolves configuration from defaults, an optional YAML file,
// the environment (.env included) and flags, in increasing precedence.
func LoadConfig(args []string) (Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, fmt.Errorf("failed to get cwd: %w", err)
	}

	// A missing .env is fine.
	_ = godotenv.Load(filepath.Join(cwd, ".env"))

	cfg := Config{
		DBPath:           filepath.Join(cwd, "readgraph.db"),
		BlobDir:          filepath.Join(cwd, "blobs"),
		Addr:             defaultAddr,
		SampleInterval:   defaultSampleInterval,
		SnapshotInterval: defaultSnapshotInterval,
		LogLevel:         "info",
		OpenAIModel:      defaultOpenAIModel,
	}

	configPath := configPathFromArgs(args, os.Getenv("READGRAPH_CONFIG"))
	if configPath != "" {
		if err := applyFile(&cfg, resolvePath(configPath, cwd)); err != nil {
			return Config{}, err
		}
	}

	cfg.DBPath = envOrDefault("READGRAPH_DB_PATH", cfg.DBPath)
	cfg.BlobDir = envOrDefault("READGRAPH_BLOB_DIR", cfg.BlobDir)
	cfg.Addr = envOrDefault("READGRAPH_ADDR", cfg.Addr)
	cfg.RedisAddr = envOrDefault("READGRAPH_REDIS_ADDR", cfg.RedisAddr)
	cfg.LogLevel = envOrDefault("READGRAPH_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = envOrDefault("READGRAPH_LOG_FILE", cfg.LogFile)
	cfg.OpenAIAPIKey = envOrDefault("READGRAPH_OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.OpenAIModel = envOrDefault("READGRAPH_OPENAI_MODEL", cfg.OpenAIModel)
	cfg.OpenAIBaseURL = envOrDefault("READGRAPH_OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	if v := os.Getenv("READGRAPH_SAMPLE_INTERVAL"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid READGRAPH_SAMPLE_INTERVAL: %w", err)
		}
		if parsed <= 0 {
			return Config{}, errors.New("READGRAPH_SAMPLE_INTERVAL must be positive")
		}
		cfg.SampleInterval = parsed
	}
	if v := os.Getenv("READGRAPH_EXPORT_RETENTION"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid READGRAPH_EXPORT_RETENTION: %w", err)
		}
		cfg.ExportRetention = parsed
	}

	flagSet := flag.NewFlagSet("readgraphd", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.String("config", configPath, "path to YAML config file")
	flagDB := flagSet.String("db", cfg.DBPath, "path to SQLite database")
	flagBlobs := flagSet.String("blob-dir", cfg.BlobDir, "directory for document blobs and exported archives")
	flagAddr := flagSet.String("addr", cfg.Addr, "HTTP listen address")
	flagSample := flagSet.String("sample-interval", cfg.SampleInterval.String(), "scroll sampling interval")
	flagSnapshot := flagSet.String("snapshot-interval", cfg.SnapshotInterval.String(), "canvas snapshot interval")
	flagRetention := flagSet.String("export-retention", cfg.ExportRetention.String(), "delete stored exports older than this (0 keeps them)")
	flagRedis := flagSet.String("redis-addr", cfg.RedisAddr, "Redis address for canvas storage (optional)")
	flagLevel := flagSet.String("log-level", cfg.LogLevel, "log level: debug|info|warn|error")
	flagLogFile := flagSet.String("log-file", cfg.LogFile, "rotating log file (optional)")
	flagDev := flagSet.Bool("dev", cfg.Development, "human readable console logs")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			flagSet.SetOutput(os.Stdout)
			flagSet.PrintDefaults()
		}
		return Config{}, err
	}

	sample, err := time.ParseDuration(*flagSample)
	if err != nil {
		return Config{}, fmt.Errorf("invalid sample interval: %w", err)
	}
	snapshot, err := time.ParseDuration(*flagSnapshot)
	if err != nil {
		return Config{}, fmt.Errorf("invalid snapshot interval: %w", err)
	}
	retention, err := time.ParseDuration(*flagRetention)
	if err != nil {
		return Config{}, fmt.Errorf("invalid export retention: %w", err)
	}

	cfg.DBPath = resolvePath(*flagDB, cwd)
	cfg.BlobDir = resolvePath(*flagBlobs, cwd)
	cfg.Addr = strings.TrimSpace(*flagAddr)
	cfg.SampleInterval = sample
	cfg.SnapshotInterval = snapshot
	cfg.ExportRetention = retention
	cfg.RedisAddr = strings.TrimSpace(*flagRedis)
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(*flagLevel))
	cfg.LogFile = resolvePath(*flagLogFile, cwd)
	cfg.Development = *flagDev

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	dir := filepath.Dir(path)
	if fc.DBPath != "" {
		cfg.DBPath = resolvePath(fc.DBPath, dir)
	}
	if fc.BlobDir != "" {
		cfg.BlobDir = resolvePath(fc.BlobDir, dir)
	}
	if fc.LogFile != "" {
		cfg.LogFile = resolvePath(fc.LogFile, dir)
	}
	cfg.Addr = orDefault(fc.Addr, cfg.Addr)
	cfg.RedisAddr = orDefault(fc.RedisAddr, cfg.RedisAddr)
	cfg.LogLevel = orDefault(fc.LogLevel, cfg.LogLevel)
	cfg.OpenAIAPIKey = orDefault(fc.OpenAI.APIKey, cfg.OpenAIAPIKey)
	cfg.OpenAIModel = orDefault(fc.OpenAI.Model, cfg.OpenAIModel)
	cfg.OpenAIBaseURL = orDefault(fc.OpenAI.BaseURL, cfg.OpenAIBaseURL)
	cfg.Development = cfg.Development || fc.Development

	if fc.SampleInterval != "" {
		d, err := time.ParseDuration(fc.SampleInterval)
		if err != nil {
			return fmt.Errorf("invalid sample_interval in config file: %w", err)
		}
		cfg.SampleInterval = d
	}
	if fc.SnapshotInterval != "" {
		d, err := time.ParseDuration(fc.SnapshotInterval)
		if err != nil {
			return fmt.Errorf("invalid snapshot_interval in config file: %w", err)
		}
		cfg.SnapshotInterval = d
	}
	if fc.ExportRetention != "" {
		d, err := time.ParseDuration(fc.ExportRetention)
		if err != nil {
			return fmt.Errorf("invalid export_retention in config file: %w", err)
		}
		cfg.ExportRetention = d
	}
	return nil
}

// configPathFromArgs finds -config before the full flag parse, since the
// file's values become the flag defaults.
func configPathFromArgs(args []string, fallback string) string {
	for i, a := range args {
		name := strings.TrimLeft(a, "-")
		if name == a {
			continue
		}
		if v, ok := strings.CutPrefix(name, "config="); ok {
			return v
		}
		if name == "config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return fallback
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func orDefault(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func resolvePath(path string, cwd string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return trimmed
	}
	if filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Join(cwd, trimmed)
}

package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom log forwarding configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// QueueConfig bounds admission.
type QueueConfig struct {
	MaxConcurrent int
}

// DownloadConfig bounds a single fetch.
type DownloadConfig struct {
	ChunkSizeBytes   int
	ProgressInterval time.Duration
	Timeout          time.Duration
	MaxFileSizeBytes uint64
}

// ExtractConfig controls the credential extractor and its worker pool.
type ExtractConfig struct {
	AllowedEmailDomains []string
	PasswordMinLen      int
	PasswordMaxLen      int
	PasswordPunct       string
	Workers             int
}

// JobConfig covers per-job limits and artifact handling.
type JobConfig struct {
	Timeout   time.Duration // download + extraction ceiling
	ResultDir string
	StaleAge  time.Duration // artifacts older than this are swept
}

// RedisConfig enables the optional status mirror.
type RedisConfig struct {
	URL    string
	Mirror bool
}

// S3Config covers s3:// handle resolution.
type S3Config struct {
	Bucket     string
	PresignTTL time.Duration
}

// Config is the top-level configuration.
type Config struct {
	Logging  LoggingConfig
	Axiom    AxiomConfig
	Queue    QueueConfig
	Download DownloadConfig
	Extract  ExtractConfig
	Job      JobConfig
	Redis    RedisConfig
	S3       S3Config
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/creddispatcher.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_creddispatcher",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.Queue = QueueConfig{
		MaxConcurrent: parseInt(getEnv("MAX_CONCURRENT", "4"), 4),
	}

	cfg.Download = DownloadConfig{
		ChunkSizeBytes:   parseInt(getEnv("CHUNK_SIZE_BYTES", "1048576"), 1<<20),
		ProgressInterval: parseDuration(getEnv("PROGRESS_INTERVAL", "1s"), time.Second),
		Timeout:          parseDuration(getEnv("DOWNLOAD_TIMEOUT", "15m"), 15*time.Minute),
		MaxFileSizeBytes: parseUint(getEnv("MAX_FILE_SIZE_BYTES", "524288000"), 500<<20),
	}

	cfg.Extract = ExtractConfig{
		AllowedEmailDomains: parseList(getEnv("ALLOWED_EMAIL_DOMAINS", "")),
		PasswordMinLen:      parseInt(getEnv("PASSWORD_MIN_LEN", "6"), 6),
		PasswordMaxLen:      parseInt(getEnv("PASSWORD_MAX_LEN", "12"), 12),
		PasswordPunct:       getEnv("PASSWORD_PUNCT", ""),
		Workers:             parseInt(getEnv("EXTRACT_WORKERS", "2"), 2),
	}

	cfg.Job = JobConfig{
		Timeout:   parseDuration(getEnv("JOB_TIMEOUT", "10m"), 10*time.Minute),
		ResultDir: getEnv("RESULT_DIR", "results"),
		StaleAge:  parseDuration(getEnv("RESULT_STALE_AGE", "1h"), time.Hour),
	}

	cfg.Redis = RedisConfig{
		URL:    getEnv("REDIS_URL", "redis://localhost:6379"),
		Mirror: parseBool(getEnv("STATUS_MIRROR", "0")),
	}

	cfg.S3 = S3Config{
		Bucket:     getEnv("AWS_S3_BUCKET", ""),
		PresignTTL: parseDuration(getEnv("S3_PRESIGN_TTL", "15m"), 15*time.Minute),
	}

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseUint(s string, def uint64) uint64 {
	if s == "" {
		return def
	}
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return n
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func parseList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}

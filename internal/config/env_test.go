package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()

	assert.Equal(t, 4, cfg.Queue.MaxConcurrent)
	assert.Equal(t, 1<<20, cfg.Download.ChunkSizeBytes)
	assert.Equal(t, time.Second, cfg.Download.ProgressInterval)
	assert.Equal(t, 15*time.Minute, cfg.Download.Timeout)
	assert.Equal(t, uint64(500<<20), cfg.Download.MaxFileSizeBytes)
	assert.Equal(t, 6, cfg.Extract.PasswordMinLen)
	assert.Equal(t, 12, cfg.Extract.PasswordMaxLen)
	assert.Equal(t, 2, cfg.Extract.Workers)
	assert.Nil(t, cfg.Extract.AllowedEmailDomains)
	assert.Equal(t, 10*time.Minute, cfg.Job.Timeout)
	assert.Equal(t, "results", cfg.Job.ResultDir)
	assert.False(t, cfg.Redis.Mirror)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("MAX_CONCURRENT", "8")
	t.Setenv("DOWNLOAD_TIMEOUT", "90s")
	t.Setenv("MAX_FILE_SIZE_BYTES", "1024")
	t.Setenv("ALLOWED_EMAIL_DOMAINS", "gmail.com, icloud.com ,")
	t.Setenv("PASSWORD_MIN_LEN", "8")
	t.Setenv("STATUS_MIRROR", "true")

	cfg := FromEnv()

	assert.Equal(t, 8, cfg.Queue.MaxConcurrent)
	assert.Equal(t, 90*time.Second, cfg.Download.Timeout)
	assert.Equal(t, uint64(1024), cfg.Download.MaxFileSizeBytes)
	assert.Equal(t, []string{"gmail.com", "icloud.com"}, cfg.Extract.AllowedEmailDomains)
	assert.Equal(t, 8, cfg.Extract.PasswordMinLen)
	assert.True(t, cfg.Redis.Mirror)
}

func TestFromEnvBadValuesFallBack(t *testing.T) {
	t.Setenv("MAX_CONCURRENT", "not-a-number")
	t.Setenv("PROGRESS_INTERVAL", "soon")

	cfg := FromEnv()

	assert.Equal(t, 4, cfg.Queue.MaxConcurrent)
	assert.Equal(t, time.Second, cfg.Download.ProgressInterval)
}

func TestParseBool(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", "yes", "on"} {
		assert.True(t, parseBool(v), v)
	}
	for _, v := range []string{"", "0", "false", "off", "nope"} {
		assert.False(t, parseBool(v), v)
	}
}

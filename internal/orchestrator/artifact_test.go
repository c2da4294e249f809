package orchestrator

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptArtifactRoundTrip(t *testing.T) {
	plain := []byte("alice@gmail.com:Passw0rd\nbob@icloud.com:Secret99")

	enc, err := encryptArtifact(plain, "hunter22")
	require.NoError(t, err)
	assert.NotEqual(t, plain, enc)

	dec, err := DecryptArtifact(enc, "hunter22")
	require.NoError(t, err)
	assert.Equal(t, plain, dec)
}

func TestDecryptArtifactWrongPassword(t *testing.T) {
	enc, err := encryptArtifact([]byte("data"), "correct")
	require.NoError(t, err)

	_, err = DecryptArtifact(enc, "wrong")
	assert.Error(t, err)
}

func TestDecryptArtifactTruncated(t *testing.T) {
	_, err := DecryptArtifact([]byte("short"), "pw")
	assert.Error(t, err)
}

func TestWriteArtifactPlainAndEncrypted(t *testing.T) {
	dir := t.TempDir()

	p, err := writeArtifact(dir, "job-1", []byte("a@gmail.com:Abcdef1"), "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "job-1.txt"), p)

	p, err = writeArtifact(dir, "job-2", []byte("a@gmail.com:Abcdef1"), "pw123456")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "job-2.bin"), p)

	enc, err := os.ReadFile(p)
	require.NoError(t, err)
	dec, err := DecryptArtifact(enc, "pw123456")
	require.NoError(t, err)
	assert.Equal(t, "a@gmail.com:Abcdef1", string(dec))
}

func TestSweepStale(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old.txt")
	fresh := filepath.Join(dir, "fresh.txt")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(fresh, []byte("y"), 0o644))
	stale := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(old, stale, stale))

	sweepStale(dir, time.Hour)

	_, err := os.Stat(old)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	assert.NoError(t, err)
}

package resolve

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/creddispatcher/internal/jobs"
)

func TestResolveHTTPWithSizeHint(t *testing.T) {
	body := []byte("a@gmail.com:Passw0rd\n")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	r := New(Options{})
	res, err := r.Resolve(context.Background(), srv.URL+"/dumps/combo.txt")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/dumps/combo.txt", res.URI)
	assert.Equal(t, uint64(len(body)), res.SizeHint)
	assert.Equal(t, "combo.txt", res.Name)
}

func TestResolveHTTPHeadFailureStillResolves(t *testing.T) {
	// HEAD errors must not fail resolution; the hint is just absent.
	r := New(Options{HTTPClient: &http.Client{Timeout: 50 * time.Millisecond}})
	res, err := r.Resolve(context.Background(), "http://127.0.0.1:1/nothing.txt")
	require.NoError(t, err)
	assert.Zero(t, res.SizeHint)
	assert.Equal(t, "nothing.txt", res.Name)
}

func TestResolveFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "creds.txt")
	require.NoError(t, os.WriteFile(p, []byte("hello"), 0o644))

	r := New(Options{})
	res, err := r.Resolve(context.Background(), "file://"+p)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), res.SizeHint)
	assert.Equal(t, "creds.txt", res.Name)
}

func TestResolveFileMissing(t *testing.T) {
	r := New(Options{})
	_, err := r.Resolve(context.Background(), "file:///no/such/file.txt")
	var resErr *jobs.ResolutionError
	require.ErrorAs(t, err, &resErr)
}

func TestResolveUnknownScheme(t *testing.T) {
	r := New(Options{})
	_, err := r.Resolve(context.Background(), "ftp://example.com/file.txt")
	var resErr *jobs.ResolutionError
	require.ErrorAs(t, err, &resErr)
}

func TestSplitS3(t *testing.T) {
	b, k, err := splitS3("s3://bucket/dir/key.txt")
	require.NoError(t, err)
	assert.Equal(t, "bucket", b)
	assert.Equal(t, "dir/key.txt", k)

	_, _, err = splitS3("s3://bucketonly")
	assert.Error(t, err)
	_, _, err = splitS3("s3://bucket/")
	assert.Error(t, err)
}

package orchestrator

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/creddispatcher/internal/extractor"
	"github.com/local/creddispatcher/internal/filetype"
	"github.com/local/creddispatcher/internal/queue"
)

// newHandlerOrch builds an orchestrator for HTTP tests without
// starting the dispatch loop, so submitted jobs stay queued.
func newHandlerOrch(t *testing.T, maxFileSize uint64) *Orchestrator {
	t.Helper()
	return New(Dependencies{
		Queue:     queue.New(queue.Config{MaxConcurrent: 2}),
		Resolver:  stubResolver{},
		Fetcher:   &stubFetcher{body: []byte("x")},
		Reporter:  newRecordReporter(),
		Detector:  filetype.New(),
		Extractor: extractor.New(extractor.Config{}),
	}, Config{
		ResultDir:   t.TempDir(),
		MaxFileSize: maxFileSize,
	})
}

func doJSON(t *testing.T, mux *http.ServeMux, method, url string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, url, rd)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestSubmitValidation(t *testing.T) {
	o := newHandlerOrch(t, 1024)
	mux := http.NewServeMux()
	o.RegisterRoutes(mux)

	tests := []struct {
		name string
		body map[string]any
		code int
	}{
		{"missing submitter", map[string]any{"handle": "http://f/a.txt"}, http.StatusBadRequest},
		{"missing handle", map[string]any{"submitter": "alice"}, http.StatusBadRequest},
		{"bad file name", map[string]any{"submitter": "alice", "handle": "http://f/movie.mp4"}, http.StatusUnprocessableEntity},
		{"too large", map[string]any{"submitter": "alice", "handle": "http://f/a.txt", "size_bytes": 4096}, http.StatusRequestEntityTooLarge},
		{"ok", map[string]any{"submitter": "alice", "handle": "http://f/a.txt", "size_bytes": 512}, http.StatusCreated},
		{"duplicate", map[string]any{"submitter": "alice", "handle": "http://f/a.txt"}, http.StatusConflict},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, mux, http.MethodPost, "/submit", tc.body)
			assert.Equal(t, tc.code, w.Code)
		})
	}
}

func TestSubmitReportsQueuePosition(t *testing.T) {
	o := newHandlerOrch(t, 0)
	mux := http.NewServeMux()
	o.RegisterRoutes(mux)

	for i, handle := range []string{"http://f/a.txt", "http://f/b.txt", "http://f/c.txt"} {
		w := doJSON(t, mux, http.MethodPost, "/submit", map[string]any{"submitter": "alice", "handle": handle})
		require.Equal(t, http.StatusCreated, w.Code)
		var resp submitResp
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, i, resp.QueuePosition)
		assert.NotEmpty(t, resp.JobID)
	}
}

func TestCancelEndpoint(t *testing.T) {
	o := newHandlerOrch(t, 0)
	mux := http.NewServeMux()
	o.RegisterRoutes(mux)

	doJSON(t, mux, http.MethodPost, "/submit", map[string]any{"submitter": "alice", "handle": "http://f/a.txt"})
	doJSON(t, mux, http.MethodPost, "/submit", map[string]any{"submitter": "alice", "handle": "http://f/b.txt"})

	w := doJSON(t, mux, http.MethodPost, "/cancel", map[string]any{"submitter": "alice"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Success   bool `json:"success"`
		Cancelled int  `json:"cancelled"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.Cancelled)

	w = doJSON(t, mux, http.MethodGet, "/status", nil)
	var snap queue.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, 0, snap.Pending)
}

func TestSubmitterStatusEndpoint(t *testing.T) {
	o := newHandlerOrch(t, 0)
	mux := http.NewServeMux()
	o.RegisterRoutes(mux)

	doJSON(t, mux, http.MethodPost, "/submit", map[string]any{"submitter": "alice", "handle": "http://f/a.txt"})

	w := doJSON(t, mux, http.MethodGet, "/status/alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Submitter string           `json:"submitter"`
		Jobs      []queue.Position `json:"jobs"`
		BulkOpen  bool             `json:"bulk_open"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "alice", resp.Submitter)
	require.Len(t, resp.Jobs, 1)
	assert.Equal(t, 0, resp.Jobs[0].Position)
	assert.False(t, resp.BulkOpen)

	// Unknown submitter gets an empty list, not an error.
	w = doJSON(t, mux, http.MethodGet, "/status/nobody", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Jobs)
}

func TestDownloadResultServesOnce(t *testing.T) {
	o := newHandlerOrch(t, 0)
	mux := http.NewServeMux()
	o.RegisterRoutes(mux)

	path := filepath.Join(o.cfg.ResultDir, "job-42.txt")
	require.NoError(t, os.WriteFile(path, []byte("a@gmail.com:Abcdef1"), 0o644))

	req := httptest.NewRequest(http.MethodGet, "/download_result/job-42", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "a@gmail.com:Abcdef1", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "job-42.txt")

	// Second fetch finds nothing: the artifact is removed on serve.
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/download_result/job-42", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDownloadResultRejectsTraversal(t *testing.T) {
	o := newHandlerOrch(t, 0)
	mux := http.NewServeMux()
	o.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/download_result/..%2Fsecret", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.NotEqual(t, http.StatusOK, w.Code)
}

func TestBulkLifecycle(t *testing.T) {
	o := newHandlerOrch(t, 0)
	mux := http.NewServeMux()
	o.RegisterRoutes(mux)

	w := doJSON(t, mux, http.MethodPost, "/bulk/start", map[string]any{"submitter": "alice"})
	require.Equal(t, http.StatusCreated, w.Code)

	// Double start conflicts.
	w = doJSON(t, mux, http.MethodPost, "/bulk/start", map[string]any{"submitter": "alice"})
	assert.Equal(t, http.StatusConflict, w.Code)

	// Jobs submitted while the session is open are tagged bulk.
	w = doJSON(t, mux, http.MethodPost, "/submit", map[string]any{"submitter": "alice", "handle": "http://f/a.txt"})
	require.Equal(t, http.StatusCreated, w.Code)

	o.bulk.Merge("alice", []extractor.Credential{
		{Email: "z@gmail.com", Password: "Zzzzzz1"},
		{Email: "a@gmail.com", Password: "Aaaaaa1"},
	})

	w = doJSON(t, mux, http.MethodPost, "/bulk/done", map[string]any{"submitter": "alice"})
	require.Equal(t, http.StatusOK, w.Code)
	lines := strings.Split(w.Body.String(), "\n")
	assert.Equal(t, []string{"a@gmail.com:Aaaaaa1", "z@gmail.com:Zzzzzz1"}, lines)
	assert.Equal(t, "2", w.Header().Get("X-Pair-Count"))

	// Done without a session.
	w = doJSON(t, mux, http.MethodPost, "/bulk/done", map[string]any{"submitter": "alice"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

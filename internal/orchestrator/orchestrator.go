package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/creddispatcher/internal/download"
	"github.com/local/creddispatcher/internal/extractor"
	"github.com/local/creddispatcher/internal/filetype"
	"github.com/local/creddispatcher/internal/jobs"
	"github.com/local/creddispatcher/internal/queue"
	"github.com/local/creddispatcher/internal/resolve"
	"github.com/local/creddispatcher/internal/store"
)

// Fetcher downloads a resolved URI into memory with progress callbacks.
type Fetcher interface {
	Fetch(ctx context.Context, uri string, sizeHint uint64, onProgress download.ProgressFunc) ([]byte, error)
}

// HandleResolver maps a submitted handle to a fetchable URI.
type HandleResolver interface {
	Resolve(ctx context.Context, handle string) (resolve.Resolved, error)
}

// StatusStore mirrors job status for external observers. Mirror
// failures never affect the job itself.
type StatusStore interface {
	Set(ctx context.Context, jobID string, st store.Status) error
	Get(ctx context.Context, jobID string) (store.Status, bool, error)
}

// Dependencies wires the orchestrator's collaborators.
type Dependencies struct {
	Queue     *queue.Queue
	Resolver  HandleResolver
	Fetcher   Fetcher
	Reporter  Reporter
	Detector  *filetype.Detector
	Extractor *extractor.Extractor
	Status    StatusStore // optional
}

// Config carries per-job limits and artifact handling.
type Config struct {
	JobTimeout     time.Duration
	ResultDir      string
	MaxFileSize    uint64
	ExtractWorkers int
	StaleAge       time.Duration
}

// Orchestrator accepts submissions, drives the pull-based dispatch
// loop, and serves job status.
type Orchestrator struct {
	deps Dependencies
	cfg  Config

	admit      chan struct{} // admission signal, coalesced
	extractSem chan struct{} // bounds concurrent extraction phases
	bulk       *bulkRegistry

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func New(deps Dependencies, cfg Config) *Orchestrator {
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 10 * time.Minute
	}
	if cfg.ResultDir == "" {
		cfg.ResultDir = "results"
	}
	if cfg.ExtractWorkers <= 0 {
		cfg.ExtractWorkers = 2
	}
	if cfg.StaleAge <= 0 {
		cfg.StaleAge = time.Hour
	}
	if deps.Reporter == nil {
		deps.Reporter = NopReporter{}
	}
	return &Orchestrator{
		deps:       deps,
		cfg:        cfg,
		admit:      make(chan struct{}, 1),
		extractSem: make(chan struct{}, cfg.ExtractWorkers),
		bulk:       newBulkRegistry(),
	}
}

func (o *Orchestrator) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/submit", o.handleSubmit)
	mux.HandleFunc("/cancel", o.handleCancel)
	mux.HandleFunc("/status", o.handleStatus)
	mux.HandleFunc("/status/", o.handleSubmitterStatus)
	mux.HandleFunc("/download_result/", o.handleDownloadResult)
	mux.HandleFunc("/bulk/start", o.handleBulkStart)
	mux.HandleFunc("/bulk/done", o.handleBulkDone)
}

type submitReq struct {
	Submitter   string `json:"submitter"`
	Handle      string `json:"handle"`
	Name        string `json:"name"`
	SizeBytes   uint64 `json:"size_bytes"`
	CallbackURL string `json:"callback_url"`
	Password    string `json:"password"`
}

type submitResp struct {
	Status        string `json:"status"`
	JobID         string `json:"job_id"`
	Message       string `json:"message"`
	QueuePosition int    `json:"queue_position"`
}

func (o *Orchestrator) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()
	var req submitReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Submitter == "" || req.Handle == "" {
		http.Error(w, "missing submitter or handle", http.StatusBadRequest)
		return
	}
	name := req.Name
	if name == "" {
		name = path.Base(strings.SplitN(req.Handle, "?", 2)[0])
	}
	if !filetype.ScreenName(name) {
		http.Error(w, "unsupported file name", http.StatusUnprocessableEntity)
		return
	}
	if o.cfg.MaxFileSize > 0 && req.SizeBytes > o.cfg.MaxFileSize {
		http.Error(w, "file too large", http.StatusRequestEntityTooLarge)
		return
	}

	j, pos, err := o.deps.Queue.Submit(queue.SubmitRequest{
		Submitter:   req.Submitter,
		Handle:      req.Handle,
		Name:        name,
		SizeBytes:   req.SizeBytes,
		CallbackURL: req.CallbackURL,
		Password:    req.Password,
		Bulk:        o.bulk.Active(req.Submitter),
	})
	if errors.Is(err, jobs.ErrDuplicate) {
		http.Error(w, "already being processed", http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, "submit failed", http.StatusInternalServerError)
		return
	}

	o.mirrorStatus(r.Context(), j, jobs.StateQueued, "queued")
	o.signalAdmit()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(submitResp{
		Status:        "ok",
		JobID:         j.ID,
		Message:       "job enqueued",
		QueuePosition: pos,
	})
}

type cancelReq struct {
	Submitter string `json:"submitter"`
}

func (o *Orchestrator) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()
	var req cancelReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Submitter == "" {
		http.Error(w, "missing submitter", http.StatusBadRequest)
		return
	}
	n := o.deps.Queue.CancelAll(req.Submitter)
	o.bulk.Abort(req.Submitter)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "cancelled": n})
}

func (o *Orchestrator) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := o.deps.Queue.Status()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(snap)
}

func (o *Orchestrator) handleSubmitterStatus(w http.ResponseWriter, r *http.Request) {
	sub := strings.TrimPrefix(r.URL.Path, "/status/")
	if sub == "" {
		http.Error(w, "missing submitter", http.StatusBadRequest)
		return
	}
	snap := o.deps.Queue.Status()
	positions := snap.Positions[sub]
	if positions == nil {
		positions = []queue.Position{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"submitter": sub,
		"jobs":      positions,
		"bulk_open": o.bulk.Active(sub),
	})
}

// handleDownloadResult serves an undelivered artifact once, then
// removes it.
func (o *Orchestrator) handleDownloadResult(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/download_result/")
	if id == "" || strings.Contains(id, "/") || strings.Contains(id, "..") {
		http.Error(w, "bad job id", http.StatusBadRequest)
		return
	}
	var found string
	for _, ext := range []string{".txt", ".bin"} {
		p := filepath.Join(o.cfg.ResultDir, id+ext)
		if _, err := os.Stat(p); err == nil {
			found = p
			break
		}
	}
	if found == "" {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	b, err := os.ReadFile(found)
	if err != nil {
		http.Error(w, "failed to read", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", "attachment; filename="+filepath.Base(found))
	_, _ = w.Write(b)
	if err := os.Remove(found); err != nil {
		log.Warn().Err(err).Str("path", found).Msg("artifact cleanup failed")
	}
}

type bulkReq struct {
	Submitter string `json:"submitter"`
}

func (o *Orchestrator) handleBulkStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req bulkReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Submitter == "" {
		http.Error(w, "missing submitter", http.StatusBadRequest)
		return
	}
	if !o.bulk.Start(req.Submitter) {
		http.Error(w, "bulk session already open", http.StatusConflict)
		return
	}
	log.Info().Str("submitter", req.Submitter).Msg("bulk session opened")
	w.WriteHeader(http.StatusCreated)
}

func (o *Orchestrator) handleBulkDone(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req bulkReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Submitter == "" {
		http.Error(w, "missing submitter", http.StatusBadRequest)
		return
	}
	data, pairs, files, ok := o.bulk.Finish(req.Submitter)
	if !ok {
		http.Error(w, "no bulk session", http.StatusNotFound)
		return
	}
	log.Info().Str("submitter", req.Submitter).Int("pairs", pairs).Int("files", files).Msg("bulk session closed")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=bulk_"+req.Submitter+".txt")
	w.Header().Set("X-Pair-Count", strconv.Itoa(pairs))
	w.Header().Set("X-File-Count", strconv.Itoa(files))
	_, _ = w.Write(data)
}

// mirrorStatus reflects a state change into the optional status store.
func (o *Orchestrator) mirrorStatus(ctx context.Context, j *jobs.Job, state jobs.State, msg string) {
	o.mirrorStatusPairs(ctx, j, state, msg, 0)
}

func (o *Orchestrator) mirrorStatusPairs(ctx context.Context, j *jobs.Job, state jobs.State, msg string, pairs int) {
	if o.deps.Status == nil {
		return
	}
	start := j.EnqueuedAt
	st := store.Status{
		State:     state,
		Message:   msg,
		Submitter: j.Submitter,
		Name:      j.Name,
		Pairs:     pairs,
		Start:     &start,
	}
	if state == jobs.StateCompleted || state == jobs.StateFailed || state == jobs.StateCancelled {
		end := time.Now()
		st.End = &end
	}
	if err := o.deps.Status.Set(ctx, j.ID, st); err != nil {
		log.Debug().Err(err).Str("job_id", j.ID).Msg("status mirror failed")
	}
}

// signalAdmit coalesces admission triggers. A full buffer means a
// dispatch pass is already scheduled.
func (o *Orchestrator) signalAdmit() {
	select {
	case o.admit <- struct{}{}:
	default:
	}
}

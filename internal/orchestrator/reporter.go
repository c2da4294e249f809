package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/creddispatcher/internal/jobs"
)

// Reporter receives job lifecycle events. Progress and Outcome are
// best-effort; Deliver failure fails the job.
type Reporter interface {
	Progress(ctx context.Context, j *jobs.Job, s jobs.ProgressSample)
	Deliver(ctx context.Context, j *jobs.Job, artifactPath string, pairs int) error
	Outcome(ctx context.Context, j *jobs.Job, out jobs.Outcome)
}

// WebhookReporter posts lifecycle events to each job's callback URL.
// Jobs without a callback URL are skipped.
type WebhookReporter struct {
	client *http.Client
}

func NewWebhookReporter() *WebhookReporter {
	return &WebhookReporter{client: &http.Client{Timeout: 30 * time.Second}}
}

type progressEvent struct {
	JobID      string  `json:"job_id"`
	Name       string  `json:"name"`
	Event      string  `json:"event"`
	Bytes      uint64  `json:"bytes"`
	TotalBytes uint64  `json:"total_bytes,omitempty"`
	SpeedBps   float64 `json:"speed_bps"`
	ETASeconds float64 `json:"eta_seconds,omitempty"`
}

func (r *WebhookReporter) Progress(ctx context.Context, j *jobs.Job, s jobs.ProgressSample) {
	if j.CallbackURL == "" {
		return
	}
	ev := progressEvent{
		JobID:      j.ID,
		Name:       j.Name,
		Event:      "progress",
		Bytes:      s.BytesTransferred,
		TotalBytes: s.TotalBytes,
		SpeedBps:   s.Speed(),
	}
	if eta, ok := s.ETA(); ok {
		ev.ETASeconds = eta.Seconds()
	}
	r.post(ctx, j.CallbackURL, ev)
}

// Deliver uploads the result artifact as multipart/form-data.
func (r *WebhookReporter) Deliver(ctx context.Context, j *jobs.Job, artifactPath string, pairs int) error {
	if j.CallbackURL == "" {
		return nil
	}
	f, err := os.Open(artifactPath)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(artifactPath))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return err
	}
	_ = mw.WriteField("job_id", j.ID)
	_ = mw.WriteField("name", j.Name)
	_ = mw.WriteField("pairs", fmt.Sprintf("%d", pairs))
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.CallbackURL, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver artifact: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("deliver artifact: callback returned %d", resp.StatusCode)
	}
	return nil
}

func (r *WebhookReporter) Outcome(ctx context.Context, j *jobs.Job, out jobs.Outcome) {
	if j.CallbackURL == "" {
		return
	}
	r.post(ctx, j.CallbackURL, map[string]any{"event": "outcome", "outcome": out})
}

func (r *WebhookReporter) post(ctx context.Context, url string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("url", url).Msg("callback post failed")
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

// NopReporter discards every event.
type NopReporter struct{}

func (NopReporter) Progress(context.Context, *jobs.Job, jobs.ProgressSample) {}
func (NopReporter) Deliver(context.Context, *jobs.Job, string, int) error    { return nil }
func (NopReporter) Outcome(context.Context, *jobs.Job, jobs.Outcome)         {}

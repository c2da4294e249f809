// Package download streams remote files in bounded chunks over a shared
// connection pool, reporting throughput and ETA along the way.
package download

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/creddispatcher/internal/jobs"
	"github.com/local/creddispatcher/internal/metrics"
)

// Config bounds a single fetch.
type Config struct {
	ChunkSize        int           // read granularity, also progress checkpoints
	ProgressInterval time.Duration // minimum spacing between progress reports
	Timeout          time.Duration // connect + total read ceiling
	MaxSize          uint64        // 0 = unlimited
}

// ProgressFunc receives throttled progress samples. Delivery is
// best-effort; the engine never aborts a download because a report
// could not be handled.
type ProgressFunc func(jobs.ProgressSample)

// Engine performs streamed GETs over one process-wide pooled client.
// The pool is created lazily on first use and rebuilt after Close.
type Engine struct {
	cfg    Config
	mu     sync.Mutex
	client *http.Client
}

func NewEngine(cfg Config) *Engine {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1 << 20
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Minute
	}
	return &Engine{cfg: cfg}
}

func (e *Engine) httpClient() *http.Client {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		e.client = &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        64,
				MaxIdleConnsPerHost: 8,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return e.client
}

// Close releases idle connections. The next Fetch rebuilds the pool.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client != nil {
		e.client.CloseIdleConnections()
		e.client = nil
	}
}

// Fetch downloads uri into memory. sizeHint (0 = unknown) is used for
// ETA math and for early size rejection; the Content-Length header
// takes precedence when present.
func (e *Engine) Fetch(ctx context.Context, uri string, sizeHint uint64, onProgress ProgressFunc) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	start := time.Now()
	if strings.HasPrefix(uri, "file://") {
		return e.fetchLocal(ctx, strings.TrimPrefix(uri, "file://"), start, onProgress)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, &jobs.ResolutionError{Handle: uri, Err: err}
	}
	resp, err := e.httpClient().Do(req)
	if err != nil {
		return nil, e.mapErr(ctx, err, start)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &jobs.DownloadError{Status: resp.StatusCode}
	}

	total := sizeHint
	if resp.ContentLength > 0 {
		total = uint64(resp.ContentLength)
	}
	if e.cfg.MaxSize > 0 && total > e.cfg.MaxSize {
		return nil, &jobs.FileTooLargeError{Size: total, Limit: e.cfg.MaxSize}
	}

	var buf bytes.Buffer
	if total > 0 {
		buf.Grow(int(total))
	}
	chunk := make([]byte, e.cfg.ChunkSize)
	var transferred uint64
	lastReport := start

	for {
		n, err := resp.Body.Read(chunk)
		if n > 0 {
			transferred += uint64(n)
			if e.cfg.MaxSize > 0 && transferred > e.cfg.MaxSize {
				return nil, &jobs.FileTooLargeError{Size: transferred, Limit: e.cfg.MaxSize}
			}
			buf.Write(chunk[:n])
			metrics.AddDownloadBytes(n)

			now := time.Now()
			if onProgress != nil && now.Sub(lastReport) >= e.cfg.ProgressInterval {
				lastReport = now
				onProgress(jobs.ProgressSample{
					BytesTransferred: transferred,
					TotalBytes:       total,
					Elapsed:          now.Sub(start),
				})
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, e.mapErr(ctx, err, start)
		}
	}

	elapsed := time.Since(start)
	metrics.ObserveDownload(elapsed)
	log.Debug().
		Str("uri", uri).
		Uint64("bytes", transferred).
		Dur("elapsed", elapsed).
		Msg("download complete")
	return buf.Bytes(), nil
}

// fetchLocal reads a file:// source with the same chunking, size
// checks, and progress reporting as the HTTP path.
func (e *Engine) fetchLocal(ctx context.Context, path string, start time.Time, onProgress ProgressFunc) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &jobs.ResolutionError{Handle: path, Err: err}
	}
	defer f.Close()

	var total uint64
	if fi, err := f.Stat(); err == nil && fi.Size() > 0 {
		total = uint64(fi.Size())
	}
	if e.cfg.MaxSize > 0 && total > e.cfg.MaxSize {
		return nil, &jobs.FileTooLargeError{Size: total, Limit: e.cfg.MaxSize}
	}

	var buf bytes.Buffer
	if total > 0 {
		buf.Grow(int(total))
	}
	chunk := make([]byte, e.cfg.ChunkSize)
	var transferred uint64
	lastReport := start

	for {
		if err := ctx.Err(); err != nil {
			return nil, e.mapErr(ctx, err, start)
		}
		n, err := f.Read(chunk)
		if n > 0 {
			transferred += uint64(n)
			if e.cfg.MaxSize > 0 && transferred > e.cfg.MaxSize {
				return nil, &jobs.FileTooLargeError{Size: transferred, Limit: e.cfg.MaxSize}
			}
			buf.Write(chunk[:n])
			metrics.AddDownloadBytes(n)

			now := time.Now()
			if onProgress != nil && now.Sub(lastReport) >= e.cfg.ProgressInterval {
				lastReport = now
				onProgress(jobs.ProgressSample{
					BytesTransferred: transferred,
					TotalBytes:       total,
					Elapsed:          now.Sub(start),
				})
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	metrics.ObserveDownload(time.Since(start))
	return buf.Bytes(), nil
}

func (e *Engine) mapErr(ctx context.Context, err error, start time.Time) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &jobs.DownloadTimeoutError{Elapsed: time.Since(start)}
	}
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return jobs.ErrCancelled
	}
	return err
}

package orchestrator

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/local/creddispatcher/internal/extractor"
	"github.com/local/creddispatcher/internal/filetype"
	"github.com/local/creddispatcher/internal/jobs"
	"github.com/local/creddispatcher/internal/logger"
	"github.com/local/creddispatcher/internal/metrics"
	"github.com/local/creddispatcher/internal/pdftext"
)

// Start launches the dispatch loop. The loop wakes on admission
// signals, drains every free slot, and goes back to sleep; each
// admitted job runs on its own goroutine.
func (o *Orchestrator) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	o.cancel = cancel
	o.wg.Add(1)
	go o.dispatch(ctx)
}

// Stop cancels the dispatch loop and waits for in-flight jobs.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()
}

func (o *Orchestrator) dispatch(ctx context.Context) {
	defer o.wg.Done()
	sweep := time.NewTicker(10 * time.Minute)
	defer sweep.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			sweepStale(o.cfg.ResultDir, o.cfg.StaleAge)
		case <-o.admit:
			for {
				j := o.deps.Queue.TryAdmit()
				if j == nil {
					break
				}
				o.wg.Add(1)
				go o.run(ctx, j)
			}
		}
	}
}

// run drives one job through the pipeline. The slot is released on
// every path, and the release re-triggers dispatch so the next
// pending job is pulled in.
func (o *Orchestrator) run(ctx context.Context, j *jobs.Job) {
	defer o.wg.Done()
	defer func() {
		o.deps.Queue.Release(j)
		o.signalAdmit()
	}()

	start := time.Now()
	lg := logger.WithJob(j.ID, j.Submitter)
	lg.Info().Str("name", j.Name).Msg("job admitted")

	res, err := o.process(ctx, j)

	out := jobs.Outcome{
		JobID:          j.ID,
		Name:           j.Name,
		Pairs:          res.stats.Pairs,
		Duration:       time.Since(start),
		SizeBytes:      res.size,
		EmailsFound:    res.stats.EmailsFound,
		EmailsAccepted: res.stats.EmailsAccepted,
		PasswordsFound: res.stats.PasswordsFound,
		PasswordsUsed:  res.stats.PasswordsUsed,
		Pages:          res.pages,
	}
	switch {
	case errors.Is(err, jobs.ErrCancelled) || (err != nil && j.Cancelled()):
		out.State = jobs.StateCancelled
		out.Reason = "cancelled"
		lg.Info().Dur("duration", out.Duration).Msg("job cancelled")
	case err != nil:
		out.State = jobs.StateFailed
		out.Reason = jobs.FailReason(err)
		lg.Error().Err(err).Str("reason", out.Reason).Dur("duration", out.Duration).Msg("job failed")
	default:
		out.State = jobs.StateCompleted
		lg.Info().Int("pairs", out.Pairs).Dur("duration", out.Duration).Msg("job completed")
	}

	metrics.IncJob(string(out.State))
	o.mirrorStatusPairs(context.Background(), j, out.State, out.Reason, out.Pairs)
	o.deps.Reporter.Outcome(context.Background(), j, out)
}

// pipelineResult carries what one job produced.
type pipelineResult struct {
	stats extractor.Stats
	pages int
	size  uint64
}

// process executes resolve, fetch, classify, and extract for one job.
// Cancellation is checked at phase boundaries; a watcher also cancels
// the job context so an in-flight download aborts promptly.
func (o *Orchestrator) process(parent context.Context, j *jobs.Job) (res pipelineResult, err error) {
	if j.Cancelled() {
		return res, jobs.ErrCancelled
	}
	o.mirrorStatus(parent, j, jobs.StateAdmitted, "admitted")

	ctx, cancel := context.WithTimeout(parent, o.cfg.JobTimeout)
	defer cancel()
	stopWatch := o.watchCancel(ctx, j, cancel)
	defer stopWatch()

	loc, err := o.deps.Resolver.Resolve(ctx, j.Handle)
	if err != nil {
		return res, err
	}
	hint := j.SizeBytes
	if hint == 0 {
		hint = loc.SizeHint
	}

	o.mirrorStatus(ctx, j, jobs.StateDownloading, "downloading")
	data, err := o.deps.Fetcher.Fetch(ctx, loc.URI, hint, func(s jobs.ProgressSample) {
		metrics.IncProgressEvent()
		o.deps.Reporter.Progress(ctx, j, s)
	})
	if err != nil {
		return res, err
	}
	res.size = uint64(len(data))

	if j.Cancelled() {
		return res, jobs.ErrCancelled
	}
	o.mirrorStatus(ctx, j, jobs.StateExtracting, "extracting")

	info := o.deps.Detector.DetectBytes(data)
	if !info.Supported {
		return res, &jobs.UnsupportedFormatError{Name: j.Name, MIME: info.MIME}
	}

	select {
	case o.extractSem <- struct{}{}:
	case <-ctx.Done():
		return res, ctx.Err()
	}
	defer func() { <-o.extractSem }()

	var text string
	if info.Kind == filetype.KindPDF {
		text, res.pages, err = pdftext.ExtractBytes(data)
		if err != nil {
			return res, &jobs.ExtractionError{Reason: "pdf text extraction failed", Err: err}
		}
	} else {
		var enc string
		text, enc = DecodeText(data)
		jl := logger.WithJob(j.ID, j.Submitter)
		jl.Debug().Str("encoding", enc).Msg("text decoded")
	}

	t0 := time.Now()
	creds, stats := o.deps.Extractor.Extract(text)
	res.stats = stats
	metrics.ObserveExtract(time.Since(t0))
	metrics.AddCredentials(len(creds))
	jl := logger.WithJob(j.ID, j.Submitter)
	jl.Info().
		Int("emails_found", stats.EmailsFound).
		Int("emails_accepted", stats.EmailsAccepted).
		Int("passwords_found", stats.PasswordsFound).
		Int("pairs", stats.Pairs).
		Msg("extraction finished")

	if j.Bulk {
		o.bulk.Merge(j.Submitter, creds)
	}

	artifactPath, err := writeArtifact(o.cfg.ResultDir, j.ID, extractor.Serialize(creds), j.Password)
	if err != nil {
		return res, err
	}
	if j.CallbackURL != "" {
		deliverErr := o.deps.Reporter.Deliver(ctx, j, artifactPath, len(creds))
		// Cleanup happens regardless of delivery success.
		if err := os.Remove(artifactPath); err != nil {
			jl.Warn().Err(err).Msg("artifact cleanup failed")
		}
		if deliverErr != nil {
			return res, deliverErr
		}
	}
	return res, nil
}

// watchCancel polls the job's cancel flag and aborts the job context
// when it flips. Returns a stop func for the watcher goroutine.
func (o *Orchestrator) watchCancel(ctx context.Context, j *jobs.Job, cancel context.CancelFunc) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if j.Cancelled() {
					cancel()
					return
				}
			}
		}
	}()
	return func() { close(done) }
}

package jobs

import (
	"errors"
	"fmt"
	"time"
)

// ErrCancelled marks a job stopped at a cancellation checkpoint.
var ErrCancelled = errors.New("job cancelled")

// ErrDuplicate is returned when the same (submitter, handle) pair is
// already queued or active.
var ErrDuplicate = errors.New("job already queued for this file")

// ResolutionError wraps a failure to turn a resource handle into a
// fetchable location.
type ResolutionError struct {
	Handle string
	Err    error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.Handle, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// DownloadError represents a non-success HTTP status during fetch.
type DownloadError struct {
	Status int
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download failed with status %d", e.Status)
}

// DownloadTimeoutError represents a download that exceeded its ceiling.
type DownloadTimeoutError struct {
	Elapsed time.Duration
}

func (e *DownloadTimeoutError) Error() string {
	return fmt.Sprintf("download timed out after %s", e.Elapsed.Round(time.Millisecond))
}

// FileTooLargeError rejects an oversized file, either at submission
// (size hint) or mid-stream.
type FileTooLargeError struct {
	Size  uint64
	Limit uint64
}

func (e *FileTooLargeError) Error() string {
	return fmt.Sprintf("file too large: %d bytes (limit %d)", e.Size, e.Limit)
}

// UnsupportedFormatError rejects a file whose name or content is not a
// processable text source.
type UnsupportedFormatError struct {
	Name string
	MIME string
}

func (e *UnsupportedFormatError) Error() string {
	if e.MIME != "" {
		return fmt.Sprintf("unsupported format %s (%s)", e.MIME, e.Name)
	}
	return fmt.Sprintf("unsupported format: %s", e.Name)
}

// ExtractionError represents a failure to obtain usable text from the
// downloaded bytes, including decode failures after all fallbacks.
type ExtractionError struct {
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("extraction failed: %s", e.Reason)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// FailReason maps a job error to a short human-readable reason for the
// submitter-facing outcome report.
func FailReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	default:
		return err.Error()
	}
}

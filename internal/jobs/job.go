package jobs

import (
	"sync/atomic"
	"time"
)

// Key identifies a live job: one (submitter, handle) pair may be queued
// or active at most once at any time.
type Key struct {
	Submitter string
	Handle    string
}

// State is the lifecycle phase of a job.
type State string

const (
	StateQueued      State = "queued"
	StateAdmitted    State = "admitted"
	StateDownloading State = "downloading"
	StateExtracting  State = "extracting"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
	StateCancelled   State = "cancelled"
)

// Job is a single fetch-then-extract request. Fields are set once at
// submission; only the cancellation flag mutates afterwards.
type Job struct {
	ID         string // external reference (artifact naming, status mirror)
	Submitter  string
	Handle     string
	Name       string
	SizeBytes  uint64
	EnqueuedAt time.Time

	// Delivery options supplied by the submitter.
	CallbackURL string
	Password    string // if set, the artifact is encrypted before delivery
	Bulk        bool   // part of an open bulk session

	cancelled atomic.Bool
}

func (j *Job) Key() Key { return Key{Submitter: j.Submitter, Handle: j.Handle} }

// Cancel flags the job for cooperative cancellation. Returns true on the
// first call, false if the job was already flagged.
func (j *Job) Cancel() bool { return j.cancelled.CompareAndSwap(false, true) }

// Cancelled reports whether cancellation has been requested.
func (j *Job) Cancelled() bool { return j.cancelled.Load() }

// ProgressSample is a point-in-time view of a running download.
// Recomputed on every reporting tick, never stored.
type ProgressSample struct {
	BytesTransferred uint64
	TotalBytes       uint64 // 0 when unknown
	Elapsed          time.Duration
}

// Speed returns the average transfer rate in bytes per second.
func (p ProgressSample) Speed() float64 {
	secs := p.Elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(p.BytesTransferred) / secs
}

// ETA estimates the remaining transfer time. ok is false when the total
// size is unknown or no bytes have moved yet.
func (p ProgressSample) ETA() (time.Duration, bool) {
	speed := p.Speed()
	if p.TotalBytes == 0 || speed <= 0 || p.BytesTransferred > p.TotalBytes {
		return 0, false
	}
	remaining := float64(p.TotalBytes-p.BytesTransferred) / speed
	return time.Duration(remaining * float64(time.Second)), true
}

// Outcome is the terminal report for a job.
type Outcome struct {
	JobID     string        `json:"job_id"`
	Name      string        `json:"name"`
	State     State         `json:"state"`
	Pairs     int           `json:"pairs,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Duration  time.Duration `json:"duration_ns,omitempty"`
	SizeBytes uint64        `json:"size_bytes,omitempty"`

	// Extraction stats, present on completed jobs.
	EmailsFound    int `json:"emails_found,omitempty"`
	EmailsAccepted int `json:"emails_accepted,omitempty"`
	PasswordsFound int `json:"passwords_found,omitempty"`
	PasswordsUsed  int `json:"passwords_used,omitempty"`
	Pages          int `json:"pages,omitempty"`
}

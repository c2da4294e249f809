// Package queue implements the FIFO-with-slots admission controller.
// It owns every mutable piece of queue state; callers never touch
// pending/active membership directly.
package queue

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/creddispatcher/internal/jobs"
	"github.com/local/creddispatcher/internal/metrics"
)

// Config bounds admission.
type Config struct {
	MaxConcurrent int
}

// Queue tracks pending and active jobs. Every live job is in exactly
// one of the two, and in bySubmitter for as long as it lives.
type Queue struct {
	mu            sync.Mutex
	maxConcurrent int
	pending       []*jobs.Job
	active        map[jobs.Key]*jobs.Job
	bySubmitter   map[string][]*jobs.Job
}

func New(cfg Config) *Queue {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 2
	}
	return &Queue{
		maxConcurrent: cfg.MaxConcurrent,
		active:        make(map[jobs.Key]*jobs.Job),
		bySubmitter:   make(map[string][]*jobs.Job),
	}
}

// SubmitRequest carries everything a new job needs before it enters
// the pending list.
type SubmitRequest struct {
	Submitter   string
	Handle      string
	Name        string
	SizeBytes   uint64
	CallbackURL string
	Password    string
	Bulk        bool
}

// Submit enqueues a job and returns it with its pending position at
// submission time (0-based). It never blocks on slot availability.
// A (submitter, handle) pair that is already live is rejected with
// jobs.ErrDuplicate so the pair stays unique among live jobs.
func (q *Queue) Submit(req SubmitRequest) (*jobs.Job, int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := jobs.Key{Submitter: req.Submitter, Handle: req.Handle}
	if _, ok := q.active[key]; ok {
		return nil, 0, jobs.ErrDuplicate
	}
	for _, p := range q.pending {
		if p.Key() == key {
			return nil, 0, jobs.ErrDuplicate
		}
	}

	j := &jobs.Job{
		ID:          uuid.NewString(),
		Submitter:   req.Submitter,
		Handle:      req.Handle,
		Name:        req.Name,
		SizeBytes:   req.SizeBytes,
		EnqueuedAt:  time.Now(),
		CallbackURL: req.CallbackURL,
		Password:    req.Password,
		Bulk:        req.Bulk,
	}
	q.pending = append(q.pending, j)
	q.bySubmitter[req.Submitter] = append(q.bySubmitter[req.Submitter], j)
	pos := len(q.pending) - 1

	metrics.SetQueueDepth("pending", int64(len(q.pending)))
	log.Debug().Str("job_id", j.ID).Str("submitter", req.Submitter).Str("name", req.Name).Int("position", pos).Msg("job enqueued")
	return j, pos, nil
}

// TryAdmit pops the head of pending into active iff a slot is free.
// This is the single serialization point: concurrent callers can never
// both see a free slot and admit past maxConcurrent.
func (q *Queue) TryAdmit() *jobs.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 || len(q.active) >= q.maxConcurrent {
		return nil
	}
	j := q.pending[0]
	q.pending = q.pending[1:]
	q.active[j.Key()] = j

	metrics.SetQueueDepth("pending", int64(len(q.pending)))
	metrics.SetQueueDepth("active", int64(len(q.active)))
	return j
}

// Release removes an admitted job from active and from its submitter
// index. It is unconditional and idempotent so every outcome path can
// defer it without leaking a slot.
func (q *Queue) Release(j *jobs.Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.active, j.Key())
	q.dropFromSubmitter(j)
	metrics.SetQueueDepth("active", int64(len(q.active)))
}

// dropFromSubmitter must be called with q.mu held.
func (q *Queue) dropFromSubmitter(j *jobs.Job) {
	list := q.bySubmitter[j.Submitter]
	for i, cand := range list {
		if cand == j {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(q.bySubmitter, j.Submitter)
	} else {
		q.bySubmitter[j.Submitter] = list
	}
}

// CancelAll drops every pending job owned by submitter and flags every
// active one for cooperative cancellation. Returns the number of jobs
// removed or newly flagged; calling it again without new submissions
// reports zero.
func (q *Queue) CancelAll(submitter string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	count := 0
	kept := q.pending[:0]
	for _, j := range q.pending {
		if j.Submitter == submitter {
			j.Cancel()
			q.dropFromSubmitter(j)
			count++
			continue
		}
		kept = append(kept, j)
	}
	q.pending = kept

	for _, j := range q.active {
		if j.Submitter == submitter && j.Cancel() {
			count++
		}
	}

	metrics.SetQueueDepth("pending", int64(len(q.pending)))
	if count > 0 {
		log.Info().Str("submitter", submitter).Int("count", count).Msg("cancelled jobs")
	}
	return count
}

// Position locates one submitter job in the snapshot.
type Position struct {
	JobID    string `json:"job_id"`
	Name     string `json:"name"`
	Active   bool   `json:"active"`
	Position int    `json:"position"` // 0-based place in pending; -1 when active
}

// Snapshot is a point-in-time copy of queue occupancy.
type Snapshot struct {
	Pending   int                   `json:"pending"`
	Active    int                   `json:"active"`
	Positions map[string][]Position `json:"positions"`
}

// Status copies current occupancy under a short critical section.
// Staleness is acceptable; the copy never blocks in-flight downloads.
func (q *Queue) Status() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	snap := Snapshot{
		Pending:   len(q.pending),
		Active:    len(q.active),
		Positions: make(map[string][]Position, len(q.bySubmitter)),
	}
	pendingPos := make(map[jobs.Key]int, len(q.pending))
	for i, j := range q.pending {
		pendingPos[j.Key()] = i
	}
	for sub, list := range q.bySubmitter {
		out := make([]Position, 0, len(list))
		for _, j := range list {
			p := Position{JobID: j.ID, Name: j.Name, Active: true, Position: -1}
			if pos, ok := pendingPos[j.Key()]; ok {
				p.Active = false
				p.Position = pos
			}
			out = append(out, p)
		}
		snap.Positions[sub] = out
	}
	return snap
}

// MaxConcurrent returns the configured slot count.
func (q *Queue) MaxConcurrent() int { return q.maxConcurrent }

package orchestrator

import (
	"sync"
	"time"

	"github.com/local/creddispatcher/internal/extractor"
)

// bulkSession aggregates deduplicated credential lines for one
// submitter across multiple jobs.
type bulkSession struct {
	creds   map[string]struct{}
	files   int
	started time.Time
}

// bulkRegistry tracks open bulk sessions by submitter.
type bulkRegistry struct {
	mu       sync.Mutex
	sessions map[string]*bulkSession
}

func newBulkRegistry() *bulkRegistry {
	return &bulkRegistry{sessions: make(map[string]*bulkSession)}
}

// Start opens a session for submitter. Returns false if one is
// already open.
func (r *bulkRegistry) Start(submitter string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[submitter]; ok {
		return false
	}
	r.sessions[submitter] = &bulkSession{
		creds:   make(map[string]struct{}),
		started: time.Now(),
	}
	return true
}

// Active reports whether submitter has an open session.
func (r *bulkRegistry) Active(submitter string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[submitter]
	return ok
}

// Merge folds one job's pairs into the submitter's session. A no-op
// when no session is open.
func (r *bulkRegistry) Merge(submitter string, pairs []extractor.Credential) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[submitter]
	if !ok {
		return
	}
	for _, c := range pairs {
		s.creds[c.Line()] = struct{}{}
	}
	s.files++
}

// Finish closes the session and returns the sorted aggregate along
// with the pair and file counts. ok is false when no session exists.
func (r *bulkRegistry) Finish(submitter string) (data []byte, pairs, files int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, found := r.sessions[submitter]
	if !found {
		return nil, 0, 0, false
	}
	delete(r.sessions, submitter)
	return extractor.SerializeBulk(s.creds), len(s.creds), s.files, true
}

// Abort drops the session without producing an aggregate.
func (r *bulkRegistry) Abort(submitter string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[submitter]; !ok {
		return false
	}
	delete(r.sessions, submitter)
	return true
}

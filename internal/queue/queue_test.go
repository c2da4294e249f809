package queue

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/creddispatcher/internal/jobs"
)

func submit(q *Queue, submitter, handle, name string, size uint64) (*jobs.Job, int, error) {
	return q.Submit(SubmitRequest{Submitter: submitter, Handle: handle, Name: name, SizeBytes: size})
}

func TestSubmitAndAdmitFIFO(t *testing.T) {
	q := New(Config{MaxConcurrent: 2})

	a, pos, err := submit(q, "alice", "file-a", "a.txt", 10)
	require.NoError(t, err)
	assert.Equal(t, 0, pos)
	b, pos, err := submit(q, "bob", "file-b", "b.txt", 20)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
	c, pos, err := submit(q, "alice", "file-c", "c.txt", 30)
	require.NoError(t, err)
	assert.Equal(t, 2, pos)

	assert.Same(t, a, q.TryAdmit())
	assert.Same(t, b, q.TryAdmit())
	// Both slots taken: C stays pending.
	assert.Nil(t, q.TryAdmit())

	snap := q.Status()
	assert.Equal(t, 1, snap.Pending)
	assert.Equal(t, 2, snap.Active)

	q.Release(a)
	assert.Same(t, c, q.TryAdmit())
	assert.Nil(t, q.TryAdmit())
}

func TestDuplicateSubmitRejected(t *testing.T) {
	q := New(Config{MaxConcurrent: 1})
	_, _, err := submit(q, "alice", "file-a", "a.txt", 0)
	require.NoError(t, err)
	_, _, err = submit(q, "alice", "file-a", "a.txt", 0)
	assert.ErrorIs(t, err, jobs.ErrDuplicate)

	// Same handle from another submitter is a different job.
	_, _, err = submit(q, "bob", "file-a", "a.txt", 0)
	assert.NoError(t, err)
}

func TestActiveNeverExceedsMaxConcurrent(t *testing.T) {
	const max = 3
	q := New(Config{MaxConcurrent: max})
	for i := 0; i < 50; i++ {
		_, _, err := submit(q, "sub", fmt.Sprintf("file-%d", i), "f.txt", 0)
		require.NoError(t, err)
	}

	var mu sync.Mutex
	admitted := make([]*jobs.Job, 0, 50)
	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				j := q.TryAdmit()
				if j == nil {
					return
				}
				mu.Lock()
				admitted = append(admitted, j)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, admitted, max)
	snap := q.Status()
	assert.Equal(t, max, snap.Active)
	assert.Equal(t, 50-max, snap.Pending)

	// Releasing one slot admits exactly one more.
	q.Release(admitted[0])
	require.NotNil(t, q.TryAdmit())
	assert.Nil(t, q.TryAdmit())
}

func TestJobNeverInBothStates(t *testing.T) {
	q := New(Config{MaxConcurrent: 1})
	j, _, err := submit(q, "alice", "file-a", "a.txt", 0)
	require.NoError(t, err)

	require.Same(t, j, q.TryAdmit())
	snap := q.Status()
	assert.Equal(t, 0, snap.Pending)
	assert.Equal(t, 1, snap.Active)

	q.Release(j)
	snap = q.Status()
	assert.Equal(t, 0, snap.Pending)
	assert.Equal(t, 0, snap.Active)
	assert.Empty(t, snap.Positions["alice"])
}

func TestCancelAllIdempotent(t *testing.T) {
	q := New(Config{MaxConcurrent: 1})
	active, _, err := submit(q, "alice", "file-a", "a.txt", 0)
	require.NoError(t, err)
	_, _, err = submit(q, "alice", "file-b", "b.txt", 0)
	require.NoError(t, err)
	_, _, err = submit(q, "bob", "file-c", "c.txt", 0)
	require.NoError(t, err)

	require.Same(t, active, q.TryAdmit())

	// One pending removed + one active flagged.
	assert.Equal(t, 2, q.CancelAll("alice"))
	assert.True(t, active.Cancelled())

	// Second call in a row reports nothing new.
	assert.Equal(t, 0, q.CancelAll("alice"))

	// Bob is untouched and next in line.
	snap := q.Status()
	assert.Equal(t, 1, snap.Pending)
	require.Len(t, snap.Positions["bob"], 1)
	assert.Equal(t, 0, snap.Positions["bob"][0].Position)
}

func TestStatusPositions(t *testing.T) {
	q := New(Config{MaxConcurrent: 1})
	a, _, _ := submit(q, "alice", "file-a", "a.txt", 0)
	submit(q, "bob", "file-b", "b.txt", 0)
	submit(q, "alice", "file-c", "c.txt", 0)

	require.Same(t, a, q.TryAdmit())
	snap := q.Status()

	require.Len(t, snap.Positions["alice"], 2)
	assert.True(t, snap.Positions["alice"][0].Active)
	assert.Equal(t, -1, snap.Positions["alice"][0].Position)
	assert.False(t, snap.Positions["alice"][1].Active)
	assert.Equal(t, 1, snap.Positions["alice"][1].Position)
	require.Len(t, snap.Positions["bob"], 1)
	assert.Equal(t, 0, snap.Positions["bob"][0].Position)
}

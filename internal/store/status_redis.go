// Package store mirrors job status into Redis so external dashboards
// can poll it. The in-memory queue stays the source of truth; losing
// the mirror never affects scheduling.
package store

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/local/creddispatcher/internal/jobs"
)

// Status is the externally visible job record.
type Status struct {
	State     jobs.State `json:"state"`
	Message   string     `json:"message"`
	Submitter string     `json:"submitter"`
	Name      string     `json:"name"`
	Pairs     int        `json:"pairs,omitempty"`
	Start     *time.Time `json:"start_time,omitempty"`
	End       *time.Time `json:"end_time,omitempty"`
}

// RedisStatus persists Status records keyed by job ID with a TTL so
// finished jobs age out on their own.
type RedisStatus struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStatus(redisURL string) (*RedisStatus, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStatus{client: c, ttl: 24 * time.Hour}, nil
}

func (s *RedisStatus) key(jobID string) string { return fmt.Sprintf("job:%s:status", jobID) }

func (s *RedisStatus) Set(ctx context.Context, jobID string, st Status) error {
	m := map[string]interface{}{
		"state":     string(st.State),
		"message":   st.Message,
		"submitter": st.Submitter,
		"name":      st.Name,
		"pairs":     st.Pairs,
	}
	if st.Start != nil {
		m["start"] = st.Start.Format(time.RFC3339Nano)
	}
	if st.End != nil {
		m["end"] = st.End.Format(time.RFC3339Nano)
	}
	key := s.key(jobID)
	if err := s.client.HSet(ctx, key, m).Err(); err != nil {
		return err
	}
	return s.client.Expire(ctx, key, s.ttl).Err()
}

func (s *RedisStatus) Get(ctx context.Context, jobID string) (Status, bool, error) {
	res, err := s.client.HGetAll(ctx, s.key(jobID)).Result()
	if err != nil {
		return Status{}, false, err
	}
	if len(res) == 0 {
		return Status{}, false, nil
	}
	st := Status{
		State:     jobs.State(res["state"]),
		Message:   res["message"],
		Submitter: res["submitter"],
		Name:      res["name"],
	}
	if p := res["pairs"]; p != "" {
		fmt.Sscan(p, &st.Pairs)
	}
	if v := res["start"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			st.Start = &t
		}
	}
	if v := res["end"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			st.End = &t
		}
	}
	return st, true, nil
}

// Ping checks mirror connectivity.
func (s *RedisStatus) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *RedisStatus) Close() error { return s.client.Close() }

package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/shopforge/catalogsearch/pkg/errors"
)

const (
	keyPrefix = "catalogsearch:job:"

	// jobTTL keeps finished job records around long enough for clients to
	// poll them, without growing Redis forever.
	jobTTL = 24 * time.Hour
)

// RedisStore persists job progress in Redis so progress survives restarts
// and is visible to every API replica.
type RedisStore struct {
	client *redis.Client
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func key(id string) string { return keyPrefix + id }

func (s *RedisStore) write(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	if err := s.client.Set(ctx, key(job.ID), data, jobTTL).Err(); err != nil {
		return fmt.Errorf("store job %s: %w", job.ID, err)
	}
	return nil
}

func (s *RedisStore) Create(ctx context.Context, job *Job) error {
	j := *job
	if j.State == "" {
		j.State = StatePending
	}
	now := time.Now()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = now
	return s.write(ctx, &j)
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Job, error) {
	data, err := s.client.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.NotFound("job", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &j, nil
}

// mutate applies fn under a best-effort read-modify-write. A single consumer
// owns each job's writes, so no stronger coordination is needed.
func (s *RedisStore) mutate(ctx context.Context, id string, fn func(*Job)) error {
	j, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	fn(j)
	j.UpdatedAt = time.Now()
	return s.write(ctx, j)
}

func (s *RedisStore) SetRunning(ctx context.Context, id string, total int) error {
	return s.mutate(ctx, id, func(j *Job) {
		j.State = StateRunning
		j.Total = total
	})
}

func (s *RedisStore) Advance(ctx context.Context, id string, completed int) error {
	return s.mutate(ctx, id, func(j *Job) {
		if completed > j.Completed {
			j.Completed = completed
		}
	})
}

func (s *RedisStore) Complete(ctx context.Context, id string) error {
	return s.mutate(ctx, id, func(j *Job) {
		j.State = StateCompleted
		j.Completed = j.Total
	})
}

func (s *RedisStore) Fail(ctx context.Context, id string, cause string) error {
	return s.mutate(ctx, id, func(j *Job) {
		j.State = StateFailed
		j.Error = cause
	})
}

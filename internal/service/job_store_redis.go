package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/dsa-autograder/internal/models"
)

const (
	redisJobKeyPrefix = "grader:job:"
	redisJobIndexKey  = "grader:jobs"
	redisMaxRetries   = 5
)

type redisJobStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisJobStore builds a registry shared by every API replica. Keys expire
// after twice the TTL so an unswept job cannot linger forever.
func NewRedisJobStore(client *redis.Client, ttl time.Duration) JobStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &redisJobStore{client: client, ttl: ttl, now: time.Now}
}

func jobKey(id string) string {
	return redisJobKeyPrefix + id
}

func (s *redisJobStore) Create(ctx context.Context, job models.GradingJob) error {
	job.Status = models.JobStatusProcessing
	if job.CreatedAt.IsZero() {
		job.CreatedAt = s.now().UTC()
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, jobKey(job.ID), payload, 2*s.ttl)
		pipe.ZAdd(ctx, redisJobIndexKey, redis.Z{Score: float64(job.CreatedAt.Unix()), Member: job.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("store job: %w", err)
	}
	return nil
}

func (s *redisJobStore) Get(ctx context.Context, id string) (models.GradingJob, error) {
	raw, err := s.client.Get(ctx, jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.GradingJob{}, ErrJobNotFound
	}
	if err != nil {
		return models.GradingJob{}, fmt.Errorf("load job: %w", err)
	}

	var job models.GradingJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return models.GradingJob{}, fmt.Errorf("decode job: %w", err)
	}
	return job, nil
}

func (s *redisJobStore) Complete(ctx context.Context, id string, result models.JobResult) (models.GradingJob, error) {
	return s.transition(ctx, id, func(job *models.GradingJob) {
		job.Status = models.JobStatusCompleted
		job.Result = &result
	})
}

func (s *redisJobStore) Fail(ctx context.Context, id string, message string) (models.GradingJob, error) {
	return s.transition(ctx, id, func(job *models.GradingJob) {
		job.Status = models.JobStatusFailed
		job.Error = message
	})
}

func (s *redisJobStore) transition(ctx context.Context, id string, apply func(job *models.GradingJob)) (models.GradingJob, error) {
	key := jobKey(id)
	var updated models.GradingJob

	txn := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrJobNotFound
		}
		if err != nil {
			return err
		}

		var job models.GradingJob
		if err := json.Unmarshal(raw, &job); err != nil {
			return fmt.Errorf("decode job: %w", err)
		}
		if job.IsTerminal() {
			updated = job
			return ErrJobAlreadyTerminal
		}

		finished := s.now().UTC()
		job.FinishedAt = &finished
		apply(&job)

		payload, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("encode job: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 2*s.ttl)
			return nil
		})
		if err == nil {
			updated = job
		}
		return err
	}

	for attempt := 0; attempt < redisMaxRetries; attempt++ {
		err := s.client.Watch(ctx, txn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return updated, err
		}
		return updated, nil
	}

	return models.GradingJob{}, fmt.Errorf("job %s: too many concurrent updates", id)
}

func (s *redisJobStore) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	ids, err := s.client.ZRangeByScore(ctx, redisJobIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", cutoff.Unix()),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("scan job index: %w", err)
	}

	removed := 0
	for _, id := range ids {
		job, err := s.Get(ctx, id)
		if errors.Is(err, ErrJobNotFound) {
			s.client.ZRem(ctx, redisJobIndexKey, id)
			continue
		}
		if err != nil {
			return removed, err
		}
		if !isExpired(job, cutoff) {
			continue
		}

		if _, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, jobKey(id))
			pipe.ZRem(ctx, redisJobIndexKey, id)
			return nil
		}); err != nil {
			return removed, fmt.Errorf("remove job %s: %w", id, err)
		}
		removed++
	}

	return removed, nil
}

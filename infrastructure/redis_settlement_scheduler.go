package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"wagerbook/config"
	"wagerbook/models"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	schedulerQueueKey    = "scheduler:jobs"
	schedulerPayloadsKey = "scheduler:payloads"
	schedulerBatchSize   = 100
)

// claimDue pops up to ARGV[2] jobs whose score is at or before ARGV[1]
var claimDue = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
local jobs = {}
for _, id in ipairs(ids) do
	redis.call('ZREM', KEYS[1], id)
	local payload = redis.call('HGET', KEYS[2], id)
	redis.call('HDEL', KEYS[2], id)
	if payload then
		table.insert(jobs, payload)
	end
end
return jobs
`)

// FireFunc runs a due job
type FireFunc func(ctx context.Context, job models.ScheduledJob) error

// RedisSettlementScheduler keeps delayed jobs in a sorted set scored by fire time.
// Job bodies live in a hash keyed by job id, so scheduling an id twice replaces it.
type RedisSettlementScheduler struct {
	rdb    *redis.Client
	config config.SchedulerConfig
	now    func() time.Time
}

// NewRedisSettlementScheduler creates a new scheduler
func NewRedisSettlementScheduler(rdb *redis.Client, cfg config.SchedulerConfig) *RedisSettlementScheduler {
	return &RedisSettlementScheduler{
		rdb:    rdb,
		config: cfg,
		now:    time.Now,
	}
}

func (s *RedisSettlementScheduler) Schedule(ctx context.Context, job models.ScheduledJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal scheduled job: %w", err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, schedulerQueueKey, redis.Z{Score: float64(job.FireAt.UnixMilli()), Member: job.ID})
		pipe.HSet(ctx, schedulerPayloadsKey, job.ID, data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", job.ID, err)
	}

	log.WithFields(log.Fields{
		"jobId":  job.ID,
		"job":    job.Name,
		"fireAt": job.FireAt,
	}).Debug("Scheduled job")
	return nil
}

func (s *RedisSettlementScheduler) Cancel(ctx context.Context, id string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, schedulerQueueKey, id)
		pipe.HDel(ctx, schedulerPayloadsKey, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to cancel job %s: %w", id, err)
	}
	return nil
}

func (s *RedisSettlementScheduler) Exists(ctx context.Context, id string) (bool, error) {
	err := s.rdb.ZScore(ctx, schedulerQueueKey, id).Err()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up job %s: %w", id, err)
	}
	return true, nil
}

// Run polls for due jobs until the context is cancelled
func (s *RedisSettlementScheduler) Run(ctx context.Context, fire FireFunc) error {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	log.WithField("pollInterval", s.config.PollInterval).Info("Settlement scheduler started")
	for {
		select {
		case <-ctx.Done():
			log.Info("Settlement scheduler stopped")
			return nil
		case <-ticker.C:
			if _, err := s.Sweep(ctx, fire); err != nil {
				log.WithError(err).Error("Settlement scheduler sweep failed")
			}
		}
	}
}

// Sweep fires every job due now and returns how many were claimed
func (s *RedisSettlementScheduler) Sweep(ctx context.Context, fire FireFunc) (int, error) {
	cutoff := strconv.FormatInt(s.now().UnixMilli(), 10)
	raw, err := claimDue.Run(ctx, s.rdb, []string{schedulerQueueKey, schedulerPayloadsKey}, cutoff, schedulerBatchSize).StringSlice()
	if err != nil {
		return 0, fmt.Errorf("failed to claim due jobs: %w", err)
	}

	for _, item := range raw {
		var job models.ScheduledJob
		if err := json.Unmarshal([]byte(item), &job); err != nil {
			log.WithError(err).Error("Dropping undecodable scheduled job")
			continue
		}

		if err := fire(ctx, job); err != nil {
			s.retry(ctx, job, err)
		}
	}
	return len(raw), nil
}

// retry puts a failed job back unless it ran out of attempts or was replaced meanwhile
func (s *RedisSettlementScheduler) retry(ctx context.Context, job models.ScheduledJob, cause error) {
	fields := log.Fields{
		"jobId":   job.ID,
		"job":     job.Name,
		"attempt": job.Attempt,
		"error":   cause,
	}

	if job.Attempt+1 >= s.config.MaxAttempts {
		log.WithFields(fields).Error("Scheduled job failed permanently")
		return
	}

	job.Attempt++
	job.FireAt = s.now().Add(s.config.RetryDelay)
	data, err := json.Marshal(job)
	if err != nil {
		log.WithFields(fields).WithError(err).Error("Failed to marshal retried job")
		return
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAddNX(ctx, schedulerQueueKey, redis.Z{Score: float64(job.FireAt.UnixMilli()), Member: job.ID})
		pipe.HSetNX(ctx, schedulerPayloadsKey, job.ID, data)
		return nil
	})
	if err != nil {
		log.WithFields(fields).WithError(err).Error("Failed to reschedule job")
		return
	}
	log.WithFields(fields).Warn("Scheduled job failed, retrying")
}

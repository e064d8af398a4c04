package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"wagerbook/config"
	"wagerbook/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisIdempotencyGuard(t *testing.T) {
	ctx := context.Background()
	rdb := setupRedis(t)
	guard := NewRedisIdempotencyGuard(rdb, config.IdempotencyConfig{
		WalletTTL: time.Minute,
		FiatTTL:   2 * time.Minute,
	})

	t.Run("second admission is a duplicate", func(t *testing.T) {
		first, err := guard.Admit(ctx, models.IdempotencyScopeFiat, "10:k1")
		require.NoError(t, err)
		second, err := guard.Admit(ctx, models.IdempotencyScopeFiat, "10:k1")
		require.NoError(t, err)

		assert.Equal(t, models.AdmissionFresh, first)
		assert.Equal(t, models.AdmissionDuplicate, second)

		raw, err := rdb.Get(ctx, idempotencyKey(models.IdempotencyScopeFiat, "10:k1")).Bytes()
		require.NoError(t, err)
		var record models.IdempotencyRecord
		require.NoError(t, json.Unmarshal(raw, &record))
		assert.Equal(t, models.IdempotencyStatusPending, record.Status)

		ttl, err := rdb.TTL(ctx, idempotencyKey(models.IdempotencyScopeFiat, "10:k1")).Result()
		require.NoError(t, err)
		assert.InDelta(t, (2 * time.Minute).Seconds(), ttl.Seconds(), 5)
	})

	t.Run("scopes are independent", func(t *testing.T) {
		_, err := guard.Admit(ctx, models.IdempotencyScopeWallet, "10:k2")
		require.NoError(t, err)
		admission, err := guard.Admit(ctx, models.IdempotencyScopeFiat, "10:k2")
		require.NoError(t, err)

		assert.Equal(t, models.AdmissionFresh, admission)
	})

	t.Run("release allows a retry", func(t *testing.T) {
		_, err := guard.Admit(ctx, models.IdempotencyScopeWallet, "10:k3")
		require.NoError(t, err)
		require.NoError(t, guard.Release(ctx, models.IdempotencyScopeWallet, "10:k3"))

		admission, err := guard.Admit(ctx, models.IdempotencyScopeWallet, "10:k3")
		require.NoError(t, err)
		assert.Equal(t, models.AdmissionFresh, admission)
	})

	t.Run("concurrent admissions admit exactly one", func(t *testing.T) {
		var fresh atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				admission, err := guard.Admit(ctx, models.IdempotencyScopeWallet, "10:race")
				if err == nil && admission == models.AdmissionFresh {
					fresh.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), fresh.Load())
	})

	t.Run("unknown scope", func(t *testing.T) {
		_, err := guard.Admit(ctx, "bogus", "k")
		assert.Error(t, err)
	})
}

func settleJob(t *testing.T, wagerID int64, fireAt time.Time) models.ScheduledJob {
	payload, err := json.Marshal(models.SettleWagerPayload{WagerID: wagerID, ClaimantID: 1, OpponentID: 2})
	require.NoError(t, err)
	return models.ScheduledJob{
		ID:      fmt.Sprintf("wager-%d", wagerID),
		Name:    models.JobSettleWager,
		Payload: payload,
		FireAt:  fireAt,
	}
}

func TestRedisSettlementScheduler(t *testing.T) {
	ctx := context.Background()
	rdb := setupRedis(t)

	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	newScheduler := func() *RedisSettlementScheduler {
		require.NoError(t, rdb.FlushDB(ctx).Err())
		s := NewRedisSettlementScheduler(rdb, config.SchedulerConfig{
			PollInterval: 10 * time.Millisecond,
			RetryDelay:   time.Minute,
			MaxAttempts:  3,
		})
		s.now = func() time.Time { return now }
		return s
	}

	t.Run("fires only due jobs", func(t *testing.T) {
		s := newScheduler()
		require.NoError(t, s.Schedule(ctx, settleJob(t, 1, now.Add(-time.Second))))
		require.NoError(t, s.Schedule(ctx, settleJob(t, 2, now.Add(time.Hour))))

		var fired []models.ScheduledJob
		n, err := s.Sweep(ctx, func(_ context.Context, job models.ScheduledJob) error {
			fired = append(fired, job)
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 1, n)
		require.Len(t, fired, 1)
		assert.Equal(t, "wager-1", fired[0].ID)

		var payload models.SettleWagerPayload
		require.NoError(t, json.Unmarshal(fired[0].Payload, &payload))
		assert.Equal(t, int64(1), payload.WagerID)

		exists, err := s.Exists(ctx, "wager-1")
		require.NoError(t, err)
		assert.False(t, exists)
		exists, err = s.Exists(ctx, "wager-2")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("scheduling the same id replaces the job", func(t *testing.T) {
		s := newScheduler()
		require.NoError(t, s.Schedule(ctx, settleJob(t, 3, now.Add(-time.Minute))))
		require.NoError(t, s.Schedule(ctx, settleJob(t, 3, now.Add(time.Hour))))

		n, err := s.Sweep(ctx, func(context.Context, models.ScheduledJob) error { return nil })

		require.NoError(t, err)
		assert.Zero(t, n)
		count, err := rdb.ZCard(ctx, schedulerQueueKey).Result()
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("cancelled jobs never fire", func(t *testing.T) {
		s := newScheduler()
		require.NoError(t, s.Schedule(ctx, settleJob(t, 4, now.Add(-time.Minute))))
		require.NoError(t, s.Cancel(ctx, "wager-4"))
		require.NoError(t, s.Cancel(ctx, "wager-404"))

		n, err := s.Sweep(ctx, func(context.Context, models.ScheduledJob) error { return nil })

		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("failed jobs are retried until attempts run out", func(t *testing.T) {
		s := newScheduler()
		require.NoError(t, s.Schedule(ctx, settleJob(t, 5, now.Add(-time.Second))))

		var attempts []int
		failing := func(_ context.Context, job models.ScheduledJob) error {
			attempts = append(attempts, job.Attempt)
			return fmt.Errorf("database unavailable")
		}

		for i := 0; i < 4; i++ {
			_, err := s.Sweep(ctx, failing)
			require.NoError(t, err)
			now = now.Add(2 * time.Minute)
		}

		assert.Equal(t, []int{0, 1, 2}, attempts)
		exists, err := s.Exists(ctx, "wager-5")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("run fires due jobs until cancelled", func(t *testing.T) {
		s := newScheduler()
		require.NoError(t, s.Schedule(ctx, settleJob(t, 6, now.Add(-time.Second))))

		runCtx, cancel := context.WithCancel(ctx)
		fired := make(chan string, 1)
		done := make(chan error, 1)
		go func() {
			done <- s.Run(runCtx, func(_ context.Context, job models.ScheduledJob) error {
				fired <- job.ID
				return nil
			})
		}()

		select {
		case id := <-fired:
			assert.Equal(t, "wager-6", id)
		case <-time.After(5 * time.Second):
			t.Fatal("scheduled job did not fire")
		}
		cancel()
		assert.NoError(t, <-done)
	})
}

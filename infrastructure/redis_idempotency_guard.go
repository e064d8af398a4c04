package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wagerbook/config"
	"wagerbook/models"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// RedisIdempotencyGuard admits each (scope, key) once per TTL window
type RedisIdempotencyGuard struct {
	rdb  *redis.Client
	ttls map[string]time.Duration
	now  func() time.Time
}

// NewRedisIdempotencyGuard creates a guard with per-scope TTLs
func NewRedisIdempotencyGuard(rdb *redis.Client, cfg config.IdempotencyConfig) *RedisIdempotencyGuard {
	return &RedisIdempotencyGuard{
		rdb: rdb,
		ttls: map[string]time.Duration{
			models.IdempotencyScopeWallet: cfg.WalletTTL,
			models.IdempotencyScopeFiat:   cfg.FiatTTL,
		},
		now: time.Now,
	}
}

func idempotencyKey(scope, key string) string {
	return fmt.Sprintf("idempotency:%s:%s", scope, key)
}

// Admit stores the key with SET NX so only the first caller is admitted
func (g *RedisIdempotencyGuard) Admit(ctx context.Context, scope, key string) (models.Admission, error) {
	ttl, ok := g.ttls[scope]
	if !ok {
		return models.AdmissionDuplicate, fmt.Errorf("unknown idempotency scope %q", scope)
	}

	record, err := json.Marshal(models.IdempotencyRecord{
		Status:    models.IdempotencyStatusPending,
		CreatedAt: g.now().UTC(),
	})
	if err != nil {
		return models.AdmissionDuplicate, fmt.Errorf("failed to marshal idempotency record: %w", err)
	}

	admitted, err := g.rdb.SetNX(ctx, idempotencyKey(scope, key), record, ttl).Result()
	if err != nil {
		return models.AdmissionDuplicate, fmt.Errorf("failed to store idempotency key: %w", err)
	}

	if !admitted {
		log.WithFields(log.Fields{
			"scope": scope,
			"key":   key,
		}).Info("Duplicate request suppressed")
		return models.AdmissionDuplicate, nil
	}
	return models.AdmissionFresh, nil
}

// Release deletes the key so the request can be retried
func (g *RedisIdempotencyGuard) Release(ctx context.Context, scope, key string) error {
	if err := g.rdb.Del(ctx, idempotencyKey(scope, key)).Err(); err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}

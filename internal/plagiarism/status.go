package plagiarism

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RishiKendai/twinscan/internal/infra/redis"
	"github.com/RishiKendai/twinscan/internal/models"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	statusKeyPrefix = "twinscan_run_status:"
	statusTTL       = 12 * time.Hour
)

var validSteps = map[models.Step]bool{
	models.StepIdle:        true,
	models.StepIngesting:   true,
	models.StepReady:       true,
	models.StepInitiated:   true,
	models.StepStarted:     true,
	models.StepNormalizing: true,
	models.StepScoring:     true,
	models.StepExporting:   true,
	models.StepCompleted:   true,
	models.StepFailed:      true,
}

func statusKey(corpusID string) string {
	return statusKeyPrefix + corpusID
}

func UpdateStatus(ctx context.Context, redisClient *redis.Client, corpusID string, step models.Step) error {
	if !validSteps[step] {
		return fmt.Errorf("unknown step: %s", step)
	}

	rkey := statusKey(corpusID)

	err := redisClient.Set(ctx, rkey, string(step), statusTTL).Err()
	if err != nil {
		log.Error().Err(err).
			Str("step", string(step)).
			Str("corpusId", corpusID).
			Str("redisKey", rkey).
			Msg("Failed to update status in Redis")
		return fmt.Errorf("failed to update status in Redis: %w", err)
	}

	log.Trace().
		Str("step", string(step)).
		Str("corpusId", corpusID).
		Msg("Status updated in Redis")

	return nil
}

// GetStatus returns the last recorded step, or idle when nothing is recorded
func GetStatus(ctx context.Context, redisClient *redis.Client, corpusID string) (models.Step, error) {
	val, err := redisClient.Get(ctx, statusKey(corpusID)).Result()
	if errors.Is(err, goredis.Nil) {
		return models.StepIdle, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read status from Redis: %w", err)
	}
	return models.Step(val), nil
}

// StatusTracker records run progress
type StatusTracker interface {
	UpdateStatus(ctx context.Context, corpusID string, step models.Step) error
	GetStatus(ctx context.Context, corpusID string) (models.Step, error)
}

// RedisStatus is the StatusTracker backed by Redis keys
type RedisStatus struct {
	client *redis.Client
}

func NewRedisStatus(client *redis.Client) *RedisStatus {
	return &RedisStatus{client: client}
}

func (s *RedisStatus) UpdateStatus(ctx context.Context, corpusID string, step models.Step) error {
	return UpdateStatus(ctx, s.client, corpusID, step)
}

func (s *RedisStatus) GetStatus(ctx context.Context, corpusID string) (models.Step, error) {
	return GetStatus(ctx, s.client, corpusID)
}

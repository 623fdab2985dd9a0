package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RishiKendai/twinscan/internal/preprocess"
	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// DeadLetterSink receives messages that exhausted their retries
type DeadLetterSink interface {
	Send(ctx context.Context, messageID string, fields map[string]interface{}, cause error) error
}

// RedisDeadLetter appends failed messages to a dead letter stream
type RedisDeadLetter struct {
	client *redis.Client
	key    string
}

func NewRedisDeadLetter(client *redis.Client, key string) *RedisDeadLetter {
	return &RedisDeadLetter{client: client, key: key}
}

func (d *RedisDeadLetter) Send(ctx context.Context, messageID string, fields map[string]interface{}, cause error) error {
	values := make(map[string]interface{}, len(fields)+3)
	for k, v := range fields {
		values[k] = v
	}
	values["original_id"] = messageID
	values["error"] = cause.Error()
	values["failed_at"] = time.Now().UTC().Format(time.RFC3339)

	err := d.client.XAdd(ctx, &redis.XAddArgs{Stream: d.key, Values: values}).Err()
	if err != nil {
		return fmt.Errorf("failed to add message to dead letter stream: %w", err)
	}
	return nil
}

type RetryHandler struct {
	sink            DeadLetterSink
	maxRetries      int
	initialInterval time.Duration
	maxInterval     time.Duration
}

func NewRetryHandler(sink DeadLetterSink, maxRetries int) *RetryHandler {
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return &RetryHandler{
		sink:            sink,
		maxRetries:      maxRetries,
		initialInterval: 500 * time.Millisecond,
		maxInterval:     10 * time.Second,
	}
}

// WithIntervals overrides the backoff bounds
func (h *RetryHandler) WithIntervals(initial, maxInterval time.Duration) *RetryHandler {
	h.initialInterval = initial
	h.maxInterval = maxInterval
	return h
}

// RetryWithBackoff runs fn until it succeeds or the attempts run out, then
// hands the message to the dead letter sink. Invalid submissions are not
// retried. Cancellation is returned as is and never dead-lettered.
func (h *RetryHandler) RetryWithBackoff(ctx context.Context, fn func() error, messageID string, fields map[string]interface{}) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = h.initialInterval
	b.MaxInterval = h.maxInterval

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := fn()
		if errors.Is(err, preprocess.ErrInvalidSubmission) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(h.maxRetries)),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn().Err(err).
				Str("message_id", messageID).
				Int("attempt", attempt).
				Dur("retry_in", next).
				Msg("Processing failed, retrying")
		}),
	)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	log.Error().Err(err).
		Str("message_id", messageID).
		Int("attempts", attempt).
		Msg("Processing failed permanently, moving to dead letter queue")
	if h.sink != nil {
		if dlqErr := h.sink.Send(ctx, messageID, fields, err); dlqErr != nil {
			log.Error().Err(dlqErr).Str("message_id", messageID).Msg("Failed to dead-letter message")
		}
	}
	return err
}

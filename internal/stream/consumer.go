package stream

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/RishiKendai/twinscan/internal/metrics"
	"github.com/RishiKendai/twinscan/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Processor stores one uploaded submission
type Processor interface {
	ProcessSubmission(ctx context.Context, submission *models.Submission) error
}

// StatusRecorder tracks which corpora are still receiving uploads
type StatusRecorder interface {
	UpdateStatus(ctx context.Context, corpusID string, step models.Step) error
	GetStatus(ctx context.Context, corpusID string) (models.Step, error)
}

// streamClient is the part of the redis client the consumer talks to
type streamClient interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAutoClaim(ctx context.Context, a *redis.XAutoClaimArgs) *redis.XAutoClaimCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
	XTrimMinID(ctx context.Context, key, minID string) *redis.IntCmd
}

const (
	readCount      = 10
	readBlock      = time.Second
	claimMinIdle   = time.Minute
	claimInterval  = 30 * time.Second
	trimInterval   = time.Hour
	errorPause     = time.Second
	claimBatchSize = 100
)

// Consumer turns upload messages into stored submissions and keeps each
// corpus marked as ingesting until its batch is stored
type Consumer struct {
	client    streamClient
	streamKey string
	group     string
	name      string
	processor Processor
	retry     *RetryHandler
	status    StatusRecorder
	retention time.Duration

	lastClaim time.Time
	lastTrim  time.Time
}

func NewConsumer(
	client streamClient,
	streamKey string,
	group string,
	name string,
	processor Processor,
	retry *RetryHandler,
	status StatusRecorder,
	retention time.Duration,
) *Consumer {
	return &Consumer{
		client:    client,
		streamKey: streamKey,
		group:     group,
		name:      name,
		processor: processor,
		retry:     retry,
		status:    status,
		retention: retention,
	}
}

// Start consumes until ctx is cancelled. Messages left pending by a
// crashed consumer are reclaimed first and then every claimInterval.
func (c *Consumer) Start(ctx context.Context) error {
	if err := c.ensureGroup(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to create consumer group")
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := c.poll(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Error consuming messages")
			select {
			case <-ctx.Done():
			case <-time.After(errorPause):
			}
		}
	}
}

func (c *Consumer) ensureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.streamKey, c.group, "$").Err()
	if err != nil {
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	log.Info().
		Str("group", c.group).
		Str("stream", c.streamKey).
		Msg("Created consumer group")
	return nil
}

// poll runs one iteration: housekeeping when due, then one read
func (c *Consumer) poll(ctx context.Context) error {
	now := time.Now()
	if now.Sub(c.lastClaim) >= claimInterval {
		c.lastClaim = now
		if err := c.reclaim(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to reclaim pending messages")
		}
	}
	if c.retention > 0 && now.Sub(c.lastTrim) >= trimInterval {
		c.lastTrim = now
		if err := c.trim(ctx, now); err != nil {
			log.Warn().Err(err).Msg("Failed to trim stream")
		}
	}

	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.name,
		Streams:  []string{c.streamKey, ">"},
		Count:    readCount,
		Block:    readBlock,
	}).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read from stream: %w", err)
	}

	for _, s := range streams {
		if s.Stream == c.streamKey {
			c.handleBatch(ctx, s.Messages)
		}
	}
	return nil
}

// reclaim takes over messages idle in another consumer's pending list
func (c *Consumer) reclaim(ctx context.Context) error {
	msgs, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.streamKey,
		Group:    c.group,
		Consumer: c.name,
		MinIdle:  claimMinIdle,
		Start:    "0-0",
		Count:    claimBatchSize,
	}).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to claim pending messages: %w", err)
	}
	if len(msgs) > 0 {
		log.Info().Int("claimed", len(msgs)).Msg("Reclaimed pending messages")
		c.handleBatch(ctx, msgs)
	}
	return nil
}

// trim drops entries older than the retention window
func (c *Consumer) trim(ctx context.Context, now time.Time) error {
	cutoff := now.Add(-c.retention)
	trimmed, err := c.client.XTrimMinID(ctx, c.streamKey, fmt.Sprintf("%d-0", cutoff.UnixMilli())).Result()
	if err != nil {
		return fmt.Errorf("failed to trim stream: %w", err)
	}
	if trimmed > 0 {
		log.Debug().
			Int64("trimmed", trimmed).
			Time("cutoff", cutoff).
			Msg("Trimmed old messages from stream")
	}
	return nil
}

// handleBatch stores every message of one read. A corpus is marked
// ingesting before its first message and ready once the batch is done.
func (c *Consumer) handleBatch(ctx context.Context, msgs []redis.XMessage) {
	var corpora []string
	seen := make(map[string]bool)

	for i := range msgs {
		c.handle(ctx, &msgs[i], func(corpusID string) {
			if !seen[corpusID] {
				seen[corpusID] = true
				corpora = append(corpora, corpusID)
				c.mark(ctx, corpusID, models.StepIngesting)
			}
		})
	}

	if ctx.Err() != nil {
		return
	}
	for _, corpusID := range corpora {
		c.mark(ctx, corpusID, models.StepReady)
	}
}

// handle processes one message and acknowledges it unless the run was
// cancelled mid-retry. begin is called once the corpus is known.
func (c *Consumer) handle(ctx context.Context, msg *redis.XMessage, begin func(corpusID string)) {
	fields := make(map[string]string, len(msg.Values))
	raw := make(map[string]interface{}, len(msg.Values))
	for k, v := range msg.Values {
		raw[k] = v
		if s, ok := v.(string); ok {
			fields[k] = s
		}
	}

	submission, err := ParseSubmission(&StreamMessage{ID: msg.ID, Fields: fields})
	if err != nil {
		log.Error().Err(err).Str("message_id", msg.ID).Msg("Failed to parse submission")
		metrics.SubmissionsIngested.WithLabelValues("invalid").Inc()
		c.ack(ctx, msg.ID)
		return
	}
	begin(submission.CorpusID)

	err = c.retry.RetryWithBackoff(ctx, func() error {
		return c.processor.ProcessSubmission(ctx, submission)
	}, msg.ID, raw)
	switch {
	case err == nil:
		metrics.SubmissionsIngested.WithLabelValues("success").Inc()
		log.Debug().
			Str("message_id", msg.ID).
			Str("corpusId", submission.CorpusID).
			Str("name", submission.Name).
			Msg("Submission stored")
	case ctx.Err() != nil:
		// stays pending; reclaimed after restart
		return
	default:
		metrics.SubmissionsIngested.WithLabelValues("dead_letter").Inc()
	}
	c.ack(ctx, msg.ID)
}

// mark records an ingestion step unless a comparison run owns the status
func (c *Consumer) mark(ctx context.Context, corpusID string, step models.Step) {
	if c.status == nil {
		return
	}
	current, err := c.status.GetStatus(ctx, corpusID)
	if err != nil {
		log.Warn().Err(err).Str("corpusId", corpusID).Msg("Failed to read status")
		return
	}
	if current.Running() {
		return
	}
	if err := c.status.UpdateStatus(ctx, corpusID, step); err != nil {
		log.Warn().Err(err).
			Str("corpusId", corpusID).
			Str("step", string(step)).
			Msg("Failed to update ingestion status")
	}
}

func (c *Consumer) ack(ctx context.Context, messageID string) {
	if err := c.client.XAck(ctx, c.streamKey, c.group, messageID).Err(); err != nil {
		log.Error().Err(err).Str("message_id", messageID).Msg("Failed to acknowledge message")
	}
}

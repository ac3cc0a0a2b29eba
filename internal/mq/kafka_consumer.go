package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/IWhitebird/trophy-leaderboard/config"
	"github.com/IWhitebird/trophy-leaderboard/internal/logging"
	"github.com/IWhitebird/trophy-leaderboard/internal/metrics"
	"github.com/IWhitebird/trophy-leaderboard/internal/models"
	"github.com/IWhitebird/trophy-leaderboard/internal/ranking"
)

const (
	fetchTimeout      = 100 * time.Millisecond
	applyMaxAttempts  = 3
	applyRetryBackoff = 200 * time.Millisecond
)

// ScoreApplier applies one score delta. *ranking.Engine satisfies it.
type ScoreApplier interface {
	ApplyScoreDelta(ctx context.Context, playerID string, delta int64, patch *models.AttributesPatch) (models.ScoreUpdate, error)
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer reads score events from the scores topic and applies them to
// the ranking engine. Offsets are committed after the whole batch has been
// handled, so a crash replays at most one batch. Events the engine could not
// apply because it was unavailable hold the batch: they are retried before
// anything new is fetched, and the batch is committed once they succeed.
type KafkaConsumer struct {
	reader    messageReader
	applier   ScoreApplier
	batchSize int
	timeout   time.Duration
	topic     string

	maxAttempts  int
	retryBackoff time.Duration
	started      atomic.Bool
	done         chan struct{}

	// Owned by the fetch loop.
	held    []kafka.Message
	pending []kafka.Message
}

func NewKafkaConsumer(cfg *config.AppConfig, applier ScoreApplier) (*KafkaConsumer, error) {
	topic := cfg.Kafka.ScoresTopic

	// Retry connecting to Kafka
	maxRetries := 5
	var err error
	for i := range maxRetries {
		if err = checkTopic(cfg.Kafka.Brokers, topic); err == nil {
			break
		}
		logging.Error("Failed to connect consumer to Kafka", "attempt", i+1, "max", maxRetries, "error", err)
		time.Sleep(time.Duration(i+1) * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect consumer to Kafka after %d attempts: %w", maxRetries, err)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:         cfg.Kafka.Brokers,
		Topic:           topic,
		GroupID:         cfg.Kafka.ConsumerGroup,
		MinBytes:        10e3, // 10KB
		MaxBytes:        10e6, // 10MB
		ReadLagInterval: time.Second * 5,
		MaxWait:         time.Second * 3,
		StartOffset:     kafka.FirstOffset,
		SessionTimeout:  time.Second * 10,
	})
	logging.Info("Created Kafka consumer", "topic", topic, "group", cfg.Kafka.ConsumerGroup)

	return newKafkaConsumer(reader, applier, topic, cfg.Kafka.BatchSize, time.Duration(cfg.Kafka.BatchTimeout)*time.Second), nil
}

func newKafkaConsumer(reader messageReader, applier ScoreApplier, topic string, batchSize int, timeout time.Duration) *KafkaConsumer {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &KafkaConsumer{
		reader:       reader,
		applier:      applier,
		batchSize:    max(batchSize, 1),
		timeout:      timeout,
		topic:        topic,
		maxAttempts:  applyMaxAttempts,
		retryBackoff: applyRetryBackoff,
		done:         make(chan struct{}),
	}
}

// checkTopic dials the first broker and warns when the topic is missing.
func checkTopic(brokers []string, topic string) error {
	if len(brokers) == 0 {
		return errors.New("no Kafka brokers configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("failed to connect to Kafka broker: %w", err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions(topic)
	if err != nil || len(partitions) == 0 {
		logging.Warn("Topic does not exist yet, consumer will wait for it", "topic", topic)
	}
	return nil
}

// StartConsumer runs the fetch loop until ctx is cancelled.
func (c *KafkaConsumer) StartConsumer(ctx context.Context) {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	logging.Info("Starting Kafka consumer", "topic", c.topic)

	go func() {
		defer close(c.done)

		for {
			select {
			case <-ctx.Done():
				logging.Info("Kafka consumer shutting down")
				return
			default:
				if err := c.processBatch(ctx); err != nil {
					logging.Error("Error processing batch", "error", err)
					time.Sleep(time.Second * 2)
				}
			}
		}
	}()
}

func (c *KafkaConsumer) processBatch(ctx context.Context) error {
	if len(c.pending) > 0 {
		return c.retryHeld(context.WithoutCancel(ctx))
	}

	batch := make([]kafka.Message, 0, c.batchSize)
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

collect:
	for len(batch) < c.batchSize {
		select {
		case <-timer.C:
			break collect
		case <-ctx.Done():
			break collect
		default:
		}

		fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
		message, err := c.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			return fmt.Errorf("error fetching message from Kafka: %w", err)
		}
		batch = append(batch, message)
	}

	if len(batch) == 0 {
		return nil
	}

	// A fetched batch is finished even when shutdown has begun.
	return c.applyBatch(context.WithoutCancel(ctx), batch)
}

func (c *KafkaConsumer) applyBatch(ctx context.Context, batch []kafka.Message) error {
	c.held = batch
	c.pending = c.applyAll(ctx, batch)
	return c.commitHeld(ctx)
}

// retryHeld re-applies only the events that failed last time, so events
// already applied from the held batch are not counted twice.
func (c *KafkaConsumer) retryHeld(ctx context.Context) error {
	c.pending = c.applyAll(ctx, c.pending)
	return c.commitHeld(ctx)
}

// applyAll returns the messages that failed because the engine was
// unavailable.
func (c *KafkaConsumer) applyAll(ctx context.Context, messages []kafka.Message) []kafka.Message {
	var failed []kafka.Message
	for _, message := range messages {
		if err := c.handle(ctx, message); errors.Is(err, ranking.ErrRankingUnavailable) {
			failed = append(failed, message)
		}
	}
	logging.Debug("Applied score events", "applied", len(messages)-len(failed), "received", len(messages))
	return failed
}

func (c *KafkaConsumer) commitHeld(ctx context.Context) error {
	if len(c.pending) > 0 {
		return fmt.Errorf("holding batch of %d, %d score events not applied: %w", len(c.held), len(c.pending), ranking.ErrRankingUnavailable)
	}

	held := c.held
	c.held = nil
	if err := c.reader.CommitMessages(ctx, held...); err != nil {
		return fmt.Errorf("error committing messages: %w", err)
	}
	return nil
}

// handle applies one message. Malformed events and events the engine rejects
// are logged and dropped; an unavailable engine is retried a few times and
// then reported so the batch is held.
func (c *KafkaConsumer) handle(ctx context.Context, message kafka.Message) error {
	event, err := DecodeScoreEvent(message.Value)
	if err != nil {
		logging.Error("Dropping malformed score event", "partition", message.Partition, "offset", message.Offset, "error", err)
		metrics.RecordScoreEvent("malformed")
		return err
	}

	for attempt := 1; ; attempt++ {
		_, err = c.applier.ApplyScoreDelta(ctx, event.PlayerID, event.Delta, event.Attributes)
		if err == nil {
			metrics.RecordScoreEvent("applied")
			return nil
		}
		if !errors.Is(err, ranking.ErrRankingUnavailable) || attempt >= c.maxAttempts {
			break
		}
		time.Sleep(time.Duration(attempt) * c.retryBackoff)
	}

	if errors.Is(err, ranking.ErrRankingUnavailable) {
		logging.Warn("Engine unavailable, holding score event", "event_id", event.EventID, "player_id", event.PlayerID, "error", err)
		metrics.RecordScoreEvent("deferred")
		return err
	}
	logging.Error("Failed to apply score event", "event_id", event.EventID, "player_id", event.PlayerID, "delta", event.Delta, "error", err)
	metrics.RecordScoreEvent("failed")
	return err
}

// DecodeScoreEvent parses a JSON score event.
func DecodeScoreEvent(data []byte) (models.ScoreEvent, error) {
	var event models.ScoreEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return models.ScoreEvent{}, fmt.Errorf("decode score event: %w", err)
	}
	if event.PlayerID == "" {
		return models.ScoreEvent{}, errors.New("decode score event: missing player_id")
	}
	return event, nil
}

// Close waits for a started fetch loop to stop, then closes the reader.
// Cancel the context passed to StartConsumer first.
func (c *KafkaConsumer) Close(ctx context.Context) error {
	if c.started.Load() {
		select {
		case <-c.done:
		case <-ctx.Done():
		}
	}
	if c.reader != nil {
		return c.reader.Close()
	}
	return nil
}

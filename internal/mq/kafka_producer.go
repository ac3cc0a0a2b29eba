package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/IWhitebird/trophy-leaderboard/config"
	"github.com/IWhitebird/trophy-leaderboard/internal/logging"
	"github.com/IWhitebird/trophy-leaderboard/internal/metrics"
	"github.com/IWhitebird/trophy-leaderboard/internal/models"
)

var (
	ErrProducerClosed    = errors.New("producer not connected")
	ErrProducerQueueFull = errors.New("producer queue full")
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer publishes score events. Messages are keyed by player id so a
// player's deltas land on one partition and are consumed in order.
type KafkaProducer struct {
	writer        messageWriter
	topic         string
	connected     bool
	eventChan     chan models.ScoreEvent
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	batchSize     int
	flushInterval time.Duration
	mu            sync.RWMutex
}

func NewKafkaProducer(cfg *config.AppConfig) (*KafkaProducer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, errors.New("no Kafka brokers configured")
	}

	// Retry logic for connecting to Kafka
	maxRetries := 5
	var err error
	for i := range maxRetries {
		if err = ping(cfg.Kafka.Brokers[0]); err == nil {
			break
		}
		logging.Error("Failed to connect producer to Kafka", "attempt", i+1, "max", maxRetries, "error", err)
		time.Sleep(time.Duration(i+1) * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Kafka after %d attempts: %w", maxRetries, err)
	}

	if err := ensureTopicExists(cfg.Kafka.Brokers[0], cfg.Kafka.ScoresTopic); err != nil {
		logging.Warn("Could not verify topic exists", "topic", cfg.Kafka.ScoresTopic, "error", err)
	}

	batchSize := max(cfg.Kafka.BatchSize, 1)
	writer := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.ScoresTopic,
		Balancer: &kafka.Hash{},

		BatchSize:    batchSize,
		BatchBytes:   1024 * 1024,
		BatchTimeout: 10 * time.Millisecond,

		RequiredAcks: kafka.RequireOne,
		WriteTimeout: 30 * time.Second,
		ReadTimeout:  10 * time.Second,
		Compression:  kafka.Snappy,
		MaxAttempts:  3,
	}
	logging.Info("Connected Kafka producer", "topic", cfg.Kafka.ScoresTopic)

	return newKafkaProducer(writer, cfg.Kafka.ScoresTopic, batchSize, 10*time.Millisecond, 10000), nil
}

func newKafkaProducer(writer messageWriter, topic string, batchSize int, flushInterval time.Duration, queueSize int) *KafkaProducer {
	ctx, cancel := context.WithCancel(context.Background())
	p := &KafkaProducer{
		writer:        writer,
		topic:         topic,
		connected:     true,
		eventChan:     make(chan models.ScoreEvent, max(queueSize, 1)),
		ctx:           ctx,
		cancel:        cancel,
		batchSize:     max(batchSize, 1),
		flushInterval: flushInterval,
	}
	p.startBatchProcessor()
	return p
}

func ping(broker string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := kafka.DialContext(ctx, "tcp", broker)
	if err != nil {
		return fmt.Errorf("failed to connect to Kafka broker: %w", err)
	}
	return conn.Close()
}

// ensureTopicExists creates the topic through the controller when missing.
func ensureTopicExists(broker, topic string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := kafka.DialContext(ctx, "tcp", broker)
	if err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions(topic)
	if err == nil && len(partitions) > 0 {
		logging.Info("Kafka topic already exists", "topic", topic)
		return nil
	}

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("failed to get controller: %w", err)
	}

	controllerConn, err := kafka.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	if err != nil {
		return fmt.Errorf("failed to connect to controller: %w", err)
	}
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     8,
		ReplicationFactor: 1,
	})
	if err != nil {
		return fmt.Errorf("failed to create topic: %w", err)
	}
	logging.Info("Created Kafka topic", "topic", topic, "partitions", 8)
	return nil
}

func (p *KafkaProducer) startBatchProcessor() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		batch := make([]models.ScoreEvent, 0, p.batchSize)
		ticker := time.NewTicker(p.flushInterval)
		defer ticker.Stop()

		for {
			select {
			case event := <-p.eventChan:
				batch = append(batch, event)
				if len(batch) >= p.batchSize {
					p.flushBatch(batch)
					batch = batch[:0]
				}

			case <-ticker.C:
				if len(batch) > 0 {
					p.flushBatch(batch)
					batch = batch[:0]
				}

			case <-p.ctx.Done():
				for {
					select {
					case event := <-p.eventChan:
						batch = append(batch, event)
					default:
						p.flushBatch(batch)
						return
					}
				}
			}
		}
	}()
}

func (p *KafkaProducer) flushBatch(events []models.ScoreEvent) {
	if len(events) == 0 {
		return
	}

	messages := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		value, err := json.Marshal(event)
		if err != nil {
			logging.Error("Error marshaling score event", "event_id", event.EventID, "error", err)
			metrics.RecordEventsPublished(1, false)
			continue
		}
		messages = append(messages, kafka.Message{
			Key:   []byte(event.PlayerID),
			Value: value,
			Time:  event.Timestamp,
		})
	}

	// Not tied to the HTTP request that queued the events.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		logging.Error("Error sending score events to Kafka", "count", len(messages), "took", time.Since(start), "error", err)
		metrics.RecordEventsPublished(len(messages), false)
		return
	}
	logging.Debug("Sent score events to Kafka", "count", len(messages), "took", time.Since(start))
	metrics.RecordEventsPublished(len(messages), true)
}

// NewScoreEvent stamps a delta with a fresh event id and the current time.
func NewScoreEvent(playerID string, delta int64, patch *models.AttributesPatch) models.ScoreEvent {
	return models.ScoreEvent{
		EventID:    uuid.NewString(),
		PlayerID:   playerID,
		Delta:      delta,
		Attributes: patch,
		Timestamp:  time.Now().UTC(),
	}
}

// SendScore queues event without blocking.
func (p *KafkaProducer) SendScore(_ context.Context, event models.ScoreEvent) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.connected {
		return ErrProducerClosed
	}

	select {
	case p.eventChan <- event:
		return nil
	default:
		return ErrProducerQueueFull
	}
}

// QueueDepth reports events waiting for the batch processor.
func (p *KafkaProducer) QueueDepth() int {
	return len(p.eventChan)
}

// Close flushes queued events and closes the writer.
func (p *KafkaProducer) Close() error {
	p.mu.Lock()
	if !p.connected {
		p.mu.Unlock()
		return nil
	}
	p.connected = false
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()

	logging.Info("Kafka producer shutdown complete")
	return p.writer.Close()
}

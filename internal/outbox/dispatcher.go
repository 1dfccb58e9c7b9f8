// Package outbox persists and delivers measurement events to Kafka.
package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

type schemaRegistrar interface {
	EnsureSchema(context.Context, string, string) (int, error)
}

// Queue is the durable side of the outbox: claiming unpublished rows, marking
// them published and parking failures in the dead-letter table.
type Queue interface {
	Claim(ctx context.Context, limit int) ([]Message, error)
	MarkPublished(ctx context.Context, eventIDs []int64) error
	DeadLetter(ctx context.Context, msg Message, reason string) error
}

// Dispatcher drains the outbox and delivers events to Kafka using Schema Registry ids.
type Dispatcher struct {
	queue            Queue
	producer         messageWriter
	registry         schemaRegistrar
	pollInterval     time.Duration
	batchSize        int
	logger           *zap.Logger
	shutdownComplete chan struct{}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(queue Queue, producer messageWriter, registry schemaRegistrar, pollInterval time.Duration, batchSize int, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if batchSize <= 0 {
		batchSize = 25
	}
	return &Dispatcher{
		queue:            queue,
		producer:         producer,
		registry:         registry,
		pollInterval:     pollInterval,
		batchSize:        batchSize,
		logger:           logger,
		shutdownComplete: make(chan struct{}),
	}
}

// Start launches the polling loop. It should be called in a goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer func() {
		ticker.Stop()
		close(d.shutdownComplete)
	}()

	for {
		if err := d.processBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("outbox dispatcher", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait waits until dispatcher stops.
func (d *Dispatcher) Wait() {
	<-d.shutdownComplete
}

func (d *Dispatcher) processBatch(ctx context.Context) error {
	start := time.Now()

	messages, err := d.queue.Claim(ctx, d.batchSize)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}
	defer func() { batchDuration.Observe(time.Since(start).Seconds()) }()

	if err := d.deliver(ctx, messages); err != nil {
		d.logger.Warn("outbox delivery failure", zap.Int("messages", len(messages)), zap.Error(err))
		failedCounter.Add(float64(len(messages)))
		for _, msg := range messages {
			reason := fmt.Sprintf("%s (topic=%s)", err.Error(), msg.Topic)
			if dlqErr := d.queue.DeadLetter(ctx, msg, reason); dlqErr != nil {
				return dlqErr
			}
			dlqCounter.WithLabelValues(msg.Topic).Inc()
		}
		return d.queue.MarkPublished(ctx, eventIDs(messages))
	}

	deliveredCounter.Add(float64(len(messages)))
	return d.queue.MarkPublished(ctx, eventIDs(messages))
}

func (d *Dispatcher) deliver(ctx context.Context, messages []Message) error {
	batches := make(map[string][]kafka.Message)
	order := make([]string, 0)

	for _, msg := range messages {
		schema, ok := schemaCatalog[msg.EventType]
		if !ok {
			return fmt.Errorf("no schema metadata for event_type=%s", msg.EventType)
		}

		schemaID, err := d.registry.EnsureSchema(ctx, msg.SchemaSubject, schema)
		if err != nil {
			return err
		}

		record := kafka.Message{
			Key:   []byte(msg.PartitionKey),
			Value: encodeWireFormat(schemaID, msg.Payload),
			Time:  time.Now().UTC(),
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(msg.EventType)},
				{Key: "user_id", Value: []byte(msg.UserID)},
				{Key: "schema_subject", Value: []byte(msg.SchemaSubject)},
			},
		}

		if _, exists := batches[msg.Topic]; !exists {
			order = append(order, msg.Topic)
		}
		batches[msg.Topic] = append(batches[msg.Topic], record)
	}

	for _, topic := range order {
		if err := d.producer.WriteMessages(ctx, topic, batches[topic]...); err != nil {
			return err
		}
	}
	return nil
}

// Message represents a row fetched from outbox.
type Message struct {
	EventID       int64
	UserID        string
	AggregateType string
	AggregateID   string
	EventType     string
	Topic         string
	SchemaSubject string
	PartitionKey  string
	Payload       json.RawMessage
}

func eventIDs(messages []Message) []int64 {
	ids := make([]int64, 0, len(messages))
	for _, msg := range messages {
		ids = append(ids, msg.EventID)
	}
	return ids
}

// encodeWireFormat applies Confluent framing for Schema Registry aware payloads.
func encodeWireFormat(schemaID int, payload []byte) []byte {
	frame := make([]byte, 5+len(payload))
	frame[0] = 0
	binary.BigEndian.PutUint32(frame[1:5], uint32(schemaID))
	copy(frame[5:], payload)
	return frame
}

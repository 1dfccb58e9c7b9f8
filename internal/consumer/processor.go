// Package consumer reads measurement events back off Kafka and hands them to
// downstream handlers such as the audit log.
package consumer

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

// Reader exposes the subset of kafka.Reader used by the processor.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded messages.
type Handler interface {
	Handle(context.Context, Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(context.Context, Message) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, msg Message) error { return f(ctx, msg) }

// Message is a Kafka record framed by the outbox dispatcher.
type Message struct {
	Topic         string
	Partition     int
	Offset        int64
	Timestamp     time.Time
	EventType     string
	UserID        string
	SchemaSubject string
	SchemaID      int
	Payload       json.RawMessage
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger overrides the processor logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Processor pulls messages, decodes them and dispatches to a Handler. Offsets
// are committed only after the handler succeeds; malformed records are
// committed straight away so they cannot wedge the partition.
type Processor struct {
	reader  Reader
	handler Handler
	logger  *zap.Logger
}

// NewProcessor constructs a Processor.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{reader: reader, handler: handler, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run blocks until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			p.logger.Warn("fetch error", zap.Error(err))
			continue
		}

		event, decodeErr := decodeMessage(msg)
		if decodeErr != nil {
			p.logger.Warn("decode error",
				zap.String("topic", msg.Topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(decodeErr))
			recordDecodeError(msg.Topic)
			if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
				p.logger.Warn("commit error after decode failure", zap.Error(commitErr))
			}
			continue
		}

		if handleErr := p.handler.Handle(ctx, event); handleErr != nil {
			p.logger.Error("handler error",
				zap.String("event_type", event.EventType),
				zap.String("user_id", event.UserID),
				zap.Error(handleErr))
			recordHandlerError(event)
			continue
		}

		if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
			p.logger.Warn("commit error", zap.Error(commitErr))
			continue
		}
		recordProcessed(event)
	}
}

func decodeMessage(msg kafka.Message) (Message, error) {
	if len(msg.Value) < 5 {
		return Message{}, fmt.Errorf("invalid payload length: %d", len(msg.Value))
	}
	if msg.Value[0] != 0 {
		return Message{}, fmt.Errorf("unknown magic byte %d", msg.Value[0])
	}

	eventType, ok := headerValue(msg, "event_type")
	if !ok {
		return Message{}, errors.New("missing event_type header")
	}
	userID, _ := headerValue(msg, "user_id")
	schemaSubject, _ := headerValue(msg, "schema_subject")

	payload := json.RawMessage(append([]byte(nil), msg.Value[5:]...))
	if !json.Valid(payload) {
		return Message{}, errors.New("payload is not valid json")
	}

	return Message{
		Topic:         msg.Topic,
		Partition:     msg.Partition,
		Offset:        msg.Offset,
		Timestamp:     msg.Time,
		EventType:     string(eventType),
		UserID:        string(userID),
		SchemaSubject: string(schemaSubject),
		SchemaID:      int(binary.BigEndian.Uint32(msg.Value[1:5])),
		Payload:       payload,
	}, nil
}

func headerValue(msg kafka.Message, key string) ([]byte, bool) {
	for _, header := range msg.Headers {
		if header.Key == key {
			return header.Value, true
		}
	}
	return nil, false
}

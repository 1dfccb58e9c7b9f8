package outbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaProducer keeps one writer per topic. Messages are hashed on their key
// so every event of a user lands on the same partition in order.
type KafkaProducer struct {
	brokers      []string
	batchTimeout time.Duration
	mu           sync.Mutex
	writers      map[string]*kafka.Writer
}

// NewKafkaProducer creates a KafkaProducer.
func NewKafkaProducer(brokers []string) *KafkaProducer {
	return &KafkaProducer{
		brokers:      brokers,
		batchTimeout: 50 * time.Millisecond,
		writers:      make(map[string]*kafka.Writer),
	}
}

// WriteMessages writes messages to the given topic.
func (p *KafkaProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	writer, err := p.writerFor(topic)
	if err != nil {
		return err
	}
	return writer.WriteMessages(ctx, msgs...)
}

func (p *KafkaProducer) writerFor(topic string) (*kafka.Writer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.writers == nil {
		return nil, errors.New("kafka producer closed")
	}
	if writer, ok := p.writers[topic]; ok {
		return writer, nil
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(p.brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		Compression:            kafka.Snappy,
		BatchTimeout:           p.batchTimeout,
		AllowAutoTopicCreation: true,
	}
	p.writers[topic] = writer
	return writer, nil
}

// Close flushes and releases every writer. Later writes fail.
func (p *KafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	for _, writer := range p.writers {
		err = errors.Join(err, writer.Close())
	}
	p.writers = nil
	return err
}

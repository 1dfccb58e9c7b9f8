//go:build integration

package consumer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkacontainer "github.com/testcontainers/testcontainers-go/modules/kafka"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap/zaptest"

	"github.com/igorgomez/medidascorporais/internal/domain"
	"github.com/igorgomez/medidascorporais/internal/events"
	"github.com/igorgomez/medidascorporais/internal/outbox"
	"github.com/igorgomez/medidascorporais/internal/persistence/postgres"
)

func TestOutboxEventReachesEventLogThroughKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()

	kafkaC, err := kafkacontainer.Run(ctx, "confluentinc/confluent-local:7.5.0", testcontainers.WithEnv(map[string]string{
		"KAFKA_AUTO_CREATE_TOPICS_ENABLE": "true",
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kafkaC.Terminate(context.Background()) })
	brokers, err := kafkaC.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)

	pg, err := postgrescontainer.Run(ctx, "postgres:16-alpine",
		postgrescontainer.WithDatabase("medidas"),
		postgrescontainer.WithUsername("medidas"),
		postgrescontainer.WithPassword("medidas"),
		postgrescontainer.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(context.Background()) })
	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	pool, err := postgres.Connect(ctx, connStr, 30*time.Second)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, postgres.Migrate(ctx, pool))

	registry := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.schemaregistry.v1+json")
		_, _ = w.Write([]byte(`{"id":7}`))
	}))
	t.Cleanup(registry.Close)

	conn, err := kafka.Dial("tcp", brokers[0])
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.CreateTopics(kafka.TopicConfig{
		Topic:             "measurement_events",
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))

	userID := uuid.NewString()
	m, _, err := postgres.NewRepository(pool).Create(ctx, userID, domain.NewMeasurement{
		Date:   time.Date(2025, time.March, 14, 11, 30, 0, 0, time.UTC),
		Values: domain.Values{Weight: "72.5", Waist: "81"},
	}, "")
	require.NoError(t, err)

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	producer := outbox.NewKafkaProducer(brokers)
	defer producer.Close()
	dispatcher := outbox.NewDispatcher(outbox.NewPGQueue(pool), producer, outbox.NewSchemaRegistryClient(registry.URL), 200*time.Millisecond, 10, zaptest.NewLogger(t))
	go dispatcher.Start(runCtx)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     "event-log-integration",
		Topic:       "measurement_events",
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	defer reader.Close()
	proc := NewProcessor(reader, NewEventLogHandler(pool), WithLogger(zaptest.NewLogger(t)))
	procDone := make(chan struct{})
	go func() {
		defer close(procDone)
		_ = proc.Run(runCtx)
	}()

	var (
		eventType string
		schemaID  int
		payload   []byte
	)
	require.Eventually(t, func() bool {
		err := pool.QueryRow(ctx,
			`SELECT event_type, schema_id, payload FROM measurement_event_log WHERE user_id = $1`, userID,
		).Scan(&eventType, &schemaID, &payload)
		return err == nil
	}, time.Minute, 500*time.Millisecond)

	require.Equal(t, events.TypeMeasurementCreated, eventType)
	require.Equal(t, 7, schemaID)
	var created events.MeasurementCreated
	require.NoError(t, json.Unmarshal(payload, &created))
	require.Equal(t, m.ID, created.MeasurementID)
	require.Equal(t, "72.5", created.Values["weight"])

	var pending int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NULL`).Scan(&pending))
	require.Zero(t, pending)

	stop()
	dispatcher.Wait()
	<-procDone
}

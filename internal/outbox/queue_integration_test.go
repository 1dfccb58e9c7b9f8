//go:build integration

package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap/zaptest"

	"github.com/igorgomez/medidascorporais/internal/domain"
	"github.com/igorgomez/medidascorporais/internal/persistence/postgres"
)

func TestDispatcherDeadLettersAndManagerRequeues(t *testing.T) {
	ctx := context.Background()

	pg, err := postgrescontainer.Run(ctx, "postgres:16-alpine",
		postgrescontainer.WithDatabase("medidas"),
		postgrescontainer.WithUsername("medidas"),
		postgrescontainer.WithPassword("medidas"),
		postgrescontainer.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	pool, err := postgres.Connect(ctx, connStr, 30*time.Second)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, postgres.Migrate(ctx, pool))

	userID := uuid.NewString()
	_, _, err = postgres.NewRepository(pool).Create(ctx, userID, domain.NewMeasurement{Date: time.Now().UTC(), Values: domain.Values{Weight: "70"}}, "")
	require.NoError(t, err)

	queue := NewPGQueue(pool)
	failing := &stubProducer{err: errors.New("broker unavailable")}
	d := NewDispatcher(queue, failing, &stubRegistry{ids: map[string]int{"measurement_events-value": 1}}, time.Second, 10, zaptest.NewLogger(t))
	require.NoError(t, d.processBatch(ctx))

	var pending, dlq int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NULL`).Scan(&pending))
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq WHERE user_id=$1`, userID).Scan(&dlq))
	require.Zero(t, pending)
	require.Equal(t, 1, dlq)

	manager := NewDLQManager(pool, 3, time.Second, zaptest.NewLogger(t))
	requeued, err := manager.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, requeued)

	working := &stubProducer{}
	d = NewDispatcher(queue, working, &stubRegistry{ids: map[string]int{"measurement_events-value": 1}}, time.Second, 10, zaptest.NewLogger(t))
	require.NoError(t, d.processBatch(ctx))
	require.Len(t, working.written["measurement_events"], 1)

	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq`).Scan(&dlq))
	require.Zero(t, dlq)
}

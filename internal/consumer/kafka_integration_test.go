//go:build integration

package consumer

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkaContainer "github.com/testcontainers/testcontainers-go/modules/kafka"

	"example.com/attendance/internal/domain"
	"example.com/attendance/internal/events"
	"example.com/attendance/internal/outbox"
	persistence "example.com/attendance/internal/persistence/postgres"
)

func TestTransitionsFlowFromOutboxThroughKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()

	kafkaC, err := kafkaContainer.RunContainer(ctx, testcontainers.WithEnv(map[string]string{
		"KAFKA_AUTO_CREATE_TOPICS_ENABLE": "true",
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kafkaC.Terminate(context.Background()) })

	brokers, err := kafkaC.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)

	const topic = "attendance_events"
	conn, err := kafka.Dial("tcp", brokers[0])
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.CreateTopics(kafka.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1}))

	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	quiet := log.New(io.Discard, "", 0)
	producer := outbox.NewKafkaProducer(brokers)
	defer producer.Close()
	dispatcher := outbox.NewDispatcher(pool, producer, fixedRegistry{id: 9}, 50*time.Millisecond, 10, outbox.WithLogger(quiet))

	runCtx, stop := context.WithCancel(ctx)
	go dispatcher.Start(runCtx)
	defer func() {
		stop()
		dispatcher.Wait()
	}()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     "attendance-integration",
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	defer reader.Close()

	inv := &lockedInvalidator{}
	proc := NewProcessor(reader, Handlers{NewPersistenceHandler(pool), NewInvalidationHandler(inv)}, WithLogger(quiet))
	go func() { _ = proc.Run(runCtx) }()

	service := domain.NewService(persistence.NewRepository(pool))
	userID := uuid.NewString()
	entry := time.Date(2025, 3, 4, 8, 2, 0, 0, time.UTC)

	record, err := service.ClockIn(ctx, domain.ClockInInput{UserID: userID, At: entry})
	require.NoError(t, err)
	_, err = service.Transition(ctx, domain.TransitionInput{
		RecordID:   record.ID,
		UserID:     userID,
		Transition: domain.TransitionBreakStart,
		At:         entry.Add(2 * time.Hour),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		var n int
		err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM attendance_event_log WHERE user_id = $1`, userID).Scan(&n)
		return err == nil && n == 2
	}, 60*time.Second, 500*time.Millisecond)

	var eventType, schemaSubject string
	var schemaID int
	var payload []byte
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT event_type, schema_id, schema_subject, payload FROM attendance_event_log
          WHERE user_id = $1 ORDER BY record_offset DESC LIMIT 1`, userID).Scan(&eventType, &schemaID, &schemaSubject, &payload))
	require.Equal(t, events.TypeAttendanceTransitioned, eventType)
	require.Equal(t, 9, schemaID)
	require.Equal(t, "attendance_events-value", schemaSubject)

	last, err := events.DecodeTransitioned(payload)
	require.NoError(t, err)
	require.Equal(t, "break_start", last.Transition)
	require.Equal(t, string(domain.StateWorking), last.FromState)
	require.Equal(t, string(domain.StateOnBreak), last.ToState)

	require.Eventually(t, func() bool { return len(inv.snapshot()) == 2 }, 30*time.Second, 200*time.Millisecond)
	require.Equal(t, []string{
		fmt.Sprintf("clock_in %s for %s on 2025-03-04", record.ID, userID),
		fmt.Sprintf("break_start %s for %s on 2025-03-04", record.ID, userID),
	}, inv.snapshot())
}

type fixedRegistry struct {
	id int
}

func (r fixedRegistry) EnsureSchema(context.Context, string, string) (int, error) {
	return r.id, nil
}

type lockedInvalidator struct {
	mu      sync.Mutex
	reasons []string
}

func (l *lockedInvalidator) Invalidate(_ context.Context, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reasons = append(l.reasons, reason)
	return nil
}

func (l *lockedInvalidator) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.reasons...)
}

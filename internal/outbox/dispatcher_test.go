package outbox

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/attendance/internal/events"
)

type recordingWriter struct {
	topics   []string
	messages map[string][]kafka.Message
	err      error
}

func (w *recordingWriter) WriteMessages(_ context.Context, topic string, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	if w.messages == nil {
		w.messages = make(map[string][]kafka.Message)
	}
	w.topics = append(w.topics, topic)
	w.messages[topic] = append(w.messages[topic], msgs...)
	return nil
}

type countingRegistry struct {
	calls int
	id    int
}

func (r *countingRegistry) EnsureSchema(context.Context, string, string) (int, error) {
	r.calls++
	return r.id, nil
}

func newTestDispatcher(writer messageWriter, registry schemaRegistrar) *Dispatcher {
	return NewDispatcher(nil, writer, registry, 0, 10, WithLogger(log.New(io.Discard, "", 0)))
}

func transitionMessage(id int64, user string) Message {
	return Message{
		EventID:       id,
		AggregateType: "attendance_record",
		AggregateID:   "rec-1",
		EventType:     events.TypeAttendanceTransitioned,
		Topic:         "attendance_events",
		SchemaSubject: "attendance_events-value",
		PartitionKey:  user,
		Payload:       []byte(`{"record_id":"rec-1","user_id":"` + user + `","date":"2025-03-03","transition":"clock_in"}`),
	}
}

func TestDeliverFramesAndCachesSchema(t *testing.T) {
	writer := &recordingWriter{}
	registry := &countingRegistry{id: 42}
	d := newTestDispatcher(writer, registry)

	err := d.deliver(context.Background(), []Message{transitionMessage(1, "user-1"), transitionMessage(2, "user-2")})
	require.NoError(t, err)
	require.Equal(t, 1, registry.calls)
	require.Equal(t, []string{"attendance_events"}, writer.topics)

	msgs := writer.messages["attendance_events"]
	require.Len(t, msgs, 2)
	require.Equal(t, byte(0), msgs[0].Value[0])
	require.Equal(t, uint32(42), binary.BigEndian.Uint32(msgs[0].Value[1:5]))
	require.JSONEq(t, `{"record_id":"rec-1","user_id":"user-1","date":"2025-03-03","transition":"clock_in"}`, string(msgs[0].Value[5:]))
	require.Equal(t, "user-2", string(msgs[1].Key))

	headers := map[string]string{}
	for _, h := range msgs[0].Headers {
		headers[h.Key] = string(h.Value)
	}
	require.Equal(t, events.TypeAttendanceTransitioned, headers["event_type"])
	require.Equal(t, "user-1", headers["user_id"])
	require.Equal(t, "attendance_events-value", headers["schema_subject"])
	require.Equal(t, "clock_in", headers[events.HeaderTransition])
	require.Equal(t, "2025-03-03", headers[events.HeaderWorkDate])

	require.NoError(t, d.deliver(context.Background(), []Message{transitionMessage(3, "user-1")}))
	require.Equal(t, 1, registry.calls)
}

func TestHeadersForSkipsUndecodablePayloads(t *testing.T) {
	msg := transitionMessage(1, "user-1")
	msg.Payload = []byte(`{"record_id":"rec-1","transition":"nap"}`)

	headers := headersFor(msg)
	require.Len(t, headers, 4)
	for _, h := range headers {
		require.NotEqual(t, events.HeaderTransition, h.Key)
	}
}

func TestDeliverRejectsUnknownEventType(t *testing.T) {
	d := newTestDispatcher(&recordingWriter{}, &countingRegistry{})
	msg := transitionMessage(1, "user-1")
	msg.EventType = "attendance.unknown"

	err := d.deliver(context.Background(), []Message{msg})
	require.ErrorContains(t, err, "no schema metadata")
}

func TestDeliverSurfacesWriterErrors(t *testing.T) {
	boom := errors.New("broker down")
	d := newTestDispatcher(&recordingWriter{err: boom}, &countingRegistry{id: 1})

	err := d.deliver(context.Background(), []Message{transitionMessage(1, "user-1")})
	require.ErrorIs(t, err, boom)
}

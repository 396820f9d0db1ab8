// Package consumer reads attendance events from Kafka and hands them to downstream handlers.
package consumer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/attendance/internal/events"
)

// Reader exposes the minimal kafka.Reader interface needed by the processor.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded messages from Kafka.
type Handler interface {
	Handle(context.Context, Message) error
}

// Message is the decoded representation of a Kafka record emitted by the outbox dispatcher.
type Message struct {
	Topic         string
	Partition     int
	Offset        int64
	Timestamp     time.Time
	EventType     string
	AggregateID   string
	UserID        string
	SchemaSubject string
	SchemaID      int
	Payload       json.RawMessage
	// Transition is set for attendance.transitioned events.
	Transition *events.AttendanceTransitioned
}

// TransitionName returns the transition carried by msg, or "none".
func (m Message) TransitionName() string {
	if m.Transition == nil {
		return "none"
	}
	return m.Transition.Transition
}

// decodeError tags a decode failure with the stage that rejected the record.
type decodeError struct {
	stage string
	err   error
}

func (e *decodeError) Error() string { return e.stage + ": " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

func decodeFailure(stage string, format string, args ...interface{}) error {
	return &decodeError{stage: stage, err: fmt.Errorf(format, args...)}
}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *log.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// Processor pulls messages from Kafka, decodes them, and dispatches to a Handler.
type Processor struct {
	reader  Reader
	handler Handler
	logger  *log.Logger
}

// NewProcessor constructs a Processor with the provided reader and handler.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:  reader,
		handler: handler,
		logger:  log.New(log.Writer(), "[consumer] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run starts a blocking loop that processes Kafka messages until the context is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			p.logger.Printf("fetch error: %v", err)
			continue
		}

		event, decodeErr := decodeMessage(msg)
		if decodeErr != nil {
			p.logger.Printf("decode error (topic=%s, partition=%d, offset=%d): %v", msg.Topic, msg.Partition, msg.Offset, decodeErr)
			recordDecodeError(msg.Topic, decodeErr)
			// Commit malformed messages to avoid poison-pill loops.
			if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
				p.logger.Printf("commit error after decode failure: %v", commitErr)
			}
			continue
		}

		if handleErr := p.handler.Handle(ctx, event); handleErr != nil {
			p.logger.Printf("handler error (event_type=%s, transition=%s, record=%s, user=%s, offset=%d): %v",
				event.EventType, event.TransitionName(), event.AggregateID, event.UserID, event.Offset, handleErr)
			recordHandlerError(event)
			continue
		}

		if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
			p.logger.Printf("commit error: %v", commitErr)
		} else {
			recordProcessed(event)
		}
	}
}

func decodeMessage(msg kafka.Message) (Message, error) {
	if len(msg.Value) < 5 {
		return Message{}, decodeFailure("framing", "invalid payload length: %d", len(msg.Value))
	}
	if msg.Value[0] != 0 {
		return Message{}, decodeFailure("framing", "unknown wire format magic byte %d", msg.Value[0])
	}

	eventType, ok := headerValue(msg, events.HeaderEventType)
	if !ok {
		return Message{}, decodeFailure("headers", "missing %s header", events.HeaderEventType)
	}
	aggregateID, _ := headerValue(msg, events.HeaderAggregateID)
	userID, _ := headerValue(msg, events.HeaderUserID)
	schemaSubject, _ := headerValue(msg, events.HeaderSchemaSubject)

	schemaID := int(binary.BigEndian.Uint32(msg.Value[1:5]))
	payload := json.RawMessage(append([]byte(nil), msg.Value[5:]...))
	if !json.Valid(payload) {
		return Message{}, decodeFailure("payload", "payload is not valid JSON")
	}

	decoded := Message{
		Topic:         msg.Topic,
		Partition:     msg.Partition,
		Offset:        msg.Offset,
		Timestamp:     msg.Time,
		EventType:     string(eventType),
		AggregateID:   string(aggregateID),
		UserID:        string(userID),
		SchemaSubject: string(schemaSubject),
		SchemaID:      schemaID,
		Payload:       payload,
	}
	if decoded.EventType != events.TypeAttendanceTransitioned {
		return decoded, nil
	}

	event, err := events.DecodeTransitioned(payload)
	if err != nil {
		return Message{}, &decodeError{stage: "payload", err: err}
	}
	if err := reconcile(&decoded, &event, msg); err != nil {
		return Message{}, err
	}
	decoded.Transition = &event
	return decoded, nil
}

// reconcile fills identifiers missing on either side and rejects records whose
// headers disagree with the payload they carry.
func reconcile(decoded *Message, event *events.AttendanceTransitioned, msg kafka.Message) error {
	if decoded.AggregateID == "" {
		decoded.AggregateID = event.RecordID
	} else if decoded.AggregateID != event.RecordID {
		return decodeFailure("headers", "%s header %q does not match record %q", events.HeaderAggregateID, decoded.AggregateID, event.RecordID)
	}

	switch {
	case event.UserID == "":
		event.UserID = decoded.UserID
	case decoded.UserID == "":
		decoded.UserID = event.UserID
	case decoded.UserID != event.UserID:
		return decodeFailure("headers", "%s header %q does not match payload user %q", events.HeaderUserID, decoded.UserID, event.UserID)
	}

	if transition, ok := headerValue(msg, events.HeaderTransition); ok && string(transition) != event.Transition {
		return decodeFailure("headers", "%s header %q does not match payload transition %q", events.HeaderTransition, transition, event.Transition)
	}
	return nil
}

func headerValue(msg kafka.Message, key string) ([]byte, bool) {
	for _, header := range msg.Headers {
		if header.Key == key {
			return header.Value, true
		}
	}
	return nil, false
}

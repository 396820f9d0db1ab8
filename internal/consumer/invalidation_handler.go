package consumer

import (
	"context"
	"errors"
	"fmt"

	"example.com/attendance/internal/cache"
	"example.com/attendance/internal/events"
)

// InvalidationHandler drops query caches whenever a record changes so readers
// do not keep serving a pre-transition listing for the rest of the TTL.
type InvalidationHandler struct {
	invalidator cache.Invalidator
}

// NewInvalidationHandler constructs an InvalidationHandler.
func NewInvalidationHandler(invalidator cache.Invalidator) *InvalidationHandler {
	return &InvalidationHandler{invalidator: invalidator}
}

// Handle invalidates on attendance transitions and ignores other event types.
func (h *InvalidationHandler) Handle(ctx context.Context, msg Message) error {
	if msg.EventType != events.TypeAttendanceTransitioned {
		return nil
	}
	event := msg.Transition
	if event == nil {
		return errors.New("attendance transition was not decoded")
	}
	return h.invalidator.Invalidate(ctx, fmt.Sprintf("%s %s for %s on %s", event.Transition, event.RecordID, event.UserID, event.Date))
}

// Handlers runs every handler in order and stops at the first failure, leaving
// the message uncommitted.
type Handlers []Handler

func (hs Handlers) Handle(ctx context.Context, msg Message) error {
	for _, h := range hs {
		if err := h.Handle(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

package session

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported session events.
type ActivityEventType string

const (
	ActivityEventLogin       ActivityEventType = "session.login"
	ActivityEventLogout      ActivityEventType = "session.logout"
	ActivityEventValidated   ActivityEventType = "session.validated"
	ActivityEventInvalidated ActivityEventType = "session.invalidated"
	ActivityEventRestored    ActivityEventType = "session.restored"
	ActivityEventRepaired    ActivityEventType = "session.repaired"
	ActivityEventStale       ActivityEventType = "session.validation.stale"
)

// ActivityEvent captures audit-friendly information about a session change.
type ActivityEvent struct {
	EventType  ActivityEventType
	UserID     int64
	Kind       Kind
	Generation uint64
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes session events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// LoggerActivitySink writes every event to a Logger at info level.
func LoggerActivitySink(logger Logger) ActivitySink {
	if logger == nil {
		logger = defLogger{}
	}
	return ActivitySinkFunc(func(_ context.Context, event ActivityEvent) error {
		logger.Info("activity %s user=%d kind=%s gen=%d meta=%v",
			event.EventType, event.UserID, event.Kind, event.Generation, event.Metadata)
		return nil
	})
}

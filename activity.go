package auth

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventAccountRegistered        ActivityEventType = "account.registered"
	ActivityEventAccountActivated         ActivityEventType = "account.activated"
	ActivityEventActivationExpired        ActivityEventType = "account.activation_expired"
	ActivityEventAccountStatusChanged     ActivityEventType = "account.status.changed"
	ActivityEventAccountRoleChanged       ActivityEventType = "account.role.changed"
	ActivityEventLoginSuccess             ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure             ActivityEventType = "auth.login.failure"
	ActivityEventLogout                   ActivityEventType = "auth.logout"
	ActivityEventPasswordResetRequested   ActivityEventType = "auth.password.reset_requested"
	ActivityEventPasswordResetSuccess     ActivityEventType = "auth.password.reset"
	ActivityEventPasswordUpdated          ActivityEventType = "auth.password.updated"
	ActivityEventRememberMeCompromised    ActivityEventType = "auth.remember_me.compromised"
	ActivityEventRememberMeSessionRevived ActivityEventType = "auth.remember_me.revived"
)

// ActivityEvent captures audit-friendly information about an action.
// It never carries passwords, keys or tokens.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	UserID     string
	FromStatus AccountStatus
	ToStatus   AccountStatus
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
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

// recordActivity is best effort, sink failures are only logged
func recordActivity(ctx context.Context, sink ActivitySink, logger Logger, event ActivityEvent) {
	if err := sink.Record(ctx, event); err != nil {
		logger.Warn("activity sink failed for %s: %v", event.EventType, err)
	}
}

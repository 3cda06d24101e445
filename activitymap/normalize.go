// Package activitymap flattens auth activity events into records suited for
// audit logs and downstream consumers.
package activitymap

import (
	"context"
	"strings"
	"time"

	auth "github.com/goliatone/go-shop-auth"
)

// Outcome tells whether the audited action went through
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// metadata keys set by the auth services
const (
	keyActivationSent = "activation_sent"
	keyDelivered      = "delivered"
	keyError          = "error"
	keyAuthority      = "authority"
	keyGrantedBy      = "granted_by"
)

// Record is the flattened form of an auth.ActivityEvent
type Record struct {
	Action     string    `json:"action"`
	Outcome    Outcome   `json:"outcome"`
	UserID     string    `json:"user_id,omitempty"`
	Identifier string    `json:"identifier,omitempty"`
	// Delivered is set only for events that tried to send an activation code
	Delivered  *bool     `json:"delivered,omitempty"`
	Authority  string    `json:"authority,omitempty"`
	GrantedBy  string    `json:"granted_by,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Normalize maps event into a Record. Failed logins have no user id and are
// identified by the identifier that was tried.
func Normalize(event auth.ActivityEvent) Record {
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	record := Record{
		Action:     strings.TrimPrefix(string(event.EventType), "auth."),
		Outcome:    outcome(event.EventType),
		UserID:     strings.TrimSpace(event.UserID),
		Identifier: strings.TrimSpace(event.Identifier),
		Delivered:  delivered(event),
		Authority:  stringValue(event.Metadata, keyAuthority),
		GrantedBy:  stringValue(event.Metadata, keyGrantedBy),
		OccurredAt: occurredAt,
	}
	if record.Outcome == OutcomeFailed {
		record.Reason = stringValue(event.Metadata, keyError)
	}
	return record
}

// NewSink adapts emit into an auth.ActivitySink
func NewSink(emit func(ctx context.Context, record Record) error) auth.ActivitySink {
	return auth.ActivitySinkFunc(func(ctx context.Context, event auth.ActivityEvent) error {
		if emit == nil {
			return nil
		}
		return emit(ctx, Normalize(event))
	})
}

func outcome(eventType auth.ActivityEventType) Outcome {
	switch eventType {
	case auth.ActivityEventLoginFailure, auth.ActivityEventActivationDelivery:
		return OutcomeFailed
	}
	return OutcomeSucceeded
}

func delivered(event auth.ActivityEvent) *bool {
	if event.EventType == auth.ActivityEventActivationDelivery {
		sent := false
		return &sent
	}
	for _, key := range []string{keyActivationSent, keyDelivered} {
		if sent, ok := event.Metadata[key].(bool); ok {
			return &sent
		}
	}
	return nil
}

func stringValue(metadata map[string]any, key string) string {
	value, _ := metadata[key].(string)
	return strings.TrimSpace(value)
}

// Package events records and publishes session lifecycle events.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	SessionCreated     = "session.created"
	SessionStarted     = "session.started"
	SessionCompleted   = "session.completed"
	SessionCancelled   = "session.cancelled"
	SessionNoShow      = "session.no_show"
	SessionRescheduled = "session.rescheduled"
	ScheduleReplaced   = "schedule.replaced"
)

type Event struct {
	Type        string
	AggregateID uuid.UUID
	Payload     map[string]any
	OccurredAt  time.Time
}

// Publisher delivers an event to one sink.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type nopPublisher struct{}

// Nop discards every event.
func Nop() Publisher { return nopPublisher{} }

func (nopPublisher) Publish(context.Context, Event) error { return nil }

type fanout []Publisher

// Fanout publishes to every sink and joins their errors.
func Fanout(sinks ...Publisher) Publisher {
	return fanout(sinks)
}

func (f fanout) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

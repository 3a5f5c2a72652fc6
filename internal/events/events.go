// Package events publishes domain events after a mutation commits, so other
// services (search indexers, notification fan-out, realtime gateways) can
// follow changes without polling the database.
//
// Publishing is best-effort: the system of record is already updated when an
// event is emitted, and a failed publish is logged, never surfaced.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Type names an event.
type Type string

const (
	MessageCreated       Type = "message.created"
	MessageEdited        Type = "message.edited"
	MessageDeleted       Type = "message.deleted"
	MessagePinned        Type = "message.pinned"
	ReactionToggled      Type = "reaction.toggled"
	DirectMessageCreated Type = "direct_message.created"
	MemberJoined         Type = "channel.member_joined"
	MemberLeft           Type = "channel.member_left"
	WorkspaceMemberAdded Type = "workspace.member_added"
	StatusChanged        Type = "user.status_changed"
)

// Event is the envelope written to the topic.
type Event struct {
	Type      Type      `json:"type"`
	ActorID   uuid.UUID `json:"actor_id"`
	ChannelID uuid.UUID `json:"channel_id,omitempty"`
	// Subject is the id of the thing the event is about (message id, user
	// id, ...), as a string because its type varies per event.
	Subject string    `json:"subject"`
	Data    any       `json:"data,omitempty"`
	At      time.Time `json:"at"`
}

// PartitionKey keeps every event of one channel on one partition, so
// consumers see a channel's events in order. Events without a channel are
// keyed by actor.
func (e Event) PartitionKey() string {
	if e.ChannelID != uuid.Nil {
		return e.ChannelID.String()
	}
	return e.ActorID.String()
}

// Publisher emits events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Emit publishes ev and logs a failure instead of returning it.
func Emit(ctx context.Context, p Publisher, logger *zap.Logger, ev Event) {
	if p == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	if err := p.Publish(ctx, ev); err != nil {
		logger.Warn("event publish failed",
			zap.String("type", string(ev.Type)),
			zap.String("subject", ev.Subject),
			zap.Error(err),
		)
	}
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of what has been published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType filters Events by type.
func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// EventType is the kind of row change
type EventType string

const (
	Insert EventType = "INSERT"
	Update EventType = "UPDATE"
	Delete EventType = "DELETE"
)

// Event is a row-level change notification as delivered by the backend
type Event struct {
	Table           string          `json:"table"`
	EventType       EventType       `json:"eventType"`
	New             json.RawMessage `json:"new,omitempty"`
	Old             json.RawMessage `json:"old,omitempty"`
	CommitTimestamp time.Time       `json:"commit_timestamp"`
	// Origin identifies the process that published the event
	Origin string `json:"origin,omitempty"`
}

// Publisher accepts change events. Publishing is best effort.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// NopPublisher discards events
type NopPublisher struct{}

// Publish implements Publisher
func (NopPublisher) Publish(context.Context, Event) {}

// NewEvent marshals the new and old rows of a change. Either row may be nil.
func NewEvent(table string, eventType EventType, newRow, oldRow interface{}) (Event, error) {
	ev := Event{
		Table:           table,
		EventType:       eventType,
		CommitTimestamp: time.Now().UTC(),
	}

	if newRow != nil {
		raw, err := json.Marshal(newRow)
		if err != nil {
			return Event{}, fmt.Errorf("marshal new row: %w", err)
		}
		ev.New = raw
	}
	if oldRow != nil {
		raw, err := json.Marshal(oldRow)
		if err != nil {
			return Event{}, fmt.Errorf("marshal old row: %w", err)
		}
		ev.Old = raw
	}

	return ev, nil
}

// Keyed rows carry a primary key
type Keyed interface {
	Key() string
}

// ChangeEvent is an Event decoded into a row type
type ChangeEvent[T Keyed] struct {
	Type EventType
	New  *T
	Old  *T
}

// Decode converts an Event into a typed ChangeEvent
func Decode[T Keyed](ev Event) (ChangeEvent[T], error) {
	ce := ChangeEvent[T]{Type: ev.EventType}

	if len(ev.New) > 0 && string(ev.New) != "null" {
		var row T
		if err := json.Unmarshal(ev.New, &row); err != nil {
			return ce, fmt.Errorf("decode %s new row: %w", ev.Table, err)
		}
		ce.New = &row
	}
	if len(ev.Old) > 0 && string(ev.Old) != "null" {
		var row T
		if err := json.Unmarshal(ev.Old, &row); err != nil {
			return ce, fmt.Errorf("decode %s old row: %w", ev.Table, err)
		}
		ce.Old = &row
	}

	return ce, nil
}

// Package notify records session events and fans them out to realtime transports.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/victornm/judgeboard/internal/domain"
	"github.com/victornm/judgeboard/internal/event"
	"github.com/victornm/judgeboard/internal/session"
	"github.com/victornm/judgeboard/internal/store"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// Message is the wire form of a session event pushed to subscribers.
type Message struct {
	Event     string          `json:"event"`
	Seq       int64           `json:"seq"`
	SessionID string          `json:"session_id"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
}

func NewMessage(e domain.SessionEvent) Message {
	return Message{
		Event:     e.Type,
		Seq:       e.Seq,
		SessionID: e.SessionID,
		Data:      e.Data,
		CreatedAt: e.CreatedAt,
	}
}

func marshalMessage(e domain.SessionEvent) ([]byte, error) {
	b, err := json.Marshal(NewMessage(e))
	if err != nil {
		return nil, fmt.Errorf("notify: marshal %s: %w", e.Type, err)
	}
	return b, nil
}

type Store interface {
	store.SessionStore
	store.EventStore
}

// Recorder appends events to the session event log, then publishes the stored record on the bus.
// It implements event.Emitter.
type Recorder struct {
	st  Store
	bus *event.Bus
}

var _ event.Emitter = (*Recorder)(nil)

func NewRecorder(st Store, bus *event.Bus) *Recorder {
	return &Recorder{
		st:  st,
		bus: bus,
	}
}

func (r *Recorder) Emit(ctx context.Context, sessionID string, e event.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("notify: marshal %s: %w", e.Name(), err)
	}

	se := &domain.SessionEvent{
		SessionID: sessionID,
		Type:      e.Name(),
		Data:      data,
	}
	if err := r.st.AppendEvent(ctx, se); err != nil {
		return fmt.Errorf("notify: append %s: %w", e.Name(), err)
	}

	if r.bus != nil {
		r.bus.Publish(ctx, *se)
	}

	return nil
}

type ListEventsRequest struct {
	SessionID string
	// After is the last sequence number the caller has seen.
	After int64
	Limit int
}

// ListEvents returns the session events after the given sequence number, oldest first.
func (r *Recorder) ListEvents(ctx context.Context, req ListEventsRequest) ([]domain.SessionEvent, error) {
	if _, err := session.Find(ctx, r.st, req.SessionID); err != nil {
		return nil, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)

	es, err := r.st.ListEvents(ctx, req.SessionID, req.After, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	return es, nil
}

func sessionEvent(e event.Event) (domain.SessionEvent, bool) {
	se, ok := e.(domain.SessionEvent)
	return se, ok
}

package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/dyluth/deck/pkg/deck"
)

// Publisher mirrors channel broadcasts to an external event stream.
// *deck.RedisBackend implements it.
type Publisher interface {
	Publish(ctx context.Context, ev *deck.Event) error
}

// Fanout delivers outbound events to the members of a channel.
type Fanout struct {
	registry  *Registry
	publisher Publisher
	now       func() time.Time
}

// NewFanout creates a fanout over registry. publisher may be nil.
func NewFanout(registry *Registry, publisher Publisher) *Fanout {
	return &Fanout{
		registry:  registry,
		publisher: publisher,
		now:       time.Now,
	}
}

// Registry returns the registry the fanout delivers to.
func (f *Fanout) Registry() *Registry {
	return f.registry
}

// Emit sends the event to every member of the document's channel. A member
// that cannot accept the event is logged and skipped; the others still get it.
// Returns the number of members the event was queued for.
func (f *Fanout) Emit(ctx context.Context, documentID, event string, payload interface{}) (int, error) {
	env, err := NewEnvelope(event, payload)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, conn := range f.registry.Members(documentID) {
		if _, err := f.registry.send(documentID, conn, env); err != nil {
			log.Printf("[Fanout] Failed to deliver %s to connection %s on document %s: %v",
				event, conn.ID(), documentID, err)
			continue
		}
		delivered++
	}

	if f.publisher != nil {
		ev := &deck.Event{
			DocumentID:  documentID,
			Name:        event,
			Data:        env.Data,
			TimestampMs: f.now().UnixMilli(),
		}
		if err := f.publisher.Publish(ctx, ev); err != nil {
			log.Printf("[Fanout] Failed to publish %s for document %s: %v", event, documentID, err)
		}
	}

	return delivered, nil
}

// EmitTo sends the event to a single connection.
func (f *Fanout) EmitTo(conn Conn, event string, payload interface{}) error {
	env, err := NewEnvelope(event, payload)
	if err != nil {
		return err
	}

	if err := deliver(conn, env); err != nil {
		return fmt.Errorf("failed to deliver %s to connection %s: %w", event, conn.ID(), err)
	}
	return nil
}

// Admit sends a joining connection its snapshot, followed by the broadcasts
// held for it since Registry.JoinPending.
func (f *Fanout) Admit(documentID string, conn Conn, event string, payload interface{}) error {
	env, err := NewEnvelope(event, payload)
	if err != nil {
		return err
	}

	if err := f.registry.Admit(documentID, conn, env); err != nil {
		return fmt.Errorf("failed to deliver %s to connection %s: %w", event, conn.ID(), err)
	}
	return nil
}

// deliver sends env to conn, turning a panicking transport into an error.
func deliver(conn Conn, env deck.Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("send panicked: %v", r)
		}
	}()
	return conn.Send(env)
}

// NewEnvelope marshals payload into a wire envelope.
func NewEnvelope(event string, payload interface{}) (deck.Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return deck.Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	return deck.Envelope{Event: event, Data: data}, nil
}

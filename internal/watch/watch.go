// Package watch streams the broadcasts of a deck instance to a terminal.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dyluth/deck/pkg/deck"
)

// Format selects how events are written.
type Format string

const (
	// FormatDefault writes one human-readable line per event
	FormatDefault Format = "default"

	// FormatJSONL writes each event as a JSON object per line
	FormatJSONL Format = "jsonl"
)

// EventSource is a live feed of document events, such as *deck.Subscription.
type EventSource interface {
	Events() <-chan *deck.Event
	Errors() <-chan error
}

// Options filters and formats a stream.
type Options struct {
	DocumentID string // Only events for this document, empty = all
	Format     Format

	// OnError receives feed errors such as undecodable messages. The stream
	// continues after them. Nil drops them.
	OnError func(error)
}

// Stream writes events from src to w until ctx is done or the feed closes.
// Returns the number of events written.
func Stream(ctx context.Context, src EventSource, w io.Writer, opts Options) (int, error) {
	if opts.Format == "" {
		opts.Format = FormatDefault
	}
	if opts.Format != FormatDefault && opts.Format != FormatJSONL {
		return 0, fmt.Errorf("unknown output format: %s", opts.Format)
	}

	events := src.Events()
	errs := src.Errors()
	written := 0

	for {
		select {
		case <-ctx.Done():
			return written, nil

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if opts.OnError != nil {
				opts.OnError(err)
			}

		case ev, ok := <-events:
			if !ok {
				return written, nil
			}
			if opts.DocumentID != "" && ev.DocumentID != opts.DocumentID {
				continue
			}
			if err := writeEvent(w, ev, opts.Format); err != nil {
				return written, err
			}
			written++
		}
	}
}

func writeEvent(w io.Writer, ev *deck.Event, format Format) error {
	if format == FormatJSONL {
		if err := json.NewEncoder(w).Encode(ev); err != nil {
			return fmt.Errorf("failed to write event: %w", err)
		}
		return nil
	}

	ts := time.UnixMilli(ev.TimestampMs).Format("15:04:05")
	if _, err := fmt.Fprintf(w, "%s  %-8s  %-20s  %s\n", ts, shortID(ev.DocumentID), ev.Name, Describe(ev)); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}

// Describe summarizes an event's payload in a few words.
func Describe(ev *deck.Event) string {
	switch ev.Name {
	case deck.EventParticipantsChanged:
		var users []deck.Participant
		if err := json.Unmarshal(ev.Data, &users); err != nil {
			return "malformed payload"
		}
		return fmt.Sprintf("%d participants", len(users))

	case deck.EventDocumentChanged:
		var doc deck.Document
		if err := json.Unmarshal(ev.Data, &doc); err != nil {
			return "malformed payload"
		}
		return fmt.Sprintf("%d slides, version %d", doc.SlideCount(), doc.Version)

	case deck.EventSlideUpdated:
		var update deck.SlideUpdatedPayload
		if err := json.Unmarshal(ev.Data, &update); err != nil {
			return "malformed payload"
		}
		return fmt.Sprintf("slide %d, %d elements", update.SlideIndex+1, len(update.Elements))

	default:
		return ""
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

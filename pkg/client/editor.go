package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dyluth/deck/pkg/deck"
	"github.com/dyluth/deck/pkg/reconcile"
)

var (
	// ErrNoDocument is returned by edits before the first snapshot arrived.
	ErrNoDocument = errors.New("no document loaded")

	// ErrReadOnly is returned when the local participant may not edit.
	ErrReadOnly = errors.New("participant cannot edit")
)

// ServerError is an error event sent by the server.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "server error: " + e.Message
}

// SlideSender is the part of Client an Editor needs.
type SlideSender interface {
	UpdateSlide(presentationID string, slideIndex int, elements []deck.Element) error
}

// Editor is one participant's view of a document. Server events and local
// edits both flow through its History; local edits are applied optimistically
// and sent to the server.
type Editor struct {
	sender SlideSender
	userID string

	mu      sync.Mutex
	doc     *deck.Document
	history *reconcile.History
}

// NewEditor creates an editor for userID. capacity bounds the undo stack; 0
// means reconcile.DefaultCapacity.
func NewEditor(sender SlideSender, userID string, capacity int) *Editor {
	return &Editor{
		sender:  sender,
		userID:  userID,
		history: reconcile.NewHistory(nil, capacity),
	}
}

// Run applies events until the channel closes or ctx is done. Server error
// events are handed to onError when it is set.
func (e *Editor) Run(ctx context.Context, events <-chan deck.Envelope, onError func(error)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-events:
			if !ok {
				return nil
			}
			if err := e.Apply(env); err != nil && onError != nil {
				onError(err)
			}
		}
	}
}

// Apply folds one server event into the local state.
func (e *Editor) Apply(env deck.Envelope) error {
	switch env.Event {
	case deck.EventDocumentChanged:
		var doc deck.Document
		if err := json.Unmarshal(env.Data, &doc); err != nil {
			return fmt.Errorf("failed to decode %s: %w", env.Event, err)
		}
		e.mu.Lock()
		defer e.mu.Unlock()

		if e.doc == nil || e.doc.ID != doc.ID {
			e.history.Reset(doc.Slides)
		} else {
			e.absorb(doc.Slides)
		}
		e.doc = &doc
		return nil

	case deck.EventSlideUpdated:
		var update deck.SlideUpdatedPayload
		if err := json.Unmarshal(env.Data, &update); err != nil {
			return fmt.Errorf("failed to decode %s: %w", env.Event, err)
		}
		e.mu.Lock()
		defer e.mu.Unlock()

		if e.doc == nil {
			return nil
		}
		slides := e.history.Present()
		if update.SlideIndex < 0 || update.SlideIndex >= len(slides) || slides[update.SlideIndex] == nil {
			return nil
		}
		slides[update.SlideIndex].Elements = update.Elements
		e.absorb(slides)
		return nil

	case deck.EventParticipantsChanged:
		var users []*deck.Participant
		if err := json.Unmarshal(env.Data, &users); err != nil {
			return fmt.Errorf("failed to decode %s: %w", env.Event, err)
		}
		e.mu.Lock()
		defer e.mu.Unlock()

		if e.doc != nil {
			e.doc.Users = users
		}
		return nil

	case deck.EventError:
		var payload deck.ErrorPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return fmt.Errorf("failed to decode %s: %w", env.Event, err)
		}
		return &ServerError{Message: payload.Message}

	default:
		return nil
	}
}

// absorb records a server state. A state that only differs from the present
// by server-assigned ids replaces it without an undo step.
func (e *Editor) absorb(slides []*deck.Slide) {
	if reconcile.SlidesEqual(slides, e.history.Present()) {
		e.history.Amend(slides)
		return
	}
	e.history.Push(slides)
}

// Document returns a copy of the current document with the history's present
// slides, or nil before the first snapshot.
func (e *Editor) Document() *deck.Document {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.doc == nil {
		return nil
	}
	doc := e.doc.Clone()
	doc.Slides = e.history.Present()
	return doc
}

// Slides returns the present slides.
func (e *Editor) Slides() []*deck.Slide {
	return e.history.Present()
}

// Role returns the local participant's role, or "" if unknown.
func (e *Editor) Role() deck.Role {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.doc == nil {
		return ""
	}
	return e.doc.RoleOf(e.userID)
}

// CanEdit reports whether the local participant may change slide contents.
// The server does not check this for slide updates.
func (e *Editor) CanEdit() bool {
	return e.Role().CanEdit()
}

// EditSlide replaces the elements of one slide locally and sends the change.
// Elements without an id get a provisional one.
func (e *Editor) EditSlide(slideIndex int, elements []deck.Element) error {
	if !e.CanEdit() {
		if e.Document() == nil {
			return ErrNoDocument
		}
		return ErrReadOnly
	}

	e.mu.Lock()
	slides := e.history.Present()
	if slideIndex < 0 || slideIndex >= len(slides) || slides[slideIndex] == nil {
		e.mu.Unlock()
		return fmt.Errorf("no slide at index %d", slideIndex)
	}

	local := deck.CloneElements(elements)
	if local == nil {
		local = []deck.Element{}
	}
	for i := range local {
		if local[i].ID == "" {
			local[i].ID = reconcile.NewProvisionalID()
		}
	}
	slides[slideIndex].Elements = local
	e.history.Push(slides)
	docID := e.doc.ID
	e.mu.Unlock()

	return e.sender.UpdateSlide(docID, slideIndex, local)
}

// CanUndo reports whether there is a local step to undo.
func (e *Editor) CanUndo() bool {
	return e.history.CanUndo()
}

// CanRedo reports whether there is a local step to redo.
func (e *Editor) CanRedo() bool {
	return e.history.CanRedo()
}

// Undo steps the history back and sends every slide whose elements changed.
// Reports whether there was anything to undo.
func (e *Editor) Undo() (bool, error) {
	return e.step(e.history.Undo)
}

// Redo steps the history forward and sends every slide whose elements
// changed. Reports whether there was anything to redo.
func (e *Editor) Redo() (bool, error) {
	return e.step(e.history.Redo)
}

func (e *Editor) step(move func() ([]*deck.Slide, bool)) (bool, error) {
	e.mu.Lock()
	if e.doc == nil {
		e.mu.Unlock()
		return false, ErrNoDocument
	}
	before := e.history.Present()
	after, ok := move()
	docID := e.doc.ID
	canEdit := e.doc.RoleOf(e.userID).CanEdit()
	e.mu.Unlock()

	if !ok {
		return false, nil
	}
	// Structural steps (slide added or removed) are local only
	if !canEdit || len(before) != len(after) {
		return true, nil
	}

	for i := range after {
		if after[i] == nil || before[i] == nil {
			continue
		}
		if reconcile.SlidesEqual([]*deck.Slide{before[i]}, []*deck.Slide{after[i]}) {
			continue
		}
		if err := e.sender.UpdateSlide(docID, i, after[i].Elements); err != nil {
			return true, err
		}
	}
	return true, nil
}

package reconcile

import (
	"sync"

	"github.com/dyluth/deck/pkg/deck"
)

// DefaultCapacity is the number of past states a History keeps.
const DefaultCapacity = 50

// History is a bounded undo/redo stack of slide lists. Every state it holds
// is a private deep copy, so callers may mutate what they pass in or get back.
// It is safe for concurrent use.
type History struct {
	mu       sync.Mutex
	past     [][]*deck.Slide
	present  []*deck.Slide
	future   [][]*deck.Slide
	capacity int
}

// NewHistory creates a history whose present state is initial. A capacity
// below 1 means DefaultCapacity.
func NewHistory(initial []*deck.Slide, capacity int) *History {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &History{
		present:  CloneSlides(initial),
		capacity: capacity,
	}
}

// Push records slides as the new present unless they equal the current one.
// Reports whether a new state was recorded. The redo stack is cleared.
func (h *History) Push(slides []*deck.Slide) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if SlidesEqual(slides, h.present) {
		return false
	}
	h.record(slides)
	return true
}

// ForcePush records slides even if they equal the present.
func (h *History) ForcePush(slides []*deck.Slide) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.record(slides)
}

func (h *History) record(slides []*deck.Slide) {
	h.past = append(h.past, h.present)
	if len(h.past) > h.capacity {
		h.past = h.past[len(h.past)-h.capacity:]
	}
	h.present = CloneSlides(slides)
	h.future = nil
}

// Amend replaces the present state without recording an undo step. Used to
// adopt server-assigned ids for a state that is otherwise unchanged.
func (h *History) Amend(slides []*deck.Slide) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.present = CloneSlides(slides)
}

// Reset discards both stacks and makes slides the present.
func (h *History) Reset(slides []*deck.Slide) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.past = nil
	h.future = nil
	h.present = CloneSlides(slides)
}

// Undo moves one step back. Returns the new present, or false if there is
// nothing to undo.
func (h *History) Undo() ([]*deck.Slide, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.past) == 0 {
		return nil, false
	}

	previous := h.past[len(h.past)-1]
	h.past = h.past[:len(h.past)-1]
	h.future = append([][]*deck.Slide{h.present}, h.future...)
	h.present = previous

	return CloneSlides(h.present), true
}

// Redo moves one step forward. Returns the new present, or false if there is
// nothing to redo.
func (h *History) Redo() ([]*deck.Slide, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.future) == 0 {
		return nil, false
	}

	next := h.future[0]
	h.future = h.future[1:]
	h.past = append(h.past, h.present)
	h.present = next

	return CloneSlides(h.present), true
}

// CanUndo reports whether Undo would change the present.
func (h *History) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.past) > 0
}

// CanRedo reports whether Redo would change the present.
func (h *History) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.future) > 0
}

// Present returns a copy of the current state.
func (h *History) Present() []*deck.Slide {
	h.mu.Lock()
	defer h.mu.Unlock()
	return CloneSlides(h.present)
}

// Depth returns the sizes of the undo and redo stacks.
func (h *History) Depth() (past, future int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.past), len(h.future)
}

// CloneSlides deep-copies a slide list, tombstones included.
func CloneSlides(slides []*deck.Slide) []*deck.Slide {
	out := make([]*deck.Slide, len(slides))
	for i, s := range slides {
		if s == nil {
			continue
		}
		slide := *s
		slide.Elements = deck.CloneElements(s.Elements)
		if slide.Elements == nil {
			slide.Elements = []deck.Element{}
		}
		out[i] = &slide
	}
	return out
}

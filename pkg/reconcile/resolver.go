package reconcile

import (
	"math"

	"github.com/dyluth/deck/pkg/deck"
	"github.com/google/uuid"
)

// NewProvisionalID returns a client-side id for an element that has not been
// persisted yet.
func NewProvisionalID() string {
	return deck.ProvisionalPrefix + uuid.New().String()
}

// Ref is a stable handle on an element that survives the element being
// persisted and renamed by the server.
type Ref struct {
	ID       string
	TempID   string
	Type     deck.ElementType
	Position deck.Position
}

// RefTo captures a handle on el.
func RefTo(el deck.Element) Ref {
	ref := Ref{ID: el.ID, TempID: el.TempID, Type: el.Type, Position: el.Position}
	if deck.IsProvisional(el.ID) && ref.TempID == "" {
		ref.TempID = el.ID
	}
	return ref
}

// Locate returns the index of the element ref points at, or -1. Candidates
// are matched by authoritative id first, then by provisional id, and last by
// type plus position rounded to whole units.
func Locate(elements []deck.Element, ref Ref) int {
	if ref.ID != "" && !deck.IsProvisional(ref.ID) {
		for i, el := range elements {
			if el.ID == ref.ID {
				return i
			}
		}
	}

	if provisional := ref.provisionalID(); provisional != "" {
		for i, el := range elements {
			if el.TempID == provisional || el.ID == provisional {
				return i
			}
		}
	}

	if ref.Type != "" {
		x, y := math.Round(ref.Position.X), math.Round(ref.Position.Y)
		for i, el := range elements {
			if el.Type == ref.Type && math.Round(el.Position.X) == x && math.Round(el.Position.Y) == y {
				return i
			}
		}
	}

	return -1
}

// Rebind refreshes ref from the element it was located at, picking up the
// permanent id once the server has assigned one.
func Rebind(ref Ref, el deck.Element) Ref {
	next := RefTo(el)
	if next.TempID == "" {
		next.TempID = ref.provisionalID()
	}
	return next
}

func (r Ref) provisionalID() string {
	if r.TempID != "" {
		return r.TempID
	}
	if deck.IsProvisional(r.ID) {
		return r.ID
	}
	return ""
}

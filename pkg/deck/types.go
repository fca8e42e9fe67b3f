// Package deck provides the document model and the authoritative, versioned
// store for collaboratively edited slide decks.
//
// All Redis keys and channels are namespaced by instance name so several deck
// servers can share one Redis without interfering.
package deck

import (
	"fmt"

	"github.com/google/uuid"
)

// Document is the shared multi-slide artifact being co-edited.
// Version is the optimistic concurrency token: every successful write
// increments it, and structural writes are gated on it.
type Document struct {
	ID          string         `json:"id"`        // UUID
	Title       string         `json:"title"`     // Display title
	Slides      []*Slide       `json:"slides"`    // Ordered slides; nil entries are tombstones awaiting compaction
	Users       []*Participant `json:"users"`     // Roster of everyone who ever joined
	CreatedAtMs int64          `json:"createdAt"` // Unix timestamp in milliseconds
	Version     int            `json:"version"`   // Starts at 1
}

// Slide is an ordered page within a Document.
type Slide struct {
	ID       string    `json:"id"`
	Order    int       `json:"order"`
	Elements []Element `json:"elements"`
}

// Participant is a user attached to a Document.
type Participant struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
	Role     Role   `json:"role"`
}

// Role defines what a participant may do with a document.
type Role string

const (
	// RoleOwner is the document creator. Exactly one per document, never reassigned.
	RoleOwner Role = "owner"

	// RoleEditor may replace slide contents.
	RoleEditor Role = "editor"

	// RoleViewer is the default role for anyone who joins.
	RoleViewer Role = "viewer"
)

// Summary is the listing view of a Document.
type Summary struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	CreatedAtMs int64  `json:"createdAt"`
}

// Validate checks if the Role is a valid enum value.
func (r Role) Validate() error {
	switch r {
	case RoleOwner, RoleEditor, RoleViewer:
		return nil
	default:
		return fmt.Errorf("unknown role: %q", r)
	}
}

// CanEdit reports whether the role may replace slide contents.
func (r Role) CanEdit() bool {
	return r == RoleOwner || r == RoleEditor
}

// Validate checks if the Document has valid field values.
func (d *Document) Validate() error {
	if !isValidUUID(d.ID) {
		return fmt.Errorf("invalid document ID: not a valid UUID")
	}

	if d.Title == "" {
		return fmt.Errorf("title cannot be empty")
	}

	if d.Version < 1 {
		return fmt.Errorf("invalid version: must be >= 1, got %d", d.Version)
	}

	owners := 0
	for i, p := range d.Users {
		if p == nil || p.ID == "" {
			return fmt.Errorf("invalid participant at index %d: missing id", i)
		}
		if err := p.Role.Validate(); err != nil {
			return fmt.Errorf("invalid participant %s: %w", p.ID, err)
		}
		if p.Role == RoleOwner {
			owners++
		}
	}
	if owners != 1 {
		return fmt.Errorf("document must have exactly one owner, got %d", owners)
	}

	for i, s := range d.Slides {
		if s == nil {
			continue
		}
		if err := ValidateElements(s.Elements); err != nil {
			return fmt.Errorf("invalid slide at index %d: %w", i, err)
		}
	}

	return nil
}

// Participant returns the participant with the given id, or nil.
func (d *Document) Participant(userID string) *Participant {
	for _, p := range d.Users {
		if p.ID == userID {
			return p
		}
	}
	return nil
}

// RoleOf returns the role of the given user, or "" if they never joined.
func (d *Document) RoleOf(userID string) Role {
	if p := d.Participant(userID); p != nil {
		return p.Role
	}
	return ""
}

// SlideAt returns the live slide at index, or nil if the index is out of
// range or holds a tombstone.
func (d *Document) SlideAt(index int) *Slide {
	if index < 0 || index >= len(d.Slides) {
		return nil
	}
	return d.Slides[index]
}

// Orders returns the order value of every live slide, in position order.
func (d *Document) Orders() []int {
	orders := make([]int, 0, len(d.Slides))
	for _, s := range d.Slides {
		if s != nil {
			orders = append(orders, s.Order)
		}
	}
	return orders
}

// SlideCount returns the number of live slides.
func (d *Document) SlideCount() int {
	n := 0
	for _, s := range d.Slides {
		if s != nil {
			n++
		}
	}
	return n
}

// Summary returns the listing view of the document.
func (d *Document) Summary() Summary {
	return Summary{ID: d.ID, Title: d.Title, CreatedAtMs: d.CreatedAtMs}
}

// isValidUUID checks if a string is a valid UUID format.
func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

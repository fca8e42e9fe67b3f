package deck

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when the document id does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrConflict is returned by a conditional write when another writer
	// changed the document since it was read.
	ErrConflict = errors.New("document version conflict")

	// ErrOwnerImmutable is returned when a role change would create, remove
	// or reassign the owner.
	ErrOwnerImmutable = errors.New("owner role cannot be reassigned")

	// ErrInvalid wraps validation failures of store inputs.
	ErrInvalid = errors.New("invalid input")

	// ErrLastSlide is returned when removing a slide would leave the
	// document without any.
	ErrLastSlide = errors.New("cannot remove the last slide")
)

// IsNotFound returns true if err reports a missing document.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true if err reports a stale version on a conditional write.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// MutateFunc changes a document in place and reports whether it changed
// anything. Returning false skips the write and leaves the version untouched.
type MutateFunc func(d *Document) (bool, error)

// Backend is the storage primitive the Store is built on.
//
// Update must apply fn atomically with respect to every other write on the
// same document. CompareAndSwap must write iff the stored version equals
// expectedVersion, returning ErrConflict otherwise.
type Backend interface {
	Insert(ctx context.Context, d *Document) error
	Load(ctx context.Context, id string) (*Document, error)
	Update(ctx context.Context, id string, fn MutateFunc) (*Document, bool, error)
	CompareAndSwap(ctx context.Context, d *Document, expectedVersion int) error
	List(ctx context.Context) ([]Summary, error)
	Ping(ctx context.Context) error
	Close() error
}

// UpdateResult reports how many records a conditional update matched and how
// many it actually changed.
type UpdateResult struct {
	Matched  int
	Modified int
}

// Store is the authoritative, versioned storage for Documents.
// It is safe for concurrent use; all coordination happens in the backend.
type Store struct {
	backend Backend
	now     func() time.Time
}

// NewStore creates a Store on top of the given backend.
func NewStore(backend Backend) *Store {
	return &Store{backend: backend, now: time.Now}
}

// Backend returns the underlying storage backend.
func (s *Store) Backend() Backend {
	return s.backend
}

// Ping verifies the backend is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

// Close releases the backend. Implements io.Closer.
func (s *Store) Close() error {
	return s.backend.Close()
}

// Create stores a new document with one empty slide and the creator as its
// sole participant, with role owner.
func (s *Store) Create(ctx context.Context, title, creatorID, nickname string) (*Document, error) {
	if title == "" || creatorID == "" || nickname == "" {
		return nil, fmt.Errorf("%w: title, creator id and nickname are required", ErrInvalid)
	}

	doc := &Document{
		ID:    uuid.New().String(),
		Title: title,
		Slides: []*Slide{
			{ID: uuid.New().String(), Order: 0, Elements: []Element{}},
		},
		Users: []*Participant{
			{ID: creatorID, Nickname: nickname, Role: RoleOwner},
		},
		CreatedAtMs: s.now().UnixMilli(),
		Version:     1,
	}

	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if err := s.backend.Insert(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	return doc, nil
}

// Get returns the whole document record.
func (s *Store) Get(ctx context.Context, id string) (*Document, error) {
	return s.backend.Load(ctx, id)
}

// List returns a summary of every document, oldest first.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	return s.backend.List(ctx)
}

// UpsertParticipant adds p to the roster as a viewer if absent, otherwise
// updates the nickname only. Reports whether anything changed.
func (s *Store) UpsertParticipant(ctx context.Context, id string, p Participant) (*Document, bool, error) {
	if p.ID == "" || p.Nickname == "" {
		return nil, false, fmt.Errorf("%w: participant id and nickname are required", ErrInvalid)
	}

	return s.backend.Update(ctx, id, func(d *Document) (bool, error) {
		if existing := d.Participant(p.ID); existing != nil {
			if existing.Nickname == p.Nickname {
				return false, nil
			}
			existing.Nickname = p.Nickname
			return true, nil
		}
		d.Users = append(d.Users, &Participant{ID: p.ID, Nickname: p.Nickname, Role: RoleViewer})
		return true, nil
	})
}

// SetParticipantRole sets the role of an existing participant. A missing
// participant is not an error: the result reports Matched == 0.
func (s *Store) SetParticipantRole(ctx context.Context, id, participantID string, role Role) (UpdateResult, *Document, error) {
	var result UpdateResult

	if err := role.Validate(); err != nil {
		return result, nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if role == RoleOwner {
		return result, nil, ErrOwnerImmutable
	}

	doc, _, err := s.backend.Update(ctx, id, func(d *Document) (bool, error) {
		p := d.Participant(participantID)
		if p == nil {
			return false, nil
		}
		result.Matched = 1
		if p.Role == RoleOwner {
			return false, ErrOwnerImmutable
		}
		if p.Role == role {
			return false, nil
		}
		p.Role = role
		result.Modified = 1
		return true, nil
	})
	if err != nil {
		return UpdateResult{}, nil, err
	}

	return result, doc, nil
}

// AppendSlide adds an empty slide at the end of the document. Tombstones left
// by an unfinished compaction are dropped in the same atomic write, so the
// live slides stay numbered 0..N-1 and the new slide's order is N.
func (s *Store) AppendSlide(ctx context.Context, id string) (*Document, error) {
	doc, _, err := s.backend.Update(ctx, id, func(d *Document) (bool, error) {
		live := make([]*Slide, 0, len(d.Slides)+1)
		for _, slide := range d.Slides {
			if slide != nil {
				slide.Order = len(live)
				live = append(live, slide)
			}
		}
		d.Slides = append(live, &Slide{
			ID:       uuid.New().String(),
			Order:    len(live),
			Elements: []Element{},
		})
		return true, nil
	})
	return doc, err
}

// TombstoneSlide marks the slide at index as removed, leaving a hole for
// CompactSlides to close. Modified is 0 when there is no live slide there.
// Fails with ErrLastSlide if it is the only live slide.
func (s *Store) TombstoneSlide(ctx context.Context, id string, index int) (UpdateResult, error) {
	var result UpdateResult

	_, _, err := s.backend.Update(ctx, id, func(d *Document) (bool, error) {
		if d.SlideAt(index) == nil {
			return false, nil
		}
		result.Matched = 1
		if d.SlideCount() <= 1 {
			return false, ErrLastSlide
		}
		d.Slides[index] = nil
		result.Modified = 1
		return true, nil
	})

	return result, err
}

// CompactSlides reloads the document, drops tombstones and renumbers the
// surviving slides 0..N-1 in their existing relative sequence. The write is
// conditional on the version read, so a concurrent writer makes it fail with
// ErrConflict; callers are expected to retry.
func (s *Store) CompactSlides(ctx context.Context, id string) (*Document, error) {
	doc, err := s.backend.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	expected := doc.Version
	live := make([]*Slide, 0, len(doc.Slides))
	for _, slide := range doc.Slides {
		if slide != nil {
			live = append(live, slide)
		}
	}
	for i, slide := range live {
		slide.Order = i
	}
	doc.Slides = live

	if err := s.backend.CompareAndSwap(ctx, doc, expected); err != nil {
		return nil, err
	}

	return doc, nil
}

// RemoveSlideAt tombstones the slide at index and compacts once. Callers that
// need conflict handling should call TombstoneSlide and CompactSlides
// separately and retry the latter.
func (s *Store) RemoveSlideAt(ctx context.Context, id string, index int) (UpdateResult, *Document, error) {
	result, err := s.TombstoneSlide(ctx, id, index)
	if err != nil || result.Modified == 0 {
		return result, nil, err
	}

	doc, err := s.CompactSlides(ctx, id)
	if err != nil {
		return result, nil, err
	}

	return result, doc, nil
}

// ReplaceSlideElements replaces the element list of the slide at index.
// Elements without a permanent id are given one; a provisional id is kept in
// TempID. Returns the persisted elements.
func (s *Store) ReplaceSlideElements(ctx context.Context, id string, index int, elements []Element) (UpdateResult, []Element, error) {
	var result UpdateResult

	persisted := AssignElementIDs(elements)
	if err := ValidateElements(persisted); err != nil {
		return result, nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	_, _, err := s.backend.Update(ctx, id, func(d *Document) (bool, error) {
		slide := d.SlideAt(index)
		if slide == nil {
			return false, nil
		}
		result.Matched = 1
		slide.Elements = CloneElements(persisted)
		result.Modified = 1
		return true, nil
	})
	if err != nil {
		return UpdateResult{}, nil, err
	}

	return result, persisted, nil
}

// Role returns the role of userID in the document, or "" if absent.
func (s *Store) Role(ctx context.Context, id, userID string) (Role, error) {
	doc, err := s.backend.Load(ctx, id)
	if err != nil {
		return "", err
	}
	return doc.RoleOf(userID), nil
}

// AssignElementIDs returns a copy of elements in which every element without
// a permanent id has been given one.
func AssignElementIDs(elements []Element) []Element {
	out := CloneElements(elements)
	if out == nil {
		return []Element{}
	}
	for i := range out {
		switch {
		case out[i].ID == "":
			out[i].ID = uuid.New().String()
		case IsProvisional(out[i].ID):
			if out[i].TempID == "" {
				out[i].TempID = out[i].ID
			}
			out[i].ID = uuid.New().String()
		}
	}
	return out
}

package deck

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Serialization helpers for converting between Go structs and Redis hashes
//
// Redis stores data as string-to-string maps (hashes). The slide list and the
// roster are JSON-encoded into single hash fields, since they are only ever
// replaced as a whole. version and created_at_ms stay as plain fields so the
// version can be checked without decoding the document.

// DocumentToHash converts a Document to a Redis hash format.
func DocumentToHash(d *Document) (map[string]interface{}, error) {
	slidesJSON, err := encodeSlides(d.Slides)
	if err != nil {
		return nil, err
	}

	usersJSON, err := encodeUsers(d.Users)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"id":            d.ID,
		"title":         d.Title,
		"version":       d.Version,
		"created_at_ms": d.CreatedAtMs,
		"slides":        slidesJSON,
		"users":         usersJSON,
	}, nil
}

// HashToDocument converts a Redis hash to a Document.
func HashToDocument(hash map[string]string) (*Document, error) {
	version, err := strconv.Atoi(hash["version"])
	if err != nil {
		return nil, fmt.Errorf("invalid version field: %w", err)
	}

	createdAtMs, _ := strconv.ParseInt(hash["created_at_ms"], 10, 64)

	slides, err := decodeSlides(hash["slides"])
	if err != nil {
		return nil, err
	}

	users, err := decodeUsers(hash["users"])
	if err != nil {
		return nil, err
	}

	return &Document{
		ID:          hash["id"],
		Title:       hash["title"],
		Slides:      slides,
		Users:       users,
		CreatedAtMs: createdAtMs,
		Version:     version,
	}, nil
}

func encodeSlides(slides []*Slide) (string, error) {
	if slides == nil {
		slides = []*Slide{}
	}
	for _, s := range slides {
		if s != nil && s.Elements == nil {
			s.Elements = []Element{}
		}
	}
	data, err := json.Marshal(slides)
	if err != nil {
		return "", fmt.Errorf("failed to marshal slides: %w", err)
	}
	return string(data), nil
}

func encodeUsers(users []*Participant) (string, error) {
	if users == nil {
		users = []*Participant{}
	}
	data, err := json.Marshal(users)
	if err != nil {
		return "", fmt.Errorf("failed to marshal users: %w", err)
	}
	return string(data), nil
}

func decodeSlides(raw string) ([]*Slide, error) {
	slides := []*Slide{}
	if raw == "" {
		return slides, nil
	}
	if err := json.Unmarshal([]byte(raw), &slides); err != nil {
		return nil, fmt.Errorf("failed to unmarshal slides: %w", err)
	}
	for _, s := range slides {
		if s != nil && s.Elements == nil {
			s.Elements = []Element{}
		}
	}
	return slides, nil
}

func decodeUsers(raw string) ([]*Participant, error) {
	users := []*Participant{}
	if raw == "" {
		return users, nil
	}
	if err := json.Unmarshal([]byte(raw), &users); err != nil {
		return nil, fmt.Errorf("failed to unmarshal users: %w", err)
	}
	return users, nil
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	out := *d
	out.Slides = make([]*Slide, len(d.Slides))
	for i, s := range d.Slides {
		if s == nil {
			continue
		}
		slide := *s
		slide.Elements = CloneElements(s.Elements)
		if slide.Elements == nil {
			slide.Elements = []Element{}
		}
		out.Slides[i] = &slide
	}
	out.Users = make([]*Participant, len(d.Users))
	for i, p := range d.Users {
		user := *p
		out.Users[i] = &user
	}
	return &out
}

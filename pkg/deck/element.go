package deck

import (
	"fmt"
	"strings"
)

// Element is a single visual object on a Slide.
//
// ID is authoritative once the element has been persisted. TempID carries the
// client-provisional id of an element created locally, so clients can keep
// addressing it after the store assigns the permanent ID.
type Element struct {
	ID       string            `json:"id,omitempty"`
	TempID   string            `json:"tempId,omitempty"`
	Type     ElementType       `json:"type"`
	Position Position          `json:"position"`
	Size     *Size             `json:"size,omitempty"`
	Style    map[string]string `json:"style,omitempty"`
	Content  string            `json:"content,omitempty"`
}

// Position is the top-left corner of an element on the slide canvas.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is the extent of an element. For arrows it is the arrow's vector.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ElementType is the wire tag of an element variant.
type ElementType string

const (
	ElementText      ElementType = "text"
	ElementImage     ElementType = "image"
	ElementRectangle ElementType = "rectangle"
	ElementCircle    ElementType = "circle"
	ElementArrow     ElementType = "arrow"
)

// ProvisionalPrefix marks ids generated by clients for elements that have
// not been persisted yet.
const ProvisionalPrefix = "tmp-"

// IsProvisional reports whether id was generated client-side.
func IsProvisional(id string) bool {
	return strings.HasPrefix(id, ProvisionalPrefix)
}

// Shape is the closed set of element variants. Only types in this package
// implement it.
type Shape interface {
	shape()
	validate() error
}

// TextElement is a block of text content.
type TextElement struct {
	Text string
	Size *Size
}

// ImageElement displays the image referenced by Src.
type ImageElement struct {
	Src  string
	Size *Size
}

// RectangleElement is a filled or outlined rectangle.
type RectangleElement struct {
	Size *Size
}

// CircleElement is an ellipse inscribed in Size.
type CircleElement struct {
	Size *Size
}

// ArrowElement is an arrow from the element position along Vector.
type ArrowElement struct {
	Vector Size
}

func (TextElement) shape()      {}
func (ImageElement) shape()     {}
func (RectangleElement) shape() {}
func (CircleElement) shape()    {}
func (ArrowElement) shape()     {}

func (TextElement) validate() error { return nil }

func (e ImageElement) validate() error {
	if e.Src == "" {
		return fmt.Errorf("image element requires content (image reference)")
	}
	return validateSize(e.Size)
}

func (e RectangleElement) validate() error { return validateSize(e.Size) }

func (e CircleElement) validate() error { return validateSize(e.Size) }

func (e ArrowElement) validate() error {
	if e.Vector.Width == 0 && e.Vector.Height == 0 {
		return fmt.Errorf("arrow element requires a non-zero size vector")
	}
	return nil
}

func validateSize(s *Size) error {
	if s == nil {
		return nil
	}
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("size must be positive, got %gx%g", s.Width, s.Height)
	}
	return nil
}

// Variant returns the typed view of the element.
func (e Element) Variant() (Shape, error) {
	switch e.Type {
	case ElementText:
		return TextElement{Text: e.Content, Size: e.Size}, nil
	case ElementImage:
		return ImageElement{Src: e.Content, Size: e.Size}, nil
	case ElementRectangle:
		return RectangleElement{Size: e.Size}, nil
	case ElementCircle:
		return CircleElement{Size: e.Size}, nil
	case ElementArrow:
		if e.Size == nil {
			return ArrowElement{}, nil
		}
		return ArrowElement{Vector: *e.Size}, nil
	default:
		return nil, fmt.Errorf("unknown element type: %q", e.Type)
	}
}

// Validate checks the element against the rules of its variant.
func (e Element) Validate() error {
	v, err := e.Variant()
	if err != nil {
		return err
	}
	return v.validate()
}

// ValidateElements validates every element and checks that ids are unique
// within the list. Elements without an id are allowed; the store assigns one.
func ValidateElements(elements []Element) error {
	seen := make(map[string]struct{}, len(elements))
	for i, el := range elements {
		if err := el.Validate(); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
		if el.ID == "" {
			continue
		}
		if _, dup := seen[el.ID]; dup {
			return fmt.Errorf("element %d: duplicate id %q", i, el.ID)
		}
		seen[el.ID] = struct{}{}
	}
	return nil
}

// Clone returns a deep copy of the element.
func (e Element) Clone() Element {
	out := e
	if e.Size != nil {
		size := *e.Size
		out.Size = &size
	}
	if e.Style != nil {
		out.Style = make(map[string]string, len(e.Style))
		for k, v := range e.Style {
			out.Style[k] = v
		}
	}
	return out
}

// CloneElements deep-copies an element list. A nil list stays nil.
func CloneElements(elements []Element) []Element {
	if elements == nil {
		return nil
	}
	out := make([]Element, len(elements))
	for i, el := range elements {
		out[i] = el.Clone()
	}
	return out
}

package reconcile

import "github.com/dyluth/deck/pkg/deck"

// SlidesEqual reports whether two slide lists describe the same visible
// state: same slide orders, and pairwise equal elements in the same sequence.
// An element that only gained its permanent id still counts as equal.
func SlidesEqual(a, b []*deck.Slide) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		sa, sb := a[i], b[i]
		if sa == nil || sb == nil {
			if sa != sb {
				return false
			}
			continue
		}
		if sa.Order != sb.Order {
			return false
		}
		if len(sa.Elements) != len(sb.Elements) {
			return false
		}
		for j := range sa.Elements {
			if !ElementsEqual(sa.Elements[j], sb.Elements[j]) {
				return false
			}
		}
	}

	return true
}

// ElementsEqual compares every field of two elements. Ids are equal when they
// match directly or when one side is the provisional id of the other.
func ElementsEqual(a, b deck.Element) bool {
	if !sameIdentity(a, b) {
		return false
	}
	if a.Type != b.Type || a.Content != b.Content || a.Position != b.Position {
		return false
	}
	if (a.Size == nil) != (b.Size == nil) {
		return false
	}
	if a.Size != nil && *a.Size != *b.Size {
		return false
	}
	return stylesEqual(a.Style, b.Style)
}

func sameIdentity(a, b deck.Element) bool {
	if a.ID == b.ID {
		return true
	}
	return (a.TempID != "" && a.TempID == b.ID) || (b.TempID != "" && b.TempID == a.ID)
}

// stylesEqual treats a nil and an empty style map as equal.
func stylesEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if other, ok := b[k]; !ok || other != v {
			return false
		}
	}
	return true
}

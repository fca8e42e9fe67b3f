package reconcile

import (
	"strings"
	"testing"

	"github.com/dyluth/deck/pkg/deck"
	"github.com/stretchr/testify/assert"
)

func TestNewProvisionalID(t *testing.T) {
	a := NewProvisionalID()
	b := NewProvisionalID()

	assert.True(t, strings.HasPrefix(a, "tmp-"))
	assert.True(t, deck.IsProvisional(a))
	assert.NotEqual(t, a, b)
}

func TestLocate(t *testing.T) {
	elements := []deck.Element{
		{ID: "p1", Type: deck.ElementText, Position: deck.Position{X: 10, Y: 10}},
		{ID: "p2", TempID: "tmp-2", Type: deck.ElementCircle, Position: deck.Position{X: 50.2, Y: 60.4}},
		{ID: "tmp-3", Type: deck.ElementRectangle, Position: deck.Position{X: 0, Y: 0}},
	}

	tests := []struct {
		name string
		ref  Ref
		want int
	}{
		{"by permanent id", Ref{ID: "p1"}, 0},
		{"by temp id echoed by server", Ref{ID: "tmp-2"}, 1},
		{"by explicit temp id", Ref{TempID: "tmp-2"}, 1},
		{"still provisional", Ref{ID: "tmp-3"}, 2},
		{"by signature", Ref{ID: "gone", Type: deck.ElementCircle, Position: deck.Position{X: 49.8, Y: 59.6}}, 1},
		{"signature needs matching type", Ref{Type: deck.ElementText, Position: deck.Position{X: 50, Y: 60}}, -1},
		{"not found", Ref{ID: "nope"}, -1},
		{"empty ref", Ref{}, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Locate(elements, tt.ref))
		})
	}
}

func TestLocate_IDBeatsSignature(t *testing.T) {
	elements := []deck.Element{
		{ID: "a", Type: deck.ElementText, Position: deck.Position{X: 1, Y: 1}},
		{ID: "b", Type: deck.ElementText, Position: deck.Position{X: 5, Y: 5}},
	}
	ref := Ref{ID: "b", Type: deck.ElementText, Position: deck.Position{X: 1, Y: 1}}
	assert.Equal(t, 1, Locate(elements, ref))
}

func TestRefLifecycle(t *testing.T) {
	local := deck.Element{ID: NewProvisionalID(), Type: deck.ElementText, Position: deck.Position{X: 3, Y: 4}}
	ref := RefTo(local)
	assert.Equal(t, local.ID, ref.TempID)

	// The server assigns a permanent id and echoes the provisional one
	persisted := []deck.Element{{ID: "perm-1", TempID: local.ID, Type: deck.ElementText, Position: local.Position}}
	i := Locate(persisted, ref)
	assert.Equal(t, 0, i)

	ref = Rebind(ref, persisted[i])
	assert.Equal(t, "perm-1", ref.ID)
	assert.Equal(t, local.ID, ref.TempID)

	// A later broadcast no longer carries the temp id
	later := []deck.Element{
		{ID: "other", Type: deck.ElementText},
		{ID: "perm-1", Type: deck.ElementText, Position: deck.Position{X: 30, Y: 40}},
	}
	assert.Equal(t, 1, Locate(later, ref))
}

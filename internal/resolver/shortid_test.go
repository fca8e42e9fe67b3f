package resolver

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dyluth/deck/internal/testutil"
	"github.com/dyluth/deck/pkg/deck"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func insert(t *testing.T, backend deck.Backend, id string) {
	err := backend.Insert(context.Background(), &deck.Document{
		ID:      id,
		Title:   "Doc " + id[:8],
		Slides:  []*deck.Slide{{ID: "s0", Order: 0, Elements: []deck.Element{}}},
		Users:   []*deck.Participant{{ID: "u1", Nickname: "Alice", Role: deck.RoleOwner}},
		Version: 1,
	})
	require.NoError(t, err)
}

func TestResolveDocumentID(t *testing.T) {
	ctx := context.Background()
	_, backend, _ := testutil.NewRedisStore(t)

	insert(t, backend, "aaaaaaaa-1111-4000-8000-000000000001")
	insert(t, backend, "aaaaaaaa-2222-4000-8000-000000000002")
	insert(t, backend, "bbbbbbbb-3333-4000-8000-000000000003")

	t.Run("unique prefix", func(t *testing.T) {
		id, err := ResolveDocumentID(ctx, backend, "bbbbbb")
		require.NoError(t, err)
		assert.Equal(t, "bbbbbbbb-3333-4000-8000-000000000003", id)
	})

	t.Run("prefix is case insensitive", func(t *testing.T) {
		id, err := ResolveDocumentID(ctx, backend, "BBBBBB")
		require.NoError(t, err)
		assert.Equal(t, "bbbbbbbb-3333-4000-8000-000000000003", id)
	})

	t.Run("full id", func(t *testing.T) {
		id, err := ResolveDocumentID(ctx, backend, "aaaaaaaa-1111-4000-8000-000000000001")
		require.NoError(t, err)
		assert.Equal(t, "aaaaaaaa-1111-4000-8000-000000000001", id)
	})

	t.Run("full id that does not exist", func(t *testing.T) {
		_, err := ResolveDocumentID(ctx, backend, "cccccccc-1111-4000-8000-000000000001")
		assert.True(t, IsNotFoundError(err))
	})

	t.Run("ambiguous prefix", func(t *testing.T) {
		_, err := ResolveDocumentID(ctx, backend, "aaaaaaaa")
		require.True(t, IsAmbiguousError(err))

		var ambiguous *AmbiguousError
		require.True(t, errors.As(err, &ambiguous))
		assert.Len(t, ambiguous.Matches, 2)
		assert.Contains(t, err.Error(), "matches 2 presentations")
	})

	t.Run("no match", func(t *testing.T) {
		_, err := ResolveDocumentID(ctx, backend, "dddddd")
		assert.True(t, IsNotFoundError(err))
		assert.Contains(t, err.Error(), "no presentations found matching 'dddddd'")
	})

	t.Run("too short", func(t *testing.T) {
		_, err := ResolveDocumentID(ctx, backend, "aaaa")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least 6 characters")
		assert.False(t, IsNotFoundError(err))
	})
}

func TestResolveDocumentID_SQLite(t *testing.T) {
	store := testutil.NewSQLiteStore(t)
	backend := store.Backend().(*deck.SQLiteBackend)
	insert(t, backend, "eeeeeeee-1111-4000-8000-000000000001")

	id, err := ResolveDocumentID(context.Background(), backend, "eeeeee")
	require.NoError(t, err)
	assert.Equal(t, "eeeeeeee-1111-4000-8000-000000000001", id)
}

func TestAmbiguousError_Candidates(t *testing.T) {
	few := &AmbiguousError{ShortID: "abcdef", Matches: []string{"a", "b"}}
	assert.Equal(t, []string{"a", "b"}, few.Candidates())

	var many []string
	for i := 0; i < 13; i++ {
		many = append(many, fmt.Sprintf("id-%02d", i))
	}
	listed := (&AmbiguousError{ShortID: "abcdef", Matches: many}).Candidates()
	require.Len(t, listed, 11)
	assert.Equal(t, "id-09", listed[9])
	assert.Equal(t, "...and 3 more", listed[10])
}

func TestErrorHelpers_Wrapped(t *testing.T) {
	wrapped := fmt.Errorf("resolve: %w", &NotFoundError{ShortID: "abcdef"})
	assert.True(t, IsNotFoundError(wrapped))
	assert.False(t, IsAmbiguousError(wrapped))
}

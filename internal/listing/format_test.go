package listing

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/dyluth/deck/internal/testutil"
	"github.com/dyluth/deck/pkg/deck"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatAge(t *testing.T) {
	now := time.Date(2025, 10, 29, 14, 0, 0, 0, time.UTC)

	tests := []struct {
		ago  time.Duration
		want string
	}{
		{10 * time.Second, "10s ago"},
		{5 * time.Minute, "5m ago"},
		{3 * time.Hour, "3h ago"},
		{50 * time.Hour, "2d ago"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, formatAge(now.Add(-tt.ago).UnixMilli(), now))
		})
	}
	assert.Equal(t, "-", formatAge(0, now))
}

func TestFormatTitle(t *testing.T) {
	assert.Equal(t, "Roadmap", formatTitle("Roadmap"))
	assert.Equal(t, "First line", formatTitle("First line\nsecond"))
	assert.Equal(t, "-", formatTitle("   "))

	long := strings.Repeat("x", 50)
	assert.Equal(t, strings.Repeat("x", 37)+"...", formatTitle(long))
}

func TestFormatID(t *testing.T) {
	assert.Equal(t, "550e8400", formatID("550e8400-e29b-41d4-a716-446655440000"))
	assert.Equal(t, "short", formatID("short"))
}

func TestDescribeElements(t *testing.T) {
	assert.Equal(t, "empty", describeElements(nil))
	assert.Equal(t, "1 image, 2 text", describeElements([]deck.Element{
		{Type: deck.ElementText},
		{Type: deck.ElementImage},
		{Type: deck.ElementText},
	}))
}

func TestShowDocument(t *testing.T) {
	ctx := context.Background()
	store, _, _ := testutil.NewRedisStore(t)

	doc, err := store.Create(ctx, "Launch", "u1", "Alice")
	require.NoError(t, err)
	_, _, err = store.UpsertParticipant(ctx, doc.ID, deck.Participant{ID: "u2", Nickname: "Bob"})
	require.NoError(t, err)
	_, _, err = store.ReplaceSlideElements(ctx, doc.ID, 0, []deck.Element{{Type: deck.ElementText, Content: "Hello"}})
	require.NoError(t, err)

	t.Run("outline", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, ShowDocument(ctx, store, doc.ID, false, &buf))

		output := buf.String()
		assert.True(t, strings.HasPrefix(output, "Launch\n"))
		assert.Contains(t, output, "Participants (2):")
		assert.Contains(t, output, "Bob")
		assert.Contains(t, output, "Slides (1):")
		assert.Contains(t, output, " 1. 1 text")
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, ShowDocument(ctx, store, doc.ID, true, &buf))

		var got deck.Document
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, doc.ID, got.ID)
		assert.Len(t, got.Users, 2)
	})

	t.Run("not found", func(t *testing.T) {
		err := ShowDocument(ctx, store, "00000000-0000-4000-8000-000000000000", false, &bytes.Buffer{})
		assert.True(t, IsNotFound(err))
	})

	t.Run("invalid id", func(t *testing.T) {
		err := ShowDocument(ctx, store, "not-a-uuid", false, &bytes.Buffer{})
		require.Error(t, err)
		assert.False(t, IsNotFound(err))
	})
}

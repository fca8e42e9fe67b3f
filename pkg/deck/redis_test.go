package deck

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisBackend(t *testing.T) (*RedisBackend, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	backend, err := NewRedisBackend(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	return backend, mr
}

func TestNewRedisBackend_EmptyInstance(t *testing.T) {
	_, err := NewRedisBackend(&redis.Options{Addr: "localhost:6379"}, "")
	assert.Error(t, err)
}

func TestRedisBackend_KeysAreNamespaced(t *testing.T) {
	backend, mr := setupRedisBackend(t)
	store := NewStore(backend)

	doc, err := store.Create(context.Background(), "Demo", "u1", "Alice")
	require.NoError(t, err)

	assert.True(t, mr.Exists("deck:test-instance:document:"+doc.ID))
	members, err := mr.ZMembers("deck:test-instance:documents")
	require.NoError(t, err)
	assert.Equal(t, []string{doc.ID}, members)

	version := mr.HGet("deck:test-instance:document:"+doc.ID, "version")
	assert.Equal(t, "1", version)
}

func TestRedisBackend_ListSkipsDanglingIndexEntries(t *testing.T) {
	backend, mr := setupRedisBackend(t)
	store := NewStore(backend)
	ctx := context.Background()

	doc, err := store.Create(ctx, "Demo", "u1", "Alice")
	require.NoError(t, err)
	_, err = mr.ZAdd("deck:test-instance:documents", 1, "gone")
	require.NoError(t, err)

	summaries, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, doc.ID, summaries[0].ID)
}

func TestRedisBackend_ScanDocuments(t *testing.T) {
	backend, _ := setupRedisBackend(t)
	store := NewStore(backend)
	ctx := context.Background()

	doc, err := store.Create(ctx, "Demo", "u1", "Alice")
	require.NoError(t, err)

	ids, err := backend.ScanDocuments(ctx, doc.ID[:8])
	require.NoError(t, err)
	assert.Equal(t, []string{doc.ID}, ids)

	ids, err = backend.ScanDocuments(ctx, "zzzz")
	require.NoError(t, err)
	assert.Empty(t, ids)

	// Glob syntax in the prefix is matched literally, as on SQLite
	for _, prefix := range []string{"*", "?", "[0-9a-f]", `\`, doc.ID[:4] + "*"} {
		ids, err = backend.ScanDocuments(ctx, prefix)
		require.NoError(t, err)
		assert.Empty(t, ids, "prefix %q", prefix)
	}
}

func TestSQLiteBackend_ScanDocuments(t *testing.T) {
	store := setupSQLiteStore(t)
	backend := store.Backend().(*SQLiteBackend)
	ctx := context.Background()

	doc, err := store.Create(ctx, "Demo", "u1", "Alice")
	require.NoError(t, err)

	ids, err := backend.ScanDocuments(ctx, doc.ID[:8])
	require.NoError(t, err)
	assert.Equal(t, []string{doc.ID}, ids)

	// LIKE wildcards in the prefix are matched literally
	ids, err = backend.ScanDocuments(ctx, "%")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSubscribeEvents(t *testing.T) {
	backend, _ := setupRedisBackend(t)
	ctx := context.Background()

	sub, err := backend.SubscribeEvents(ctx)
	require.NoError(t, err)
	defer sub.Close()

	data, err := json.Marshal(SlideUpdatedPayload{SlideIndex: 0, Elements: []Element{}})
	require.NoError(t, err)

	ev := &Event{DocumentID: "doc-1", Name: EventSlideUpdated, Data: data, TimestampMs: 42}
	require.NoError(t, backend.Publish(ctx, ev))

	select {
	case got := <-sub.Events():
		assert.Equal(t, "doc-1", got.DocumentID)
		assert.Equal(t, EventSlideUpdated, got.Name)
		assert.JSONEq(t, string(data), string(got.Data))
		assert.Equal(t, int64(42), got.TimestampMs)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSubscribeEvents_MalformedMessage(t *testing.T) {
	backend, mr := setupRedisBackend(t)
	ctx := context.Background()

	sub, err := backend.SubscribeEvents(ctx)
	require.NoError(t, err)
	defer sub.Close()

	mr.Publish(DocumentEventsChannel("test-instance"), "not json")

	select {
	case err := <-sub.Errors():
		assert.Contains(t, err.Error(), "unmarshal")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for error")
	}
}

func TestSubscription_CloseIsIdempotent(t *testing.T) {
	backend, _ := setupRedisBackend(t)

	sub, err := backend.SubscribeEvents(context.Background())
	require.NoError(t, err)

	assert.NoError(t, sub.Close())
	assert.NoError(t, sub.Close())

	// The events channel is closed once the goroutine exits
	select {
	case _, ok := <-sub.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("events channel was not closed")
	}
}

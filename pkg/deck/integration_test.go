//go:build integration

package deck

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container for testing.
func setupRedis(t *testing.T) string {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start Redis container")

	t.Cleanup(func() {
		if err := redisC.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	})

	host, err := redisC.Host(ctx)
	require.NoError(t, err)
	port, err := redisC.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return fmt.Sprintf("redis://%s:%s", host, port.Port())
}

func TestIntegration_ConcurrentWritersAgainstRealRedis(t *testing.T) {
	redisURL := setupRedis(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	opts, err := redis.ParseURL(redisURL)
	require.NoError(t, err)

	backend, err := NewRedisBackend(opts, "integration")
	require.NoError(t, err)
	store := NewStore(backend)
	defer store.Close()

	require.NoError(t, store.Ping(ctx))

	doc, err := store.Create(ctx, "Load test", "u1", "Alice")
	require.NoError(t, err)

	const writers = 10
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, err := store.AppendSlide(ctx, doc.ID)
				assert.NoError(t, err)
				return
			}
			_, _, err := store.UpsertParticipant(ctx, doc.ID, Participant{
				ID:       fmt.Sprintf("viewer-%d", i),
				Nickname: fmt.Sprintf("Viewer %d", i),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	stored, err := store.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Slides, 1+writers/2)
	assert.Len(t, stored.Users, 1+writers/2)
	for i, order := range stored.Orders() {
		assert.Equal(t, i, order)
	}
	assert.Equal(t, 1+writers, stored.Version)
}

func TestIntegration_CompactConflictsWithConcurrentWrite(t *testing.T) {
	redisURL := setupRedis(t)
	ctx := context.Background()

	opts, err := redis.ParseURL(redisURL)
	require.NoError(t, err)

	backend, err := NewRedisBackend(opts, "integration")
	require.NoError(t, err)
	store := NewStore(backend)
	defer store.Close()

	doc, err := store.Create(ctx, "Demo", "u1", "Alice")
	require.NoError(t, err)

	stale, err := store.Get(ctx, doc.ID)
	require.NoError(t, err)

	_, err = store.AppendSlide(ctx, doc.ID)
	require.NoError(t, err)

	err = backend.CompareAndSwap(ctx, stale, stale.Version)
	assert.True(t, IsConflict(err))
}

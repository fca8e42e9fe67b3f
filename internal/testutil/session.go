package testutil

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/deck/pkg/deck"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// RecordingConn is an in-memory session connection that keeps every envelope
// sent to it.
type RecordingConn struct {
	id string

	mu       sync.Mutex
	received []deck.Envelope
	sendErr  error
	signal   chan struct{}
}

// NewRecordingConn creates a connection with the given id.
func NewRecordingConn(id string) *RecordingConn {
	return &RecordingConn{id: id, signal: make(chan struct{}, 1)}
}

// ID returns the connection id.
func (c *RecordingConn) ID() string {
	return c.id
}

// Send records env, or fails with the error set by FailSends.
func (c *RecordingConn) Send(env deck.Envelope) error {
	c.mu.Lock()
	if c.sendErr != nil {
		err := c.sendErr
		c.mu.Unlock()
		return err
	}
	c.received = append(c.received, env)
	c.mu.Unlock()

	select {
	case c.signal <- struct{}{}:
	default:
	}
	return nil
}

// FailSends makes every subsequent Send return err. Pass nil to recover.
func (c *RecordingConn) FailSends(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

// Received returns a copy of everything sent so far.
func (c *RecordingConn) Received() []deck.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]deck.Envelope(nil), c.received...)
}

// Named returns the envelopes with the given event name.
func (c *RecordingConn) Named(event string) []deck.Envelope {
	var out []deck.Envelope
	for _, env := range c.Received() {
		if env.Event == event {
			out = append(out, env)
		}
	}
	return out
}

// Reset forgets everything received so far.
func (c *RecordingConn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.received = nil
}

// WaitFor blocks until an envelope with the given event name arrives and
// returns the first one. Fails the test after timeout.
func (c *RecordingConn) WaitFor(t *testing.T, event string, timeout time.Duration) deck.Envelope {
	t.Helper()

	deadline := time.After(timeout)
	for {
		if got := c.Named(event); len(got) > 0 {
			return got[0]
		}
		select {
		case <-c.signal:
		case <-deadline:
			t.Fatalf("timed out waiting for %s on connection %s", event, c.id)
			return deck.Envelope{}
		}
	}
}

// Decode unmarshals the envelope data into v.
func Decode(t *testing.T, env deck.Envelope, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, v), "failed to decode %s payload", env.Event)
}

// NewRedisStore creates a store on a fresh miniredis instance under the
// instance name "test-instance".
func NewRedisStore(t *testing.T) (*deck.Store, *deck.RedisBackend, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	backend, err := deck.NewRedisBackend(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)

	store := deck.NewStore(backend)
	t.Cleanup(func() { store.Close() })

	return store, backend, mr
}

// NewSQLiteStore creates a store on an in-memory SQLite database.
func NewSQLiteStore(t *testing.T) *deck.Store {
	t.Helper()

	backend, err := deck.NewSQLiteBackend(":memory:")
	require.NoError(t, err)

	store := deck.NewStore(backend)
	t.Cleanup(func() { store.Close() })

	return store
}

package deck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// maxTxAttempts bounds how often an atomic Update re-runs its WATCH
// transaction when another writer touches the key in between.
const maxTxAttempts = 16

// RedisBackend stores documents as Redis hashes.
// All keys and channels are automatically namespaced with the instance name.
// The backend is thread-safe and can be used concurrently from multiple goroutines.
type RedisBackend struct {
	rdb          *redis.Client
	instanceName string
}

// NewRedisBackend creates a backend for the specified instance.
//
// Parameters:
//   - redisOpts: Redis connection options (address, password, DB, etc.)
//   - instanceName: deck instance identifier (must not be empty)
//
// Returns an error if instanceName is empty.
func NewRedisBackend(redisOpts *redis.Options, instanceName string) (*RedisBackend, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &RedisBackend{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
func (b *RedisBackend) Close() error {
	return b.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

// RedisClient exposes the underlying client for scans and tests.
func (b *RedisBackend) RedisClient() *redis.Client {
	return b.rdb
}

// InstanceName returns the namespace this backend writes under.
func (b *RedisBackend) InstanceName() string {
	return b.instanceName
}

// Insert writes a new document and adds it to the index.
func (b *RedisBackend) Insert(ctx context.Context, d *Document) error {
	hash, err := DocumentToHash(d)
	if err != nil {
		return fmt.Errorf("failed to serialize document: %w", err)
	}

	_, err = b.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, DocumentKey(b.instanceName, d.ID), hash)
		pipe.ZAdd(ctx, DocumentIndexKey(b.instanceName), redis.Z{
			Score:  float64(d.CreatedAtMs),
			Member: d.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write document to Redis: %w", err)
	}

	return nil
}

// Load retrieves a document by ID. Returns ErrNotFound if it doesn't exist.
func (b *RedisBackend) Load(ctx context.Context, id string) (*Document, error) {
	return b.load(ctx, b.rdb, id)
}

func (b *RedisBackend) load(ctx context.Context, cmd redis.Cmdable, id string) (*Document, error) {
	hashData, err := cmd.HGetAll(ctx, DocumentKey(b.instanceName, id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read document from Redis: %w", err)
	}

	// HGetAll returns an empty map for non-existent keys
	if len(hashData) == 0 {
		return nil, ErrNotFound
	}

	doc, err := HashToDocument(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize document: %w", err)
	}

	return doc, nil
}

// Update applies fn inside a WATCH/MULTI transaction on the document key.
// If another client writes the key before EXEC, the transaction is re-run
// against the fresh state, so fn may be called more than once.
func (b *RedisBackend) Update(ctx context.Context, id string, fn MutateFunc) (*Document, bool, error) {
	key := DocumentKey(b.instanceName, id)

	var (
		result  *Document
		changed bool
	)

	txf := func(tx *redis.Tx) error {
		doc, err := b.load(ctx, tx, id)
		if err != nil {
			return err
		}

		changed, err = fn(doc)
		if err != nil {
			return err
		}
		if !changed {
			result = doc
			return nil
		}

		doc.Version++
		hash, err := DocumentToHash(doc)
		if err != nil {
			return fmt.Errorf("failed to serialize document: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, hash)
			return nil
		})
		if err != nil {
			return err
		}

		result = doc
		return nil
	}

	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := b.rdb.Watch(ctx, txf, key)
		if err == nil {
			return result, changed, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if isStoreError(err) {
			return nil, false, err
		}
		return nil, false, fmt.Errorf("failed to update document in Redis: %w", err)
	}

	return nil, false, fmt.Errorf("failed to update document %s: %w", id, ErrConflict)
}

// isStoreError reports errors raised by the store itself, which are returned
// to the caller unwrapped.
func isStoreError(err error) bool {
	for _, target := range []error{ErrNotFound, ErrConflict, ErrOwnerImmutable, ErrInvalid, ErrLastSlide} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// CompareAndSwap replaces the stored document iff its version still equals
// expectedVersion. On success d.Version is advanced.
func (b *RedisBackend) CompareAndSwap(ctx context.Context, d *Document, expectedVersion int) error {
	key := DocumentKey(b.instanceName, d.ID)

	err := b.rdb.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, key, "version").Result()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read document version: %w", err)
		}

		stored, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid version field: %w", err)
		}
		if stored != expectedVersion {
			return ErrConflict
		}

		next := d.Clone()
		next.Version = expectedVersion + 1
		hash, err := DocumentToHash(next)
		if err != nil {
			return fmt.Errorf("failed to serialize document: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, hash)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		d.Version = expectedVersion + 1
		return nil
	case errors.Is(err, redis.TxFailedErr):
		return ErrConflict
	case IsConflict(err), IsNotFound(err):
		return err
	default:
		return fmt.Errorf("failed to write document to Redis: %w", err)
	}
}

// List returns summaries of all documents ordered by creation time.
func (b *RedisBackend) List(ctx context.Context) ([]Summary, error) {
	ids, err := b.rdb.ZRange(ctx, DocumentIndexKey(b.instanceName), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read document index: %w", err)
	}

	pipe := b.rdb.Pipeline()
	cmds := make([]*redis.SliceCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HMGet(ctx, DocumentKey(b.instanceName, id), "id", "title", "created_at_ms")
	}
	if len(ids) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("failed to read document summaries: %w", err)
		}
	}

	summaries := make([]Summary, 0, len(ids))
	for _, cmd := range cmds {
		vals := cmd.Val()
		if len(vals) != 3 || vals[0] == nil {
			// Index entry without a record; skip it
			continue
		}
		id, _ := vals[0].(string)
		title, _ := vals[1].(string)
		createdRaw, _ := vals[2].(string)
		createdAtMs, _ := strconv.ParseInt(createdRaw, 10, 64)
		summaries = append(summaries, Summary{ID: id, Title: title, CreatedAtMs: createdAtMs})
	}

	return summaries, nil
}

// globEscaper escapes the characters SCAN MATCH treats as pattern syntax.
var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// ScanDocuments returns the ids of all documents whose id starts with prefix.
// The prefix is matched literally.
func (b *RedisBackend) ScanDocuments(ctx context.Context, prefix string) ([]string, error) {
	pattern := DocumentKey(b.instanceName, globEscaper.Replace(prefix)+"*")
	keyPrefix := DocumentKey(b.instanceName, "")

	var ids []string
	iter := b.rdb.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, iter.Val()[len(keyPrefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan documents: %w", err)
	}

	return ids, nil
}

// Publish sends an event to the instance's document event channel.
func (b *RedisBackend) Publish(ctx context.Context, ev *Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.rdb.Publish(ctx, DocumentEventsChannel(b.instanceName), data).Err(); err != nil {
		return fmt.Errorf("failed to publish document event: %w", err)
	}

	return nil
}

// Subscription represents an active Pub/Sub subscription to document events.
// Caller must call Close() when done to clean up resources.
type Subscription struct {
	events <-chan *Event
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of document events.
// The channel will be closed when the subscription is closed or the context is cancelled.
func (s *Subscription) Events() <-chan *Event {
	return s.events
}

// Errors returns the channel of subscription errors.
// The subscription continues after errors - malformed messages are skipped.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription and cleans up resources. Implements io.Closer.
// Safe to call multiple times - subsequent calls are no-ops.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeEvents subscribes to document events for this instance.
// Context cancellation also stops the subscription.
//
// Events are delivered on a buffered channel (size 10). If the subscriber is
// too slow, events may be dropped by Redis Pub/Sub (at-most-once delivery).
func (b *RedisBackend) SubscribeEvents(ctx context.Context) (*Subscription, error) {
	pubsub := b.rdb.Subscribe(ctx, DocumentEventsChannel(b.instanceName))

	// Wait for the subscription to be confirmed so no event published after
	// this call returns is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to document events: %w", err)
	}

	eventsChan := make(chan *Event, 10)
	errorsChan := make(chan error, 10)

	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal document event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &ev:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}

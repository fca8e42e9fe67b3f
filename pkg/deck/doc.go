// Package deck provides the document model and the authoritative store for
// collaboratively edited slide decks.
//
// # Overview
//
// A Document is an ordered list of Slides plus a roster of Participants. Each
// Slide holds an ordered list of Elements (text, image, rectangle, circle,
// arrow). Participants have exactly one of three roles: owner (the creator,
// fixed forever), editor, or viewer.
//
// # Concurrency
//
// Every stored Document carries a Version that is incremented by every write.
// The Store exposes two kinds of writes:
//
//   - Atomic field updates (upsert participant, set role, append slide,
//     tombstone slide, replace slide elements). The backend performs the
//     read-modify-write atomically, so callers never see a conflict.
//   - Conditional whole-record writes (CompactSlides). The write succeeds iff
//     the stored version still equals the version that was read, otherwise it
//     fails with ErrConflict and the caller retries.
//
// # Usage Example
//
//	backend, err := deck.NewRedisBackend(&redis.Options{Addr: "localhost:6379"}, "default")
//	if err != nil {
//		log.Fatal(err)
//	}
//	store := deck.NewStore(backend)
//	defer store.Close()
//
//	doc, err := store.Create(ctx, "Demo", "u1", "Alice")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// doc.Slides has one empty slide, doc.Users is [{u1 Alice owner}]
//	if _, err := store.AppendSlide(ctx, doc.ID); err != nil {
//		log.Fatal(err)
//	}
//
// # Redis Schema
//
// Documents: deck:{instance_name}:document:{document_id} (hash)
// Index: deck:{instance_name}:documents (ZSET scored by created_at_ms)
// Events: deck:{instance_name}:document_events (Pub/Sub)
//
// The hash fields are id, title, version, created_at_ms, slides (JSON) and
// users (JSON).
package deck

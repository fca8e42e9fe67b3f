package deck

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteBackend stores documents in a single SQLite table. It suits a single
// server process; use the Redis backend when several servers share state.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (or creates) the database at path and ensures the
// schema exists. Use ":memory:" for a throwaway database.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path cannot be empty")
	}

	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: writes are serialized by SQLite anyway, and an in-memory
	// database only exists per connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	b := &SQLiteBackend{db: db}
	if err := b.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return b, nil
}

func (b *SQLiteBackend) createTables() error {
	createDocuments := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		version INTEGER NOT NULL,
		created_at_ms INTEGER NOT NULL,
		slides TEXT NOT NULL DEFAULT '[]',
		users TEXT NOT NULL DEFAULT '[]'
	);`

	if _, err := b.db.Exec(createDocuments); err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}

	createIndex := `CREATE INDEX IF NOT EXISTS idx_documents_created ON documents(created_at_ms);`
	if _, err := b.db.Exec(createIndex); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// Close closes the database. Implements io.Closer.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

// Ping verifies the database is reachable.
func (b *SQLiteBackend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

// Insert writes a new document row.
func (b *SQLiteBackend) Insert(ctx context.Context, d *Document) error {
	slides, err := encodeSlides(d.Slides)
	if err != nil {
		return err
	}
	users, err := encodeUsers(d.Users)
	if err != nil {
		return err
	}

	_, err = b.db.ExecContext(ctx,
		`INSERT INTO documents (id, title, version, created_at_ms, slides, users) VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID, d.Title, d.Version, d.CreatedAtMs, slides, users,
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Load retrieves a document by ID. Returns ErrNotFound if it doesn't exist.
func (b *SQLiteBackend) Load(ctx context.Context, id string) (*Document, error) {
	return b.load(ctx, b.db, id)
}

func (b *SQLiteBackend) load(ctx context.Context, q queryer, id string) (*Document, error) {
	var (
		doc    Document
		slides string
		users  string
	)

	err := q.QueryRowContext(ctx,
		`SELECT id, title, version, created_at_ms, slides, users FROM documents WHERE id = ?`, id,
	).Scan(&doc.ID, &doc.Title, &doc.Version, &doc.CreatedAtMs, &slides, &users)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}

	if doc.Slides, err = decodeSlides(slides); err != nil {
		return nil, err
	}
	if doc.Users, err = decodeUsers(users); err != nil {
		return nil, err
	}

	return &doc, nil
}

// Update applies fn inside an immediate transaction, so no other writer can
// interleave between the read and the write.
func (b *SQLiteBackend) Update(ctx context.Context, id string, fn MutateFunc) (*Document, bool, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	doc, err := b.load(ctx, tx, id)
	if err != nil {
		return nil, false, err
	}

	changed, err := fn(doc)
	if err != nil {
		return nil, false, err
	}
	if !changed {
		return doc, false, nil
	}

	if err := b.writeVersioned(ctx, tx, doc, doc.Version); err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	doc.Version++
	return doc, true, nil
}

// CompareAndSwap replaces the stored document iff its version still equals
// expectedVersion. On success d.Version is advanced.
func (b *SQLiteBackend) CompareAndSwap(ctx context.Context, d *Document, expectedVersion int) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := b.writeVersioned(ctx, tx, d, expectedVersion); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	d.Version = expectedVersion + 1
	return nil
}

func (b *SQLiteBackend) writeVersioned(ctx context.Context, tx *sql.Tx, d *Document, expectedVersion int) error {
	slides, err := encodeSlides(d.Slides)
	if err != nil {
		return err
	}
	users, err := encodeUsers(d.Users)
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE documents SET title = ?, version = ?, slides = ?, users = ? WHERE id = ? AND version = ?`,
		d.Title, expectedVersion+1, slides, users, d.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows > 0 {
		return nil
	}

	// Distinguish a stale version from a vanished record
	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE id = ?`, d.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check document existence: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	return ErrConflict
}

// List returns summaries of all documents ordered by creation time.
func (b *SQLiteBackend) List(ctx context.Context) ([]Summary, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT id, title, created_at_ms FROM documents ORDER BY created_at_ms ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	summaries := []Summary{}
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.ID, &s.Title, &s.CreatedAtMs); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}

	return summaries, nil
}

// ScanDocuments returns the ids of all documents whose id starts with prefix.
func (b *SQLiteBackend) ScanDocuments(ctx context.Context, prefix string) ([]string, error) {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	rows, err := b.db.QueryContext(ctx, `SELECT id FROM documents WHERE id LIKE ? ESCAPE '\'`, escaped+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to scan documents: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan document id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

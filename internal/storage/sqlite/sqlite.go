// Package sqlite persists a pipeline working store in a single sqlite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"retail-signal-lab/internal/domain"
	"retail-signal-lab/internal/storage"
)

// FileName is the working store file inside a pipeline directory.
const FileName = "db.sqlite"

const schema = `
CREATE TABLE IF NOT EXISTS collections (
	name       TEXT PRIMARY KEY,
	fields     TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS records (
	collection TEXT NOT NULL,
	seq        INTEGER NOT NULL,
	data       TEXT NOT NULL,
	PRIMARY KEY (collection, seq)
);
`

// Store implements storage.WorkingStore on sqlite.
type Store struct {
	db       *sql.DB
	path     string
	readOnly bool
}

// Create removes any store at path and opens a clean one.
func Create(ctx context.Context, path string) (*Store, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove old store: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// OpenReadOnly opens an existing store. Writes return storage.ErrReadOnly.
func OpenReadOnly(ctx context.Context, path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("working store %s: %w", path, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("stat working store: %w", err)
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &Store{db: db, path: path, readOnly: true}, nil
}

// Path returns the store file path.
func (s *Store) Path() string {
	return s.path
}

// CreateCollection adds an empty collection. Returns ErrDuplicateKey if it exists.
func (s *Store) CreateCollection(ctx context.Context, name string, fields []domain.Field) error {
	if s.readOnly {
		return storage.ErrReadOnly
	}
	if name == "" {
		return storage.ErrInvalidInput
	}
	if fields == nil {
		fields = []domain.Field{}
	}

	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT count(*) FROM collections WHERE name = ?`, name).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("collection %q: %w", name, storage.ErrDuplicateKey)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO collections (name, fields, created_at) VALUES (?, ?, ?)`,
		name, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert collection: %w", err)
	}
	return nil
}

// Insert appends records to a collection in one transaction.
func (s *Store) Insert(ctx context.Context, collection string, records []domain.Record) error {
	if s.readOnly {
		return storage.ErrReadOnly
	}
	if _, err := s.fields(ctx, collection); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var next int64
	err = tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM records WHERE collection = ?`, collection).Scan(&next)
	if err != nil {
		return fmt.Errorf("read sequence: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO records (collection, seq, data) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		data, err := encodeRecord(rec)
		if err != nil {
			return err
		}
		next++
		if _, err := stmt.ExecContext(ctx, collection, next, data); err != nil {
			return fmt.Errorf("insert record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Collection returns a collection with all records in insertion order.
func (s *Store) Collection(ctx context.Context, name string) (*domain.Collection, error) {
	fields, err := s.fields(ctx, name)
	if err != nil {
		return nil, err
	}

	records, err := s.records(ctx, name)
	if err != nil {
		return nil, err
	}
	return &domain.Collection{Name: name, Fields: fields, Records: records}, nil
}

// Collections lists collection names, sorted.
func (s *Store) Collections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM collections`)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan collection name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collections: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// Query loads the collection and filters it in memory.
func (s *Store) Query(ctx context.Context, q storage.Query) ([]domain.Record, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.fields(ctx, q.Collection); err != nil {
		return nil, err
	}

	records, err := s.records(ctx, q.Collection)
	if err != nil {
		return nil, err
	}
	return storage.Apply(records, q), nil
}

// Fields returns the schema of a collection.
func (s *Store) Fields(ctx context.Context, collection string) ([]domain.Field, error) {
	return s.fields(ctx, collection)
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) fields(ctx context.Context, name string) ([]domain.Field, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT fields FROM collections WHERE name = ?`, name).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("collection %q: %w", name, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("read collection %s: %w", name, err)
	}

	var fields []domain.Field
	if err := json.Unmarshal([]byte(data), &fields); err != nil {
		return nil, fmt.Errorf("decode fields of %s: %w", name, err)
	}
	return fields, nil
}

func (s *Store) records(ctx context.Context, collection string) ([]domain.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM records WHERE collection = ? ORDER BY seq`, collection)
	if err != nil {
		return nil, fmt.Errorf("query records of %s: %w", collection, err)
	}
	defer rows.Close()

	var result []domain.Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec, err := decodeRecord(data)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return result, nil
}

var _ storage.WorkingStore = (*Store)(nil)

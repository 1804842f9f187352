package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"retail-signal-lab/internal/domain"
	"retail-signal-lab/internal/storage"
)

// RunLogStore implements storage.RunLogStore using PostgreSQL.
type RunLogStore struct {
	pool *Pool
}

// NewRunLogStore creates a new RunLogStore.
func NewRunLogStore(pool *Pool) *RunLogStore {
	return &RunLogStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RunLogStore = (*RunLogStore)(nil)

// Insert adds a new entry. Returns ErrDuplicateKey if id exists.
func (s *RunLogStore) Insert(ctx context.Context, e *domain.RunLogEntry) error {
	if e == nil || e.ID == "" || e.Pipeline == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO run_log (id, pipeline, mode, type, message, extended, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.pool.Exec(ctx, query, e.ID, e.Pipeline, e.Mode, e.Type, e.Message, e.Extended, e.CreatedAt.UTC())
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert run log entry: %w", err)
	}
	return nil
}

// GetByDay retrieves entries created on the UTC calendar day of day.
func (s *RunLogStore) GetByDay(ctx context.Context, day time.Time) ([]*domain.RunLogEntry, error) {
	start := day.UTC().Truncate(24 * time.Hour)
	query := `
		SELECT id, pipeline, mode, type, message, extended, created_at
		FROM run_log
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, start, start.Add(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("query run log by day: %w", err)
	}
	defer rows.Close()

	return scanRunLog(rows)
}

// GetByPipeline retrieves all entries of a pipeline, ordered by created_at ASC.
func (s *RunLogStore) GetByPipeline(ctx context.Context, pipeline string) ([]*domain.RunLogEntry, error) {
	query := `
		SELECT id, pipeline, mode, type, message, extended, created_at
		FROM run_log
		WHERE pipeline = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, pipeline)
	if err != nil {
		return nil, fmt.Errorf("query run log by pipeline: %w", err)
	}
	defer rows.Close()

	return scanRunLog(rows)
}

// GetByID retrieves one entry. Returns ErrNotFound if it does not exist.
func (s *RunLogStore) GetByID(ctx context.Context, id string) (*domain.RunLogEntry, error) {
	query := `
		SELECT id, pipeline, mode, type, message, extended, created_at
		FROM run_log
		WHERE id = $1
	`

	var e domain.RunLogEntry
	err := s.pool.QueryRow(ctx, query, id).Scan(&e.ID, &e.Pipeline, &e.Mode, &e.Type, &e.Message, &e.Extended, &e.CreatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get run log entry: %w", err)
	}
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}

func scanRunLog(rows pgx.Rows) ([]*domain.RunLogEntry, error) {
	var result []*domain.RunLogEntry
	for rows.Next() {
		var e domain.RunLogEntry
		if err := rows.Scan(&e.ID, &e.Pipeline, &e.Mode, &e.Type, &e.Message, &e.Extended, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run log entry: %w", err)
		}
		e.CreatedAt = e.CreatedAt.UTC()
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run log: %w", err)
	}
	return result, nil
}

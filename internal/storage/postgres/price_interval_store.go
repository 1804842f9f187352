package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"retail-signal-lab/internal/domain"
	"retail-signal-lab/internal/storage"
)

// PriceIntervalStore implements storage.PriceIntervalStore using PostgreSQL.
type PriceIntervalStore struct {
	pool *Pool
}

// NewPriceIntervalStore creates a new PriceIntervalStore.
func NewPriceIntervalStore(pool *Pool) *PriceIntervalStore {
	return &PriceIntervalStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PriceIntervalStore = (*PriceIntervalStore)(nil)

const insertPriceInterval = `
	INSERT INTO price_intervals (seller_id, product_id, price, start_ts, end_ts)
	VALUES ($1, $2, $3, $4, $5)
`

// InsertBulk adds multiple intervals atomically. Fails entire batch on any duplicate.
func (s *PriceIntervalStore) InsertBulk(ctx context.Context, intervals []*domain.PriceInterval) error {
	if len(intervals) == 0 {
		return nil
	}
	for _, iv := range intervals {
		if iv == nil || iv.SellerID == "" || iv.ProductID == "" || iv.End.Before(iv.Start) {
			return storage.ErrInvalidInput
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, iv := range intervals {
		batch.Queue(insertPriceInterval, iv.SellerID, iv.ProductID, iv.Price, iv.Start.UTC(), iv.End.UTC())
	}

	br := tx.SendBatch(ctx, batch)
	for range intervals {
		if _, err := br.Exec(); err != nil {
			br.Close()
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert price interval in bulk: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByProduct retrieves all intervals of a product, ordered by start ASC, seller_id ASC.
func (s *PriceIntervalStore) GetByProduct(ctx context.Context, productID string) ([]*domain.PriceInterval, error) {
	query := `
		SELECT seller_id, product_id, price, start_ts, end_ts
		FROM price_intervals
		WHERE product_id = $1
		ORDER BY start_ts ASC, seller_id ASC, end_ts ASC
	`

	rows, err := s.pool.Query(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("query by product: %w", err)
	}
	defer rows.Close()

	return scanPriceIntervals(rows)
}

// GetByTimeRange retrieves intervals starting within [start, end] (inclusive).
func (s *PriceIntervalStore) GetByTimeRange(ctx context.Context, start, end time.Time) ([]*domain.PriceInterval, error) {
	query := `
		SELECT seller_id, product_id, price, start_ts, end_ts
		FROM price_intervals
		WHERE start_ts >= $1 AND start_ts <= $2
		ORDER BY start_ts ASC, seller_id ASC, product_id ASC, end_ts ASC
	`

	rows, err := s.pool.Query(ctx, query, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanPriceIntervals(rows)
}

func scanPriceIntervals(rows pgx.Rows) ([]*domain.PriceInterval, error) {
	var result []*domain.PriceInterval
	for rows.Next() {
		var iv domain.PriceInterval
		if err := rows.Scan(&iv.SellerID, &iv.ProductID, &iv.Price, &iv.Start, &iv.End); err != nil {
			return nil, fmt.Errorf("scan price interval: %w", err)
		}
		iv.Start = iv.Start.UTC()
		iv.End = iv.End.UTC()
		result = append(result, &iv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price intervals: %w", err)
	}
	return result, nil
}

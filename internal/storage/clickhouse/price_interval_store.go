package clickhouse

import (
	"context"
	"fmt"
	"time"

	"retail-signal-lab/internal/domain"
	"retail-signal-lab/internal/storage"
)

// PriceIntervalStore implements storage.PriceIntervalStore using ClickHouse.
type PriceIntervalStore struct {
	conn *Conn
}

// NewPriceIntervalStore creates a new PriceIntervalStore.
func NewPriceIntervalStore(conn *Conn) *PriceIntervalStore {
	return &PriceIntervalStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PriceIntervalStore = (*PriceIntervalStore)(nil)

// InsertBulk adds multiple intervals. Fails entire batch on duplicate (seller_id, product_id, start).
func (s *PriceIntervalStore) InsertBulk(ctx context.Context, intervals []*domain.PriceInterval) error {
	if len(intervals) == 0 {
		return nil
	}

	type key struct {
		sellerID, productID string
		startMs             int64
	}
	seen := make(map[key]struct{}, len(intervals))
	for _, iv := range intervals {
		if iv == nil || iv.SellerID == "" || iv.ProductID == "" || iv.End.Before(iv.Start) {
			return storage.ErrInvalidInput
		}
		k := key{iv.SellerID, iv.ProductID, iv.Start.UnixMilli()}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	for _, iv := range intervals {
		count, err := s.conn.countRows(ctx, `
			SELECT count(*) FROM price_intervals
			WHERE seller_id = ? AND product_id = ? AND start_ts = ?
		`, iv.SellerID, iv.ProductID, iv.Start.UTC())
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if count > 0 {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO price_intervals (seller_id, product_id, price, start_ts, end_ts)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, iv := range intervals {
		if err := batch.Append(iv.SellerID, iv.ProductID, iv.Price, iv.Start.UTC(), iv.End.UTC()); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByProduct retrieves all intervals of a product, ordered by start ASC, seller_id ASC.
func (s *PriceIntervalStore) GetByProduct(ctx context.Context, productID string) ([]*domain.PriceInterval, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT seller_id, product_id, price, start_ts, end_ts
		FROM price_intervals
		WHERE product_id = ?
		ORDER BY start_ts ASC, seller_id ASC, end_ts ASC
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("query by product: %w", err)
	}
	defer rows.Close()

	return scanPriceIntervals(rows)
}

// GetByTimeRange retrieves intervals starting within [start, end] (inclusive).
func (s *PriceIntervalStore) GetByTimeRange(ctx context.Context, start, end time.Time) ([]*domain.PriceInterval, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT seller_id, product_id, price, start_ts, end_ts
		FROM price_intervals
		WHERE start_ts >= ? AND start_ts <= ?
		ORDER BY start_ts ASC, seller_id ASC, product_id ASC, end_ts ASC
	`, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanPriceIntervals(rows)
}

func scanPriceIntervals(rows chRows) ([]*domain.PriceInterval, error) {
	var result []*domain.PriceInterval
	for rows.Next() {
		var iv domain.PriceInterval
		if err := rows.Scan(&iv.SellerID, &iv.ProductID, &iv.Price, &iv.Start, &iv.End); err != nil {
			return nil, fmt.Errorf("scan price interval row: %w", err)
		}
		iv.Start = iv.Start.UTC()
		iv.End = iv.End.UTC()
		result = append(result, &iv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price interval rows: %w", err)
	}
	return result, nil
}

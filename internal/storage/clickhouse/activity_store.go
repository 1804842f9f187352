package clickhouse

import (
	"context"
	"fmt"
	"time"

	"retail-signal-lab/internal/domain"
	"retail-signal-lab/internal/storage"
)

// ActivityStore implements storage.ActivityStore using ClickHouse.
type ActivityStore struct {
	conn *Conn
}

// NewActivityStore creates a new ActivityStore.
func NewActivityStore(conn *Conn) *ActivityStore {
	return &ActivityStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ActivityStore = (*ActivityStore)(nil)

// InsertBulk adds multiple points. Fails entire batch on duplicate (seller_id, product_id, timestamp).
func (s *ActivityStore) InsertBulk(ctx context.Context, points []*domain.ActivityPoint) error {
	if len(points) == 0 {
		return nil
	}

	type key struct {
		sellerID, productID string
		tsMs                int64
	}
	seen := make(map[key]struct{}, len(points))
	for _, p := range points {
		if p == nil || p.SellerID == "" || p.ProductID == "" {
			return storage.ErrInvalidInput
		}
		k := key{p.SellerID, p.ProductID, p.Timestamp.UnixMilli()}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	for _, p := range points {
		count, err := s.conn.countRows(ctx, `
			SELECT count(*) FROM activity_series
			WHERE seller_id = ? AND product_id = ? AND timestamp = ?
		`, p.SellerID, p.ProductID, p.Timestamp.UTC())
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if count > 0 {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO activity_series (seller_id, product_id, timestamp, value)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	for _, p := range points {
		if err := batch.Append(p.SellerID, p.ProductID, p.Timestamp.UTC(), p.Value); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetBySellerProduct retrieves all points of a (seller, product) pair, ordered by timestamp ASC.
func (s *ActivityStore) GetBySellerProduct(ctx context.Context, sellerID, productID string) ([]*domain.ActivityPoint, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT seller_id, product_id, timestamp, value
		FROM activity_series
		WHERE seller_id = ? AND product_id = ?
		ORDER BY timestamp ASC
	`, sellerID, productID)
	if err != nil {
		return nil, fmt.Errorf("query by seller product: %w", err)
	}
	defer rows.Close()

	return scanActivity(rows)
}

// GetByTimeRange retrieves points within [start, end] (inclusive), ordered by timestamp ASC.
func (s *ActivityStore) GetByTimeRange(ctx context.Context, start, end time.Time) ([]*domain.ActivityPoint, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT seller_id, product_id, timestamp, value
		FROM activity_series
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC, seller_id ASC, product_id ASC
	`, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanActivity(rows)
}

func scanActivity(rows chRows) ([]*domain.ActivityPoint, error) {
	var result []*domain.ActivityPoint
	for rows.Next() {
		var p domain.ActivityPoint
		if err := rows.Scan(&p.SellerID, &p.ProductID, &p.Timestamp, &p.Value); err != nil {
			return nil, fmt.Errorf("scan activity row: %w", err)
		}
		p.Timestamp = p.Timestamp.UTC()
		result = append(result, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity rows: %w", err)
	}
	return result, nil
}

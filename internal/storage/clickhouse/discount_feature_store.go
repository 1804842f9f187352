package clickhouse

import (
	"context"
	"fmt"

	"retail-signal-lab/internal/domain"
	"retail-signal-lab/internal/storage"
)

// DiscountFeatureStore implements storage.DiscountFeatureStore using ClickHouse.
type DiscountFeatureStore struct {
	conn *Conn
}

// NewDiscountFeatureStore creates a new DiscountFeatureStore.
func NewDiscountFeatureStore(conn *Conn) *DiscountFeatureStore {
	return &DiscountFeatureStore{conn: conn}
}

// Compile-time interface check.
var _ storage.DiscountFeatureStore = (*DiscountFeatureStore)(nil)

const discountFeatureColumns = `
	event_id, product_id, seller_id, start_date, end_date, event_date,
	price, discount, diff_avg, len_disc,
	rank_disc, n_prices_disc, rank_gain, rank_avg, n_prices_avg
`

// InsertBulk adds multiple rows. Fails entire batch on duplicate event_id.
func (s *DiscountFeatureStore) InsertBulk(ctx context.Context, features []*domain.DiscountFeature) error {
	if len(features) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(features))
	ids := make([]string, 0, len(features))
	for _, f := range features {
		if f == nil || f.EventID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := seen[f.EventID]; exists {
			return storage.ErrDuplicateKey
		}
		seen[f.EventID] = struct{}{}
		ids = append(ids, f.EventID)
	}

	count, err := s.conn.countRows(ctx, `SELECT count(*) FROM discount_features WHERE event_id IN ?`, ids)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if count > 0 {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO discount_features ("+discountFeatureColumns+")")
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, f := range features {
		err := batch.Append(
			f.EventID, f.ProductID, f.SellerID, f.StartDate.UTC(), f.EndDate.UTC(), f.EventDate.UTC(),
			f.Price, f.Discount, f.DiffAvg, uint32(f.LenDisc),
			toInt32(f.RankDisc), toInt32(f.NPricesDisc), toInt32(f.RankGain), f.RankAvg, f.NPricesAvg,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByProduct retrieves all rows of a product, ordered by event_date ASC.
func (s *DiscountFeatureStore) GetByProduct(ctx context.Context, productID string) ([]*domain.DiscountFeature, error) {
	rows, err := s.conn.Query(ctx, "SELECT "+discountFeatureColumns+`
		FROM discount_features
		WHERE product_id = ?
		ORDER BY event_date ASC, event_id ASC
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("query by product: %w", err)
	}
	defer rows.Close()

	return scanDiscountFeatures(rows)
}

// GetAll retrieves all rows, ordered by event_date ASC, event_id ASC.
func (s *DiscountFeatureStore) GetAll(ctx context.Context) ([]*domain.DiscountFeature, error) {
	rows, err := s.conn.Query(ctx, "SELECT "+discountFeatureColumns+`
		FROM discount_features
		ORDER BY event_date ASC, event_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query all: %w", err)
	}
	defer rows.Close()

	return scanDiscountFeatures(rows)
}

func scanDiscountFeatures(rows chRows) ([]*domain.DiscountFeature, error) {
	var result []*domain.DiscountFeature
	for rows.Next() {
		var f domain.DiscountFeature
		var lenDisc uint32
		var rankDisc, nPricesDisc, rankGain *int32

		err := rows.Scan(
			&f.EventID, &f.ProductID, &f.SellerID, &f.StartDate, &f.EndDate, &f.EventDate,
			&f.Price, &f.Discount, &f.DiffAvg, &lenDisc,
			&rankDisc, &nPricesDisc, &rankGain, &f.RankAvg, &f.NPricesAvg,
		)
		if err != nil {
			return nil, fmt.Errorf("scan discount feature row: %w", err)
		}

		f.StartDate = f.StartDate.UTC()
		f.EndDate = f.EndDate.UTC()
		f.EventDate = f.EventDate.UTC()
		f.LenDisc = int(lenDisc)
		f.RankDisc = fromInt32(rankDisc)
		f.NPricesDisc = fromInt32(nPricesDisc)
		f.RankGain = fromInt32(rankGain)
		result = append(result, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate discount feature rows: %w", err)
	}
	return result, nil
}

func toInt32(p *int) *int32 {
	if p == nil {
		return nil
	}
	v := int32(*p)
	return &v
}

func fromInt32(p *int32) *int {
	if p == nil {
		return nil
	}
	v := int(*p)
	return &v
}

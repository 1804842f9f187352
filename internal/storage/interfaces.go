package storage

import (
	"context"
	"time"

	"retail-signal-lab/internal/domain"
)

// PriceIntervalStore provides access to price_intervals storage.
type PriceIntervalStore interface {
	// InsertBulk adds multiple intervals. Fails entire batch on duplicate (seller_id, product_id, start).
	InsertBulk(ctx context.Context, intervals []*domain.PriceInterval) error

	// GetByProduct retrieves all intervals of a product, ordered by start ASC, seller_id ASC.
	GetByProduct(ctx context.Context, productID string) ([]*domain.PriceInterval, error)

	// GetByTimeRange retrieves intervals starting within [start, end] (inclusive), ordered by start ASC.
	GetByTimeRange(ctx context.Context, start, end time.Time) ([]*domain.PriceInterval, error)
}

// ActivityStore provides access to activity_series storage.
type ActivityStore interface {
	// InsertBulk adds multiple points. Fails entire batch on duplicate (seller_id, product_id, timestamp).
	InsertBulk(ctx context.Context, points []*domain.ActivityPoint) error

	// GetBySellerProduct retrieves all points of a (seller, product) pair, ordered by timestamp ASC.
	GetBySellerProduct(ctx context.Context, sellerID, productID string) ([]*domain.ActivityPoint, error)

	// GetByTimeRange retrieves points within [start, end] (inclusive), ordered by timestamp ASC.
	GetByTimeRange(ctx context.Context, start, end time.Time) ([]*domain.ActivityPoint, error)
}

// DiscountFeatureStore provides access to discount_features storage.
type DiscountFeatureStore interface {
	// InsertBulk adds multiple feature rows. Fails entire batch on duplicate event_id.
	InsertBulk(ctx context.Context, features []*domain.DiscountFeature) error

	// GetByProduct retrieves all rows of a product, ordered by event_date ASC.
	GetByProduct(ctx context.Context, productID string) ([]*domain.DiscountFeature, error)

	// GetAll retrieves all rows, ordered by event_date ASC, event_id ASC.
	GetAll(ctx context.Context) ([]*domain.DiscountFeature, error)
}

// RunLogStore provides access to run_log storage.
type RunLogStore interface {
	// Insert adds a new entry. Returns ErrDuplicateKey if id exists.
	Insert(ctx context.Context, e *domain.RunLogEntry) error

	// GetByDay retrieves entries created on the UTC calendar day of day, ordered by created_at ASC.
	GetByDay(ctx context.Context, day time.Time) ([]*domain.RunLogEntry, error)

	// GetByPipeline retrieves all entries of a pipeline, ordered by created_at ASC.
	GetByPipeline(ctx context.Context, pipeline string) ([]*domain.RunLogEntry, error)
}

// RecordSource is a queryable collection of key-value records.
type RecordSource interface {
	// Query returns records of a collection matching all filters.
	// Returns ErrNotFound if the collection does not exist.
	Query(ctx context.Context, q Query) ([]domain.Record, error)

	// Fields returns the schema of a collection. Returns ErrNotFound if it does not exist.
	Fields(ctx context.Context, collection string) ([]domain.Field, error)
}

// WorkingStore holds the named collections of one pipeline run.
// It is exclusive to a single run; callers serialise access.
type WorkingStore interface {
	RecordSource

	// CreateCollection adds an empty collection. Returns ErrDuplicateKey if it exists.
	CreateCollection(ctx context.Context, name string, fields []domain.Field) error

	// Insert appends records to a collection. Returns ErrNotFound if it does not exist.
	Insert(ctx context.Context, collection string, records []domain.Record) error

	// Collection returns a copy of a collection with all records in insertion order.
	Collection(ctx context.Context, name string) (*domain.Collection, error)

	// Collections lists collection names, sorted.
	Collections(ctx context.Context) ([]string, error)

	// Close releases the store.
	Close() error
}

package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"retail-signal-lab/internal/domain"
	"retail-signal-lab/internal/storage"
)

// RecordSource implements storage.RecordSource over arbitrary tables.
// A collection name is a table name, optionally schema-qualified ("sales.daily").
type RecordSource struct {
	pool *Pool
}

// NewRecordSource creates a new RecordSource.
func NewRecordSource(pool *Pool) *RecordSource {
	return &RecordSource{pool: pool}
}

// Compile-time interface check.
var _ storage.RecordSource = (*RecordSource)(nil)

// Query returns rows of the table matching all filters, one record per row.
func (s *RecordSource) Query(ctx context.Context, q storage.Query) ([]domain.Record, error) {
	sql, args, err := buildSelect(q)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		if isUndefinedTableError(err) {
			return nil, fmt.Errorf("collection %q: %w", q.Collection, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("query collection %s: %w", q.Collection, err)
	}
	defer rows.Close()

	var names []string
	for _, fd := range rows.FieldDescriptions() {
		names = append(names, fd.Name)
	}

	var result []domain.Record
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row values: %w", err)
		}
		rec := make(domain.Record, len(values))
		for i, v := range values {
			rec[names[i]] = normalizePG(v)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		if isUndefinedTableError(err) {
			return nil, fmt.Errorf("collection %q: %w", q.Collection, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("iterate collection %s: %w", q.Collection, err)
	}
	return result, nil
}

// Fields returns the table columns in ordinal order.
func (s *RecordSource) Fields(ctx context.Context, collection string) ([]domain.Field, error) {
	schema, table := splitCollection(collection)
	query := `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_name = $1 AND table_schema = COALESCE(NULLIF($2, ''), current_schema())
		ORDER BY ordinal_position
	`

	rows, err := s.pool.Query(ctx, query, table, schema)
	if err != nil {
		return nil, fmt.Errorf("query columns of %s: %w", collection, err)
	}
	defer rows.Close()

	var fields []domain.Field
	for rows.Next() {
		var name, dataType, nullable string
		if err := rows.Scan(&name, &dataType, &nullable); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		fields = append(fields, domain.Field{
			Name:     name,
			Type:     fieldTypeOf(dataType),
			Nullable: nullable == "YES",
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("collection %q: %w", collection, storage.ErrNotFound)
	}
	return fields, nil
}

// buildSelect renders q as a parameterised SELECT with quoted identifiers.
func buildSelect(q storage.Query) (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}

	schema, table := splitCollection(q.Collection)
	ident := pgx.Identifier{table}
	if schema != "" {
		ident = pgx.Identifier{schema, table}
	}

	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(ident.Sanitize())

	args := make([]any, 0, len(q.Filters))
	for i, f := range q.Filters {
		op, err := f.Op.SQL()
		if err != nil {
			return "", nil, err
		}
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		args = append(args, f.Value)
		fmt.Fprintf(&b, "%s %s $%d", pgx.Identifier{f.Field}.Sanitize(), op, len(args))
	}

	if q.SortBy != "" {
		dir := "ASC"
		if q.Desc {
			dir = "DESC"
		}
		fmt.Fprintf(&b, " ORDER BY %s %s NULLS LAST", pgx.Identifier{q.SortBy}.Sanitize(), dir)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	}
	return b.String(), args, nil
}

func splitCollection(name string) (schema, table string) {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}

// fieldTypeOf maps information_schema data types to record field types.
func fieldTypeOf(dataType string) domain.FieldType {
	switch {
	case strings.HasPrefix(dataType, "timestamp"), dataType == "date":
		return domain.FieldDatetime
	case dataType == "boolean":
		return domain.FieldBool
	case dataType == "integer", dataType == "bigint", dataType == "smallint":
		return domain.FieldInt
	case dataType == "double precision", dataType == "real", dataType == "numeric":
		return domain.FieldFloat
	default:
		return domain.FieldString
	}
}

// normalizePG converts numeric and date values that pgx returns as pgtype structs.
func normalizePG(v any) any {
	switch val := v.(type) {
	case pgtype.Numeric:
		f, err := val.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case pgtype.Date:
		if !val.Valid {
			return nil
		}
		return val.Time
	}
	return storage.NormalizeValue(v)
}

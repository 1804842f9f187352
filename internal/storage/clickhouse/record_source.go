package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"

	"retail-signal-lab/internal/domain"
	"retail-signal-lab/internal/storage"
)

// ClickHouse server error code for a missing table.
const chErrUnknownTable = 60

// RecordSource implements storage.RecordSource over arbitrary ClickHouse tables
// of the connection's database.
type RecordSource struct {
	conn *Conn
}

// NewRecordSource creates a new RecordSource.
func NewRecordSource(conn *Conn) *RecordSource {
	return &RecordSource{conn: conn}
}

// Compile-time interface check.
var _ storage.RecordSource = (*RecordSource)(nil)

// Query returns rows of the table matching all filters.
// Column values are scanned into their driver types and normalised to record conventions.
func (s *RecordSource) Query(ctx context.Context, q storage.Query) ([]domain.Record, error) {
	sql, args, err := buildSelect(q)
	if err != nil {
		return nil, err
	}

	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		if isUnknownTableError(err) {
			return nil, fmt.Errorf("collection %q: %w", q.Collection, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("query collection %s: %w", q.Collection, err)
	}
	defer rows.Close()

	names := rows.Columns()
	types := rows.ColumnTypes()

	var result []domain.Record
	for rows.Next() {
		dest := make([]any, len(types))
		for i, ct := range types {
			dest[i] = reflect.New(ct.ScanType()).Interface()
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		rec := make(domain.Record, len(dest))
		for i, d := range dest {
			rec[names[i]] = storage.NormalizeValue(deref(d))
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collection %s: %w", q.Collection, err)
	}
	return result, nil
}

// Fields returns the table columns in declaration order.
func (s *RecordSource) Fields(ctx context.Context, collection string) ([]domain.Field, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT name, type
		FROM system.columns
		WHERE database = currentDatabase() AND table = ?
		ORDER BY position
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("query columns of %s: %w", collection, err)
	}
	defer rows.Close()

	var fields []domain.Field
	for rows.Next() {
		var name, chType string
		if err := rows.Scan(&name, &chType); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		fieldType, nullable := fieldTypeOf(chType)
		fields = append(fields, domain.Field{Name: name, Type: fieldType, Nullable: nullable})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("collection %q: %w", collection, storage.ErrNotFound)
	}
	return fields, nil
}

// buildSelect renders q with backtick-quoted identifiers and positional parameters.
func buildSelect(q storage.Query) (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}

	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(quoteIdent(q.Collection))

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
		fmt.Fprintf(&b, "%s %s ?", quoteIdent(f.Field), op)
		args = append(args, f.Value)
	}

	if q.SortBy != "" {
		dir := "ASC"
		if q.Desc {
			dir = "DESC"
		}
		fmt.Fprintf(&b, " ORDER BY %s %s NULLS LAST", quoteIdent(q.SortBy), dir)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	}
	return b.String(), args, nil
}

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// fieldTypeOf maps a ClickHouse column type to a record field type.
func fieldTypeOf(chType string) (domain.FieldType, bool) {
	nullable := false
	if inner, ok := unwrap(chType, "Nullable"); ok {
		chType, nullable = inner, true
	}
	if inner, ok := unwrap(chType, "LowCardinality"); ok {
		chType = inner
	}

	switch {
	case strings.HasPrefix(chType, "DateTime"), strings.HasPrefix(chType, "Date"):
		return domain.FieldDatetime, nullable
	case chType == "Bool":
		return domain.FieldBool, nullable
	case strings.HasPrefix(chType, "Int"), strings.HasPrefix(chType, "UInt"):
		return domain.FieldInt, nullable
	case strings.HasPrefix(chType, "Float"), strings.HasPrefix(chType, "Decimal"):
		return domain.FieldFloat, nullable
	default:
		return domain.FieldString, nullable
	}
}

func unwrap(chType, wrapper string) (string, bool) {
	prefix := wrapper + "("
	if strings.HasPrefix(chType, prefix) && strings.HasSuffix(chType, ")") {
		return chType[len(prefix) : len(chType)-1], true
	}
	return chType, false
}

// deref strips the pointers reflect.New added, including the extra one of Nullable columns.
func deref(v any) any {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	return rv.Interface()
}

func isUnknownTableError(err error) bool {
	var exc *clickhouse.Exception
	return errors.As(err, &exc) && exc.Code == chErrUnknownTable
}

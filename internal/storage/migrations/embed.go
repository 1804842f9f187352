// Package migrations embeds and applies the schema of the postgres and clickhouse backends.
package migrations

import "embed"

// PostgresFS holds price_intervals and run_log DDL.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS holds price_intervals, activity_series and discount_features DDL.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS

package config

// App holds runtime settings shared by the command line tools.
type App struct {
	Paths    PathsConfig    `yaml:"paths"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Sources  []SourceConfig `yaml:"sources"`
}

// PathsConfig locates pipeline directories.
type PathsConfig struct {
	Models string `yaml:"models"` // root of <name>v<version>/ and <id>/ pipeline directories
	Data   string `yaml:"data"`   // root of usecase/<usecase>/models/<name>/ directories
}

// DatabaseConfig holds the optional database connections.
type DatabaseConfig struct {
	Postgres   DSNConfig `yaml:"postgres"`
	Clickhouse DSNConfig `yaml:"clickhouse"`
}

// DSNConfig is a single database connection.
type DSNConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int    `yaml:"max_conns"`
	Migrate  bool   `yaml:"migrate"` // apply embedded migrations on startup
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Namespace string `yaml:"namespace"`
	Addr      string `yaml:"addr"` // serve /metrics on this address when set
}

// Source kinds.
const (
	SourcePostgres   = "postgres"
	SourceClickhouse = "clickhouse"
	SourceSqlite     = "sqlite"
)

// SourceConfig names a record source that extraction modules read from.
type SourceConfig struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"` // postgres, clickhouse or sqlite
	DSN  string `yaml:"dsn"`  // overrides database.<kind>.dsn
	Path string `yaml:"path"` // sqlite: path to a pipeline db.sqlite, opened read-only
}

package config

// Default values.
const (
	DefaultModelsDir        = "data/models"
	DefaultDataDir          = "data"
	DefaultLogLevel         = "info"
	DefaultMetricsNamespace = "retail_signal_lab"
	DefaultMaxConns         = 4
)

func (c *App) applyDefaults() {
	if c.Paths.Models == "" {
		c.Paths.Models = DefaultModelsDir
	}
	if c.Paths.Data == "" {
		c.Paths.Data = DefaultDataDir
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = DefaultMetricsNamespace
	}
	if c.Database.Postgres.MaxConns == 0 {
		c.Database.Postgres.MaxConns = DefaultMaxConns
	}
	for i := range c.Sources {
		s := &c.Sources[i]
		if s.DSN != "" {
			continue
		}
		switch s.Kind {
		case SourcePostgres:
			s.DSN = c.Database.Postgres.DSN
		case SourceClickhouse:
			s.DSN = c.Database.Clickhouse.DSN
		}
	}
}

// Default returns an App with every default applied.
func Default() *App {
	cfg := &App{}
	cfg.applyDefaults()
	return cfg
}

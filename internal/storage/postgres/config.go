package postgres

import "time"

// Config holds PostgreSQL connection settings. An empty DSN selects the
// in-memory store.
type Config struct {
	DSN             string        `env:"POSTGRES_DSN"`
	MaxConns        int32         `env:"POSTGRES_MAX_CONNS"         envDefault:"25"`
	MinConns        int32         `env:"POSTGRES_MIN_CONNS"         envDefault:"2"`
	MaxConnLifetime time.Duration `env:"POSTGRES_MAX_CONN_LIFETIME" envDefault:"5m"`
	MigrateOnStart  bool          `env:"POSTGRES_MIGRATE_ON_START"  envDefault:"true"`
}

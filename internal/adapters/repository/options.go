package repository

import (
	"time"

	"github.com/okian/lanscore/pkg/logger"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithDriver selects the database driver (sqlite or postgres).
func WithDriver(driver string) Option {
	return func(s *Store) {
		if driver != "" {
			s.driver = driver
		}
	}
}

// WithDSN sets the driver-specific data source name.
func WithDSN(dsn string) Option {
	return func(s *Store) {
		if dsn != "" {
			s.dsn = dsn
		}
	}
}

// WithMaxOpenConns caps the connection pool. SQLite always uses one.
func WithMaxOpenConns(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxOpenConns = n
		}
	}
}

// WithConnMaxLifetime bounds how long a pooled connection is reused.
func WithConnMaxLifetime(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.connMaxLifetime = d
		}
	}
}

// WithLogger sets a custom logger for the store.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

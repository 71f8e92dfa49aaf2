package database

import (
	"fmt"

	coreconfig "github.com/m3rciful/stater/core/config"
)

// Config holds postgres connection settings; it is declared in core/config so the
// YAML/TOML loader can fill it without importing this package.
type Config = coreconfig.DatabaseConfig

// Dialect names the SQL flavour behind a connection.
type Dialect string

const (
	// DialectPostgres targets postgres through lib/pq.
	DialectPostgres Dialect = "postgres"
	// DialectSQLite targets sqlite through modernc.org/sqlite.
	DialectSQLite Dialect = "sqlite"
)

func keywordDSN(cfg Config) string {
	return fmt.Sprintf(
		"user=%s password=%s host=%s port=%s dbname=%s sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name, cfg.SSLMode,
	)
}

package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	"log/slog"

	"github.com/m3rciful/stater/core/logger"
)

// Migrations holds the schema for persistent state stores.
//
//go:embed migrations/*.sql
var Migrations embed.FS

const migrationsDir = "migrations"

// RunMigrations applies all up migrations embedded in the binary to db.
func RunMigrations(db *sqlx.DB, dialect Dialect) error {
	ctx := context.Background()
	if db == nil {
		return fmt.Errorf("migrate: nil database")
	}

	files := listMigrationFiles(Migrations, migrationsDir)
	preview, truncated := logger.SummarizeStrings(files, 6)
	attrs := []slog.Attr{
		slog.String("status", "ok"),
		slog.String("driver", string(dialect)),
		slog.Int("count", len(files)),
	}
	if preview != "" {
		attrs = append(attrs, slog.String("files_preview", preview))
	}
	if truncated {
		attrs = append(attrs, slog.Bool("files_truncated", true))
	}
	logger.Debug(ctx, "db.migrate", "migrate.resolve", attrs...)

	src, err := iofs.New(Migrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("migrate: open embedded source: %w", err)
	}

	var driver database.Driver
	switch dialect {
	case DialectPostgres:
		// A dedicated connection keeps the advisory lock off the shared pool.
		conn, connErr := db.Conn(ctx)
		if connErr != nil {
			return fmt.Errorf("migrate: acquire connection: %w", connErr)
		}
		defer conn.Close()
		driver, err = postgres.WithConnection(ctx, conn, &postgres.Config{})
	case DialectSQLite:
		driver, err = sqlite.WithInstance(db.DB, &sqlite.Config{})
	default:
		return fmt.Errorf("migrate: unsupported dialect %q", dialect)
	}
	if err != nil {
		logger.Error(ctx, "db.migrate", "migrate.init",
			slog.String("status", "fail"),
			slog.String("driver", string(dialect)),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("migrate: init driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, string(dialect), driver)
	if err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	defer src.Close()

	fromVer, _, _ := m.Version()

	start := time.Now()
	upErr := m.Up()
	took := time.Since(start)

	switch {
	case upErr == nil:
	case errors.Is(upErr, migrate.ErrNoChange):
		logger.Info(ctx, "db.migrate", "migrate.summary",
			slog.String("status", "skip"),
			slog.Uint64("from_ver", uint64(fromVer)),
			slog.Uint64("to_ver", uint64(fromVer)),
			slog.Int("count", 0),
			slog.Duration("duration", logger.RoundMS(took)),
		)
		return nil
	default:
		logger.Error(ctx, "db.migrate", "migrate.apply",
			slog.String("status", "fail"),
			slog.String("err", upErr.Error()),
			slog.Duration("duration", logger.RoundMS(took)),
		)
		return fmt.Errorf("migration execution failed: %w", upErr)
	}

	toVer, _, _ := m.Version()
	logger.Info(ctx, "db.migrate", "migrate.summary",
		slog.String("status", "ok"),
		slog.Uint64("from_ver", uint64(fromVer)),
		slog.Uint64("to_ver", uint64(toVer)),
		slog.Int("count", countApplied(files, uint64(fromVer), uint64(toVer))),
		slog.Duration("duration", logger.RoundMS(took)),
	)
	return nil
}

func listMigrationFiles(fsys fs.FS, dir string) []string {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if name := e.Name(); strings.HasSuffix(name, ".up.sql") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func parseVersion(name string) uint64 {
	parts := strings.SplitN(name, "_", 2)
	v, _ := strconv.ParseUint(parts[0], 10, 64)
	return v
}

func countApplied(files []string, from, to uint64) int {
	if to <= from {
		return 0
	}
	c := 0
	for _, f := range files {
		if v := parseVersion(f); v > from && v <= to {
			c++
		}
	}
	return c
}

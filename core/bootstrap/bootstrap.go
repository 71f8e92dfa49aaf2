package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/stater/core/config"
	coredatabase "github.com/m3rciful/stater/core/database"
	"github.com/m3rciful/stater/core/logger"
	"github.com/m3rciful/stater/core/telegram/state"
	"github.com/m3rciful/stater/core/telegram/state/lrustore"
	"github.com/m3rciful/stater/core/telegram/state/sqlstore"
)

// Options control the generic bootstrap pipeline shared between bots.
type Options struct {
	Config *coreconfig.Config

	LoggerInit func(*coreconfig.Config) error
	Connect    func(coredatabase.Config) (*sqlx.DB, error)
	OpenSQLite func(path string) (*sqlx.DB, error)
	Migrate    func(db *sqlx.DB, dialect coredatabase.Dialect) error

	// WaitTimeout bounds how long Run waits for postgres to accept connections; 0 skips the wait.
	WaitTimeout time.Duration
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
// DB is nil when the memory store driver is selected.
type Result struct {
	DB      *sqlx.DB
	Dialect coredatabase.Dialect
	Store   coreconfig.StoreConfig
}

// Close releases the database handle, if any.
func (r *Result) Close() error {
	if r == nil || r.DB == nil {
		return nil
	}
	return r.DB.Close()
}

// Run initializes the logger, opens the state database selected by the store
// driver, and applies migrations when enabled.
func Run(opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}
	cfg := opts.Config

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(cfg); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	res := &Result{Store: cfg.Store}
	switch cfg.Store.Driver {
	case coreconfig.StoreMemory, "":
		logger.Info(logger.Background(), "app", "store.select", slog.String("driver", coreconfig.StoreMemory))
		return res, nil
	case coreconfig.StoreSQLite:
		open := opts.OpenSQLite
		if open == nil {
			open = coredatabase.OpenSQLite
		}
		db, err := open(cfg.Store.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: sqlite initialization failed: %w", err)
		}
		res.DB, res.Dialect = db, coredatabase.DialectSQLite
	case coreconfig.StorePostgres:
		if opts.WaitTimeout > 0 {
			if err := coredatabase.WaitForPostgres(cfg.Database, opts.WaitTimeout); err != nil {
				return nil, fmt.Errorf("bootstrap: database unavailable: %w", err)
			}
		}
		connect := opts.Connect
		if connect == nil {
			connect = coredatabase.Connect
		}
		db, err := connect(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
		}
		res.DB, res.Dialect = db, coredatabase.DialectPostgres
	default:
		return nil, fmt.Errorf("bootstrap: unsupported store driver %q", cfg.Store.Driver)
	}

	logger.Info(logger.Background(), "app", "store.select",
		slog.String("driver", cfg.Store.Driver),
		slog.Bool("migrate", cfg.Store.Migrate),
		slog.Int("cache_size", cfg.Store.CacheSize),
	)

	if cfg.Store.Migrate {
		migrate := opts.Migrate
		if migrate == nil {
			migrate = coredatabase.RunMigrations
		}
		if err := migrate(res.DB, res.Dialect); err != nil {
			_ = res.DB.Close()
			return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
		}
	}

	return res, nil
}

// OpenStore builds the conversation state store for res. Persistent drivers are
// fronted by an LRU cache when the configured cache size is positive.
func OpenStore[S any](res *Result, schema *state.Schema[S]) (state.Store[S], error) {
	if res == nil {
		return nil, errors.New("bootstrap: nil result")
	}
	if schema == nil {
		return nil, errors.New("bootstrap: nil state schema")
	}
	if res.DB == nil {
		return state.NewMemory[S](), nil
	}

	var store state.Store[S] = sqlstore.New(res.DB, schema)
	if res.Store.CacheSize > 0 {
		cached, err := lrustore.New(store, res.Store.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: state cache: %w", err)
		}
		store = cached
	}
	logger.Debug(logger.Background(), "store", "store.open",
		slog.String("dialect", string(res.Dialect)),
		slog.Int("variants", len(schema.Variants())),
	)
	return store, nil
}

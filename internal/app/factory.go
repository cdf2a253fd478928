package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/config"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/health"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/store"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/store/postgres"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/store/sqlite"
)

// Storage bundles a store with the handle that owns it.
type Storage struct {
	Store  store.Store
	Pinger health.HealthPinger
	DB     *sql.DB
}

func (s *Storage) Close() error { return s.DB.Close() }

// OpenStorage opens the configured driver and makes sure the schema exists.
func OpenStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Storage, error) {
	var (
		db     *sql.DB
		err    error
		ensure func(context.Context, *sql.DB) error
		wrap   func(*sql.DB) store.Store
	)
	switch cfg.DBDriver {
	case "sqlite":
		db, err = sqlite.Open(cfg.SQLitePath)
		ensure, wrap = sqlite.EnsureSchema, sqlite.NewWithDB
	case "postgres":
		db, err = postgres.Open(cfg.PostgresDSN)
		ensure, wrap = postgres.EnsureSchema, postgres.NewWithDB
	default:
		return nil, fmt.Errorf("unsupported DB driver %q", cfg.DBDriver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.DBDriver, err)
	}
	if err := ensure(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure %s schema: %w", cfg.DBDriver, err)
	}

	st := wrap(db)
	pinger, ok := st.(health.HealthPinger)
	if !ok {
		_ = db.Close()
		return nil, fmt.Errorf("%s store does not support health pings", cfg.DBDriver)
	}
	log.Info().Str("db_driver", cfg.DBDriver).Msg("Storage ready")
	return &Storage{Store: st, Pinger: pinger, DB: db}, nil
}

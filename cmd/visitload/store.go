package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/gyeh/visitload/internal/config"
	"github.com/gyeh/visitload/internal/store"
	"github.com/gyeh/visitload/internal/store/mongostore"
	"github.com/gyeh/visitload/internal/store/pgstore"
	"github.com/gyeh/visitload/internal/store/sqlitestore"
)

// backend is what every store driver provides to the commands.
type backend interface {
	store.Store
	store.Archiver
}

// openStore connects to the configured driver. Postgres migrations run
// only when cfg.Migrate is set; SQLite and Mongo create their schema on open.
func openStore(ctx context.Context, log zerolog.Logger) (backend, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		st, err := pgstore.Open(ctx, cfg.DSN, cfg.Migrate, log)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.DriverMongo:
		st, err := mongostore.Open(ctx, cfg.DSN, log)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.DriverSQLite:
		st, err := sqlitestore.Open(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

// Package bootstrap opens the storage backend selected by configuration.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/GolovachevS/cr-dashboard/internal/config"
	migrate "github.com/GolovachevS/cr-dashboard/internal/db"
	"github.com/GolovachevS/cr-dashboard/internal/service"
	postgres "github.com/GolovachevS/cr-dashboard/internal/storage"
	"github.com/GolovachevS/cr-dashboard/internal/storage/gormstore"
)

// Repository is a migrated store plus the function that releases it.
type Repository struct {
	service.Repository
	Close func()
}

// OpenRepository connects to the configured database and applies the schema.
func OpenRepository(ctx context.Context, cfg config.Database) (Repository, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return openPostgres(ctx, cfg)
	case config.DriverSQLite:
		db, err := gormstore.OpenSQLite(cfg.URL)
		if err != nil {
			return Repository{}, err
		}
		return finishGorm(db, cfg.Driver)
	case config.DriverLibSQL:
		db, err := gormstore.OpenLibSQL(cfg.URL)
		if err != nil {
			return Repository{}, err
		}
		return finishGorm(db, cfg.Driver)
	default:
		return Repository{}, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func openPostgres(ctx context.Context, cfg config.Database) (Repository, error) {
	pool, err := postgres.NewPool(ctx, cfg.URL, postgres.PoolConfig{
		MaxConns: cfg.MaxConns,
		MinConns: cfg.MinConns,
	})
	if err != nil {
		return Repository{}, err
	}

	if err := migrate.Run(ctx, pool); err != nil {
		pool.Close()
		return Repository{}, fmt.Errorf("run migrations: %w", err)
	}

	slog.Info("database ready", slog.String("driver", cfg.Driver))
	return Repository{Repository: postgres.New(pool), Close: pool.Close}, nil
}

func finishGorm(db *gorm.DB, driver string) (Repository, error) {
	if err := gormstore.Migrate(db); err != nil {
		_ = gormstore.Close(db)
		return Repository{}, err
	}

	slog.Info("database ready", slog.String("driver", driver))
	return Repository{
		Repository: gormstore.New(db),
		Close: func() {
			if err := gormstore.Close(db); err != nil {
				slog.Warn("close database", slog.String("error", err.Error()))
			}
		},
	}, nil
}

// cmd/dicehall/stores.go
package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/dicehall/internal/config"
	"github.com/jason-s-yu/dicehall/internal/database"
	"github.com/jason-s-yu/dicehall/internal/game"
)

// store is what serve needs from either backend.
type store interface {
	game.Store
	game.LobbyDirectory
	Migrate(ctx context.Context) error
	SchemaVersion(ctx context.Context) (int, error)
	Close() error
}

func openStore(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (store, error) {
	if cfg.UsePostgres() {
		pg, err := database.OpenPostgres(ctx, cfg.PostgresDSN, database.WithLogger(log))
		if err != nil {
			return nil, err
		}
		return pg, nil
	}
	lite, err := database.OpenSQLite(ctx, cfg.SQLitePath, database.WithLogger(log))
	if err != nil {
		return nil, err
	}
	return lite, nil
}

// ensureSchema migrates an outdated database when allowed and fails
// otherwise.
func ensureSchema(ctx context.Context, s store, cfg config.Config, log logrus.FieldLogger) error {
	v, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if v >= cfg.SchemaVersion {
		return nil
	}
	if !cfg.AutoMigrate {
		return fmt.Errorf("database schema is at version %d, want %d; run `dicehall migrate`", v, cfg.SchemaVersion)
	}
	log.WithFields(logrus.Fields{"have": v, "want": cfg.SchemaVersion}).Info("Migrating database")
	if err := s.Migrate(ctx); err != nil {
		return err
	}
	if v, err = s.SchemaVersion(ctx); err != nil {
		return err
	}
	if v < cfg.SchemaVersion {
		return fmt.Errorf("database schema is at version %d after migrating, want %d", v, cfg.SchemaVersion)
	}
	return nil
}

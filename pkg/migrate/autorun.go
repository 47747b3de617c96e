package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/digistore-backend/pkg/config"
	"github.com/angelmondragon/digistore-backend/pkg/db"
	"github.com/angelmondragon/digistore-backend/pkg/logger"
)

func DialectFor(cfg *config.Config) Dialect {
	if cfg.FeatureFlags.UseSQLite {
		return DialectSQLite
	}
	return DialectPostgres
}

// MaybeRunDev brings the schema up on boot, but only in dev with
// AutoMigrate on. Other environments run cmd/migrate explicitly.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.FeatureFlags.AutoMigrate || !cfg.App.IsDev() {
		return nil
	}
	pool, err := client.SQL()
	if err != nil {
		return fmt.Errorf("migrate: pool handle: %w", err)
	}

	dialect := DialectFor(cfg)
	ctx = logg.WithField(ctx, "dialect", dialect)
	if err := Up(ctx, pool, dialect); err != nil {
		return fmt.Errorf("migrate: dev auto-run: %w", err)
	}
	logg.Info(ctx, "migrate.dev_autorun_done")
	return nil
}

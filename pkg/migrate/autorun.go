package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront-core/pkg/config"
	"github.com/angelmondragon/storefront-core/pkg/db"
	"github.com/angelmondragon/storefront-core/pkg/db/models"
	"github.com/angelmondragon/storefront-core/pkg/logger"
)

// MaybeRunDev prepares the ledger schema when running in dev with auto-migrate enabled.
// Postgres runs the embedded goose migrations; sqlite is created from the models.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "driver": client.Driver()})

	if client.Driver() == config.DriverSQLite {
		logg.Info(ctx, "creating ledger schema from models (dev auto-run)")
		if err := client.DB().WithContext(ctx).AutoMigrate(&models.CheckoutAttempt{}); err != nil {
			return fmt.Errorf("auto-migrating ledger: %w", err)
		}
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	logg.Info(ctx, "running goose migrations (dev auto-run)")
	if err := Run(ctx, sqlDB, "", "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}
	logg.Info(ctx, "goose migrations completed")
	return nil
}

package migrate

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/angelmondragon/creatorvault-backend/pkg/config"
	"github.com/angelmondragon/creatorvault-backend/pkg/db"
	"github.com/angelmondragon/creatorvault-backend/pkg/logger"
)

// AutoRun brings the schema up to date at startup. It only acts in dev with
// the auto-migrate flag on. Postgres gets the embedded goose migrations and
// sqlite the local schema.
func AutoRun(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	started := time.Now()

	if cfg.FeatureFlags.UseSQLite {
		ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "path": cfg.DB.SQLitePath})
		if err := ApplySQLite(ctx, client.DB()); err != nil {
			return err
		}
		logg.Info(logg.WithField(ctx, "elapsed_ms", time.Since(started).Milliseconds()), "sqlite schema applied")
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}
	ctx = logg.WithField(ctx, "env", cfg.App.Env)
	if err := Run(ctx, sqlDB, Migrations(""), "up", io.Discard); err != nil {
		return err
	}
	logg.Info(logg.WithField(ctx, "elapsed_ms", time.Since(started).Milliseconds()), "goose migrations applied")
	return nil
}

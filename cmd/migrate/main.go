// Command migrate applies and authors the goose migrations for the ledger
// schema. create and validate work offline; the rest need a database.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/creatorvault-backend/pkg/config"
	"github.com/angelmondragon/creatorvault-backend/pkg/db"
	"github.com/angelmondragon/creatorvault-backend/pkg/logger"
	"github.com/angelmondragon/creatorvault-backend/pkg/migrate"
)

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

func parseOptions(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.StringVar(&opts.cmd, "cmd", "up", "up|down|status|version|create|validate")
	fs.StringVar(&opts.dir, "dir", "", "migrations directory; empty uses the embedded set (create writes to "+migrate.SourceDir+")")
	fs.StringVar(&opts.name, "name", "", "migration name for -cmd=create")
	fs.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	switch opts.cmd {
	case "create":
		if opts.name == "" {
			return options{}, errors.New("-cmd=create needs -name")
		}
	case "version":
		if opts.version == "" {
			return options{}, errors.New("-cmd=version needs -version")
		}
	case "up", "down", "status", "validate":
	default:
		return options{}, fmt.Errorf("unknown -cmd %q", opts.cmd)
	}
	return opts, nil
}

// offline handles the commands that never touch a database. It reports
// whether opts.cmd was one of them.
func offline(opts options, out io.Writer) (bool, error) {
	switch opts.cmd {
	case "create":
		target := opts.dir
		if target == "" {
			target = migrate.SourceDir
		}
		path, err := migrate.CreateSQLMigration(target, opts.name)
		if err != nil {
			return true, fmt.Errorf("create migration: %w", err)
		}
		fmt.Fprintln(out, "created migration:", path)
		return true, nil
	case "validate":
		if err := migrate.Validate(migrate.Migrations(opts.dir)); err != nil {
			return true, fmt.Errorf("validate migrations: %w", err)
		}
		fmt.Fprintln(out, "migration validation passed")
		return true, nil
	}
	return false, nil
}

func main() {
	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if handled, err := offline(opts, os.Stdout); handled {
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	_ = godotenv.Load()
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	cfg, err := config.Load()
	requireResource(logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "cmd": opts.cmd})

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	requireResource(logg, "database", err)
	defer dbClient.Close()

	if err := apply(ctx, opts, cfg.FeatureFlags.UseSQLite, dbClient, os.Stdout); err != nil {
		logg.Error(ctx, "migration failed", err)
		os.Exit(1)
	}
	logg.Info(ctx, "migration finished")
}

// apply runs a database command. SQLite has no goose history, so it only
// supports up, which loads the schema directly.
func apply(ctx context.Context, opts options, useSQLite bool, client *db.Client, out io.Writer) error {
	if useSQLite {
		if opts.cmd != "up" {
			return fmt.Errorf("sqlite supports only -cmd=up, got %q", opts.cmd)
		}
		return migrate.ApplySQLite(ctx, client.DB())
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}
	migrations := migrate.Migrations(opts.dir)
	if opts.cmd == "version" {
		return migrate.MigrateToVersion(ctx, sqlDB, migrations, opts.version, out)
	}
	return migrate.Run(ctx, sqlDB, migrations, opts.cmd, out)
}

func requireResource(logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}

package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/pressly/goose/v3"
)

// SourceDir is where the postgres migrations live in the source tree; new
// migrations are created there. They rely on enums and partial indexes, so
// sqlite uses ApplySQLite instead.
const SourceDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Migrations returns the migrations in dir, or the copy compiled into the
// binary when dir is empty.
func Migrations(dir string) fs.FS {
	if dir != "" {
		return os.DirFS(dir)
	}
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

func newProvider(db *sql.DB, migrations fs.FS) (*goose.Provider, error) {
	if db == nil {
		return nil, errors.New("migrate: db is required")
	}
	if migrations == nil {
		return nil, errors.New("migrate: migrations are required")
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return provider, nil
}

// Run executes up, down or status against db. Applied migrations and status
// rows are reported on out.
func Run(ctx context.Context, db *sql.DB, migrations fs.FS, command string, out io.Writer) error {
	provider, err := newProvider(db, migrations)
	if err != nil {
		return err
	}
	if out == nil {
		out = io.Discard
	}

	switch command {
	case "up":
		results, err := provider.Up(ctx)
		reportResults(out, results)
		return wrapGoose("up", err)
	case "down":
		result, err := provider.Down(ctx)
		if result != nil {
			reportResults(out, []*goose.MigrationResult{result})
		}
		return wrapGoose("down", err)
	case "status":
		statuses, err := provider.Status(ctx)
		if err != nil {
			return wrapGoose("status", err)
		}
		for _, st := range statuses {
			applied := "pending"
			if !st.AppliedAt.IsZero() {
				applied = st.AppliedAt.UTC().Format(time.RFC3339)
			}
			fmt.Fprintf(out, "%-16d %-10s %s\n", st.Source.Version, st.State, applied)
		}
		return nil
	default:
		return fmt.Errorf("migrate: unsupported command %q", command)
	}
}

// MigrateToVersion moves the schema up or down until version is the newest
// applied migration.
func MigrateToVersion(ctx context.Context, db *sql.DB, migrations fs.FS, version string, out io.Writer) error {
	target, err := strconv.ParseInt(version, 10, 64)
	if err != nil || len(version) != len(versionLayout) {
		return fmt.Errorf("migrate: version %q is not YYYYMMDDHHMMSS", version)
	}
	provider, err := newProvider(db, migrations)
	if err != nil {
		return err
	}
	if out == nil {
		out = io.Discard
	}
	current, err := provider.GetDBVersion(ctx)
	if err != nil {
		return wrapGoose("version", err)
	}

	var results []*goose.MigrationResult
	switch {
	case current < target:
		results, err = provider.UpTo(ctx, target)
	case current > target:
		results, err = provider.DownTo(ctx, target)
	}
	reportResults(out, results)
	return wrapGoose("version", err)
}

func reportResults(out io.Writer, results []*goose.MigrationResult) {
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		fmt.Fprintf(out, "%-4s %d %s (%s)\n", r.Direction, r.Source.Version, r.Source.Path, r.Duration.Round(time.Millisecond))
	}
}

func wrapGoose(command string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("goose %s: %w", command, err)
}

package migrate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

var (
	fileNameRe = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)
	slugRe     = regexp.MustCompile(`[^a-z0-9]+`)
)

// File is one goose SQL migration. Name is relative to the listed FS.
type File struct {
	Version int64
	Slug    string
	Name    string
}

// ListFiles returns the migrations at the root of migrations ordered by
// version. Non-SQL files are ignored; a SQL file with a malformed name or a
// reused version is an error.
func ListFiles(migrations fs.FS) ([]File, error) {
	if migrations == nil {
		return nil, errors.New("migrations are required")
	}
	entries, err := fs.ReadDir(migrations, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	var files []File
	byVersion := map[int64]string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || path.Ext(name) != ".sql" {
			continue
		}
		parts := fileNameRe.FindStringSubmatch(name)
		if parts == nil {
			return nil, fmt.Errorf("migration %q: want <%s>_<slug>.sql", name, strings.Repeat("9", len(versionLayout)))
		}
		version, _ := strconv.ParseInt(parts[1], 10, 64)
		if other, dup := byVersion[version]; dup {
			return nil, fmt.Errorf("migrations %q and %q share version %d", other, name, version)
		}
		byVersion[version] = name
		files = append(files, File{Version: version, Slug: parts[2], Name: name})
	}
	slices.SortFunc(files, func(a, b File) int { return int(a.Version - b.Version) })
	return files, nil
}

// Validate checks every migration for goose annotations: both directions
// present and StatementBegin/StatementEnd balanced.
func Validate(migrations fs.FS) error {
	files, err := ListFiles(migrations)
	if err != nil {
		return err
	}
	var errs []error
	for _, f := range files {
		body, err := fs.ReadFile(migrations, f.Name)
		if err != nil {
			return fmt.Errorf("read %q: %w", f.Name, err)
		}
		if err := checkAnnotations(string(body)); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.Name, err))
		}
	}
	return errors.Join(errs...)
}

func checkAnnotations(body string) error {
	up := strings.Index(body, "-- +goose Up")
	down := strings.Index(body, "-- +goose Down")
	switch {
	case up < 0:
		return errors.New(`missing "-- +goose Up"`)
	case down < 0:
		return errors.New(`missing "-- +goose Down"`)
	case down < up:
		return errors.New("down section precedes up section")
	}
	if begins, ends := strings.Count(body, "-- +goose StatementBegin"), strings.Count(body, "-- +goose StatementEnd"); begins != ends {
		return fmt.Errorf("%d StatementBegin vs %d StatementEnd", begins, ends)
	}
	return nil
}

// CreateSQLMigration writes an empty goose migration named after name and
// returns its path. The version is the current UTC time, pushed past the
// newest existing version when the clock is behind it.
func CreateSQLMigration(dir, name string) (string, error) {
	slug := strings.Trim(slugRe.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if slug == "" {
		return "", fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create migrations dir: %w", err)
	}
	existing, err := ListFiles(os.DirFS(dir))
	if err != nil {
		return "", err
	}

	stamp := time.Now().UTC()
	if n := len(existing); n > 0 {
		latest, err := time.Parse(versionLayout, strconv.FormatInt(existing[n-1].Version, 10))
		if err == nil && !stamp.After(latest) {
			stamp = latest.Add(time.Second)
		}
	}

	target := filepath.Join(dir, stamp.Format(versionLayout)+"_"+slug+".sql")
	body := "-- +goose Up\n-- +goose StatementBegin\n-- " + slug + "\n-- +goose StatementEnd\n\n" +
		"-- +goose Down\n-- +goose StatementBegin\n-- revert " + slug + "\n-- +goose StatementEnd\n"
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create %q: %w", target, err)
	}
	defer f.Close()
	if _, err := f.WriteString(body); err != nil {
		return "", fmt.Errorf("write %q: %w", target, err)
	}
	return target, nil
}

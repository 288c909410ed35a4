package migrate

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestValidateAcceptsCommittedMigrations(t *testing.T) {
	if err := Validate(Migrations("")); err != nil {
		t.Fatalf("validate committed migrations: %v", err)
	}
}

func TestValidateRejectsBadFiles(t *testing.T) {
	cases := map[string]string{
		"bad_name.sql":                  "-- +goose Up\n-- +goose Down\n",
		"20260101000000_missing_up.sql": "-- +goose Down\n",
		"20260101000000_unbalanced.sql": "-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose Down\n",
		"20260101000000_reversed.sql":   "-- +goose Down\n-- +goose Up\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
			if err := Validate(os.DirFS(dir)); err == nil {
				t.Fatalf("expected validation error for %s", name)
			}
		})
	}
}

func TestEmbeddedMigrationsMatchSourceTree(t *testing.T) {
	embedded, err := ListFiles(Migrations(""))
	if err != nil {
		t.Fatalf("list embedded: %v", err)
	}
	onDisk, err := ListFiles(os.DirFS("migrations"))
	if err != nil {
		t.Fatalf("list source: %v", err)
	}
	if len(embedded) == 0 || len(embedded) != len(onDisk) {
		t.Fatalf("embedded %d migrations, source tree has %d", len(embedded), len(onDisk))
	}
	for i := range embedded {
		if embedded[i] != onDisk[i] {
			t.Fatalf("migration %d differs: %+v vs %+v", i, embedded[i], onDisk[i])
		}
	}
}

func TestCreateSQLMigrationWritesGooseTemplate(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "Add Payout Notes!")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_payout_notes.sql") {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := Validate(os.DirFS(dir)); err != nil {
		t.Fatalf("created migration should validate: %v", err)
	}
}

func TestListFilesOrdersAndRejectsDuplicates(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"20260102000000_b.sql", "20260101000000_a.sql", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	files, err := ListFiles(os.DirFS(dir))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 2 || files[0].Slug != "a" || files[1].Version != 20260102000000 {
		t.Fatalf("unexpected order: %+v", files)
	}

	if err := os.WriteFile(filepath.Join(dir, "20260101000000_again.sql"), nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ListFiles(os.DirFS(dir)); err == nil {
		t.Fatal("expected duplicate version error")
	}
}

func TestCreateSQLMigrationStaysAheadOfFutureVersions(t *testing.T) {
	dir := t.TempDir()
	future := "29990101000000_future.sql"
	if err := os.WriteFile(filepath.Join(dir, future), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	path, err := CreateSQLMigration(dir, "next")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if filepath.Base(path) != "29990101000001_next.sql" {
		t.Fatalf("expected version after the future file, got %s", path)
	}
	if _, err := CreateSQLMigration(dir, "!!!"); err == nil {
		t.Fatal("expected error for a name without usable characters")
	}
}

func TestMigrateToVersionRejectsMalformedVersion(t *testing.T) {
	if err := MigrateToVersion(context.Background(), nil, Migrations(""), "2026", nil); err == nil {
		t.Fatal("expected malformed version error")
	}
}

func TestSQLiteStatementsSkipsComments(t *testing.T) {
	stmts := sqliteStatements("-- header; ignored\nCREATE TABLE a (id TEXT);\n\nCREATE TABLE b (id TEXT);\n")
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d: %v", len(stmts), stmts)
	}
}

func TestApplySQLiteIsIdempotentAndEnforcesLiveIndex(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	ctx := context.Background()
	if err := ApplySQLite(ctx, conn); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	if err := ApplySQLite(ctx, conn); err != nil {
		t.Fatalf("re-apply schema: %v", err)
	}

	member, creator, content := uuid.NewString(), uuid.NewString(), uuid.NewString()
	insert := `INSERT INTO transactions (id, member_id, creator_id, type, content_id, amount, platform_fee_rate, status)
		VALUES (?, ?, ?, 'content_unlock', ?, '9.99', '0.2000', ?)`
	if err := conn.Exec(insert, uuid.NewString(), member, creator, content, "failed").Error; err != nil {
		t.Fatalf("insert failed row: %v", err)
	}
	if err := conn.Exec(insert, uuid.NewString(), member, creator, content, "completed").Error; err != nil {
		t.Fatalf("insert completed row: %v", err)
	}
	if err := conn.Exec(insert, uuid.NewString(), member, creator, content, "pending").Error; err == nil {
		t.Fatalf("expected live unlock index to reject second live row")
	}
}

var uniqueIndexRe = regexp.MustCompile(`(?s)CREATE UNIQUE INDEX IF NOT EXISTS (\w+)\s+(.*?);`)

func uniqueIndexes(sql string) map[string]string {
	out := map[string]string{}
	for _, m := range uniqueIndexRe.FindAllStringSubmatch(sql, -1) {
		out[m[1]] = strings.Join(strings.Fields(m[2]), " ")
	}
	return out
}

func TestSQLiteSchemaMatchesMigrationUniqueIndexes(t *testing.T) {
	files, err := ListFiles(Migrations(""))
	if err != nil {
		t.Fatalf("list migrations: %v", err)
	}
	var all strings.Builder
	for _, f := range files {
		body, err := fs.ReadFile(Migrations(""), f.Name)
		if err != nil {
			t.Fatalf("read %s: %v", f.Name, err)
		}
		all.Write(body)
	}

	want := uniqueIndexes(all.String())
	got := uniqueIndexes(sqliteSchema)
	if len(want) == 0 {
		t.Fatal("no unique indexes found in migrations")
	}
	for name, def := range want {
		if got[name] != def {
			t.Errorf("sqlite index %s = %q, migrations define %q", name, got[name], def)
		}
	}
	for name := range got {
		if _, ok := want[name]; !ok {
			t.Errorf("sqlite schema has unique index %s that no migration creates", name)
		}
	}
	if !strings.Contains(sqliteSchema, "ON transactions (status, updated_at)") {
		t.Error("sqlite schema lacks the stale-unlock index on updated_at")
	}
}

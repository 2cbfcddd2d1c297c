package migrations

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	relay "github.com/goliatone/go-webhook-relay"
	_ "github.com/mattn/go-sqlite3"
)

func TestForDialect_ResolvesBothSchemaDirectories(t *testing.T) {
	for _, dialect := range []string{DialectPostgres, DialectSQLite, "sqlite3", "PostgreSQL"} {
		fsys, err := ForDialect(dialect)
		if err != nil {
			t.Fatalf("for dialect %s: %v", dialect, err)
		}
		if _, err := fs.ReadFile(fsys, "00001_webhook_relay_schema.up.sql"); err != nil {
			t.Fatalf("expected %s schema at the directory root: %v", dialect, err)
		}
	}

	sqliteFS, _ := ForDialect(DialectSQLite)
	content, err := fs.ReadFile(sqliteFS, "00001_webhook_relay_schema.up.sql")
	if err != nil {
		t.Fatalf("read sqlite schema: %v", err)
	}
	postgresFS, _ := ForDialect(DialectPostgres)
	postgresContent, err := fs.ReadFile(postgresFS, "00001_webhook_relay_schema.up.sql")
	if err != nil {
		t.Fatalf("read postgres schema: %v", err)
	}
	if string(content) == string(postgresContent) {
		t.Fatalf("expected sqlite and postgres schemas to differ")
	}
}

func TestForDialect_RejectsUnknownDialectAndEmptyDirectory(t *testing.T) {
	if _, err := ForDialect("mysql"); err == nil {
		t.Fatalf("expected unsupported dialect error")
	}
	empty := fstest.MapFS{"data/sql/migrations/sqlite/README": {Data: []byte("x")}}
	if _, err := forDialect(empty, DialectSQLite); err == nil {
		t.Fatalf("expected error for directory without up migrations")
	}
}

func TestRegister_PassesDialectFilesystem(t *testing.T) {
	var registered fs.FS
	err := Register(context.Background(), "sqlite3", func(_ context.Context, fsys fs.FS) error {
		registered = fsys
		return nil
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := fs.ReadFile(registered, "00001_webhook_relay_schema.down.sql"); err != nil {
		t.Fatalf("expected sqlite filesystem, got %v", err)
	}

	failure := errors.New("boom")
	if err := Register(context.Background(), DialectPostgres, func(context.Context, fs.FS) error { return failure }); !errors.Is(err, failure) {
		t.Fatalf("expected wrapped register error, got %v", err)
	}
	if err := Register(context.Background(), DialectPostgres, nil); err == nil {
		t.Fatalf("expected missing register function error")
	}
}

func TestRelaySchemaMigrationPair_ExistsForBothDialects(t *testing.T) {
	root := relay.GetMigrationsFS()
	paths := []string{
		"data/sql/migrations/00001_webhook_relay_schema.up.sql",
		"data/sql/migrations/00001_webhook_relay_schema.down.sql",
		"data/sql/migrations/sqlite/00001_webhook_relay_schema.up.sql",
		"data/sql/migrations/sqlite/00001_webhook_relay_schema.down.sql",
	}
	for _, migrationPath := range paths {
		content, err := fs.ReadFile(root, migrationPath)
		if err != nil {
			t.Fatalf("read migration %s: %v", migrationPath, err)
		}
		if strings.TrimSpace(string(content)) == "" {
			t.Fatalf("expected migration %s to have SQL content", migrationPath)
		}
	}
}

func TestSQLiteRelaySchemaMigration_ApplyAndRollback(t *testing.T) {
	db, err := sql.Open("sqlite3", "file:migrations-relay-schema?mode=memory&cache=shared&_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()

	sqliteMigrations, err := fs.Sub(relay.GetMigrationsFS(), "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}
	ctx := context.Background()
	if err := execSQLMigration(ctx, db, sqliteMigrations, "00001_webhook_relay_schema.up.sql"); err != nil {
		t.Fatalf("apply schema up: %v", err)
	}

	for _, tableName := range []string{"webhook_events", "integration_audits", "forwarding_states", "delivery_projections"} {
		if count := countSQLiteObjects(t, db, "table", tableName); count != 1 {
			t.Fatalf("expected table %s after up migration", tableName)
		}
	}

	insertEvent := `
		INSERT INTO webhook_events (
			event_id, provider_id, user_id, scope_key, payload_hash, payload,
			verification, outcome, response_status_code, received_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := db.ExecContext(ctx, insertEvent,
		"E1", "acme", "usr_1", "acme:usr_1", "h1", []byte("{}"), "valid", "accepted", 202, "2026-01-01T00:00:00Z",
	); err != nil {
		t.Fatalf("insert event: %v", err)
	}
	if _, err := db.ExecContext(ctx, insertEvent,
		"E1", "acme", "usr_1", "acme:usr_1", "h2", []byte("{}"), "valid", "accepted", 202, "2026-01-01T00:00:00Z",
	); err == nil {
		t.Fatalf("expected duplicate event id to violate primary key")
	}
	if _, err := db.ExecContext(ctx, insertEvent,
		"E2", "acme", "usr_1", "acme:usr_1", "h1", []byte("{}"), "invalid_signature", "accepted", 202, "2026-01-01T00:00:00Z",
	); err == nil {
		t.Fatalf("expected accepted event with invalid signature to violate check constraint")
	}

	insertAudit := `INSERT INTO integration_audits (id, user_id, provider_id, action, event_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := db.ExecContext(ctx, insertAudit, "a1", "usr_1", "acme", "upsert", "E1", "2026-01-01T00:00:00Z"); err != nil {
		t.Fatalf("insert audit: %v", err)
	}
	if _, err := db.ExecContext(ctx, insertAudit, "a2", "usr_1", "acme", "upsert", "E1", "2026-01-01T00:00:00Z"); err == nil {
		t.Fatalf("expected second audit for the same event to violate unique index")
	}
	for _, id := range []string{"a3", "a4"} {
		if _, err := db.ExecContext(ctx, insertAudit, id, "usr_1", "acme", "connect", nil, "2026-01-01T00:00:00Z"); err != nil {
			t.Fatalf("insert audit without event id: %v", err)
		}
	}

	insertState := `
		INSERT INTO forwarding_states (
			event_id, scope_key, provider_id, status, attempt_count, next_attempt_at, received_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := db.ExecContext(ctx, insertState, "E1", "acme:usr_1", "acme", "retrying", 1, nil, "2026-01-01T00:00:00Z"); err == nil {
		t.Fatalf("expected retrying row without next_attempt_at to violate check constraint")
	}
	if _, err := db.ExecContext(ctx, insertState, "E9", "acme:usr_1", "acme", "queued", 0, nil, "2026-01-01T00:00:00Z"); err == nil {
		t.Fatalf("expected forwarding row for unknown event to violate foreign key")
	}

	if err := execSQLMigration(ctx, db, sqliteMigrations, "00001_webhook_relay_schema.down.sql"); err != nil {
		t.Fatalf("apply schema down: %v", err)
	}
	if count := countSQLiteObjects(t, db, "table", "webhook_events"); count != 0 {
		t.Fatalf("expected webhook_events to be dropped after down migration")
	}
}

func countSQLiteObjects(t *testing.T, db *sql.DB, kind string, name string) int {
	t.Helper()
	var count int
	if err := db.QueryRowContext(
		context.Background(),
		`SELECT COUNT(*) FROM sqlite_master WHERE type=? AND name=?`,
		kind,
		name,
	).Scan(&count); err != nil {
		t.Fatalf("query sqlite_master for %s: %v", name, err)
	}
	return count
}

func execSQLMigration(ctx context.Context, db *sql.DB, fsys fs.FS, filename string) error {
	content, err := fs.ReadFile(fsys, filepath.Clean(filename))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, string(content))
	return err
}

// Package migrations resolves the embedded relay schema for a SQL dialect.
// Postgres files live at data/sql/migrations and the sqlite variants under
// data/sql/migrations/sqlite.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	relay "github.com/goliatone/go-webhook-relay"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	schemaRoot = "data/sql/migrations"
)

var dialectPaths = map[string]string{
	DialectPostgres: schemaRoot,
	DialectSQLite:   schemaRoot + "/sqlite",
}

// RegisterFunc receives the migration filesystem of one dialect, usually
// forwarding it to persistence.Client.RegisterSQLMigrations.
type RegisterFunc func(ctx context.Context, fsys fs.FS) error

// NormalizeDialect maps driver names to a schema dialect.
func NormalizeDialect(name string) (string, error) {
	switch strings.TrimSpace(strings.ToLower(name)) {
	case DialectPostgres, "postgresql", "pg":
		return DialectPostgres, nil
	case DialectSQLite, "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("migrations: unsupported dialect %q", name)
	}
}

// ForDialect returns the migration directory for dialect. The directory must
// hold at least one *.up.sql file.
func ForDialect(dialect string) (fs.FS, error) {
	return forDialect(relay.GetMigrationsFS(), dialect)
}

// Register resolves the dialect filesystem and hands it to registerFn.
func Register(ctx context.Context, dialect string, registerFn RegisterFunc) error {
	if registerFn == nil {
		return fmt.Errorf("migrations: register function is required")
	}
	fsys, err := ForDialect(dialect)
	if err != nil {
		return err
	}
	if err := registerFn(ctx, fsys); err != nil {
		return fmt.Errorf("migrations: register %s: %w", dialect, err)
	}
	return nil
}

func forDialect(root fs.FS, dialect string) (fs.FS, error) {
	normalized, err := NormalizeDialect(dialect)
	if err != nil {
		return nil, err
	}
	dir := dialectPaths[normalized]
	sub, err := fs.Sub(root, dir)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve %s: %w", dir, err)
	}
	matches, err := fs.Glob(sub, "*.up.sql")
	if err != nil {
		return nil, fmt.Errorf("migrations: glob %s: %w", dir, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("migrations: %s has no *.up.sql files", dir)
	}
	return sub, nil
}

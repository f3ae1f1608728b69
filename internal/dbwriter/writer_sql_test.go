//go:build sqltest
// +build sqltest

package dbwriter

import (
	"database/sql"
	"io/fs"
	"testing"

	"github.com/DATA-DOG/go-txdb"
	_ "github.com/lib/pq" // PostgreSQL driver
)

func init() {
	txdb.Register("txdb", "postgres", "user=test password=test dbname=test host=/var/run/postgresql sslmode=disable")
}

// TestMigrationSQL executes each embedded migration file in a rolled-back
// transaction, so the schema is validated against a real server without
// mutating it. Requires a local PostgreSQL socket; run with -tags sqltest.
func TestMigrationSQL(t *testing.T) {
	entries, err := fs.Glob(migrationsFS, "migrations/*.up.sql")
	if err != nil {
		t.Fatalf("failed to list embedded migrations: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("no embedded migration files found")
	}

	for _, name := range entries {
		t.Run(name, func(t *testing.T) {
			db, err := sql.Open("txdb", name)
			if err != nil {
				t.Fatalf("failed to open database: %v", err)
			}
			defer db.Close()

			content, err := fs.ReadFile(migrationsFS, name)
			if err != nil {
				t.Fatalf("failed to read migration file: %v", err)
			}

			tx, err := db.Begin()
			if err != nil {
				t.Fatalf("failed to begin transaction: %v", err)
			}
			defer tx.Rollback()

			if _, err := tx.Exec(string(content)); err != nil {
				t.Errorf("migration %s failed to apply: %v", name, err)
			}
		})
	}
}

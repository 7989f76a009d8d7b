// store_test.go provides a shared test database helper for all store
// integration tests. Tests are skipped if PostgreSQL is not available.
package store

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"

	"inlinecms/internal/database"
	"inlinecms/internal/models"
)

// testDSN returns the PostgreSQL connection string for testing.
// Uses environment variables with defaults matching docker-compose.yml.
func testDSN() string {
	host := envOr("POSTGRES_HOST", "localhost")
	port := envOr("POSTGRES_PORT", "5432")
	user := envOr("POSTGRES_USER", "inlinecms")
	pass := envOr("POSTGRES_PASSWORD", "changeme")
	name := envOr("POSTGRES_DB", "inlinecms")
	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=disable"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// testDB opens a connection to the test database and runs migrations.
// If the database is unavailable, the test is skipped. A cleanup
// function is registered to close the connection when the test finishes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("pgx", testDSN())
	if err != nil {
		t.Skipf("skipping integration test: cannot open DB: %v", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("skipping integration test: DB not reachable: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db), "run migrations")

	// Reset goose global state.
	goose.SetBaseFS(nil)
	return db
}

// testPage creates a uniquely keyed page and removes it, with its
// elements and transitions, when the test finishes.
func testPage(t *testing.T, db *sql.DB) string {
	t.Helper()
	key := "test-" + uuid.NewString()[:8]
	_, err := NewPageStore(db).UpsertPage(context.Background(), &models.ContentPage{
		PageKey:     key,
		DisplayName: map[string]string{models.LangEnglish: "Test"},
		IsActive:    true,
	})
	require.NoError(t, err, "create test page")
	t.Cleanup(func() { cleanPage(t, db, key) })
	return key
}

// cleanPage removes a page and everything attached to it.
func cleanPage(t *testing.T, db *sql.DB, pageKey string) {
	t.Helper()
	db.Exec("DELETE FROM element_transitions WHERE page_key = $1", pageKey)
	db.Exec("DELETE FROM content_elements WHERE page_key = $1", pageKey)
	db.Exec("DELETE FROM content_pages WHERE page_key = $1", pageKey)
}

package testutil

import (
	"testing"

	"docwatch/internal/database"
)

// NewTestCatalog creates an in-memory SQLite catalog with migrations applied.
// The catalog is automatically closed when the test completes.
func NewTestCatalog(t *testing.T) *database.SQLiteCatalog {
	t.Helper()

	catalog, err := database.NewSQLiteCatalog(":memory:")
	if err != nil {
		t.Fatalf("failed to open catalog: %v", err)
	}

	t.Cleanup(func() {
		catalog.Close()
	})

	return catalog
}

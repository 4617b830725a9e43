package database

import (
	"os"
	"path/filepath"
	"testing"

	"docwatch/internal/config"
)

func TestNewCatalogFromConfig(t *testing.T) {
	t.Run("memory database", func(t *testing.T) {
		got, err := NewCatalogFromConfig(config.DatabaseConfig{Type: "memory"})
		if err != nil {
			t.Fatalf("NewCatalogFromConfig() unexpected error: %v", err)
		}
		defer got.Close()

		if err := got.CheckMigrations(); err != nil {
			t.Errorf("CheckMigrations() error = %v", err)
		}
	})

	t.Run("sqlite database creates data dir", func(t *testing.T) {
		dataDir := filepath.Join(t.TempDir(), "data")
		got, err := NewCatalogFromConfig(config.DatabaseConfig{Type: "sqlite", DataDir: dataDir})
		if err != nil {
			t.Fatalf("NewCatalogFromConfig() unexpected error: %v", err)
		}
		defer got.Close()

		if _, err := os.Stat(filepath.Join(dataDir, CatalogFileName)); err != nil {
			t.Errorf("catalog file not created: %v", err)
		}
		if got.Path() != filepath.Join(dataDir, CatalogFileName) {
			t.Errorf("Path() = %q", got.Path())
		}
	})

	t.Run("sqlite database without data_dir", func(t *testing.T) {
		_, err := NewCatalogFromConfig(config.DatabaseConfig{Type: "sqlite"})
		if err == nil {
			t.Error("NewCatalogFromConfig() expected error for missing data_dir")
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := NewCatalogFromConfig(config.DatabaseConfig{Type: "postgres"})
		if err == nil {
			t.Error("NewCatalogFromConfig() expected error for unknown type")
		}
	})
}

package artifacts

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"docwatch/internal/config"
	"docwatch/internal/dw"
)

func newStores(t *testing.T) map[string]dw.ArtifactStore {
	t.Helper()
	fsStore, err := NewFileSystemStore(filepath.Join(t.TempDir(), "thumbnails"))
	if err != nil {
		t.Fatalf("NewFileSystemStore() error = %v", err)
	}
	return map[string]dw.ArtifactStore{
		"memory":     NewMemoryStore(),
		"filesystem": fsStore,
	}
}

func TestArtifactStores(t *testing.T) {
	ctx := context.Background()

	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("put and get", func(t *testing.T) {
				data := "jpeg bytes"
				if err := store.Put(ctx, "thumb_a.pdf.jpg", strings.NewReader(data), int64(len(data))); err != nil {
					t.Fatalf("Put() error = %v", err)
				}
				var buf bytes.Buffer
				if err := store.Get(ctx, "thumb_a.pdf.jpg", &buf); err != nil {
					t.Fatalf("Get() error = %v", err)
				}
				if buf.String() != data {
					t.Errorf("Get() = %q, want %q", buf.String(), data)
				}
			})

			t.Run("put replaces", func(t *testing.T) {
				if err := store.Put(ctx, "thumb_a.pdf.jpg", strings.NewReader("v2"), 2); err != nil {
					t.Fatalf("Put() error = %v", err)
				}
				var buf bytes.Buffer
				if err := store.Get(ctx, "thumb_a.pdf.jpg", &buf); err != nil {
					t.Fatalf("Get() error = %v", err)
				}
				if buf.String() != "v2" {
					t.Errorf("Get() = %q, want %q", buf.String(), "v2")
				}
			})

			t.Run("size mismatch", func(t *testing.T) {
				if err := store.Put(ctx, "preview_b.pdf.jpg", strings.NewReader("abc"), 10); err == nil {
					t.Fatal("expected size mismatch error")
				}
				var buf bytes.Buffer
				if err := store.Get(ctx, "preview_b.pdf.jpg", &buf); !errors.Is(err, ErrNotFound) {
					t.Errorf("Get() after failed Put error = %v, want ErrNotFound", err)
				}
			})

			t.Run("unknown size", func(t *testing.T) {
				if err := store.Put(ctx, "preview_a.pdf.jpg", strings.NewReader("xyz"), -1); err != nil {
					t.Fatalf("Put() error = %v", err)
				}
			})

			t.Run("rejects path keys", func(t *testing.T) {
				for _, key := range []string{"", "..", "../escape.jpg", "sub/key.jpg"} {
					if err := store.Put(ctx, key, strings.NewReader("x"), 1); err == nil {
						t.Errorf("Put(%q) expected error", key)
					}
				}
			})

			t.Run("list sorted", func(t *testing.T) {
				keys, err := store.List(ctx)
				if err != nil {
					t.Fatalf("List() error = %v", err)
				}
				want := []string{"preview_a.pdf.jpg", "thumb_a.pdf.jpg"}
				if len(keys) != len(want) {
					t.Fatalf("List() = %v, want %v", keys, want)
				}
				for i := range want {
					if keys[i] != want[i] {
						t.Errorf("List()[%d] = %q, want %q", i, keys[i], want[i])
					}
				}
			})

			t.Run("delete is idempotent", func(t *testing.T) {
				if err := store.Delete(ctx, "thumb_a.pdf.jpg"); err != nil {
					t.Fatalf("Delete() error = %v", err)
				}
				if err := store.Delete(ctx, "thumb_a.pdf.jpg"); err != nil {
					t.Fatalf("second Delete() error = %v", err)
				}
				var buf bytes.Buffer
				if err := store.Get(ctx, "thumb_a.pdf.jpg", &buf); !errors.Is(err, ErrNotFound) {
					t.Errorf("Get() error = %v, want ErrNotFound", err)
				}
			})
		})
	}
}

func TestFileSystemStore_ListSkipsTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileSystemStore(dir)
	if err != nil {
		t.Fatalf("NewFileSystemStore() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, tempPrefix+"123"), []byte("partial"), 0644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	keys, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("List() = %v, want empty", keys)
	}
}

func TestNewArtifactStoreFromConfig(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		cfg     config.ArtifactsConfig
		wantErr bool
	}{
		{name: "memory", cfg: config.ArtifactsConfig{Type: "memory"}},
		{name: "filesystem", cfg: config.ArtifactsConfig{Type: "filesystem", Dir: filepath.Join(t.TempDir(), "thumbs")}},
		{name: "filesystem without dir", cfg: config.ArtifactsConfig{Type: "filesystem"}, wantErr: true},
		{name: "s3 without bucket", cfg: config.ArtifactsConfig{Type: "s3"}, wantErr: true},
		{name: "unknown type", cfg: config.ArtifactsConfig{Type: "ftp"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := NewArtifactStoreFromConfig(ctx, tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewArtifactStoreFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && store == nil {
				t.Fatal("expected a store")
			}
		})
	}
}

func TestNewS3Store_StaticCredentials(t *testing.T) {
	store, err := NewS3Store(context.Background(), S3Options{
		Bucket:          "docs",
		Prefix:          "docwatch",
		Region:          "us-east-1",
		Endpoint:        "http://localhost:9000",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
	})
	if err != nil {
		t.Fatalf("NewS3Store() error = %v", err)
	}
	if got := store.objectKey("thumb_a.pdf.jpg"); got != "docwatch/thumb_a.pdf.jpg" {
		t.Errorf("objectKey() = %q, want %q", got, "docwatch/thumb_a.pdf.jpg")
	}
}

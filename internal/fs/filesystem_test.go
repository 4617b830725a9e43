package fs

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"

	"docwatch/internal/dw"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func newManager(t *testing.T, patterns ...string) *OSFilesystemManager {
	t.Helper()
	m, err := NewIgnoreMatcher(patterns)
	if err != nil {
		t.Fatalf("NewIgnoreMatcher() error = %v", err)
	}
	return NewOSFilesystemManager(m)
}

func TestOSFilesystemManager_ListFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.txt"), "b")
	writeFile(t, filepath.Join(dir, "a.pdf"), "a")
	writeFile(t, filepath.Join(dir, ".hidden"), "h")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, filepath.Join(dir, "sub", "nested.txt"), "n")

	m := newManager(t, ".*")
	got, err := m.ListFiles(dir)
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}

	want := []string{filepath.Join(dir, "a.pdf"), filepath.Join(dir, "b.txt")}
	if len(got) != len(want) {
		t.Fatalf("ListFiles() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ListFiles()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestOSFilesystemManager_ListFiles_MissingDir(t *testing.T) {
	m := newManager(t)
	if _, err := m.ListFiles(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestOSFilesystemManager_Open(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")
	writeFile(t, path, "hello")
	m := newManager(t)

	t.Run("reads file", func(t *testing.T) {
		rc, err := m.Open(path)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("ReadAll() error = %v", err)
		}
		if string(data) != "hello" {
			t.Errorf("content = %q, want %q", data, "hello")
		}
	})

	t.Run("rejects directory", func(t *testing.T) {
		if _, err := m.Open(dir); err == nil {
			t.Fatal("expected error opening directory")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := m.Open(filepath.Join(dir, "gone.txt"))
		if !errors.Is(err, fs.ErrNotExist) {
			t.Fatalf("Open() error = %v, want fs.ErrNotExist", err)
		}
	})
}

func TestOSFilesystemManager_AcquireRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scan.pdf")
	writeFile(t, path, "%PDF")
	m := newManager(t)

	t.Run("free file", func(t *testing.T) {
		lock, err := m.AcquireRead(path)
		if err != nil {
			t.Fatalf("AcquireRead() error = %v", err)
		}
		if err := lock.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})

	t.Run("shared with another reader", func(t *testing.T) {
		first, err := m.AcquireRead(path)
		if err != nil {
			t.Fatalf("first AcquireRead() error = %v", err)
		}
		defer first.Close()
		second, err := m.AcquireRead(path)
		if err != nil {
			t.Fatalf("second AcquireRead() error = %v", err)
		}
		second.Close()
	})

	t.Run("writer holds exclusive lock", func(t *testing.T) {
		writer := flock.New(path)
		ok, err := writer.TryLock()
		if err != nil || !ok {
			t.Fatalf("TryLock() = %v, %v", ok, err)
		}
		defer writer.Unlock()

		_, err = m.AcquireRead(path)
		if !errors.Is(err, dw.ErrLocked) {
			t.Fatalf("AcquireRead() error = %v, want ErrLocked", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := m.AcquireRead(filepath.Join(dir, "gone.pdf"))
		if !errors.Is(err, fs.ErrNotExist) {
			t.Fatalf("AcquireRead() error = %v, want fs.ErrNotExist", err)
		}
	})
}

func TestOSFilesystemManager_Rename(t *testing.T) {
	m := newManager(t)

	t.Run("moves file", func(t *testing.T) {
		dir := t.TempDir()
		oldPath := filepath.Join(dir, "scan001.pdf")
		newPath := filepath.Join(dir, "invoice.pdf")
		writeFile(t, oldPath, "content")

		if err := m.Rename(oldPath, newPath); err != nil {
			t.Fatalf("Rename() error = %v", err)
		}
		if _, err := os.Stat(oldPath); !errors.Is(err, fs.ErrNotExist) {
			t.Errorf("old path still present: %v", err)
		}
		data, err := os.ReadFile(newPath)
		if err != nil {
			t.Fatalf("reading new path: %v", err)
		}
		if string(data) != "content" {
			t.Errorf("content = %q, want %q", data, "content")
		}
	})

	t.Run("never replaces existing file", func(t *testing.T) {
		dir := t.TempDir()
		oldPath := filepath.Join(dir, "scan002.pdf")
		newPath := filepath.Join(dir, "invoice.pdf")
		writeFile(t, oldPath, "new")
		writeFile(t, newPath, "existing")

		err := m.Rename(oldPath, newPath)
		if !errors.Is(err, fs.ErrExist) {
			t.Fatalf("Rename() error = %v, want fs.ErrExist", err)
		}
		data, _ := os.ReadFile(newPath)
		if string(data) != "existing" {
			t.Errorf("target overwritten: %q", data)
		}
		if _, err := os.Stat(oldPath); err != nil {
			t.Errorf("source lost: %v", err)
		}
	})

	t.Run("missing source", func(t *testing.T) {
		dir := t.TempDir()
		err := m.Rename(filepath.Join(dir, "gone.pdf"), filepath.Join(dir, "x.pdf"))
		if !errors.Is(err, fs.ErrNotExist) {
			t.Fatalf("Rename() error = %v, want fs.ErrNotExist", err)
		}
	})
}

func TestOSFilesystemManager_Remove(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "old.txt")
	writeFile(t, path, "x")
	m := newManager(t)

	if err := m.Remove(path); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := m.Remove(path); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("second Remove() error = %v, want fs.ErrNotExist", err)
	}
}

func TestNewOSFilesystemManagerForDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, IgnoreFileName), "draft-*\n")

	m, err := NewOSFilesystemManagerForDir(dir, []string{"*.bak"})
	if err != nil {
		t.Fatalf("NewOSFilesystemManagerForDir() error = %v", err)
	}

	tests := map[string]bool{
		"draft-letter.docx": true,
		"letter.bak":        true,
		".DS_Store":         true,
		"letter.docx":       false,
	}
	for name, want := range tests {
		if got := m.IsIgnored(name); got != want {
			t.Errorf("IsIgnored(%q) = %v, want %v", name, got, want)
		}
	}
}

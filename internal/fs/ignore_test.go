package fs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewIgnoreMatcher(t *testing.T) {
	t.Run("skips blank lines and comments", func(t *testing.T) {
		t.Parallel()
		m, err := NewIgnoreMatcher([]string{"", "  ", "# comment", "*.log"})
		if err != nil {
			t.Fatalf("NewIgnoreMatcher() error = %v", err)
		}
		if got := m.Patterns(); len(got) != 1 || got[0] != "*.log" {
			t.Fatalf("Patterns() = %v, want [*.log]", got)
		}
	})
}

func TestIgnoreMatcher_Match(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		file     string
		want     bool
	}{
		{
			name:     "extension glob matches",
			patterns: []string{"*.log"},
			file:     "app.log",
			want:     true,
		},
		{
			name:     "extension glob does not match different extension",
			patterns: []string{"*.log"},
			file:     "app.txt",
			want:     false,
		},
		{
			name:     "exact name match",
			patterns: []string{"Thumbs.db"},
			file:     "Thumbs.db",
			want:     true,
		},
		{
			name:     "question mark wildcard",
			patterns: []string{"?.txt"},
			file:     "a.txt",
			want:     true,
		},
		{
			name:     "question mark does not match multiple chars",
			patterns: []string{"?.txt"},
			file:     "ab.txt",
			want:     false,
		},
		{
			name:     "character class",
			patterns: []string{"*.[oa]"},
			file:     "main.o",
			want:     true,
		},
		{
			name:     "alternatives",
			patterns: []string{"*.{bak,orig}"},
			file:     "report.orig",
			want:     true,
		},
		{
			name:     "no patterns matches nothing",
			patterns: nil,
			file:     "anything.txt",
			want:     false,
		},
		{
			name:     "empty name",
			patterns: []string{"*"},
			file:     "",
			want:     false,
		},
		{
			name:     "defaults skip hidden files",
			patterns: DefaultIgnorePatterns,
			file:     ".DS_Store",
			want:     true,
		},
		{
			name:     "defaults skip office lock files",
			patterns: DefaultIgnorePatterns,
			file:     "~$report.docx",
			want:     true,
		},
		{
			name:     "defaults skip partial downloads",
			patterns: DefaultIgnorePatterns,
			file:     "invoice.pdf.crdownload",
			want:     true,
		},
		{
			name:     "defaults keep ordinary documents",
			patterns: DefaultIgnorePatterns,
			file:     "invoice.pdf",
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, err := NewIgnoreMatcher(tt.patterns)
			if err != nil {
				t.Fatalf("NewIgnoreMatcher() error = %v", err)
			}
			if got := m.Match(tt.file); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.file, got, tt.want)
			}
		})
	}
}

func TestParseIgnoreFile(t *testing.T) {
	t.Run("reads patterns from file", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		path := filepath.Join(dir, IgnoreFileName)
		content := "*.log\n# comment\n\n*.tmp\ndraft-*\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("writing test file: %v", err)
		}

		patterns, err := ParseIgnoreFile(path)
		if err != nil {
			t.Fatalf("ParseIgnoreFile() error = %v", err)
		}
		if len(patterns) != 5 {
			t.Fatalf("expected 5 raw lines, got %d", len(patterns))
		}

		m, err := NewIgnoreMatcher(patterns)
		if err != nil {
			t.Fatalf("NewIgnoreMatcher() error = %v", err)
		}
		if len(m.Patterns()) != 3 {
			t.Errorf("expected 3 parsed patterns, got %d", len(m.Patterns()))
		}
	})

	t.Run("returns nil for missing file", func(t *testing.T) {
		t.Parallel()
		patterns, err := ParseIgnoreFile("/nonexistent/" + IgnoreFileName)
		if err != nil {
			t.Fatalf("ParseIgnoreFile() error = %v", err)
		}
		if patterns != nil {
			t.Errorf("expected nil patterns, got %v", patterns)
		}
	})
}

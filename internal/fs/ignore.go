package fs

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/gobwas/glob"
)

// IgnoreFileName is the optional per-directory ignore file.
const IgnoreFileName = ".docwatchignore"

// DefaultIgnorePatterns skip files that are never documents: hidden files,
// office lock files and the partial files browsers and editors leave behind
// while a write is in progress.
var DefaultIgnorePatterns = []string{
	".*",
	"~$*",
	"*.tmp",
	"*.part",
	"*.crdownload",
	"*.swp",
}

// IgnoreMatcher checks file names against a set of glob patterns.
// The watched directory is flat, so patterns match the base name only.
type IgnoreMatcher struct {
	patterns []glob.Glob
	raw      []string
}

// NewIgnoreMatcher compiles raw pattern strings. Blank lines and lines
// starting with '#' are skipped; a pattern that does not compile is an error.
func NewIgnoreMatcher(rawPatterns []string) (*IgnoreMatcher, error) {
	m := &IgnoreMatcher{}
	for _, raw := range rawPatterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		g, err := glob.Compile(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid ignore pattern %q: %w", raw, err)
		}
		m.patterns = append(m.patterns, g)
		m.raw = append(m.raw, raw)
	}
	return m, nil
}

// Match reports whether the given file name should be ignored.
func (m *IgnoreMatcher) Match(name string) bool {
	if name == "" {
		return false
	}
	for _, g := range m.patterns {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// Patterns returns the compiled patterns in their source form.
func (m *IgnoreMatcher) Patterns() []string {
	return append([]string(nil), m.raw...)
}

// ParseIgnoreFile reads an ignore file and returns the raw pattern strings.
// Returns nil and no error if the file does not exist.
func ParseIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		patterns = append(patterns, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return patterns, nil
}

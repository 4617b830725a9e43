package dw

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"
)

// keepBothLayout is the timestamp prefix given to files kept by a keep_both
// resolution. Files carrying it are never renamed by enrichment again.
const keepBothLayout = "20060102T150405Z"

var keepBothPrefix = regexp.MustCompile(`^\d{8}T\d{6}Z(_\d+)?_`)

func hasKeepBothPrefix(name string) bool {
	return keepBothPrefix.MatchString(name)
}

func keepBothCandidate(at time.Time, name string, n int) string {
	prefix := at.UTC().Format(keepBothLayout)
	if n > 0 {
		prefix = fmt.Sprintf("%s_%d", prefix, n)
	}
	return prefix + "_" + name
}

// suggestedName turns an enrichment suggestion into a safe file name that
// keeps the extension of current. It returns current when the suggestion
// is unusable.
func suggestedName(suggestion, current string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsControl(r):
			return -1
		case strings.ContainsRune(`<>:"/\|?*`, r):
			return '_'
		}
		return r
	}, strings.TrimSpace(suggestion))
	name = strings.Trim(name, " .")
	if name == "" {
		return current
	}

	ext := filepath.Ext(current)
	if !strings.HasSuffix(strings.ToLower(name), strings.ToLower(ext)) {
		name += ext
	}
	if name == ext {
		return current
	}
	return name
}

// withSuffix returns name with "_n" inserted before the extension. n == 0
// returns name unchanged.
func withSuffix(name string, n int) string {
	if n == 0 {
		return name
	}
	ext := filepath.Ext(name)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), n, ext)
}

// firstChunk returns at most n characters of text.
func firstChunk(text string, n int) string {
	if n <= 0 || len(text) <= n {
		return text
	}
	count := 0
	for i := range text {
		if count == n {
			return text[:i]
		}
		count++
	}
	return text
}

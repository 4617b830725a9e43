// Package summarize asks a language model for filing suggestions.
package summarize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"docwatch/internal/dw"
)

const (
	DefaultSummary  = "No summary provided."
	DefaultKeyword  = "Uncategorized"
	DefaultCategory = "Unsorted"

	temperature = 0.4
)

const systemPrompt = "You are a helpful file summarization assistant."

// Backend asks a model for an enrichment suggestion. Fields the model leaves
// out are returned empty.
type Backend interface {
	Suggest(ctx context.Context, text string) (dw.Enrichment, error)
}

// Summarizer adapts a Backend to dw.Summarizer. Missing fields are filled
// with defaults, and any backend failure yields Fallback(name).
type Summarizer struct {
	backend Backend
	timeout time.Duration
	logger  dw.Logger
}

var _ dw.Summarizer = (*Summarizer)(nil)

// New wraps backend. A zero timeout leaves the caller's deadline alone.
func New(backend Backend, timeout time.Duration, logger dw.Logger) *Summarizer {
	if logger == nil {
		logger = dw.NopLogger{}
	}
	return &Summarizer{backend: backend, timeout: timeout, logger: logger}
}

func (s *Summarizer) Summarize(ctx context.Context, name, text string) dw.Enrichment {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	enr, err := s.backend.Suggest(ctx, text)
	if err != nil {
		s.logger.Warn("enrichment failed, using fallback", "file", name, "error", err)
		return Fallback(name)
	}
	return withDefaults(enr, name)
}

// Fallback is the record used when enrichment is unavailable. It keeps the
// current name and leaves the summary empty so a later pass retries.
func Fallback(name string) dw.Enrichment {
	return dw.Enrichment{
		CommonName: stem(name),
		Keyword:    DefaultKeyword,
		Category:   DefaultCategory,
	}
}

func withDefaults(enr dw.Enrichment, name string) dw.Enrichment {
	enr.Filename = strings.TrimSpace(enr.Filename)
	if strings.TrimSpace(enr.CommonName) == "" {
		enr.CommonName = stem(name)
	}
	if strings.TrimSpace(enr.Summary) == "" {
		enr.Summary = DefaultSummary
	}
	if strings.TrimSpace(enr.Keyword) == "" {
		enr.Keyword = DefaultKeyword
	}
	if strings.TrimSpace(enr.Category) == "" {
		enr.Category = DefaultCategory
	}
	return enr
}

func stem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func buildPrompt(text string) string {
	return fmt.Sprintf(`You are a file assistant. Based on the document content, provide:
- A suggested filename (e.g., Verizon_Receipt.pdf)
- A readable/common name/title
- A 1-2 sentence summary
- A keyword
- A suggested category (Finance, Insurance, Medical, etc.)

Content:
"""
%s
"""
Respond in JSON format with keys: filename, common_name, summary, keyword, category.`, text)
}

// suggestion is the JSON object the prompt asks for.
type suggestion struct {
	Filename   string `json:"filename"`
	CommonName string `json:"common_name"`
	Summary    string `json:"summary"`
	Keyword    string `json:"keyword"`
	Category   string `json:"category"`
}

var errNoJSON = errors.New("no JSON object in response")

// parseSuggestion decodes the first JSON object in a model response. Models
// sometimes wrap the object in prose or code fences.
func parseSuggestion(response string) (dw.Enrichment, error) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end <= start {
		return dw.Enrichment{}, errNoJSON
	}

	var s suggestion
	if err := json.Unmarshal([]byte(response[start:end+1]), &s); err != nil {
		return dw.Enrichment{}, fmt.Errorf("decoding suggestion: %w", err)
	}
	return dw.Enrichment{
		Filename:   s.Filename,
		CommonName: s.CommonName,
		Summary:    s.Summary,
		Keyword:    s.Keyword,
		Category:   s.Category,
	}, nil
}

package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"docwatch/internal/dw"
)

const (
	ocrPages = 3
	ocrDPI   = "300"
)

// PDF extracts text with poppler's pdftotext. When OCR is set and a document
// has no text layer, the first pages are rasterized with pdftoppm and read
// with tesseract.
type PDF struct {
	OCR    bool
	Logger dw.Logger

	// Binary overrides; empty uses the name on PATH.
	PDFToText string
	PDFToPPM  string
	Tesseract string
}

// Extract implements PathFunc.
func (p *PDF) Extract(ctx context.Context, path string) (string, error) {
	out, err := run(ctx, orDefault(p.PDFToText, "pdftotext"), "-layout", "-enc", "UTF-8", path, "-")
	if err != nil {
		return "", fmt.Errorf("pdftotext %s: %w", filepath.Base(path), err)
	}
	text := strings.TrimSpace(strings.ToValidUTF8(string(out), ""))
	if text != "" || !p.OCR {
		return text, nil
	}

	if p.Logger != nil {
		p.Logger.Warn("no text layer in pdf, running ocr", "file", filepath.Base(path))
	}
	return p.ocr(ctx, path)
}

func (p *PDF) ocr(ctx context.Context, path string) (string, error) {
	dir, err := os.MkdirTemp("", "docwatch-ocr-*")
	if err != nil {
		return "", fmt.Errorf("creating ocr workspace: %w", err)
	}
	defer os.RemoveAll(dir)

	prefix := filepath.Join(dir, "page")
	if _, err := run(ctx, orDefault(p.PDFToPPM, "pdftoppm"),
		"-r", ocrDPI, "-f", "1", "-l", fmt.Sprint(ocrPages), "-png", path, prefix); err != nil {
		return "", fmt.Errorf("pdftoppm %s: %w", filepath.Base(path), err)
	}

	pages, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return "", err
	}
	sort.Strings(pages)

	var b strings.Builder
	for i, page := range pages {
		out, err := run(ctx, orDefault(p.Tesseract, "tesseract"), page, "stdout", "--psm", "3")
		if err != nil {
			return "", fmt.Errorf("tesseract page %d: %w", i+1, err)
		}
		fmt.Fprintf(&b, "\n--- Page %d ---\n%s", i+1, out)
	}
	return strings.TrimSpace(b.String()), nil
}

// run executes a tool and returns its stdout. Stderr is folded into the error.
func run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

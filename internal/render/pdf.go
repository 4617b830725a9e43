package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultDPI is the resolution of rasterized PDF pages.
const DefaultDPI = 300

// PDFRasterizer renders the first page of a PDF with poppler's pdftoppm.
type PDFRasterizer struct {
	Binary string // empty uses pdftoppm from PATH
	DPI    int
}

// FirstPage rasterizes page one of the PDF at path.
func (p *PDFRasterizer) FirstPage(ctx context.Context, path string) (image.Image, error) {
	dir, err := os.MkdirTemp("", "docwatch-render-*")
	if err != nil {
		return nil, fmt.Errorf("creating render workspace: %w", err)
	}
	defer os.RemoveAll(dir)

	binary := p.Binary
	if binary == "" {
		binary = "pdftoppm"
	}
	dpi := p.DPI
	if dpi <= 0 {
		dpi = DefaultDPI
	}

	prefix := filepath.Join(dir, "page")
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary,
		"-r", strconv.Itoa(dpi), "-f", "1", "-l", "1", "-singlefile", "-png", path, prefix)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("pdftoppm %s: %w: %s", filepath.Base(path), err, msg)
		}
		return nil, fmt.Errorf("pdftoppm %s: %w", filepath.Base(path), err)
	}

	f, err := os.Open(prefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("opening rendered page: %w", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding rendered page: %w", err)
	}
	return img, nil
}

// Package render rasterizes documents into JPEG thumbnails and previews.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"docwatch/internal/dw"
)

const (
	ThumbnailSize    = 200
	PreviewWidth     = 800
	PreviewHeight    = 1000
	ThumbnailQuality = 85
	PreviewQuality   = 95

	previewLines  = 25
	textMargin    = 20
	lineSpacing   = 4
	emptyFileText = "(Empty File)"
	unreadable    = "(Unreadable document)"
)

// TextSource provides the text drawn on non-PDF previews.
type TextSource interface {
	Extract(ctx context.Context, path string) (string, error)
}

// Renderer draws a preview page for a file and stores it, together with a
// scaled-down thumbnail, in an artifact store.
type Renderer struct {
	store  dw.ArtifactStore
	text   TextSource
	pdf    *PDFRasterizer
	logger dw.Logger
}

var _ dw.Renderer = (*Renderer)(nil)

// New creates a renderer. A nil pdf rasterizer uses pdftoppm from PATH.
func New(store dw.ArtifactStore, text TextSource, pdf *PDFRasterizer, logger dw.Logger) *Renderer {
	if pdf == nil {
		pdf = &PDFRasterizer{}
	}
	if logger == nil {
		logger = dw.NopLogger{}
	}
	return &Renderer{store: store, text: text, pdf: pdf, logger: logger}
}

// Render stores thumb_<filename>.jpg and preview_<filename>.jpg and returns
// their keys.
func (r *Renderer) Render(ctx context.Context, path, filename string) (string, string, error) {
	var (
		page image.Image
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		page, err = r.pdf.FirstPage(ctx, path)
		if err != nil {
			return "", "", err
		}
	} else {
		page = DrawText(r.previewLines(ctx, path))
	}

	thumbKey, previewKey := dw.ThumbnailKey(filename), dw.PreviewKey(filename)
	if err := r.put(ctx, previewKey, page, PreviewQuality); err != nil {
		return "", "", err
	}
	if err := r.put(ctx, thumbKey, Fit(page, ThumbnailSize), ThumbnailQuality); err != nil {
		return "", "", err
	}
	r.logger.Debug("artifacts rendered", "file", filename)
	return thumbKey, previewKey, nil
}

func (r *Renderer) previewLines(ctx context.Context, path string) []string {
	text, err := r.text.Extract(ctx, path)
	if err != nil {
		r.logger.Warn("reading text for preview failed", "file", filepath.Base(path), "error", err)
		return []string{unreadable}
	}
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) > previewLines {
		lines = lines[:previewLines]
	}
	if len(lines) == 1 && strings.TrimSpace(lines[0]) == "" {
		return []string{emptyFileText}
	}
	return lines
}

func (r *Renderer) put(ctx context.Context, key string, img image.Image, quality int) error {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := r.store.Put(ctx, key, &buf, int64(buf.Len())); err != nil {
		return fmt.Errorf("storing %s: %w", key, err)
	}
	return nil
}

// DrawText renders lines in black on a white preview page.
func DrawText(lines []string) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, PreviewWidth, PreviewHeight))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	face := basicfont.Face7x13
	d := &font.Drawer{Dst: img, Src: image.NewUniform(color.Black), Face: face}
	lineHeight := face.Metrics().Height.Ceil() + lineSpacing
	y := textMargin + face.Metrics().Ascent.Ceil()
	for _, line := range lines {
		if y > PreviewHeight-textMargin {
			break
		}
		d.Dot = fixed.P(textMargin, y)
		d.DrawString(strings.ReplaceAll(strings.TrimRight(line, "\r"), "\t", "    "))
		y += lineHeight
	}
	return img
}

// Fit scales img down to fit in a size×size box, keeping the aspect ratio.
// Smaller images are returned unchanged.
func Fit(img image.Image, size int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= size && h <= size {
		return img
	}
	if w >= h {
		h = h * size / w
		w = size
	} else {
		w = w * size / h
		h = size
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

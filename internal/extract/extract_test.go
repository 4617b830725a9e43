package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docwatch/internal/dw"
)

type osOpener struct{}

func (osOpener) Open(path string) (io.ReadCloser, error) { return os.Open(path) }

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = io.WriteString(w, content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func newRegistry(t *testing.T, opts Options) *Registry {
	t.Helper()
	r, err := NewRegistry(osOpener{}, opts, dw.NopLogger{})
	require.NoError(t, err)
	return r
}

func TestRegistry_Supports(t *testing.T) {
	r := newRegistry(t, Options{})

	for _, name := range []string{"a.txt", "b.PDF", "c.docx", "d.pptx", "e.md", "f.log", "g.json", "h.xml", "i.rtf", "j.html", "k.eml"} {
		assert.True(t, r.Supports(name), name)
	}
	for _, name := range []string{"a.exe", "b.png", "README", "archive.tar.gz"} {
		assert.False(t, r.Supports(name), name)
	}
}

func TestRegistry_Allow(t *testing.T) {
	// Given an allow-list narrowed to two types
	r := newRegistry(t, Options{Extensions: []string{"txt", ".PDF"}})

	// Then only those are supported
	assert.Equal(t, []string{".pdf", ".txt"}, r.Extensions())
	assert.True(t, r.Supports("notes.txt"))
	assert.False(t, r.Supports("notes.md"))

	// And extraction of a registered but disallowed type is refused
	path := writeFile(t, t.TempDir(), "notes.md", []byte("# hi"))
	_, err := r.Extract(context.Background(), path)
	assert.Error(t, err)

	// And unknown extensions are rejected up front
	_, err = NewRegistry(osOpener{}, Options{Extensions: []string{".exe"}}, nil)
	assert.Error(t, err)
}

func TestRegistry_Extract(t *testing.T) {
	dir := t.TempDir()
	r := newRegistry(t, Options{})
	ctx := context.Background()

	tests := []struct {
		name    string
		content []byte
		want    []string
		notWant []string
	}{
		{
			name:    "notes.txt",
			content: []byte("plain text\nsecond line"),
			want:    []string{"plain text\nsecond line"},
		},
		{
			name:    "broken.log",
			content: []byte("ok \xff\xfe bytes"),
			want:    []string{"ok  bytes"},
		},
		{
			name:    "readme.md",
			content: []byte("# Title\n\nHello *world* and `code`.\n\n- item one\n- item two\n\n```\nfenced\n```\n"),
			want:    []string{"Title", "Hello world and code.", "item one", "item two", "fenced"},
			notWant: []string{"#", "*world*", "```"},
		},
		{
			name:    "page.html",
			content: []byte("<html><head><title>Receipt</title><style>p{color:red}</style></head><body><p>Total: 42</p><script>alert(1)</script></body></html>"),
			want:    []string{"Receipt\nTotal: 42"},
			notWant: []string{"color:red", "alert"},
		},
		{
			name: "letter.docx",
			content: zipBytes(t, map[string]string{
				"[Content_Types].xml": `<Types/>`,
				"word/document.xml": `<?xml version="1.0"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
					`<w:p><w:r><w:t>Dear </w:t></w:r><w:r><w:t>customer,</w:t></w:r></w:p>` +
					`<w:p></w:p>` +
					`<w:p><w:r><w:t>Your invoice is attached.</w:t></w:r></w:p>` +
					`</w:body></w:document>`,
			}),
			want: []string{"Dear customer,\nYour invoice is attached."},
		},
		{
			name: "deck.pptx",
			content: zipBytes(t, map[string]string{
				"ppt/slides/slide10.xml": `<p:sld xmlns:p="p" xmlns:a="a"><a:p><a:r><a:t>Last</a:t></a:r></a:p></p:sld>`,
				"ppt/slides/slide2.xml":  `<p:sld xmlns:p="p" xmlns:a="a"><a:p><a:r><a:t>Second</a:t></a:r></a:p></p:sld>`,
				"ppt/slides/slide1.xml":  `<p:sld xmlns:p="p" xmlns:a="a"><a:p><a:r><a:t>First</a:t></a:r></a:p></p:sld>`,
			}),
			want: []string{"First\nSecond\nLast"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, tt.name, tt.content)

			got, err := r.Extract(ctx, path)
			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, got, w)
			}
			for _, nw := range tt.notWant {
				assert.NotContains(t, got, nw)
			}
		})
	}
}

func TestRegistry_Extract_Errors(t *testing.T) {
	dir := t.TempDir()
	r := newRegistry(t, Options{})
	ctx := context.Background()

	t.Run("missing file", func(t *testing.T) {
		_, err := r.Extract(ctx, filepath.Join(dir, "gone.txt"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("unsupported type", func(t *testing.T) {
		_, err := r.Extract(ctx, writeFile(t, dir, "tool.exe", []byte("MZ")))
		assert.Error(t, err)
	})

	t.Run("docx that is not a zip", func(t *testing.T) {
		_, err := r.Extract(ctx, writeFile(t, dir, "fake.docx", []byte("not a zip")))
		assert.Error(t, err)
	})

	t.Run("pptx without slides", func(t *testing.T) {
		_, err := r.Extract(ctx, writeFile(t, dir, "empty.pptx", zipBytes(t, map[string]string{"x.xml": "<x/>"})))
		assert.Error(t, err)
	})
}

func TestEmail(t *testing.T) {
	ctx := context.Background()

	t.Run("simple message", func(t *testing.T) {
		msg := "From: Alice <alice@example.com>\r\n" +
			"To: bob@example.com\r\n" +
			"Subject: =?UTF-8?Q?Caf=C3=A9_bill?=\r\n" +
			"Date: Mon, 15 Jan 2024 10:30:00 +0000\r\n" +
			"\r\n" +
			"Please pay by Friday.\r\n"

		got, err := Email(ctx, strings.NewReader(msg))
		require.NoError(t, err)
		assert.Contains(t, got, "From: Alice <alice@example.com>")
		assert.Contains(t, got, "Subject: Café bill")
		assert.Contains(t, got, "Date: Mon, 15 Jan 2024 10:30:00 +0000")
		assert.True(t, strings.HasSuffix(got, "\nPlease pay by Friday."), got)
	})

	t.Run("multipart prefers text/plain", func(t *testing.T) {
		msg := "From: a@example.com\r\n" +
			"Subject: Receipt\r\n" +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: multipart/alternative; boundary=XYZ\r\n" +
			"\r\n" +
			"--XYZ\r\n" +
			"Content-Type: text/html\r\n" +
			"\r\n" +
			"<p>html body</p>\r\n" +
			"--XYZ\r\n" +
			"Content-Type: text/plain; charset=utf-8\r\n" +
			"Content-Transfer-Encoding: base64\r\n" +
			"\r\n" +
			"cGxhaW4g\r\nYm9keQ==\r\n" +
			"--XYZ--\r\n"

		got, err := Email(ctx, strings.NewReader(msg))
		require.NoError(t, err)
		assert.Contains(t, got, "plain body")
		assert.NotContains(t, got, "html body")
	})

	t.Run("no plain part", func(t *testing.T) {
		msg := "Subject: Only html\r\n" +
			"Content-Type: text/html\r\n" +
			"\r\n" +
			"<p>x</p>\r\n"

		got, err := Email(ctx, strings.NewReader(msg))
		require.NoError(t, err)
		assert.Contains(t, got, noPlainBody)
	})
}

func TestPDF(t *testing.T) {
	t.Run("missing tool", func(t *testing.T) {
		p := &PDF{PDFToText: filepath.Join(t.TempDir(), "no-such-pdftotext")}
		_, err := p.Extract(context.Background(), "/tmp/x.pdf")
		assert.Error(t, err)
	})
}

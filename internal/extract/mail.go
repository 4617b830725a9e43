package extract

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
)

const noPlainBody = "(No plain text body)"

// Email renders the headers of an RFC 5322 message followed by its first
// text/plain body part.
func Email(_ context.Context, r io.Reader) (string, error) {
	msg, err := mail.ReadMessage(r)
	if err != nil {
		return "", fmt.Errorf("parsing message: %w", err)
	}

	dec := new(mime.WordDecoder)
	header := func(key string) string {
		v := msg.Header.Get(key)
		if decoded, err := dec.DecodeHeader(v); err == nil {
			return decoded
		}
		return v
	}

	body, err := plainBody(msg.Header.Get("Content-Type"), msg.Header.Get("Content-Transfer-Encoding"), msg.Body)
	if err != nil {
		return "", err
	}
	if body == "" {
		body = noPlainBody
	}

	return strings.Join([]string{
		"From: " + header("From"),
		"To: " + header("To"),
		"Subject: " + header("Subject"),
		"Date: " + header("Date"),
		"",
		body,
	}, "\n"), nil
}

// plainBody walks a MIME entity depth-first and returns the first text/plain
// content it finds, decoded. It returns "" when there is none.
func plainBody(contentType, encoding string, r io.Reader) (string, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		// Messages without a Content-Type are plain text.
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		mr := multipart.NewReader(r, params["boundary"])
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return "", nil
			}
			if err != nil {
				return "", fmt.Errorf("reading multipart body: %w", err)
			}
			text, err := plainBody(part.Header.Get("Content-Type"), part.Header.Get("Content-Transfer-Encoding"), part)
			if err != nil {
				return "", err
			}
			if text != "" {
				return text, nil
			}
		}
	}

	if mediaType != "text/plain" {
		return "", nil
	}

	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "quoted-printable":
		r = quotedprintable.NewReader(r)
	case "base64":
		r = base64.NewDecoder(base64.StdEncoding, r)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("decoding body: %w", err)
	}
	return strings.TrimSpace(strings.ToValidUTF8(string(data), "")), nil
}

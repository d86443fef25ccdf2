// Package extract turns uploaded files into plain text for indexing. It
// is deliberately thin: the engine only needs newline-joined text and
// makes no encoding promises beyond that.
package extract

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"rsc.io/pdf"
)

// FromUpload extracts text from an uploaded file, picking the extractor
// from the filename extension. Anything that is not a PDF is treated as
// plain text.
func FromUpload(filename string, data []byte) (string, error) {
	if strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return PDF(bytes.NewReader(data), int64(len(data)))
	}
	return Sanitize(string(data)), nil
}

// PDF extracts the text runs of every page, one newline per page.
func PDF(r *bytes.Reader, size int64) (text string, err error) {
	// rsc.io/pdf panics on some malformed files; turn that into an error
	// so a bad upload cannot take the server down.
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("extract: malformed pdf: %v", p)
		}
	}()

	doc, err := pdf.NewReader(r, size)
	if err != nil {
		return "", fmt.Errorf("extract: open pdf: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= doc.NumPage(); i++ {
		page := doc.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, t := range page.Content().Text {
			sb.WriteString(t.S)
			sb.WriteByte(' ')
		}
		sb.WriteByte('\n')
	}
	return Sanitize(sb.String()), nil
}

// Sanitize strips NUL bytes and normalizes carriage returns and tabs;
// other whitespace is left for the chunker, which splits on it anyway.
func Sanitize(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\t", " ")
	return s
}

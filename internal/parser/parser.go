// Package parser turns uploaded PDF decks into text, either through the
// LlamaParse service or in-process.
package parser

import (
	"bytes"
	"context"
	"errors"
	"mime"
	"path/filepath"
	"strings"
)

// PDFContentType is the only content type accepted at intake.
const PDFContentType = "application/pdf"

var (
	ErrNotPDF    = errors.New("file is not a PDF")
	ErrEmptyText = errors.New("no text extracted")
)

// TextExtractor converts a PDF payload into text.
type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte, fileName string) (string, error)
}

// IsPDF reports whether an upload is a PDF. A declared application/pdf
// type is trusted; a generic or missing type falls back to the .pdf
// extension plus the %PDF- magic bytes.
func IsPDF(fileName, contentType string, data []byte) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err == nil && mt == PDFContentType {
		return true
	}
	if contentType != "" && err == nil && mt != "application/octet-stream" {
		return false
	}
	return strings.EqualFold(filepath.Ext(fileName), ".pdf") && bytes.HasPrefix(data, []byte("%PDF-"))
}

// Package document inspects uploaded files for statistics shown alongside
// verification results.
package document

import (
	"bytes"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

const pdfType = "application/pdf"

// Inspector reads page counts from PDF documents with pdfcpu.
// Other formats report no count.
type Inspector struct {
	logger *slog.Logger
}

// NewInspector creates an Inspector that logs unreadable PDFs at warn level.
func NewInspector(logger *slog.Logger) *Inspector {
	return &Inspector{logger: logger.With("system", "document")}
}

// PageCount returns the number of pages in data when contentType is PDF and
// the document parses.
func (i *Inspector) PageCount(data []byte, contentType string) (int, bool) {
	if MediaType(contentType) != pdfType {
		return 0, false
	}

	count, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		i.logger.Warn("failed to extract PDF page count", "error", err)
		return 0, false
	}

	return count, true
}

// DetectContentType prefers a declared type and sniffs data when the
// declaration is missing or generic.
func DetectContentType(declared string, data []byte) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && MediaType(declared) != "application/octet-stream" {
		return declared
	}
	return http.DetectContentType(data)
}

// MediaType strips parameters and lowercases t.
func MediaType(t string) string {
	if mt, _, err := mime.ParseMediaType(t); err == nil {
		return mt
	}
	return strings.ToLower(strings.TrimSpace(t))
}

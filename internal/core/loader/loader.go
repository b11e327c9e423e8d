package loader

import (
	"path/filepath"
	"strings"

	"studyvault/internal/core"
	"studyvault/internal/core/textutil"
	"studyvault/internal/models"
)

// Kind is a supported document format.
type Kind string

const (
	KindPDF      Kind = "pdf"
	KindDOCX     Kind = "docx"
	KindText     Kind = "text"
	KindMarkdown Kind = "markdown"
)

var _ core.DocumentLoader = (*Loader)(nil)

// Loader infers a document kind from MIME type and filename and dispatches to
// the format-specific extraction. It holds no state and mutates nothing.
type Loader struct{}

func New() *Loader { return &Loader{} }

// NormalizeMime strips parameters ("; charset=...") and lowercases.
func NormalizeMime(mimeType string) string {
	mimeType = strings.TrimSpace(mimeType)
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

// DetectKind resolves the document kind from the declared MIME type, falling
// back to the filename extension when the MIME type is absent or unknown.
func DetectKind(mimeType, filename string) (Kind, error) {
	switch NormalizeMime(mimeType) {
	case "application/pdf":
		return KindPDF, nil
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return KindDOCX, nil
	case "text/plain":
		return KindText, nil
	case "text/markdown", "text/x-markdown":
		return KindMarkdown, nil
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return KindPDF, nil
	case ".docx":
		return KindDOCX, nil
	case ".txt":
		return KindText, nil
	case ".md", ".markdown":
		return KindMarkdown, nil
	}

	return "", core.Errf(core.CodeUnsupportedType, "no loader for this document").
		WithDetail("mime_type", mimeType).
		WithDetail("extension", filepath.Ext(filename))
}

func (l *Loader) Supports(mimeType, filename string) bool {
	_, err := DetectKind(mimeType, filename)
	return err == nil
}

// Load returns ordered page fragments, or an empty slice when the document
// decodes to no text (the caller treats that as a parse failure).
func (l *Loader) Load(data []byte, mimeType, filename string) ([]models.PageFragment, error) {
	kind, err := DetectKind(mimeType, filename)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindPDF:
		return loadPDF(data)
	case KindDOCX:
		return loadDOCX(data)
	default:
		// Plain text and Markdown: the whole buffer is one fragment with no page.
		if textutil.NormalizeText(string(data)) == "" {
			return nil, nil
		}
		return []models.PageFragment{{Text: string(data)}}, nil
	}
}

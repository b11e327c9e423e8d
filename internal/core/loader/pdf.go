package loader

import (
	"bytes"
	"log"

	"github.com/ledongthuc/pdf"

	"studyvault/internal/core"
	"studyvault/internal/models"
)

// loadPDF extracts one fragment per page with 1-based page numbers.
// Pages that yield no text still produce a fragment so page numbering stays
// aligned with the source document; empty fragments are dropped downstream.
func loadPDF(data []byte) ([]models.PageFragment, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, core.WrapErr(core.CodeParseFailed, err, "open pdf")
	}

	total := reader.NumPage()
	frags := make([]models.PageFragment, 0, total)
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			frags = append(frags, models.PageFragment{PageNumber: i})
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page should not sink the document.
			log.Printf("Loader: pdf page %d extraction failed: %v", i, err)
			text = ""
		}
		frags = append(frags, models.PageFragment{Text: text, PageNumber: i})
	}
	return frags, nil
}

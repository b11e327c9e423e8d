package loader

import (
	"bytes"

	"code.sajari.com/docconv"

	"studyvault/internal/core"
	"studyvault/internal/core/textutil"
	"studyvault/internal/models"
)

const docxMime = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// loadDOCX delegates to docconv. DOCX extraction has no reliable page
// boundaries, so the whole body is one fragment without a page number.
func loadDOCX(data []byte) ([]models.PageFragment, error) {
	res, err := docconv.Convert(bytes.NewReader(data), docxMime, false)
	if err != nil {
		return nil, core.WrapErr(core.CodeParseFailed, err, "docx conversion")
	}
	if textutil.NormalizeText(res.Body) == "" {
		return nil, nil
	}
	return []models.PageFragment{{Text: res.Body}}, nil
}

package extractor

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/xhad/ragcore/internal/models"
)

func extractPDF(data []byte) (result *models.ExtractionResult, err error) {
	// the pdf reader panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("%w: corrupt pdf: %v", models.ErrExtraction, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrExtraction, err)
	}

	pages := reader.NumPage()
	texts := make([]string, 0, pages)
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", models.ErrExtraction, i, err)
		}
		texts = append(texts, sanitizeUTF8(text))
	}

	info := reader.Trailer().Key("Info")
	return &models.ExtractionResult{
		// blank line between pages keeps page ends as paragraph boundaries
		Text:  strings.Join(texts, "\n\n"),
		Pages: pages,
		Metadata: models.ExtractionMetadata{
			Title:    info.Key("Title").Text(),
			Author:   info.Key("Author").Text(),
			Subject:  info.Key("Subject").Text(),
			Keywords: splitKeywords(info.Key("Keywords").Text()),
		},
	}, nil
}

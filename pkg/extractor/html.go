package extractor

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/xhad/ragcore/internal/models"
)

var noisePatterns = []string{
	"Cookie Policy",
	"Accept Cookies",
	"Privacy Policy",
	"Terms of Service",
}

func extractHTML(data []byte) (*models.ExtractionResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrExtraction, err)
	}

	return &models.ExtractionResult{
		Text:  extractMainContent(doc),
		Pages: 1,
		Metadata: models.ExtractionMetadata{
			Title:    strings.TrimSpace(doc.Find("title").First().Text()),
			Author:   metaContent(doc, "author"),
			Subject:  metaContent(doc, "description"),
			Keywords: splitKeywords(metaContent(doc, "keywords")),
		},
	}, nil
}

// extractMainContent keeps one paragraph per block element so the
// preprocessor still sees paragraph boundaries.
func extractMainContent(doc *goquery.Document) string {
	selectors := []string{
		"main",
		"article",
		".content",
		"#content",
		".documentation",
		"#documentation",
	}

	root := doc.Find("body")
	for _, selector := range selectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			root = selected.First()
			break
		}
	}
	root.Find("script, style, nav, footer").Remove()

	var paragraphs []string
	root.Find("h1, h2, h3, h4, h5, h6, p, li, pre, blockquote, td").Each(func(_ int, s *goquery.Selection) {
		if text := cleanContent(s.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})

	if len(paragraphs) == 0 {
		return cleanContent(root.Text())
	}
	return strings.Join(paragraphs, "\n\n")
}

func cleanContent(content string) string {
	for _, pattern := range noisePatterns {
		content = strings.ReplaceAll(content, pattern, "")
	}
	return strings.Join(strings.Fields(content), " ")
}

func metaContent(doc *goquery.Document, name string) string {
	return strings.TrimSpace(doc.Find(fmt.Sprintf(`meta[name=%q]`, name)).AttrOr("content", ""))
}

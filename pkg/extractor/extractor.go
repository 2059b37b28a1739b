package extractor

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"
	"github.com/xhad/ragcore/internal/models"
)

// Extractor turns an uploaded binary into plain text, dispatching on the
// sniffed content type.
type Extractor struct {
	log logrus.FieldLogger
}

func New(log logrus.FieldLogger) *Extractor {
	return &Extractor{log: log}
}

// Extract returns models.ErrExtraction for empty, corrupt or unsupported
// input.
func (e *Extractor) Extract(ctx context.Context, data []byte) (*models.ExtractionResult, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", models.ErrExtraction)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mime := mimetype.Detect(data)
	e.log.WithFields(logrus.Fields{
		"content_type": mime.String(),
		"size":         len(data),
	}).Debug("extracting text")

	var (
		result *models.ExtractionResult
		err    error
	)
	switch {
	case mime.Is("application/pdf"):
		result, err = extractPDF(data)
	case isHTML(mime):
		result, err = extractHTML(data)
	case isText(mime):
		result = extractPlainText(data)
	default:
		return nil, fmt.Errorf("%w: unsupported content type %s", models.ErrExtraction, mime.String())
	}
	if err != nil {
		return nil, err
	}

	if result.Metadata.Title == "" {
		result.Metadata.Title = firstLine(result.Text)
	}
	if strings.TrimSpace(result.Text) == "" {
		e.log.WithField("content_type", mime.String()).Warn("document has no extractable text")
	}
	return result, nil
}

func isHTML(mime *mimetype.MIME) bool {
	return mime.Is("text/html") || mime.Is("application/xhtml+xml")
}

func isText(mime *mimetype.MIME) bool {
	for m := mime; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

func extractPlainText(data []byte) *models.ExtractionResult {
	text := sanitizeUTF8(string(data))
	return &models.ExtractionResult{Text: text, Pages: 1}
}

func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if utf8.RuneCountInString(line) > 120 {
			return string([]rune(line)[:120])
		}
		return line
	}
	return ""
}

func splitKeywords(raw string) []string {
	var keywords []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, k)
		}
	}
	return keywords
}

func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "")
}

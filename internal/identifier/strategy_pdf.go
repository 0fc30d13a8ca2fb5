package identifier

import (
	"bytes"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractFromPDF scans the leading pages of a PDF for free-text identifier
// patterns. Matches inside the top fraction of a page are medium
// confidence, the rest low. Unreadable PDFs or pages yield nothing.
func extractFromPDF(content []byte, maxPages int, earlyFraction float64) []candidate {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil
	}
	if maxPages <= 0 || maxPages > reader.NumPage() {
		maxPages = reader.NumPage()
	}

	var out []candidate
	for i := 1; i <= maxPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		window := int(float64(len(text)) * earlyFraction)
		out = append(out, extractFromText(text, window, "pdf-text")...)
	}
	return out
}

// pdfToText extracts plain text from the leading pages of a PDF for reuse
// by the metadata extractor and the AI fallback.
func pdfToText(content []byte, maxPages int) string {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return ""
	}
	if maxPages <= 0 || maxPages > reader.NumPage() {
		maxPages = reader.NumPage()
	}
	var b strings.Builder
	for i := 1; i <= maxPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String()
}

// PDFText exposes plain-text extraction for other packages.
func PDFText(content []byte, maxPages int) string {
	return pdfToText(content, maxPages)
}

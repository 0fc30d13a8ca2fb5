// Package metadata extracts bibliographic fields from HTML and PDF content
// via independent strategies merged first-non-empty-wins per field.
package metadata

// Config carries the immutable policy tables for item-type inference and
// citation validation. Passed at construction so tests can substitute
// alternate policies.
type Config struct {
	// DomainItemTypes maps a host suffix to the item type it implies.
	DomainItemTypes map[string]string
	// RequiredFields lists, per item type, the fields a complete citation
	// needs. Types not present fall back to DefaultRequiredFields.
	RequiredFields map[string][]string
	// DefaultRequiredFields applies to item types without an entry above.
	DefaultRequiredFields []string
	// DefaultItemType is the final fallback when inference finds nothing.
	DefaultItemType string
	// PDFMaxPages bounds how many pages of a PDF are read for text.
	PDFMaxPages int
}

// DefaultConfig returns the production policy tables.
func DefaultConfig() Config {
	return Config{
		DomainItemTypes: map[string]string{
			"arxiv.org":          "preprint",
			"biorxiv.org":        "preprint",
			"medrxiv.org":        "preprint",
			"ssrn.com":           "preprint",
			"youtube.com":        "videoRecording",
			"youtu.be":           "videoRecording",
			"vimeo.com":          "videoRecording",
			"wikipedia.org":      "encyclopediaArticle",
			"britannica.com":     "encyclopediaArticle",
			"github.com":         "computerProgram",
			"gitlab.com":         "computerProgram",
			"nytimes.com":        "newspaperArticle",
			"theguardian.com":    "newspaperArticle",
			"washingtonpost.com": "newspaperArticle",
		},
		RequiredFields: map[string][]string{
			"journalArticle": {"title", "creators", "date", "publicationTitle"},
			"preprint":       {"title", "creators", "date"},
			"book":           {"title", "creators", "date"},
			"webpage":        {"title", "date"},
			"blogPost":       {"title", "date"},
		},
		DefaultRequiredFields: []string{"title", "creators", "date"},
		DefaultItemType:       "webpage",
		PDFMaxPages:           3,
	}
}

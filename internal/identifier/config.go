// Package identifier extracts typed bibliographic identifiers from HTML and
// PDF content via independent strategies, then normalizes, validates,
// deduplicates and ranks the results.
package identifier

import "github.com/citepipe/citepipe/internal/citation"

// Config carries the immutable policy tables used by the extractor. The
// tables are construction-time data so tests can substitute alternates.
type Config struct {
	// TypePriority orders identifier types for ranking; lower is better.
	TypePriority map[citation.IdentifierType]int
	// EarlyWindow is the number of leading characters of a document within
	// which a free-text match is considered prominent (medium confidence).
	EarlyWindow int
	// PDFMaxPages bounds how many pages of a PDF are scanned.
	PDFMaxPages int
	// PDFEarlyFraction is the top fraction of a PDF page treated as
	// prominent for free-text matches.
	PDFEarlyFraction float64
}

// DefaultConfig returns the production policy tables.
func DefaultConfig() Config {
	return Config{
		TypePriority: map[citation.IdentifierType]int{
			citation.IdentifierDOI:   0,
			citation.IdentifierPMID:  1,
			citation.IdentifierArXiv: 2,
			citation.IdentifierISBN:  3,
		},
		EarlyWindow:      500,
		PDFMaxPages:      3,
		PDFEarlyFraction: 0.10,
	}
}

var confidenceOrder = map[citation.Confidence]int{
	citation.ConfidenceHigh:   3,
	citation.ConfidenceMedium: 2,
	citation.ConfidenceLow:    1,
}

// betterConfidence reports whether a outranks b. Ties are not better, so
// the first-seen extraction wins on equal confidence.
func betterConfidence(a, b citation.Confidence) bool {
	return confidenceOrder[a] > confidenceOrder[b]
}

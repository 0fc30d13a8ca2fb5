package identifier

import (
	"regexp"

	"github.com/citepipe/citepipe/internal/citation"
)

// candidate is a raw extraction before normalization and validation.
type candidate struct {
	raw        string
	typ        citation.IdentifierType
	source     string
	confidence citation.Confidence
}

// Free-text patterns. The DOI pattern excludes characters that terminate a
// DOI in running text; trailing punctuation is stripped by normalization.
var (
	doiPattern   = regexp.MustCompile(`10\.\d{4,9}/[^\s<>"{}|\\^~\[\]` + "`" + `]+`)
	pmidPattern  = regexp.MustCompile(`(?i)PMID:?\s*(\d{7,8})`)
	arxivPattern = regexp.MustCompile(`(?i)arXiv:\s*(\d{4}\.\d{4,5}(?:v\d+)?)`)
	isbnPattern  = regexp.MustCompile(`(?i)ISBN(?:-1[03])?:?\s*((?:\d[-\s]?){9,12}[\dX])`)
)

// extractFromText pattern-matches identifiers in free text. Matches within
// the first earlyWindow characters are medium confidence, the rest low.
func extractFromText(text string, earlyWindow int, source string) []candidate {
	var out []candidate
	add := func(raw string, typ citation.IdentifierType, pos int) {
		conf := citation.ConfidenceLow
		if pos < earlyWindow {
			conf = citation.ConfidenceMedium
		}
		out = append(out, candidate{raw: raw, typ: typ, source: source, confidence: conf})
	}

	for _, m := range doiPattern.FindAllStringIndex(text, -1) {
		add(text[m[0]:m[1]], citation.IdentifierDOI, m[0])
	}
	for _, m := range pmidPattern.FindAllStringSubmatchIndex(text, -1) {
		add(text[m[2]:m[3]], citation.IdentifierPMID, m[0])
	}
	for _, m := range arxivPattern.FindAllStringSubmatchIndex(text, -1) {
		add(text[m[2]:m[3]], citation.IdentifierArXiv, m[0])
	}
	for _, m := range isbnPattern.FindAllStringSubmatchIndex(text, -1) {
		add(text[m[2]:m[3]], citation.IdentifierISBN, m[0])
	}
	return out
}

package identifier

import (
	"regexp"
	"strings"

	"github.com/citepipe/citepipe/internal/citation"
)

var (
	doiValid   = regexp.MustCompile(`^10\.\d{4,9}/[-._;()/:A-Za-z0-9]+$`)
	pmidValid  = regexp.MustCompile(`^\d{7,8}$`)
	arxivValid = regexp.MustCompile(`^\d{4}\.\d{4,5}(v\d+)?$`)

	nonDigits    = regexp.MustCompile(`[^0-9]`)
	nonISBNChars = regexp.MustCompile(`[^0-9X]`)
)

// doiPrefixes are wrappers commonly found around DOI values in the wild.
var doiPrefixes = []string{
	"https://doi.org/",
	"http://doi.org/",
	"https://dx.doi.org/",
	"http://dx.doi.org/",
	"doi.org/",
	"doi:",
}

// Normalize converts a raw extraction to the canonical form for its type.
// Normalization is idempotent: applying it to an already-normalized value
// returns the value unchanged.
func Normalize(raw string, typ citation.IdentifierType) string {
	v := strings.TrimSpace(raw)
	switch typ {
	case citation.IdentifierDOI:
		lower := strings.ToLower(v)
		for _, p := range doiPrefixes {
			if strings.HasPrefix(lower, p) {
				v = v[len(p):]
				lower = lower[len(p):]
				break
			}
		}
		v = strings.TrimRight(v, ".,;:)")
		return strings.ToLower(v)
	case citation.IdentifierPMID:
		v = strings.TrimPrefix(strings.ToUpper(v), "PMID:")
		return nonDigits.ReplaceAllString(v, "")
	case citation.IdentifierArXiv:
		lower := strings.ToLower(v)
		if strings.HasPrefix(lower, "arxiv:") {
			v = v[len("arxiv:"):]
		}
		return strings.TrimSpace(v)
	case citation.IdentifierISBN:
		v = strings.ToUpper(v)
		if strings.HasPrefix(v, "ISBN") {
			v = strings.TrimPrefix(v, "ISBN")
			v = strings.TrimPrefix(v, "-13")
			v = strings.TrimPrefix(v, "-10")
			v = strings.TrimPrefix(v, ":")
		}
		return nonISBNChars.ReplaceAllString(v, "")
	}
	return v
}

// Valid reports whether a normalized value conforms to its type's canonical
// form. ISBN checksum digits are intentionally not verified; length alone
// is checked (known gap carried over from the upstream behavior).
func Valid(normalized string, typ citation.IdentifierType) bool {
	switch typ {
	case citation.IdentifierDOI:
		return doiValid.MatchString(normalized)
	case citation.IdentifierPMID:
		return pmidValid.MatchString(normalized)
	case citation.IdentifierArXiv:
		return arxivValid.MatchString(normalized)
	case citation.IdentifierISBN:
		return len(normalized) == 10 || len(normalized) == 13
	}
	return false
}

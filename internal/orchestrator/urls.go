package orchestrator

import (
	"net/url"
	"strings"

	"github.com/citepipe/citepipe/internal/citation"
	"github.com/citepipe/citepipe/internal/identifier"
)

// NormalizeURL cleans a raw URL for matching: scheme defaulting, trailing
// punctuation stripped, host lowercased. Unparseable input is returned
// trimmed but otherwise untouched.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimRight(raw, ".,;:)]}>\"'")
	if raw == "" {
		return raw
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	return u.String()
}

func hostOf(raw string) string {
	u, err := url.Parse(NormalizeURL(raw))
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// authoritativeType looks up the identifier type an authoritative host
// yields, matching on exact host or registrable suffix.
func (o *Orchestrator) authoritativeType(rawURL string) (citation.IdentifierType, bool) {
	host := hostOf(rawURL)
	if host == "" {
		return "", false
	}
	for domain, typ := range o.cfg.AuthoritativeDomains {
		domain = strings.TrimPrefix(strings.ToLower(domain), "www.")
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return typ, true
		}
	}
	return "", false
}

func (o *Orchestrator) translatorCapable(rawURL string) bool {
	host := hostOf(rawURL)
	for _, domain := range o.cfg.TranslatorDomains {
		domain = strings.TrimPrefix(strings.ToLower(domain), "www.")
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

// identifierFromURL derives a typed identifier from the URL path of an
// authoritative host, e.g. doi.org/10.1000/x or arxiv.org/abs/2301.04567.
func identifierFromURL(rawURL string, typ citation.IdentifierType) (citation.Identifier, bool) {
	u, err := url.Parse(NormalizeURL(rawURL))
	if err != nil {
		return citation.Identifier{}, false
	}
	path := strings.Trim(u.Path, "/")
	if path == "" {
		return citation.Identifier{}, false
	}

	var candidate string
	switch typ {
	case citation.IdentifierDOI:
		candidate = path
	case citation.IdentifierArXiv:
		candidate = strings.TrimPrefix(path, "abs/")
		candidate = strings.TrimPrefix(candidate, "pdf/")
		candidate = strings.TrimSuffix(candidate, ".pdf")
	case citation.IdentifierPMID:
		parts := strings.Split(path, "/")
		candidate = parts[len(parts)-1]
	default:
		candidate = path
	}

	normalized := identifier.Normalize(candidate, typ)
	if !identifier.Valid(normalized, typ) {
		return citation.Identifier{}, false
	}
	return citation.Identifier{
		Type:       typ,
		Value:      normalized,
		Source:     "authoritative-domain",
		Confidence: citation.ConfidenceHigh,
	}, true
}

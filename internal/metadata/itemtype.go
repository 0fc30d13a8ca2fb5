package metadata

import (
	"net/url"
	"strings"

	"github.com/citepipe/citepipe/internal/citation"
)

// inferItemType resolves the item type: explicit domain-pattern table
// first, then structural heuristics over the merged fields, then default.
func (e *Extractor) inferItemType(md citation.ExtractedMetadata, rawURL string) (string, string) {
	if host := hostOf(rawURL); host != "" {
		for suffix, itemType := range e.cfg.DomainItemTypes {
			if host == suffix || strings.HasSuffix(host, "."+suffix) {
				return itemType, "domain-pattern"
			}
		}
		if strings.Contains(host, "blog") {
			return "blogPost", "domain-heuristic"
		}
	}
	// Volume/issue signals a journal article even without a matching domain.
	if md.PublicationTitle != "" && md.Date != "" && len(md.Creators) > 0 {
		return "journalArticle", "structure-heuristic"
	}
	return e.cfg.DefaultItemType, "default"
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

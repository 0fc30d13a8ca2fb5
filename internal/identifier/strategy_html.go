package identifier

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/citepipe/citepipe/internal/citation"
)

// metaTagNames maps HTML meta tag names to the identifier type they carry.
// Google Scholar (citation_*), Dublin Core and PRISM conventions.
var metaTagNames = map[string]citation.IdentifierType{
	"citation_doi":      citation.IdentifierDOI,
	"dc.identifier":     citation.IdentifierDOI,
	"dc.identifier.doi": citation.IdentifierDOI,
	"prism.doi":         citation.IdentifierDOI,
	"citation_pmid":     citation.IdentifierPMID,
	"citation_arxiv_id": citation.IdentifierArXiv,
	"citation_isbn":     citation.IdentifierISBN,
}

// extractFromMetaTags pulls identifiers out of <meta name=... content=...>
// tags. Meta-tag hits are high confidence: publishers set them on purpose.
func extractFromMetaTags(doc *goquery.Document) []candidate {
	var out []candidate
	doc.Find("meta[name]").Each(func(_ int, sel *goquery.Selection) {
		name, _ := sel.Attr("name")
		typ, ok := metaTagNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return
		}
		content, _ := sel.Attr("content")
		content = strings.TrimSpace(content)
		if content == "" {
			return
		}
		out = append(out, candidate{
			raw:        content,
			typ:        typ,
			source:     "meta:" + strings.ToLower(name),
			confidence: citation.ConfidenceHigh,
		})
	})
	return out
}

// extractFromStructuredData walks JSON-LD blocks looking for identifier
// fields. Structured-data hits are high confidence.
func extractFromStructuredData(doc *goquery.Document) []candidate {
	var out []candidate
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		var node any
		if err := json.Unmarshal([]byte(sel.Text()), &node); err != nil {
			return
		}
		walkJSONLD(node, &out)
	})
	return out
}

func walkJSONLD(node any, out *[]candidate) {
	switch v := node.(type) {
	case map[string]any:
		for key, val := range v {
			switch strings.ToLower(key) {
			case "doi":
				appendJSONLDValue(val, citation.IdentifierDOI, out)
			case "isbn":
				appendJSONLDValue(val, citation.IdentifierISBN, out)
			case "identifier", "sameas":
				appendJSONLDValue(val, "", out)
			default:
				walkJSONLD(val, out)
			}
		}
	case []any:
		for _, item := range v {
			walkJSONLD(item, out)
		}
	}
}

// appendJSONLDValue handles string, list and PropertyValue identifier
// shapes. When typ is empty the value is sniffed by pattern.
func appendJSONLDValue(val any, typ citation.IdentifierType, out *[]candidate) {
	switch v := val.(type) {
	case string:
		t := typ
		if t == "" {
			t = sniffType(v)
		}
		if t == "" {
			return
		}
		*out = append(*out, candidate{
			raw:        v,
			typ:        t,
			source:     "jsonld",
			confidence: citation.ConfidenceHigh,
		})
	case []any:
		for _, item := range v {
			appendJSONLDValue(item, typ, out)
		}
	case map[string]any:
		// schema.org PropertyValue: {"propertyID": "doi", "value": "..."}
		propID, _ := v["propertyID"].(string)
		value, _ := v["value"].(string)
		if value == "" {
			return
		}
		t := typ
		switch strings.ToLower(propID) {
		case "doi":
			t = citation.IdentifierDOI
		case "pmid":
			t = citation.IdentifierPMID
		case "arxiv":
			t = citation.IdentifierArXiv
		case "isbn":
			t = citation.IdentifierISBN
		}
		if t == "" {
			t = sniffType(value)
		}
		if t == "" {
			return
		}
		*out = append(*out, candidate{
			raw:        value,
			typ:        t,
			source:     "jsonld",
			confidence: citation.ConfidenceHigh,
		})
	}
}

// sniffType guesses the identifier type of an untyped value.
func sniffType(value string) citation.IdentifierType {
	v := strings.ToLower(strings.TrimSpace(value))
	switch {
	case strings.Contains(v, "10.") && strings.Contains(v, "/"):
		return citation.IdentifierDOI
	case strings.HasPrefix(v, "arxiv:"):
		return citation.IdentifierArXiv
	case strings.HasPrefix(v, "isbn"):
		return citation.IdentifierISBN
	}
	return ""
}

// parseHTML builds a goquery document, returning nil on malformed input.
func parseHTML(content []byte) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil
	}
	return doc
}

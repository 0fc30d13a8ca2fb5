package metadata

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/citepipe/citepipe/internal/citation"
)

// Strategy names recorded as field provenance.
const (
	sourceCitationMeta = "citation-meta"
	sourceJSONLD       = "structured-data"
	sourceOpenGraph    = "social-preview"
	sourceDOM          = "dom-heuristic"
	sourcePDFText      = "pdf-text"
	SourceAI           = "ai"
)

func metaContent(doc *goquery.Document, names ...string) string {
	for _, name := range names {
		sel := doc.Find(`meta[name="` + name + `"]`).First()
		if sel.Length() == 0 {
			sel = doc.Find(`meta[property="` + name + `"]`).First()
		}
		if v, ok := sel.Attr("content"); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

// extractCitationMeta reads Google Scholar / Dublin Core style meta tags.
// Highest-priority strategy: publishers set these deliberately.
func extractCitationMeta(doc *goquery.Document) citation.ExtractedMetadata {
	var md citation.ExtractedMetadata

	if title := metaContent(doc, "citation_title", "dc.title"); title != "" {
		md.Title = title
		md.SetSource("title", sourceCitationMeta)
	}
	doc.Find(`meta[name="citation_author"], meta[name="dc.creator"]`).Each(func(_ int, sel *goquery.Selection) {
		name, _ := sel.Attr("content")
		if c, ok := parseCreatorName(name); ok {
			md.Creators = append(md.Creators, c)
		}
	})
	if len(md.Creators) > 0 {
		md.SetSource("creators", sourceCitationMeta)
	}
	if date := metaContent(doc, "citation_publication_date", "citation_date", "dc.date"); date != "" {
		md.Date = NormalizeDate(date)
		md.SetSource("date", sourceCitationMeta)
	}
	if pub := metaContent(doc, "citation_journal_title", "citation_conference_title"); pub != "" {
		md.PublicationTitle = pub
		md.SetSource("publicationTitle", sourceCitationMeta)
	}
	if abs := metaContent(doc, "citation_abstract", "dc.description", "description"); abs != "" {
		md.AbstractNote = abs
		md.SetSource("abstractNote", sourceCitationMeta)
	}
	if metaContent(doc, "citation_journal_title") != "" {
		md.ItemType = "journalArticle"
		md.SetSource("itemType", sourceCitationMeta)
	}
	return md
}

// extractJSONLD reads schema.org structured data blocks.
func extractJSONLD(doc *goquery.Document) citation.ExtractedMetadata {
	var md citation.ExtractedMetadata
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		var node any
		if err := json.Unmarshal([]byte(sel.Text()), &node); err != nil {
			return true
		}
		if m := jsonLDObject(node); m != nil {
			applyJSONLD(m, &md)
			return !complete(md)
		}
		return true
	})
	return md
}

// jsonLDObject finds the first usable object in a JSON-LD document, which
// may be a bare object, an array, or an @graph wrapper.
func jsonLDObject(node any) map[string]any {
	switch v := node.(type) {
	case map[string]any:
		if graph, ok := v["@graph"].([]any); ok {
			for _, item := range graph {
				if m := jsonLDObject(item); m != nil {
					return m
				}
			}
		}
		return v
	case []any:
		for _, item := range v {
			if m := jsonLDObject(item); m != nil {
				return m
			}
		}
	}
	return nil
}

func applyJSONLD(m map[string]any, md *citation.ExtractedMetadata) {
	if md.Title == "" {
		if s, ok := m["headline"].(string); ok && s != "" {
			md.Title = strings.TrimSpace(s)
			md.SetSource("title", sourceJSONLD)
		} else if s, ok := m["name"].(string); ok && s != "" {
			md.Title = strings.TrimSpace(s)
			md.SetSource("title", sourceJSONLD)
		}
	}
	if len(md.Creators) == 0 {
		for _, c := range jsonLDCreators(m["author"]) {
			md.Creators = append(md.Creators, c)
		}
		if len(md.Creators) > 0 {
			md.SetSource("creators", sourceJSONLD)
		}
	}
	if md.Date == "" {
		for _, key := range []string{"datePublished", "dateCreated", "dateModified"} {
			if s, ok := m[key].(string); ok && s != "" {
				md.Date = NormalizeDate(s)
				md.SetSource("date", sourceJSONLD)
				break
			}
		}
	}
	if md.ItemType == "" {
		if t, ok := m["@type"].(string); ok {
			if mapped := schemaOrgItemType(t); mapped != "" {
				md.ItemType = mapped
				md.SetSource("itemType", sourceJSONLD)
			}
		}
	}
	if md.AbstractNote == "" {
		if s, ok := m["description"].(string); ok && s != "" {
			md.AbstractNote = strings.TrimSpace(s)
			md.SetSource("abstractNote", sourceJSONLD)
		}
	}
	if md.PublicationTitle == "" {
		if pub, ok := m["isPartOf"].(map[string]any); ok {
			if s, ok := pub["name"].(string); ok && s != "" {
				md.PublicationTitle = strings.TrimSpace(s)
				md.SetSource("publicationTitle", sourceJSONLD)
			}
		}
	}
}

func jsonLDCreators(node any) []citation.Creator {
	var out []citation.Creator
	switch v := node.(type) {
	case map[string]any:
		if name, ok := v["name"].(string); ok {
			if c, parsed := parseCreatorName(name); parsed {
				out = append(out, c)
			}
		}
	case []any:
		for _, item := range v {
			out = append(out, jsonLDCreators(item)...)
		}
	case string:
		if c, ok := parseCreatorName(v); ok {
			out = append(out, c)
		}
	}
	return out
}

func schemaOrgItemType(t string) string {
	switch strings.ToLower(t) {
	case "scholarlyarticle":
		return "journalArticle"
	case "newsarticle", "reportagenewsarticle":
		return "newspaperArticle"
	case "blogposting":
		return "blogPost"
	case "book":
		return "book"
	case "videoobject":
		return "videoRecording"
	case "article", "webpage":
		return "webpage"
	}
	return ""
}

// extractOpenGraph reads social-preview tags. Lower priority than the
// citation-oriented strategies.
func extractOpenGraph(doc *goquery.Document) citation.ExtractedMetadata {
	var md citation.ExtractedMetadata
	if title := metaContent(doc, "og:title", "twitter:title"); title != "" {
		md.Title = title
		md.SetSource("title", sourceOpenGraph)
	}
	if date := metaContent(doc, "article:published_time", "og:updated_time"); date != "" {
		md.Date = NormalizeDate(date)
		md.SetSource("date", sourceOpenGraph)
	}
	if abs := metaContent(doc, "og:description", "twitter:description"); abs != "" {
		md.AbstractNote = abs
		md.SetSource("abstractNote", sourceOpenGraph)
	}
	if author := metaContent(doc, "article:author", "author"); author != "" {
		if c, ok := parseCreatorName(author); ok {
			md.Creators = []citation.Creator{c}
			md.SetSource("creators", sourceOpenGraph)
		}
	}
	if site := metaContent(doc, "og:site_name"); site != "" {
		md.PublicationTitle = site
		md.SetSource("publicationTitle", sourceOpenGraph)
	}
	if og := metaContent(doc, "og:type"); og != "" {
		switch strings.ToLower(og) {
		case "article":
			md.ItemType = "webpage"
			md.SetSource("itemType", sourceOpenGraph)
		case "video", "video.other":
			md.ItemType = "videoRecording"
			md.SetSource("itemType", sourceOpenGraph)
		case "book":
			md.ItemType = "book"
			md.SetSource("itemType", sourceOpenGraph)
		}
	}
	return md
}

// extractDOM falls back to document structure: <title>, <h1>, time tags.
func extractDOM(doc *goquery.Document) citation.ExtractedMetadata {
	var md citation.ExtractedMetadata
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		md.Title = h1
		md.SetSource("title", sourceDOM)
	} else if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		md.Title = title
		md.SetSource("title", sourceDOM)
	}
	if dt, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok && dt != "" {
		md.Date = NormalizeDate(dt)
		md.SetSource("date", sourceDOM)
	}
	if byline := strings.TrimSpace(doc.Find(`[rel="author"], .author, .byline`).First().Text()); byline != "" {
		if c, ok := parseCreatorName(strings.TrimPrefix(byline, "By ")); ok {
			md.Creators = []citation.Creator{c}
			md.SetSource("creators", sourceDOM)
		}
	}
	return md
}

// parseCreatorName splits "First Last" or "Last, First" into a Creator.
// Single-token and organization-looking names stay in the Name field.
func parseCreatorName(raw string) (citation.Creator, bool) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return citation.Creator{}, false
	}
	if i := strings.Index(name, ","); i > 0 {
		return citation.Creator{
			Type:      citation.CreatorAuthor,
			LastName:  strings.TrimSpace(name[:i]),
			FirstName: strings.TrimSpace(name[i+1:]),
		}, true
	}
	parts := strings.Fields(name)
	if len(parts) == 1 {
		return citation.Creator{Type: citation.CreatorAuthor, Name: name}, true
	}
	return citation.Creator{
		Type:      citation.CreatorAuthor,
		FirstName: strings.Join(parts[:len(parts)-1], " "),
		LastName:  parts[len(parts)-1],
	}, true
}

func parseHTML(content []byte) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil
	}
	return doc
}

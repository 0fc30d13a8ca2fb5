package metadata

import (
	"strings"

	"go.uber.org/zap"

	"github.com/citepipe/citepipe/internal/citation"
	"github.com/citepipe/citepipe/internal/identifier"
)

// Extractor runs the metadata strategies over supplied content. It never
// returns an error; partial results are the normal case.
type Extractor struct {
	cfg    Config
	logger *zap.Logger
}

// New constructs an Extractor with the given policy tables.
func New(cfg Config, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.DomainItemTypes == nil {
		cfg.DomainItemTypes = def.DomainItemTypes
	}
	if cfg.RequiredFields == nil {
		cfg.RequiredFields = def.RequiredFields
	}
	if len(cfg.DefaultRequiredFields) == 0 {
		cfg.DefaultRequiredFields = def.DefaultRequiredFields
	}
	if cfg.DefaultItemType == "" {
		cfg.DefaultItemType = def.DefaultItemType
	}
	if cfg.PDFMaxPages <= 0 {
		cfg.PDFMaxPages = def.PDFMaxPages
	}
	return &Extractor{cfg: cfg, logger: logger}
}

// Extract merges the strategy outputs, highest priority first:
// citation meta tags > structured data > social-preview tags > DOM
// heuristics. Item type is inferred afterwards if still absent.
func (e *Extractor) Extract(content []byte, contentType, rawURL string) citation.ExtractedMetadata {
	var md citation.ExtractedMetadata

	if isPDF(contentType) {
		md = e.extractPDF(content)
	} else if doc := parseHTML(content); doc != nil {
		md = extractCitationMeta(doc)
		md = merge(md, extractJSONLD(doc))
		md = merge(md, extractOpenGraph(doc))
		md = merge(md, extractDOM(doc))
	}

	if md.ItemType == "" {
		itemType, how := e.inferItemType(md, rawURL)
		md.ItemType = itemType
		md.SetSource("itemType", how)
	}

	e.logger.Debug("metadata extracted",
		zap.String("url", rawURL),
		zap.Bool("complete", complete(md)),
		zap.Strings("missing", MissingCriticalFields(md)),
	)
	return md
}

// extractPDF takes the first substantial line of the PDF text as the title.
// Richer PDF metadata is left to the AI fallback.
func (e *Extractor) extractPDF(content []byte) citation.ExtractedMetadata {
	var md citation.ExtractedMetadata
	text := identifier.PDFText(content, e.cfg.PDFMaxPages)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) > 20 && !looksLikeRunningHeader(line) {
			md.Title = line
			md.SetSource("title", sourcePDFText)
			break
		}
	}
	return md
}

func looksLikeRunningHeader(line string) bool {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "journal"):
		return true
	case strings.Contains(lower, "volume") && strings.Contains(lower, "issue"):
		return true
	case strings.Contains(lower, "copyright"):
		return true
	}
	return false
}

// Validate checks a citation against the required-field table for its item
// type and returns the missing field names.
func (e *Extractor) Validate(md citation.ExtractedMetadata) []string {
	required, ok := e.cfg.RequiredFields[md.ItemType]
	if !ok {
		required = e.cfg.DefaultRequiredFields
	}
	var missing []string
	for _, field := range required {
		switch field {
		case "title":
			if md.Title == "" {
				missing = append(missing, field)
			}
		case "creators":
			if len(md.Creators) == 0 {
				missing = append(missing, field)
			}
		case "date":
			if md.Date == "" {
				missing = append(missing, field)
			}
		case "publicationTitle":
			if md.PublicationTitle == "" {
				missing = append(missing, field)
			}
		case "abstractNote":
			if md.AbstractNote == "" {
				missing = append(missing, field)
			}
		}
	}
	return missing
}

func isPDF(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "application/pdf")
}

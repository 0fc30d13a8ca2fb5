package identifier

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/citepipe/citepipe/internal/citation"
)

// Extractor runs the identifier strategies over supplied content. It is a
// pure function over its inputs and never returns an error: malformed
// content produces an empty result set.
type Extractor struct {
	cfg    Config
	logger *zap.Logger
}

// New constructs an Extractor with the given policy tables.
func New(cfg Config, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TypePriority == nil {
		cfg.TypePriority = DefaultConfig().TypePriority
	}
	if cfg.EarlyWindow <= 0 {
		cfg.EarlyWindow = DefaultConfig().EarlyWindow
	}
	if cfg.PDFMaxPages <= 0 {
		cfg.PDFMaxPages = DefaultConfig().PDFMaxPages
	}
	if cfg.PDFEarlyFraction <= 0 {
		cfg.PDFEarlyFraction = DefaultConfig().PDFEarlyFraction
	}
	return &Extractor{cfg: cfg, logger: logger}
}

// Extract returns the ranked, deduplicated identifiers found in content.
func (e *Extractor) Extract(content []byte, contentType, url string) []citation.Identifier {
	candidates := e.collect(content, contentType)

	ids := e.normalizeAndValidate(candidates)
	ids = Dedup(ids)
	e.Rank(ids)

	if len(ids) > 0 {
		e.logger.Debug("identifiers extracted",
			zap.String("url", url),
			zap.Int("count", len(ids)),
		)
	}
	return ids
}

func (e *Extractor) collect(content []byte, contentType string) []candidate {
	if isPDF(contentType) {
		return extractFromPDF(content, e.cfg.PDFMaxPages, e.cfg.PDFEarlyFraction)
	}

	var out []candidate
	if doc := parseHTML(content); doc != nil {
		out = append(out, extractFromMetaTags(doc)...)
		out = append(out, extractFromStructuredData(doc)...)
		out = append(out, extractFromText(doc.Text(), e.cfg.EarlyWindow, "free-text")...)
		return out
	}
	// Not parseable as HTML; fall back to plain-text scanning.
	return extractFromText(string(content), e.cfg.EarlyWindow, "free-text")
}

// normalizeAndValidate drops invalid values silently, per policy.
func (e *Extractor) normalizeAndValidate(candidates []candidate) []citation.Identifier {
	out := make([]citation.Identifier, 0, len(candidates))
	for _, c := range candidates {
		value := Normalize(c.raw, c.typ)
		if !Valid(value, c.typ) {
			continue
		}
		out = append(out, citation.Identifier{
			Type:       c.typ,
			Value:      value,
			Source:     c.source,
			Confidence: c.confidence,
		})
	}
	return out
}

// Dedup collapses identifiers sharing (type, value), keeping the highest
// confidence. On equal confidence the first-seen extraction wins.
func Dedup(ids []citation.Identifier) []citation.Identifier {
	type key struct {
		typ   citation.IdentifierType
		value string
	}
	index := make(map[key]int, len(ids))
	out := make([]citation.Identifier, 0, len(ids))
	for _, id := range ids {
		k := key{id.Type, id.Value}
		if i, seen := index[k]; seen {
			if betterConfidence(id.Confidence, out[i].Confidence) {
				out[i] = id
			}
			continue
		}
		index[k] = len(out)
		out = append(out, id)
	}
	return out
}

// Rank sorts identifiers in place by type priority, then confidence.
func (e *Extractor) Rank(ids []citation.Identifier) {
	sort.SliceStable(ids, func(i, j int) bool {
		pi, pj := e.cfg.TypePriority[ids[i].Type], e.cfg.TypePriority[ids[j].Type]
		if pi != pj {
			return pi < pj
		}
		return confidenceOrder[ids[i].Confidence] > confidenceOrder[ids[j].Confidence]
	})
}

func isPDF(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "application/pdf")
}

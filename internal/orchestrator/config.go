package orchestrator

import (
	"time"

	"github.com/citepipe/citepipe/internal/citation"
)

// Config holds the orchestrator's tunables. Retry counts and timeouts are
// deliberately configuration, not constants.
type Config struct {
	// MaxAttempts bounds failed process runs before the entity is
	// marked exhausted.
	MaxAttempts int `mapstructure:"max_attempts"`

	// StageTimeout bounds each stage execution; a timeout classifies
	// as retryable.
	StageTimeout time.Duration `mapstructure:"stage_timeout"`

	// RequireAIApproval parks AI-derived metadata in awaiting_metadata
	// instead of storing it directly.
	RequireAIApproval bool `mapstructure:"require_ai_approval"`

	// AuthoritativeDomains maps a host to the identifier type that can be
	// derived from its URLs, short-circuiting straight to the
	// reference-manager identifier path.
	AuthoritativeDomains map[string]citation.IdentifierType `mapstructure:"authoritative_domains"`

	// TranslatorDomains lists hosts the reference manager can translate
	// directly without local content processing.
	TranslatorDomains []string `mapstructure:"translator_domains"`
}

// DefaultConfig returns the stock policy tables.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		StageTimeout: 60 * time.Second,
		AuthoritativeDomains: map[string]citation.IdentifierType{
			"doi.org":                 citation.IdentifierDOI,
			"dx.doi.org":              citation.IdentifierDOI,
			"arxiv.org":               citation.IdentifierArXiv,
			"pubmed.ncbi.nlm.nih.gov": citation.IdentifierPMID,
			"www.ncbi.nlm.nih.gov":    citation.IdentifierPMID,
		},
		TranslatorDomains: []string{
			"sciencedirect.com",
			"link.springer.com",
			"onlinelibrary.wiley.com",
			"jstor.org",
			"nature.com",
		},
	}
}

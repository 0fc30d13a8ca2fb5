// Package ai implements the AI metadata fallback on the OpenAI API.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"

	"github.com/citepipe/citepipe/internal/citation"
)

// Config controls the OpenAI-backed extractor.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string // optional override, used by tests
	Timeout time.Duration
	// MaxPromptChars truncates the supplied text; zero means 16000.
	MaxPromptChars int
}

const (
	defaultModel          = openai.ChatModelGPT4oMini
	defaultMaxPromptChars = 16000
)

const systemPrompt = `You extract bibliographic metadata from scholarly and web content.
Respond with a single JSON object with these keys (omit unknown ones):
"title" (string), "creators" (array of {"type","first_name","last_name","name"}),
"date" (string, ISO 8601 if possible), "item_type" (Zotero item type string),
"abstract_note" (string), "publication_title" (string).
Never invent values; omit a key rather than guessing.`

// OpenAIExtractor asks a chat model for the bibliographic fields the
// structured strategies could not find.
type OpenAIExtractor struct {
	cfg    Config
	client openai.Client
	logger *zap.Logger
}

// New builds an OpenAIExtractor.
func New(cfg Config, logger *zap.Logger) (*OpenAIExtractor, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("ai.api_key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxPromptChars <= 0 {
		cfg.MaxPromptChars = defaultMaxPromptChars
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIExtractor{
		cfg:    cfg,
		client: openai.NewClient(opts...),
		logger: logger,
	}, nil
}

// ExtractMetadata sends the page text to the model and parses the JSON
// reply. hints names the fields still missing so the model focuses there.
func (e *OpenAIExtractor) ExtractMetadata(
	ctx context.Context, text, contentType, url string, hints []string,
) (citation.ExtractedMetadata, error) {
	if strings.TrimSpace(text) == "" {
		return citation.ExtractedMetadata{}, fmt.Errorf("extract metadata: %w", citation.ErrNoContent)
	}
	if len(text) > e.cfg.MaxPromptChars {
		text = text[:e.cfg.MaxPromptChars]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "URL: %s\nContent-Type: %s\n", url, contentType)
	if len(hints) > 0 {
		fmt.Fprintf(&sb, "Missing fields to focus on: %s\n", strings.Join(hints, ", "))
	}
	sb.WriteString("\nContent:\n")
	sb.WriteString(text)

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	resp, err := e.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: e.cfg.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(sb.String()),
		},
	})
	if err != nil {
		return citation.ExtractedMetadata{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return citation.ExtractedMetadata{}, fmt.Errorf("chat completion: empty response")
	}

	md, err := ParseResponse(resp.Choices[0].Message.Content)
	if err != nil {
		return citation.ExtractedMetadata{}, fmt.Errorf("parse model output: %w", err)
	}
	e.logger.Debug("ai metadata extracted",
		zap.String("url", url),
		zap.String("model", e.cfg.Model),
		zap.Bool("has_title", md.Title != ""),
	)
	return md, nil
}

// ParseResponse parses the model reply, tolerating markdown code fences
// and surrounding prose.
func ParseResponse(content string) (citation.ExtractedMetadata, error) {
	raw := strings.TrimSpace(content)
	if raw == "" {
		return citation.ExtractedMetadata{}, fmt.Errorf("empty model output")
	}
	if stripped := stripCodeFences(raw); stripped != "" {
		raw = stripped
	}
	if start := strings.Index(raw, "{"); start > 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}

	var md citation.ExtractedMetadata
	if err := json.Unmarshal([]byte(raw), &md); err != nil {
		return citation.ExtractedMetadata{}, fmt.Errorf("unmarshal metadata: %w", err)
	}
	md.Sources = nil
	return md, nil
}

func stripCodeFences(content string) string {
	if !strings.HasPrefix(content, "```") {
		return ""
	}
	lines := strings.Split(content, "\n")
	if len(lines) < 2 {
		return ""
	}
	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

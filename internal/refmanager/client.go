// Package refmanager implements the HTTP client for the external
// reference manager. Every call is rate limited and retried on
// transient failures; not-found and validation responses return
// immediately.
package refmanager

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/citepipe/citepipe/internal/citation"
)

// Config controls the reference manager client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// RequestsPerSecond throttles outbound calls; zero means 2 rps.
	RequestsPerSecond float64
	// RetryAttempts bounds transparent retries per call; zero means 3.
	RetryAttempts uint
}

// Client talks to the reference manager API.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewClient builds a Client from config.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("refmanager.base_url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 2
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = 3
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:  logger,
	}, nil
}

// wire mirrors the item payload on the API.
type wireItem struct {
	Key      string             `json:"key,omitempty"`
	ItemType string             `json:"itemType"`
	Title    string             `json:"title,omitempty"`
	Creators []citation.Creator `json:"creators,omitempty"`
	Date     string             `json:"date,omitempty"`
	URL      string             `json:"url,omitempty"`
	Abstract string             `json:"abstractNote,omitempty"`
	PubTitle string             `json:"publicationTitle,omitempty"`
}

func (w wireItem) toItem() citation.Item {
	item := citation.Item{
		Key:      w.Key,
		ItemType: w.ItemType,
		Title:    w.Title,
		Creators: w.Creators,
		Date:     w.Date,
	}
	if w.URL != "" || w.Abstract != "" || w.PubTitle != "" {
		item.Fields = map[string]string{}
		if w.URL != "" {
			item.Fields["url"] = w.URL
		}
		if w.Abstract != "" {
			item.Fields["abstractNote"] = w.Abstract
		}
		if w.PubTitle != "" {
			item.Fields["publicationTitle"] = w.PubTitle
		}
	}
	return item
}

func toWire(md citation.ExtractedMetadata, rawURL string) wireItem {
	return wireItem{
		ItemType: md.ItemType,
		Title:    md.Title,
		Creators: md.Creators,
		Date:     md.Date,
		URL:      rawURL,
		Abstract: md.AbstractNote,
		PubTitle: md.PublicationTitle,
	}
}

// TranslateIdentifier asks the manager to resolve a DOI/PMID/ArXiv/ISBN
// into full item metadata.
func (c *Client) TranslateIdentifier(ctx context.Context, value string) (citation.Item, error) {
	var out wireItem
	err := c.call(ctx, http.MethodPost, "/translate/identifier",
		map[string]string{"identifier": value}, &out)
	if err != nil {
		return citation.Item{}, fmt.Errorf("translate identifier %q: %w", value, err)
	}
	return out.toItem(), nil
}

// TranslateURL asks the manager's translators to resolve a URL directly.
func (c *Client) TranslateURL(ctx context.Context, rawURL string) (citation.Item, error) {
	var out wireItem
	err := c.call(ctx, http.MethodPost, "/translate/url",
		map[string]string{"url": rawURL}, &out)
	if err != nil {
		return citation.Item{}, fmt.Errorf("translate url: %w", err)
	}
	return out.toItem(), nil
}

// GetItem fetches one item by key.
func (c *Client) GetItem(ctx context.Context, key string) (citation.Item, error) {
	var out wireItem
	if err := c.call(ctx, http.MethodGet, "/items/"+url.PathEscape(key), nil, &out); err != nil {
		return citation.Item{}, fmt.Errorf("get item %s: %w", key, err)
	}
	return out.toItem(), nil
}

// CreateItem stores a new item and returns its key.
func (c *Client) CreateItem(ctx context.Context, fields citation.ExtractedMetadata, rawURL string) (string, error) {
	var out struct {
		Key string `json:"key"`
	}
	if err := c.call(ctx, http.MethodPost, "/items", toWire(fields, rawURL), &out); err != nil {
		return "", fmt.Errorf("create item: %w", err)
	}
	if out.Key == "" {
		return "", fmt.Errorf("create item: empty key in response")
	}
	return out.Key, nil
}

// UpdateItem overwrites the fields of an existing item.
func (c *Client) UpdateItem(ctx context.Context, key string, fields citation.ExtractedMetadata) error {
	if err := c.call(ctx, http.MethodPatch, "/items/"+url.PathEscape(key), toWire(fields, ""), nil); err != nil {
		return fmt.Errorf("update item %s: %w", key, err)
	}
	return nil
}

// DeleteItem removes an item.
func (c *Client) DeleteItem(ctx context.Context, key string) error {
	if err := c.call(ctx, http.MethodDelete, "/items/"+url.PathEscape(key), nil, nil); err != nil {
		return fmt.Errorf("delete item %s: %w", key, err)
	}
	return nil
}

// FindItemByURL searches for an existing item with the given URL. A miss
// is not an error.
func (c *Client) FindItemByURL(ctx context.Context, rawURL string) (string, bool, error) {
	var out []wireItem
	err := c.call(ctx, http.MethodGet, "/items?url="+url.QueryEscape(rawURL), nil, &out)
	if err != nil {
		if IsNotFound(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("find item by url: %w", err)
	}
	if len(out) == 0 {
		return "", false, nil
	}
	return out[0].Key, true, nil
}

// call runs one API request with rate limiting and bounded retries on
// retryable failures.
func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	return retry.Do(
		func() error {
			if err := c.limiter.Wait(ctx); err != nil {
				return retry.Unrecoverable(err)
			}
			return c.doOnce(ctx, method, path, body, out)
		},
		retry.Context(ctx),
		retry.Attempts(c.cfg.RetryAttempts),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.Retryable()
			}
			return citation.ClassifyError(err) == citation.CategoryRetryable
		}),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("reference manager call retrying",
				zap.String("method", method),
				zap.String("path", path),
				zap.Uint("attempt", n+1),
				zap.Error(err),
			)
		}),
	)
}

func (c *Client) doOnce(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return retry.Unrecoverable(fmt.Errorf("marshal request: %w", err))
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return retry.Unrecoverable(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

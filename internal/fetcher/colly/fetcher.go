// Package collyfetcher implements Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/citepipe/citepipe/internal/citation"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// MaxBodyBytes caps the response size; zero means the default 10 MiB.
	MaxBodyBytes int
	// IgnoreRobots skips robots.txt checks. Off by default: cited URLs
	// are still fetched politely.
	IgnoreRobots bool
}

const defaultMaxBodyBytes = 10 << 20

// Fetcher retrieves page content with a Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

// New builds a Fetcher with a pooled HTTP transport.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = cfg.IgnoreRobots
	c.WithTransport(newHTTPTransport())
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	return &Fetcher{cfg: cfg, baseCollector: c}
}

// Fetch executes a single HTTP GET and returns the body and content type.
// Rate-limit responses surface as ErrRateLimited so callers classify them
// as retryable.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	var (
		body        []byte
		contentType string
		statusCode  int
		fetchErr    error
	)

	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	collector.MaxBodySize = f.cfg.MaxBodyBytes

	collector.OnResponse(func(r *colly.Response) {
		statusCode = r.StatusCode
		contentType = r.Headers.Get("Content-Type")
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			statusCode = r.StatusCode
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if statusCode == http.StatusTooManyRequests {
			return nil, "", fmt.Errorf("fetch %s: %w", url, citation.ErrRateLimited)
		}
		if err != nil {
			return nil, "", fmt.Errorf("fetch %s: %w", url, err)
		}
		if fetchErr != nil {
			return nil, "", fmt.Errorf("fetch %s: %w", url, fetchErr)
		}
	}

	if statusCode < 200 || statusCode > 299 {
		return nil, "", fmt.Errorf("fetch %s: unexpected status %d", url, statusCode)
	}
	return body, contentType, nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}

package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/shelfscout/shelfscout/internal/core"
)

// Client is a best-effort search against one external metadata source.
// A miss returns (nil, nil); transient rate limiting surfaces as a
// core.RetryableError so callers can back off and retry.
type Client interface {
	Name() string
	Search(ctx context.Context, title, author string) (*Payload, error)
}

// NewClient builds the client for a configured source name.
func NewClient(source string, opts ...Option) (Client, error) {
	switch source {
	case SourceGoogle:
		return NewGoogleClient(opts...), nil
	case SourceOpenLibrary:
		return NewOpenLibraryClient(opts...), nil
	case SourceOpenAlex:
		return NewOpenAlexClient(opts...), nil
	default:
		return nil, fmt.Errorf("unknown metadata source %q", source)
	}
}

type clientConfig struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limit      rate.Limit
}

type Option func(*clientConfig)

// WithBaseURL overrides the upstream endpoint, mainly for tests.
func WithBaseURL(url string) Option {
	return func(c *clientConfig) { c.baseURL = url }
}

func WithAPIKey(key string) Option {
	return func(c *clientConfig) { c.apiKey = key }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *clientConfig) { c.httpClient = hc }
}

func WithRateLimit(l rate.Limit) Option {
	return func(c *clientConfig) { c.limit = l }
}

func newClientConfig(baseURL string, perSecond float64, opts ...Option) clientConfig {
	cfg := clientConfig{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limit:      rate.Limit(perSecond),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// getJSON performs one paced GET and decodes the body into out. HTTP 429 is
// mapped to a RetryableError honoring Retry-After when the server sends one.
func getJSON(ctx context.Context, hc *http.Client, limiter *rate.Limiter, url string, out any) error {
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return &core.RetryableError{
			Err:        core.ErrRateLimit,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

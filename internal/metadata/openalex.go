package metadata

import (
	"context"
	"net/url"

	"golang.org/x/time/rate"
)

const (
	openAlexURL = "https://api.openalex.org/works"

	// Identifying contact for OpenAlex's polite pool.
	openAlexMailto = "catalog-sync@shelfscout.dev"
)

type OpenAlexClient struct {
	cfg     clientConfig
	limiter *rate.Limiter
}

func NewOpenAlexClient(opts ...Option) *OpenAlexClient {
	cfg := newClientConfig(openAlexURL, 10, opts...)
	return &OpenAlexClient{
		cfg:     cfg,
		limiter: rate.NewLimiter(cfg.limit, 1),
	}
}

func (c *OpenAlexClient) Name() string { return SourceOpenAlex }

func (c *OpenAlexClient) Search(ctx context.Context, title, author string) (*Payload, error) {
	filter := "title.search:" + title
	if author != "" {
		filter += ",authorships.author.display_name.search:" + author
	}

	params := url.Values{}
	params.Set("filter", filter)
	params.Set("per_page", "1")
	params.Set("mailto", openAlexMailto)
	if c.cfg.apiKey != "" {
		params.Set("api_key", c.cfg.apiKey)
	}

	var body struct {
		Results []OpenAlexWork `json:"results"`
	}
	if err := getJSON(ctx, c.cfg.httpClient, c.limiter, c.cfg.baseURL+"?"+params.Encode(), &body); err != nil {
		return nil, err
	}
	if len(body.Results) == 0 {
		return nil, nil
	}

	work := body.Results[0]
	return &Payload{
		Source:   SourceOpenAlex,
		OpenAlex: &work,
	}, nil
}

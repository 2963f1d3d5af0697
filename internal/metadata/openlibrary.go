package metadata

import (
	"context"
	"net/url"

	"golang.org/x/time/rate"
)

const openLibraryURL = "https://openlibrary.org/search.json"

type OpenLibraryClient struct {
	cfg     clientConfig
	limiter *rate.Limiter
}

func NewOpenLibraryClient(opts ...Option) *OpenLibraryClient {
	cfg := newClientConfig(openLibraryURL, 5, opts...)
	return &OpenLibraryClient{
		cfg:     cfg,
		limiter: rate.NewLimiter(cfg.limit, 1),
	}
}

func (c *OpenLibraryClient) Name() string { return SourceOpenLibrary }

func (c *OpenLibraryClient) Search(ctx context.Context, title, author string) (*Payload, error) {
	params := url.Values{}
	params.Set("title", title)
	if author != "" {
		params.Set("author", author)
	}
	params.Set("limit", "1")
	params.Set("fields", "key,title,author_name,isbn,subject,first_publish_year,cover_i,number_of_pages_median")

	var body struct {
		Docs []OpenLibraryDoc `json:"docs"`
	}
	if err := getJSON(ctx, c.cfg.httpClient, c.limiter, c.cfg.baseURL+"?"+params.Encode(), &body); err != nil {
		return nil, err
	}
	if len(body.Docs) == 0 {
		return nil, nil
	}

	doc := body.Docs[0]
	return &Payload{
		Source:      SourceOpenLibrary,
		OpenLibrary: &doc,
	}, nil
}

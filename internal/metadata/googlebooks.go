package metadata

import (
	"context"
	"net/url"

	"golang.org/x/time/rate"
)

const googleBooksURL = "https://www.googleapis.com/books/v1/volumes"

type GoogleClient struct {
	cfg     clientConfig
	limiter *rate.Limiter
}

func NewGoogleClient(opts ...Option) *GoogleClient {
	// Unauthenticated quota is tight, hence the conservative pace.
	cfg := newClientConfig(googleBooksURL, 2, opts...)
	return &GoogleClient{
		cfg:     cfg,
		limiter: rate.NewLimiter(cfg.limit, 1),
	}
}

func (c *GoogleClient) Name() string { return SourceGoogle }

func (c *GoogleClient) Search(ctx context.Context, title, author string) (*Payload, error) {
	// Space-separated field terms; url.Values encodes the space as the
	// conventional "+" rather than a literal %2B.
	q := "intitle:" + title
	if author != "" {
		q += " inauthor:" + author
	}

	params := url.Values{}
	params.Set("q", q)
	params.Set("maxResults", "1")
	params.Set("langRestrict", "en")
	if c.cfg.apiKey != "" {
		params.Set("key", c.cfg.apiKey)
	}

	var body struct {
		Items []struct {
			ID         string `json:"id"`
			VolumeInfo struct {
				Title               string   `json:"title"`
				Subtitle            string   `json:"subtitle"`
				Authors             []string `json:"authors"`
				Description         string   `json:"description"`
				PublishedDate       string   `json:"publishedDate"`
				PageCount           int      `json:"pageCount"`
				Categories          []string `json:"categories"`
				AverageRating       float64  `json:"averageRating"`
				PreviewLink         string   `json:"previewLink"`
				ImageLinks          struct {
					Thumbnail string `json:"thumbnail"`
				} `json:"imageLinks"`
				IndustryIdentifiers []IndustryIdentifier `json:"industryIdentifiers"`
			} `json:"volumeInfo"`
		} `json:"items"`
	}

	if err := getJSON(ctx, c.cfg.httpClient, c.limiter, c.cfg.baseURL+"?"+params.Encode(), &body); err != nil {
		return nil, err
	}
	if len(body.Items) == 0 {
		return nil, nil
	}

	item := body.Items[0]
	vi := item.VolumeInfo
	return &Payload{
		Source: SourceGoogle,
		Google: &GoogleVolume{
			GoogleID:            item.ID,
			Title:               vi.Title,
			Subtitle:            vi.Subtitle,
			Authors:             vi.Authors,
			Description:         vi.Description,
			PublishedDate:       vi.PublishedDate,
			PageCount:           vi.PageCount,
			Categories:          vi.Categories,
			AverageRating:       vi.AverageRating,
			Thumbnail:           vi.ImageLinks.Thumbnail,
			PreviewLink:         vi.PreviewLink,
			IndustryIdentifiers: vi.IndustryIdentifiers,
		},
	}, nil
}

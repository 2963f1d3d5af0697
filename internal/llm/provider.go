package llm

import "context"

// Provider generates a short blurb for a book from its bibliographic fields.
// Used only to backfill descriptions the metadata sources left blank.
type Provider interface {
	Describe(ctx context.Context, title, authors, categories string) (string, error)
}

// MockProvider for free local testing.
type MockProvider struct{}

func (m *MockProvider) Describe(ctx context.Context, title, authors, categories string) (string, error) {
	return "A mock description of " + title + ".", nil
}

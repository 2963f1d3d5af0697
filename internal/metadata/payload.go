package metadata

import (
	"sort"
	"strings"
)

// Source names accepted by NewClient and recorded on payloads.
const (
	SourceGoogle      = "google"
	SourceOpenLibrary = "openlibrary"
	SourceOpenAlex    = "openalex"
)

// Payload is the tagged union of source-specific metadata shapes. Exactly one
// of the variant pointers is set, matching Source.
type Payload struct {
	Source      string          `json:"source"`
	Google      *GoogleVolume   `json:"google,omitempty"`
	OpenLibrary *OpenLibraryDoc `json:"openlibrary,omitempty"`
	OpenAlex    *OpenAlexWork   `json:"openalex,omitempty"`
}

// GoogleVolume is the pruned Google Books volume shape.
type GoogleVolume struct {
	GoogleID            string               `json:"google_id"`
	Title               string               `json:"title"`
	Subtitle            string               `json:"subtitle,omitempty"`
	Authors             []string             `json:"authors,omitempty"`
	Description         string               `json:"description,omitempty"`
	PublishedDate       string               `json:"published_date,omitempty"`
	PageCount           int                  `json:"page_count,omitempty"`
	Categories          []string             `json:"categories,omitempty"`
	AverageRating       float64              `json:"average_rating,omitempty"`
	Thumbnail           string               `json:"thumbnail,omitempty"`
	PreviewLink         string               `json:"preview_link,omitempty"`
	IndustryIdentifiers []IndustryIdentifier `json:"industry_identifiers,omitempty"`
}

type IndustryIdentifier struct {
	Type       string `json:"type"`
	Identifier string `json:"identifier"`
}

// OpenLibraryDoc is one search.json doc.
type OpenLibraryDoc struct {
	Key              string   `json:"key"`
	Title            string   `json:"title"`
	AuthorNames      []string `json:"author_name,omitempty"`
	ISBNs            []string `json:"isbn,omitempty"`
	Subjects         []string `json:"subject,omitempty"`
	FirstPublishYear int      `json:"first_publish_year,omitempty"`
	CoverID          int      `json:"cover_i,omitempty"`
	MedianPages      int      `json:"number_of_pages_median,omitempty"`
}

// OpenAlexWork is the pruned OpenAlex work object. The abstract arrives as an
// inverted index and is reconstructed at normalization time.
type OpenAlexWork struct {
	ID                    string           `json:"id"`
	DisplayName           string           `json:"display_name"`
	PublicationYear       int              `json:"publication_year,omitempty"`
	Authorships           []Authorship     `json:"authorships,omitempty"`
	Concepts              []Concept        `json:"concepts,omitempty"`
	AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index,omitempty"`
}

type Authorship struct {
	Author struct {
		DisplayName string `json:"display_name"`
	} `json:"author"`
}

type Concept struct {
	DisplayName string `json:"display_name"`
}

// ReconstructAbstract rebuilds readable text from an OpenAlex inverted index
// by replaying each word at its recorded positions.
func ReconstructAbstract(inverted map[string][]int) string {
	if len(inverted) == 0 {
		return ""
	}

	type placed struct {
		word string
		pos  int
	}
	var words []placed
	for word, positions := range inverted {
		for _, p := range positions {
			words = append(words, placed{word: word, pos: p})
		}
	}
	sort.Slice(words, func(i, j int) bool { return words[i].pos < words[j].pos })

	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = w.word
	}
	return strings.Join(parts, " ")
}

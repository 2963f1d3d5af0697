package transform

import (
	"fmt"
	"strconv"

	"github.com/shelfscout/shelfscout/internal/catalog"
	"github.com/shelfscout/shelfscout/internal/enrich"
	"github.com/shelfscout/shelfscout/internal/metadata"
)

// Canonical is the deduplicated, schema-normalized book record emitted by
// the transform stage and consumed by the loader. Multilingual text fields
// are carried verbatim.
type Canonical struct {
	Title         string   `json:"title"`
	Subtitle      string   `json:"subtitle,omitempty"`
	Authors       []string `json:"authors,omitempty"`
	Description   string   `json:"description,omitempty"`
	ISBN13        string   `json:"isbn_13,omitempty"`
	ISBN10        string   `json:"isbn_10,omitempty"`
	Categories    []string `json:"categories,omitempty"`
	PageCount     int      `json:"page_count,omitempty"`
	PublishedDate string   `json:"published_date,omitempty"`
	Thumbnail     string   `json:"thumbnail,omitempty"`
	PreviewLink   string   `json:"preview_link,omitempty"`
	ExternalID    string   `json:"external_id,omitempty"`

	EditionVolume string `json:"edition_volume,omitempty"`
	PublisherInfo string `json:"publisher_info,omitempty"`
	BookNo        string `json:"book_no,omitempty"`
}

// Normalize converts one enriched record into the canonical shape, merging
// the register side-table. Records without a metadata payload yield
// (nil, false) and are dropped upstream.
func Normalize(rec enrich.Record, side map[string]catalog.LocalMeta) (*Canonical, bool) {
	if rec.Metadata == nil {
		return nil, false
	}

	var c *Canonical
	switch rec.Metadata.Source {
	case metadata.SourceGoogle:
		c = fromGoogle(rec.Metadata.Google)
	case metadata.SourceOpenLibrary:
		c = fromOpenLibrary(rec.Metadata.OpenLibrary)
	case metadata.SourceOpenAlex:
		c = fromOpenAlex(rec.Metadata.OpenAlex)
	}
	if c == nil {
		return nil, false
	}

	if meta, ok := side[rec.OriginalID]; ok {
		c.EditionVolume = meta.EditionVolume
		c.PublisherInfo = meta.PublisherInfo
		c.BookNo = meta.BookNo
	}
	return c, true
}

func fromGoogle(v *metadata.GoogleVolume) *Canonical {
	if v == nil {
		return nil
	}

	// First occurrence of each identifier type wins.
	var isbn13, isbn10 string
	for _, ident := range v.IndustryIdentifiers {
		switch ident.Type {
		case "ISBN_13":
			if isbn13 == "" {
				isbn13 = ident.Identifier
			}
		case "ISBN_10":
			if isbn10 == "" {
				isbn10 = ident.Identifier
			}
		}
	}

	return &Canonical{
		Title:         v.Title,
		Subtitle:      v.Subtitle,
		Authors:       v.Authors,
		Description:   v.Description,
		ISBN13:        isbn13,
		ISBN10:        isbn10,
		Categories:    v.Categories,
		PageCount:     v.PageCount,
		PublishedDate: v.PublishedDate,
		Thumbnail:     v.Thumbnail,
		PreviewLink:   v.PreviewLink,
		ExternalID:    v.GoogleID,
	}
}

func fromOpenLibrary(d *metadata.OpenLibraryDoc) *Canonical {
	if d == nil {
		return nil
	}

	var isbn13, isbn10 string
	for _, isbn := range d.ISBNs {
		switch len(isbn) {
		case 13:
			if isbn13 == "" {
				isbn13 = isbn
			}
		case 10:
			if isbn10 == "" {
				isbn10 = isbn
			}
		}
	}

	var published string
	if d.FirstPublishYear > 0 {
		published = strconv.Itoa(d.FirstPublishYear)
	}
	var thumbnail string
	if d.CoverID > 0 {
		thumbnail = fmt.Sprintf("https://covers.openlibrary.org/b/id/%d-M.jpg", d.CoverID)
	}

	return &Canonical{
		Title:         d.Title,
		Authors:       d.AuthorNames,
		ISBN13:        isbn13,
		ISBN10:        isbn10,
		Categories:    d.Subjects,
		PageCount:     d.MedianPages,
		PublishedDate: published,
		Thumbnail:     thumbnail,
		ExternalID:    d.Key,
	}
}

func fromOpenAlex(w *metadata.OpenAlexWork) *Canonical {
	if w == nil {
		return nil
	}

	var authors []string
	for _, a := range w.Authorships {
		if a.Author.DisplayName != "" {
			authors = append(authors, a.Author.DisplayName)
		}
	}
	var categories []string
	for _, concept := range w.Concepts {
		if concept.DisplayName != "" {
			categories = append(categories, concept.DisplayName)
		}
	}
	var published string
	if w.PublicationYear > 0 {
		published = strconv.Itoa(w.PublicationYear)
	}

	return &Canonical{
		Title:         w.DisplayName,
		Authors:       authors,
		Description:   metadata.ReconstructAbstract(w.AbstractInvertedIndex),
		Categories:    categories,
		PublishedDate: published,
		ExternalID:    w.ID,
	}
}

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/shelfscout/shelfscout/internal/core"
)

type Book struct {
	ID            int64    `json:"id"`
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
	EditionVolume string   `json:"edition_volume,omitempty"`
	PublisherInfo string   `json:"publisher_info,omitempty"`
	BookNo        string   `json:"book_no,omitempty"`
}

// DocID is the stable vector identity for a book: ISBN-13 when present,
// then the source external id, then the database row id.
func (b *Book) DocID() string {
	if b.ISBN13 != "" {
		return b.ISBN13
	}
	if b.ExternalID != "" {
		return b.ExternalID
	}
	return fmt.Sprintf("row:%d", b.ID)
}

type Store struct {
	db DBExecutor
}

func NewStore(db DBExecutor) *Store {
	return &Store{db: db}
}

const bookColumns = `id, title, COALESCE(subtitle, ''), COALESCE(authors, ''),
	COALESCE(description, ''), COALESCE(isbn_13, ''), COALESCE(isbn_10, ''),
	COALESCE(categories, ''), COALESCE(page_count, 0), COALESCE(published_date, ''),
	COALESCE(thumbnail, ''), COALESCE(preview_link, ''), COALESCE(external_id, ''),
	COALESCE(edition_volume, ''), COALESCE(publisher_info, ''), COALESCE(book_no, '')`

func scanBook(row pgx.Row) (*Book, error) {
	var b Book
	var authors, categories string
	err := row.Scan(&b.ID, &b.Title, &b.Subtitle, &authors, &b.Description,
		&b.ISBN13, &b.ISBN10, &categories, &b.PageCount, &b.PublishedDate,
		&b.Thumbnail, &b.PreviewLink, &b.ExternalID, &b.EditionVolume,
		&b.PublisherInfo, &b.BookNo)
	if err != nil {
		return nil, err
	}
	b.Authors = splitList(authors)
	b.Categories = splitList(categories)
	return &b, nil
}

func collectBooks(rows pgx.Rows) ([]*Book, error) {
	defer rows.Close()
	var books []*Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ", ")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func joinList(parts []string) string {
	return strings.Join(parts, ", ")
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM books").Scan(&n); err != nil {
		return 0, fmt.Errorf("count books: %w", err)
	}
	return n, nil
}

func (s *Store) List(ctx context.Context, limit, offset int) ([]*Book, error) {
	rows, err := s.db.Query(ctx,
		"SELECT "+bookColumns+" FROM books ORDER BY id DESC LIMIT $1 OFFSET $2",
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return collectBooks(rows)
}

func (s *Store) GetByISBN(ctx context.Context, isbn string) (*Book, error) {
	row := s.db.QueryRow(ctx,
		"SELECT "+bookColumns+" FROM books WHERE isbn_13 = $1 OR isbn_10 = $1", isbn)
	b, err := scanBook(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get book by isbn: %w", err)
	}
	return b, nil
}

// KeywordSearch matches substrings of title and authors, or an exact ISBN-13.
func (s *Store) KeywordSearch(ctx context.Context, q string, limit int) ([]*Book, error) {
	pattern := "%" + q + "%"
	rows, err := s.db.Query(ctx,
		"SELECT "+bookColumns+` FROM books
		 WHERE title ILIKE $1 OR authors ILIKE $1 OR isbn_13 = $2
		 ORDER BY id DESC LIMIT $3`,
		pattern, q, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	return collectBooks(rows)
}

// FetchAfter returns up to limit books with id greater than afterID, in
// ascending id order. The indexer walks the table with it.
func (s *Store) FetchAfter(ctx context.Context, afterID int64, limit int) ([]*Book, error) {
	rows, err := s.db.Query(ctx,
		"SELECT "+bookColumns+" FROM books WHERE id > $1 ORDER BY id ASC LIMIT $2",
		afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch after id %d: %w", afterID, err)
	}
	return collectBooks(rows)
}

func (s *Store) FindByIDs(ctx context.Context, ids []int64) (map[int64]*Book, error) {
	if len(ids) == 0 {
		return map[int64]*Book{}, nil
	}
	rows, err := s.db.Query(ctx,
		"SELECT "+bookColumns+" FROM books WHERE id = ANY($1)", ids)
	if err != nil {
		return nil, fmt.Errorf("find books by ids: %w", err)
	}
	books, err := collectBooks(rows)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*Book, len(books))
	for _, b := range books {
		byID[b.ID] = b
	}
	return byID, nil
}

// Titles returns every title in the catalog, for seeding the autocomplete
// prefix index at startup.
func (s *Store) Titles(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, "SELECT title FROM books")
	if err != nil {
		return nil, fmt.Errorf("list titles: %w", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		titles = append(titles, t)
	}
	return titles, rows.Err()
}

// Watermark reports the highest book id already indexed into the named
// vector collection. Zero means nothing has been indexed yet.
func (s *Store) Watermark(ctx context.Context, collection string) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx,
		"SELECT last_book_id FROM index_watermarks WHERE collection = $1",
		collection).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read watermark: %w", err)
	}
	return id, nil
}

func (s *Store) SetWatermark(ctx context.Context, collection string, lastBookID int64) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO index_watermarks (collection, last_book_id, updated_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (collection) DO UPDATE SET last_book_id = $2, updated_at = NOW()`,
		collection, lastBookID)
	if err != nil {
		return fmt.Errorf("advance watermark: %w", err)
	}
	return nil
}

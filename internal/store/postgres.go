package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBExecutor is the subset of pgxpool.Pool the store needs. pgxmock
// satisfies it too, which keeps the loader testable without a database.
type DBExecutor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS books (
		id BIGSERIAL PRIMARY KEY,
		title TEXT NOT NULL,
		subtitle TEXT,
		authors TEXT,
		description TEXT,
		isbn_13 TEXT,
		isbn_10 TEXT,
		categories TEXT,
		page_count INT,
		published_date TEXT,
		thumbnail TEXT,
		preview_link TEXT,
		external_id TEXT,
		edition_volume TEXT,
		publisher_info TEXT,
		book_no TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	// Unique over non-null values only: identity-less rows may repeat.
	`CREATE UNIQUE INDEX IF NOT EXISTS books_isbn_13_key ON books (isbn_13) WHERE isbn_13 IS NOT NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS books_external_id_key ON books (external_id) WHERE external_id IS NOT NULL`,
	`CREATE TABLE IF NOT EXISTS index_watermarks (
		collection TEXT PRIMARY KEY,
		last_book_id BIGINT NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

func EnsureSchema(ctx context.Context, db DBExecutor) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema migration failed: %w", err)
		}
	}
	return nil
}

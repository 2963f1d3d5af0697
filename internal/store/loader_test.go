package store

import (
	"context"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mockDB, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(mockDB.Close)
	return mockDB
}

func expectIdentityPreload(mockDB pgxmock.PgxPoolIface, rows ...[]any) {
	mocked := pgxmock.NewRows([]string{"isbn_13", "external_id"})
	for _, r := range rows {
		mocked.AddRow(r...)
	}
	mockDB.ExpectQuery("FROM books").WillReturnRows(mocked)
}

// anyInsertArgs matches the 15 placeholders of insertBookSQL without
// constraining their values; pgxmock v3 rejects calls whose argument
// count differs from the expectation's.
func anyInsertArgs() []any {
	args := make([]any, 15)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

const (
	canonicalWithISBN = `{"title":"Clean Architecture","authors":["Robert C. Martin"],"isbn_13":"9780134494166","external_id":"g_ca"}` + "\n"
	canonicalNew      = `{"title":"The Go Programming Language","authors":["Donovan","Kernighan"],"isbn_13":"9780134190440","external_id":"g_gopl"}` + "\n"
)

func TestLoad_InsertsNewRecords(t *testing.T) {
	mockDB := newMockPool(t)
	expectIdentityPreload(mockDB)

	mockDB.ExpectBegin()
	mockDB.ExpectExec("INSERT INTO books").
		WithArgs(anyInsertArgs()...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mockDB.ExpectExec("INSERT INTO books").
		WithArgs(anyInsertArgs()...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mockDB.ExpectCommit()

	loader := NewLoader(mockDB, 100)
	stats, err := loader.Load(context.Background(), strings.NewReader(canonicalWithISBN+canonicalNew))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if stats.Inserted != 2 || stats.Scanned != 2 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if err := mockDB.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet DB expectations: %v", err)
	}
}

func TestLoad_SkipsKnownIdentities(t *testing.T) {
	mockDB := newMockPool(t)
	// One row known by ISBN, another known only by external id.
	expectIdentityPreload(mockDB,
		[]any{"9780134494166", ""},
		[]any{"", "g_gopl"},
	)

	mockDB.ExpectBegin()
	mockDB.ExpectExec("INSERT INTO books").
		WithArgs(anyInsertArgs()...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mockDB.ExpectCommit()

	input := canonicalWithISBN + canonicalNew +
		`{"title":"Fresh Title","isbn_13":"9789999999999"}` + "\n"

	loader := NewLoader(mockDB, 100)
	stats, err := loader.Load(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if stats.SkippedKnown != 2 {
		t.Errorf("Expected 2 known skips, got %d", stats.SkippedKnown)
	}
	if stats.Inserted != 1 {
		t.Errorf("Expected 1 insert, got %d", stats.Inserted)
	}
	if err := mockDB.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet DB expectations: %v", err)
	}
}

func TestLoad_IntraRunDuplicateSkipped(t *testing.T) {
	mockDB := newMockPool(t)
	expectIdentityPreload(mockDB)

	mockDB.ExpectBegin()
	mockDB.ExpectExec("INSERT INTO books").
		WithArgs(anyInsertArgs()...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mockDB.ExpectCommit()

	// Same ISBN twice in one file: only the first reaches the database.
	loader := NewLoader(mockDB, 100)
	stats, err := loader.Load(context.Background(), strings.NewReader(canonicalWithISBN+canonicalWithISBN))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if stats.Inserted != 1 || stats.SkippedKnown != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if err := mockDB.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet DB expectations: %v", err)
	}
}

func TestLoad_ConflictCountedAsSkip(t *testing.T) {
	mockDB := newMockPool(t)
	expectIdentityPreload(mockDB)

	mockDB.ExpectBegin()
	mockDB.ExpectExec("INSERT INTO books").
		WithArgs(anyInsertArgs()...).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mockDB.ExpectCommit()

	loader := NewLoader(mockDB, 100)
	stats, err := loader.Load(context.Background(), strings.NewReader(canonicalWithISBN))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if stats.Inserted != 0 || stats.SkippedConflict != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if err := mockDB.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet DB expectations: %v", err)
	}
}

func TestLoad_IdentityLessRecordsAlwaysInserted(t *testing.T) {
	mockDB := newMockPool(t)
	expectIdentityPreload(mockDB)

	mockDB.ExpectBegin()
	mockDB.ExpectExec("INSERT INTO books").
		WithArgs(anyInsertArgs()...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mockDB.ExpectExec("INSERT INTO books").
		WithArgs(anyInsertArgs()...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mockDB.ExpectCommit()

	input := `{"title":"Departmental Report 2019"}` + "\n" +
		`{"title":"Departmental Report 2020"}` + "\n"

	loader := NewLoader(mockDB, 100)
	stats, err := loader.Load(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if stats.Inserted != 2 || stats.SkippedKnown != 0 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if err := mockDB.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet DB expectations: %v", err)
	}
}

func TestLoad_BatchBoundary(t *testing.T) {
	mockDB := newMockPool(t)
	expectIdentityPreload(mockDB)

	// Batch size 2 with 3 records: two transactions.
	mockDB.ExpectBegin()
	mockDB.ExpectExec("INSERT INTO books").WithArgs(anyInsertArgs()...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mockDB.ExpectExec("INSERT INTO books").WithArgs(anyInsertArgs()...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mockDB.ExpectCommit()
	mockDB.ExpectBegin()
	mockDB.ExpectExec("INSERT INTO books").WithArgs(anyInsertArgs()...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mockDB.ExpectCommit()

	input := `{"title":"A"}` + "\n" + `{"title":"B"}` + "\n" + `{"title":"C"}` + "\n"

	loader := NewLoader(mockDB, 2)
	stats, err := loader.Load(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if stats.Inserted != 3 {
		t.Errorf("Expected 3 inserts, got %d", stats.Inserted)
	}
	if err := mockDB.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet DB expectations: %v", err)
	}
}

func TestLoad_MalformedLineSkipped(t *testing.T) {
	mockDB := newMockPool(t)
	expectIdentityPreload(mockDB)

	mockDB.ExpectBegin()
	mockDB.ExpectExec("INSERT INTO books").WithArgs(anyInsertArgs()...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mockDB.ExpectCommit()

	input := "{not json\n" + canonicalWithISBN

	loader := NewLoader(mockDB, 100)
	stats, err := loader.Load(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if stats.Malformed != 1 || stats.Inserted != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if err := mockDB.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet DB expectations: %v", err)
	}
}

func TestWatermark_DefaultsToZero(t *testing.T) {
	mockDB := newMockPool(t)
	mockDB.ExpectQuery("FROM index_watermarks").
		WithArgs("books").
		WillReturnError(pgx.ErrNoRows)

	s := NewStore(mockDB)
	id, err := s.Watermark(context.Background(), "books")
	if err != nil {
		t.Fatalf("Watermark failed: %v", err)
	}
	if id != 0 {
		t.Errorf("Expected watermark 0, got %d", id)
	}
}

func TestWatermark_Roundtrip(t *testing.T) {
	mockDB := newMockPool(t)
	mockDB.ExpectExec("INSERT INTO index_watermarks").
		WithArgs("books", int64(42)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mockDB.ExpectQuery("FROM index_watermarks").
		WithArgs("books").
		WillReturnRows(pgxmock.NewRows([]string{"last_book_id"}).AddRow(int64(42)))

	s := NewStore(mockDB)
	if err := s.SetWatermark(context.Background(), "books", 42); err != nil {
		t.Fatalf("SetWatermark failed: %v", err)
	}
	id, err := s.Watermark(context.Background(), "books")
	if err != nil {
		t.Fatalf("Watermark failed: %v", err)
	}
	if id != 42 {
		t.Errorf("Expected watermark 42, got %d", id)
	}
	if err := mockDB.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet DB expectations: %v", err)
	}
}

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shelfscout/shelfscout/internal/core"
	"github.com/shelfscout/shelfscout/internal/pipeline"
	"github.com/shelfscout/shelfscout/internal/search"
	"github.com/shelfscout/shelfscout/internal/store"
	"github.com/shelfscout/shelfscout/internal/vector"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockCatalog struct {
	books []*store.Book
}

func (m *mockCatalog) List(context.Context, int, int) ([]*store.Book, error) {
	return m.books, nil
}

func (m *mockCatalog) Count(context.Context) (int64, error) {
	return int64(len(m.books)), nil
}

func (m *mockCatalog) GetByISBN(_ context.Context, isbn string) (*store.Book, error) {
	for _, b := range m.books {
		if b.ISBN13 == isbn || b.ISBN10 == isbn {
			return b, nil
		}
	}
	return nil, core.ErrNotFound
}

type mockSearcher struct {
	keyword     []*store.Book
	semantic    []search.SemanticResult
	semanticErr error
}

func (m *mockSearcher) Keyword(context.Context, string, int) ([]*store.Book, error) {
	return m.keyword, nil
}

func (m *mockSearcher) Semantic(context.Context, string, int) ([]search.SemanticResult, error) {
	return m.semantic, m.semanticErr
}

func (m *mockSearcher) Suggest(context.Context, string, int) ([]string, error) {
	return []string{}, nil
}

type mockRunner struct {
	err   error
	calls int
}

func (m *mockRunner) Start(context.Context, pipeline.Options) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return "test-run", nil
}

func (m *mockRunner) Status() pipeline.RunStatus {
	return pipeline.RunStatus{Running: m.calls > 0, RunID: "test-run"}
}

type mockIndexer struct{ status vector.IndexerStatus }

func (m *mockIndexer) Status() vector.IndexerStatus { return m.status }

func testServer(t *testing.T) (*Server, *mockRunner) {
	t.Helper()
	runner := &mockRunner{}
	srv := &Server{
		Books: &mockCatalog{books: []*store.Book{
			{ID: 1, Title: "The Pragmatic Programmer", ISBN13: "9780135957059"},
			{ID: 2, Title: "Refactoring", ISBN13: "9780134757599"},
		}},
		Search: &mockSearcher{
			keyword: []*store.Book{{ID: 2, Title: "Refactoring"}},
			semantic: []search.SemanticResult{
				{Book: &store.Book{ID: 1, Title: "The Pragmatic Programmer"}, Distance: 0.3},
			},
		},
		Runner:  runner,
		Indexer: &mockIndexer{status: vector.StatusConverged},
	}
	return srv, runner
}

func doRequest(t *testing.T, srv *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func TestListBooks(t *testing.T) {
	srv, _ := testServer(t)
	w := doRequest(t, srv, http.MethodGet, "/books?limit=10")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var body struct {
		Total int           `json:"total"`
		Books []*store.Book `json:"books"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Total != 2 || len(body.Books) != 2 {
		t.Errorf("Unexpected body: %+v", body)
	}
}

func TestGetBook(t *testing.T) {
	srv, _ := testServer(t)

	w := doRequest(t, srv, http.MethodGet, "/books/9780135957059")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	w = doRequest(t, srv, http.MethodGet, "/books/0000000000000")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown isbn, got %d", w.Code)
	}
}

func TestKeywordSearch_RequiresQuery(t *testing.T) {
	srv, _ := testServer(t)

	if w := doRequest(t, srv, http.MethodGet, "/search"); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without q, got %d", w.Code)
	}
	if w := doRequest(t, srv, http.MethodGet, "/search?q=refactoring"); w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestSemanticSearch_IndexUnavailable(t *testing.T) {
	srv, _ := testServer(t)
	srv.Search = &mockSearcher{semanticErr: core.ErrIndexUnavailable}

	w := doRequest(t, srv, http.MethodGet, "/semantic?q=focus")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 when index unavailable, got %d", w.Code)
	}
}

func TestSemanticSearch_ReturnsDistances(t *testing.T) {
	srv, _ := testServer(t)
	w := doRequest(t, srv, http.MethodGet, "/semantic?q=pragmatic")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"distance":0.3`) {
		t.Errorf("Expected distance in body: %s", w.Body.String())
	}
}

func TestTriggerSync_BusyConflict(t *testing.T) {
	srv, runner := testServer(t)

	w := doRequest(t, srv, http.MethodPost, "/sync")
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"run_id":"test-run"`) {
		t.Errorf("Expected run id in body: %s", w.Body.String())
	}
	if runner.calls != 1 {
		t.Errorf("Expected 1 pipeline trigger, got %d", runner.calls)
	}

	runner.err = core.ErrPipelineBusy
	if w := doRequest(t, srv, http.MethodPost, "/sync"); w.Code != http.StatusConflict {
		t.Errorf("Expected 409 when busy, got %d", w.Code)
	}
}

// A trigger must come back before the stages complete: the run happens in
// the background on a context that survives the request.
func TestTriggerSync_ReturnsBeforeRunCompletes(t *testing.T) {
	inStage := make(chan struct{})
	block := make(chan struct{})
	o := pipeline.NewOrchestrator(pipeline.Stages{
		Sync: func(ctx context.Context) (int, error) {
			close(inStage)
			<-block
			return 1, nil
		},
	}, nil)

	srv, _ := testServer(t)
	srv.Runner = o

	w := doRequest(t, srv, http.MethodPost, "/sync")
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected 202 while the run is in flight, got %d", w.Code)
	}

	select {
	case <-inStage:
	case <-time.After(2 * time.Second):
		t.Fatal("Background run never reached the sync stage")
	}

	if w := doRequest(t, srv, http.MethodPost, "/sync"); w.Code != http.StatusConflict {
		t.Errorf("Expected 409 for an overlapping trigger, got %d", w.Code)
	}
	if st := o.Status(); !st.Running {
		t.Error("Expected status to report a running pipeline")
	}

	close(block)
	deadline := time.Now().Add(2 * time.Second)
	for o.Status().Running {
		if time.Now().After(deadline) {
			t.Fatal("Background run never finished")
		}
		time.Sleep(5 * time.Millisecond)
	}
	st := o.Status()
	if st.LastSummary == nil || st.LastSummary.Synced != 1 {
		t.Errorf("Expected last summary with synced=1, got %+v", st.LastSummary)
	}

	w = doRequest(t, srv, http.MethodGet, "/sync/status")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"running":false`) {
		t.Errorf("Unexpected status response %d: %s", w.Code, w.Body.String())
	}
}

func TestIndexStatus(t *testing.T) {
	srv, _ := testServer(t)
	w := doRequest(t, srv, http.MethodGet, "/index/status")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "converged") {
		t.Errorf("Unexpected status response %d: %s", w.Code, w.Body.String())
	}
}

func TestExportBibTeX(t *testing.T) {
	dir := t.TempDir()
	register := filepath.Join(dir, "register.csv")
	csv := "Acc. No.,Title,Author/Editor,Ed./Vol.,Place & Publisher,Class No./Book No.\n" +
		"A100,Structure and Interpretation,Abelson,2nd ed.,\"Cambridge, MIT Press\",004 ABE\n"
	if err := os.WriteFile(register, []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}

	srv, _ := testServer(t)
	srv.RegisterPath = register

	w := doRequest(t, srv, http.MethodGet, "/export/bibtex")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "@book{A100,") || !strings.Contains(body, "title = {Structure and Interpretation}") {
		t.Errorf("Unexpected BibTeX body:\n%s", body)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := testServer(t)
	w := doRequest(t, srv, http.MethodOptions, "/books")
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 for preflight, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Missing CORS header")
	}
}

func TestAutocomplete_EmptySuggestions(t *testing.T) {
	srv, _ := testServer(t)
	w := doRequest(t, srv, http.MethodGet, "/autocomplete?q=re")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 with nil history, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"suggestions":[]`) {
		t.Errorf("Expected empty suggestions, got %s", w.Body.String())
	}
}

package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/shelfscout/shelfscout/internal/catalog"
	"github.com/shelfscout/shelfscout/internal/core"
	"github.com/shelfscout/shelfscout/internal/pipeline"
	"github.com/shelfscout/shelfscout/internal/search"
	"github.com/shelfscout/shelfscout/internal/store"
	"github.com/shelfscout/shelfscout/internal/vector"
)

type BookCatalog interface {
	List(ctx context.Context, limit, offset int) ([]*store.Book, error)
	Count(ctx context.Context) (int64, error)
	GetByISBN(ctx context.Context, isbn string) (*store.Book, error)
}

type Searcher interface {
	Keyword(ctx context.Context, query string, limit int) ([]*store.Book, error)
	Semantic(ctx context.Context, query string, limit int) ([]search.SemanticResult, error)
	Suggest(ctx context.Context, prefix string, limit int) ([]string, error)
}

type Runner interface {
	Start(ctx context.Context, opts pipeline.Options) (string, error)
	Status() pipeline.RunStatus
}

type IndexStatus interface {
	Status() vector.IndexerStatus
}

type Server struct {
	Books        BookCatalog
	Search       Searcher
	History      *search.History
	Runner       Runner
	Indexer      IndexStatus
	RegisterPath string
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), CORSMiddleware())

	r.GET("/health", s.health)
	r.GET("/books", s.listBooks)
	r.GET("/books/:isbn", s.getBook)
	r.GET("/search", s.keywordSearch)
	r.GET("/semantic", s.semanticSearch)
	r.GET("/autocomplete", s.autocomplete)
	r.GET("/recent", s.recentSearches)
	r.GET("/export/bibtex", s.exportBibTeX)
	r.GET("/index/status", s.indexStatus)
	r.POST("/sync", s.triggerSync)
	r.GET("/sync/status", s.syncStatus)

	return r
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listBooks(c *gin.Context) {
	limit := intQuery(c, "limit", 20)
	offset := intQuery(c, "offset", 0)
	if limit > 100 {
		limit = 100
	}

	total, err := s.Books.Count(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "catalog unavailable"})
		return
	}
	books, err := s.Books.List(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "catalog unavailable"})
		return
	}
	if books == nil {
		books = []*store.Book{}
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "books": books})
}

func (s *Server) getBook(c *gin.Context) {
	book, err := s.Books.GetByISBN(c.Request.Context(), c.Param("isbn"))
	if errors.Is(err, core.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "book not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "catalog unavailable"})
		return
	}
	c.JSON(http.StatusOK, book)
}

func (s *Server) keywordSearch(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
		return
	}
	books, err := s.Search.Keyword(c.Request.Context(), q, intQuery(c, "limit", 50))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"query": q, "results": books})
}

func (s *Server) semanticSearch(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
		return
	}
	results, err := s.Search.Semantic(c.Request.Context(), q, intQuery(c, "limit", 10))
	if errors.Is(err, core.ErrIndexUnavailable) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "semantic index not ready"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"query": q, "results": results})
}

func (s *Server) autocomplete(c *gin.Context) {
	prefix := c.Query("q")
	if prefix == "" {
		prefix = c.Query("prefix")
	}
	suggestions, err := s.Search.Suggest(c.Request.Context(), prefix, intQuery(c, "limit", 10))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "autocomplete failed"})
		return
	}
	if suggestions == nil {
		suggestions = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}

func (s *Server) recentSearches(c *gin.Context) {
	recent, err := s.History.Recent(c.Request.Context(), intQuery(c, "limit", 10))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history failed"})
		return
	}
	if recent == nil {
		recent = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"recent": recent})
}

func (s *Server) exportBibTeX(c *gin.Context) {
	rows, err := catalog.ReadRegister(s.RegisterPath)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "register unavailable"})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="register.bib"`)
	c.Data(http.StatusOK, "application/x-bibtex", catalog.WriteBibTeX(rows))
}

func (s *Server) indexStatus(c *gin.Context) {
	status := vector.StatusIdle
	if s.Indexer != nil {
		status = s.Indexer.Status()
	}
	c.JSON(http.StatusOK, gin.H{"status": status.String()})
}

// triggerSync kicks off a background ingestion run and returns its id right
// away; a full run scrapes and enriches the whole register, far longer than
// any client timeout. The run outlives the request, so it gets a context
// detached from the request's cancellation. Overlapping triggers are
// rejected, never queued.
func (s *Server) triggerSync(c *gin.Context) {
	var opts pipeline.Options
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&opts); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}

	runID, err := s.Runner.Start(context.WithoutCancel(c.Request.Context()), opts)
	if errors.Is(err, core.ErrPipelineBusy) {
		c.JSON(http.StatusConflict, gin.H{"error": "a pipeline run is already in progress"})
		return
	}
	if err != nil {
		log.Printf("[API] Pipeline trigger failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run_id": runID, "status": "started"})
}

func (s *Server) syncStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.Runner.Status())
}

func intQuery(c *gin.Context, name string, fallback int) int {
	v := c.Query(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/trial-match-server/internal/domain"
	"github.com/trial-match-server/internal/middleware"
	"github.com/trial-match-server/internal/search"
	"github.com/trial-match-server/pkg/external"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// TrialMatcher runs the full matching pipeline for one request
type TrialMatcher interface {
	Match(ctx context.Context, req *domain.MatchRequest) (*domain.MatchResponse, error)
}

// TrialFetcher retrieves a single trial record by NCT id
type TrialFetcher interface {
	GetByNCTID(ctx context.Context, nctID string) (*domain.Trial, error)
}

// TrialSearcher queries the in-memory trial index
type TrialSearcher interface {
	Search(query search.Query) (*search.Results, error)
	Size() int
}

// Server represents the HTTP server
type Server struct {
	config   *domain.Config
	matcher  TrialMatcher
	fetcher  TrialFetcher
	searcher TrialSearcher
	logger   *logrus.Logger
	router   *gin.Engine
	server   *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(config *domain.Config, matcher TrialMatcher, fetcher TrialFetcher, searcher TrialSearcher, logger *logrus.Logger) *Server {
	if config.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.AuditLogger())
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(corsMiddleware())
	router.Use(middleware.CorrelationID())

	server := &Server{
		config:   config,
		matcher:  matcher,
		fetcher:  fetcher,
		searcher: searcher,
		logger:   logger,
		router:   router,
	}

	server.setupRoutes()
	return server
}

// Router exposes the gin engine, used by tests
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start starts the HTTP server and blocks until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	cfg := s.config.Server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	s.logger.WithField("addr", addr).Info("HTTP server started")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/match", s.handleMatch)
		v1.GET("/trials/:nctId", s.handleGetTrial)
		v1.POST("/trials/search", s.handleTrialSearch)
	}
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	indexed := 0
	if s.searcher != nil {
		indexed = s.searcher.Size()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"timestamp":      domain.UTCTimestamp(time.Now()),
		"version":        Version,
		"indexed_trials": indexed,
	})
}

// handleMatch runs the matching pipeline for a patient
func (s *Server) handleMatch(c *gin.Context) {
	var req domain.MatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid patient data: " + err.Error(),
		})
		return
	}

	response, err := s.matcher.Match(c.Request.Context(), &req)
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid patient data: " + verr.Message,
				"field": verr.Field,
			})
			return
		}
		s.logger.WithFields(logrus.Fields{
			"correlation_id": c.GetString("correlation_id"),
			"error":          err.Error(),
		}).Error("Match pipeline failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Internal server error",
		})
		return
	}

	c.JSON(http.StatusOK, response)
}

// handleGetTrial returns one trial record from the registry
func (s *Server) handleGetTrial(c *gin.Context) {
	nctID := c.Param("nctId")
	if err := domain.ValidateNCTID(nctID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid NCT ID: must match NCT followed by 8 digits",
		})
		return
	}

	trial, err := s.fetcher.GetByNCTID(c.Request.Context(), nctID)
	if err != nil {
		if errors.Is(err, external.ErrTrialNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Trial not found: " + nctID,
			})
			return
		}
		s.logger.WithFields(logrus.Fields{
			"correlation_id": c.GetString("correlation_id"),
			"nct_id":         nctID,
			"error":          err.Error(),
		}).Error("Registry lookup failed")
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "Trial registry unavailable",
		})
		return
	}

	c.JSON(http.StatusOK, trial)
}

// trialSearchRequest is the inbound body for index searches
type trialSearchRequest struct {
	Query      string   `json:"query"`
	Conditions []string `json:"conditions,omitempty"`
	Keywords   []string `json:"keywords,omitempty"`
	Mode       string   `json:"mode,omitempty"`
	Statuses   []string `json:"statuses,omitempty"`
	Limit      int      `json:"limit,omitempty"`
	Offset     int      `json:"offset,omitempty"`
}

// handleTrialSearch queries the in-memory index directly
func (s *Server) handleTrialSearch(c *gin.Context) {
	var req trialSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid search request: " + err.Error(),
		})
		return
	}
	if req.Query == "" && len(req.Conditions) == 0 && len(req.Keywords) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid search request: query, conditions, or keywords required",
		})
		return
	}

	query := search.Query{
		Text:       req.Query,
		Conditions: req.Conditions,
		Keywords:   req.Keywords,
		Mode:       search.Mode(req.Mode),
		Limit:      req.Limit,
		Offset:     req.Offset,
	}
	for _, status := range req.Statuses {
		query.Statuses = append(query.Statuses, domain.TrialStatus(status))
	}

	results, err := s.searcher.Search(query)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid search request: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"results":   searchResultPayload(results),
		"total":     results.TotalCount,
		"mode":      string(results.Mode),
		"timestamp": domain.UTCTimestamp(time.Now()),
	})
}

// searchResultEntry is the presentation form of one index hit
type searchResultEntry struct {
	NCTID           string   `json:"nct_id"`
	Title           string   `json:"title"`
	BriefSummary    string   `json:"brief_summary,omitempty"`
	Conditions      []string `json:"conditions,omitempty"`
	RelevanceScore  float64  `json:"relevance_score"`
	SimilarityScore float64  `json:"similarity_score"`
	KeywordScore    float64  `json:"keyword_score"`
	MatchedKeywords []string `json:"matched_keywords,omitempty"`
	Status          string   `json:"status,omitempty"`
	Phase           string   `json:"phase,omitempty"`
}

func searchResultPayload(results *search.Results) []searchResultEntry {
	entries := make([]searchResultEntry, len(results.Results))
	for i, r := range results.Results {
		entries[i] = searchResultEntry{
			NCTID:           r.NCTID,
			Title:           r.Title,
			BriefSummary:    r.BriefSummary,
			Conditions:      r.Conditions,
			RelevanceScore:  r.RelevanceScore,
			SimilarityScore: r.SimilarityScore,
			KeywordScore:    r.KeywordScore,
			MatchedKeywords: r.MatchedKeywords,
			Status:          string(r.Trial.Status),
			Phase:           string(r.Trial.Phase),
		}
	}
	return entries
}

// corsMiddleware adds CORS headers to responses
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, X-API-Key")
		c.Header("Access-Control-Expose-Headers", "Content-Length")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

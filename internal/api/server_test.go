package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trial-match-server/internal/domain"
	"github.com/trial-match-server/internal/search"
	"github.com/trial-match-server/pkg/external"
)

type stubMatcher struct {
	response *domain.MatchResponse
	err      error
}

func (s *stubMatcher) Match(ctx context.Context, req *domain.MatchRequest) (*domain.MatchResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.response, nil
}

type stubFetcher struct {
	trial *domain.Trial
	err   error
}

func (s *stubFetcher) GetByNCTID(ctx context.Context, nctID string) (*domain.Trial, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.trial, nil
}

func testServer(t *testing.T, matcher TrialMatcher, fetcher TrialFetcher, searcher TrialSearcher) *Server {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	config := &domain.Config{Logging: domain.LoggingConfig{Level: "info"}}
	return NewServer(config, matcher, fetcher, searcher, logger)
}

func seededSearcher(t *testing.T) *search.Engine {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	engine := search.NewEngine(search.DefaultDimension, 0, logger)
	require.NoError(t, engine.Index(domain.Trial{
		NCTID:        "NCT00000001",
		Title:        "Metformin for Type 2 Diabetes",
		BriefSummary: "Treatment study of metformin in type 2 diabetes",
		Status:       domain.StatusRecruiting,
		Conditions:   []string{"Type 2 Diabetes"},
	}))
	return engine
}

func doRequest(server *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	server.Router().ServeHTTP(recorder, req)
	return recorder
}

func TestHealthEndpoint(t *testing.T) {
	server := testServer(t, &stubMatcher{}, &stubFetcher{}, seededSearcher(t))

	recorder := doRequest(server, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, Version, body["version"])
	assert.Equal(t, float64(1), body["indexed_trials"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestMatchEndpointSuccess(t *testing.T) {
	matcher := &stubMatcher{response: &domain.MatchResponse{
		RequestID: "req-1",
		Matches:   []domain.MatchPayload{{NCTID: "NCT00000001", MatchScore: 85}},
		Total:     1,
	}}
	server := testServer(t, matcher, &stubFetcher{}, seededSearcher(t))

	recorder := doRequest(server, http.MethodPost, "/api/v1/match", map[string]interface{}{
		"patient_data": map[string]interface{}{
			"medical_query": "52 year old woman with breast cancer",
		},
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	var body domain.MatchResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Total)
	assert.Equal(t, "NCT00000001", body.Matches[0].NCTID)
}

func TestMatchEndpointValidationError(t *testing.T) {
	matcher := &stubMatcher{err: domain.NewValidationError("patient_data",
		"at least one of medical_query, clinical_notes, medical_history, demographics, or current_medications is required", nil)}
	server := testServer(t, matcher, &stubFetcher{}, seededSearcher(t))

	recorder := doRequest(server, http.MethodPost, "/api/v1/match", map[string]interface{}{
		"patient_data": map[string]interface{}{},
	})
	require.Equal(t, http.StatusBadRequest, recorder.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "Invalid patient data:")
}

func TestMatchEndpointMalformedJSON(t *testing.T) {
	server := testServer(t, &stubMatcher{}, &stubFetcher{}, seededSearcher(t))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/match", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	server.Router().ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestGetTrialEndpoint(t *testing.T) {
	trial := &domain.Trial{NCTID: "NCT01234567", Title: "Sample Study"}
	server := testServer(t, &stubMatcher{}, &stubFetcher{trial: trial}, seededSearcher(t))

	recorder := doRequest(server, http.MethodGet, "/api/v1/trials/NCT01234567", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var body domain.Trial
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, "NCT01234567", body.NCTID)
}

func TestGetTrialEndpointInvalidID(t *testing.T) {
	fetcher := &stubFetcher{}
	server := testServer(t, &stubMatcher{}, fetcher, seededSearcher(t))

	recorder := doRequest(server, http.MethodGet, "/api/v1/trials/NCT123", nil)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestGetTrialEndpointNotFound(t *testing.T) {
	fetcher := &stubFetcher{err: external.ErrTrialNotFound}
	server := testServer(t, &stubMatcher{}, fetcher, seededSearcher(t))

	recorder := doRequest(server, http.MethodGet, "/api/v1/trials/NCT99999999", nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestTrialSearchEndpoint(t *testing.T) {
	server := testServer(t, &stubMatcher{}, &stubFetcher{}, seededSearcher(t))

	recorder := doRequest(server, http.MethodPost, "/api/v1/trials/search", map[string]interface{}{
		"query": "type 2 diabetes",
		"mode":  "lexical",
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	var body struct {
		Results []searchResultEntry `json:"results"`
		Total   int                 `json:"total"`
		Mode    string              `json:"mode"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	require.NotEmpty(t, body.Results)
	assert.Equal(t, "NCT00000001", body.Results[0].NCTID)
	assert.Equal(t, "lexical", body.Mode)
}

func TestTrialSearchEndpointRequiresQuery(t *testing.T) {
	server := testServer(t, &stubMatcher{}, &stubFetcher{}, seededSearcher(t))

	recorder := doRequest(server, http.MethodPost, "/api/v1/trials/search", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestTrialSearchEndpointUnknownMode(t *testing.T) {
	server := testServer(t, &stubMatcher{}, &stubFetcher{}, seededSearcher(t))

	recorder := doRequest(server, http.MethodPost, "/api/v1/trials/search", map[string]interface{}{
		"query": "diabetes",
		"mode":  "fuzzy",
	})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestSecurityAndCorrelationHeaders(t *testing.T) {
	server := testServer(t, &stubMatcher{}, &stubFetcher{}, seededSearcher(t))

	recorder := doRequest(server, http.MethodGet, "/health", nil)
	assert.Equal(t, "nosniff", recorder.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", recorder.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, recorder.Header().Get("X-Correlation-ID"))
}

func TestCORSPreflight(t *testing.T) {
	server := testServer(t, &stubMatcher{}, &stubFetcher{}, seededSearcher(t))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/match", nil)
	recorder := httptest.NewRecorder()
	server.Router().ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusNoContent, recorder.Code)
	assert.Equal(t, "*", recorder.Header().Get("Access-Control-Allow-Origin"))
}

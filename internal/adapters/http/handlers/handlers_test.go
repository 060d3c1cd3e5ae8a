package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keenbingwood-bot/redflag2601/internal/core/domain"
)

type stubAnalyzer struct {
	result domain.ScanResult
	err    error
	scans  map[string]domain.Scan
	got    domain.AnalyzeInput
}

func (s *stubAnalyzer) Analyze(_ context.Context, in domain.AnalyzeInput) (domain.ScanResult, error) {
	s.got = in
	return s.result, s.err
}

func (s *stubAnalyzer) Find(_ context.Context, id string) (domain.Scan, error) {
	scan, ok := s.scans[id]
	if !ok {
		return domain.Scan{}, domain.ErrScanNotFound
	}
	return scan, nil
}

func newTestRouter(analyzer Analyzer) http.Handler {
	h := NewAnalyzeHandler(analyzer)
	r := chi.NewRouter()
	r.Get("/api/test", TestHandler)
	r.Post("/api/test", TestHandler)
	r.Post("/api/analyze", h.Analyze)
	r.Get("/api/scans/{id}", h.GetScan)
	r.Get("/healthz", Healthz)
	return r
}

func TestTestHandler(t *testing.T) {
	router := newTestRouter(&stubAnalyzer{})

	for method, message := range map[string]string{
		http.MethodGet:  "Rate limit test endpoint",
		http.MethodPost: "POST request received",
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(method, "/api/test", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var body testResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, message, body.Message)
		assert.Equal(t, "success", body.Data.Status)
		assert.Len(t, body.Data.RequestID, 8)
		assert.True(t, strings.HasSuffix(body.Timestamp, "Z"))
	}
}

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(&stubAnalyzer{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAnalyzeHandler_Success(t *testing.T) {
	analyzer := &stubAnalyzer{result: domain.ScanResult{
		Scan:          domain.Scan{ID: "mock-1", RiskScore: 64, Flags: []domain.ScanFlag{}},
		DatabaseSaved: false,
	}}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(`{"input":"some job description","type":"text"}`))
	newTestRouter(analyzer).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.InputTypeText, analyzer.got.Type)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, false, body["databaseSaved"])
	assert.Equal(t, analyzeSuccessMessage, body["message"])
	data, ok := body["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "mock-1", data["id"])
	assert.EqualValues(t, 64, data["riskScore"])
}

func TestAnalyzeHandler_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "invalid input", err: domain.ErrInvalidInput, status: http.StatusBadRequest},
		{name: "protected url", err: domain.ErrProtectedURL, status: http.StatusUnprocessableEntity},
		{name: "fetch failed", err: domain.ErrFetchFailed, status: http.StatusBadGateway},
		{name: "unknown", err: errors.New("boom"), status: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(`{"input":"x","type":"url"}`))
			newTestRouter(&stubAnalyzer{err: tc.err}).ServeHTTP(rec, req)

			assert.Equal(t, tc.status, rec.Code)
			var body analyzeResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.False(t, body.Success)
			assert.NotEmpty(t, body.Error)
			assert.Equal(t, analyzeFailedMessage, body.Message)
		})
	}
}

func TestAnalyzeHandler_ProtectedURLCode(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(`{"input":"https://linkedin.com/jobs/1","type":"url"}`))
	newTestRouter(&stubAnalyzer{err: domain.ErrProtectedURL}).ServeHTTP(rec, req)

	var body analyzeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "PROTECTED_URL", body.Error)
}

func TestAnalyzeHandler_MalformedBody(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(`{not json`))
	newTestRouter(&stubAnalyzer{}).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeHandler_GetScan(t *testing.T) {
	analyzer := &stubAnalyzer{scans: map[string]domain.Scan{"abc": {ID: "abc", Summary: "stored"}}}
	router := newTestRouter(analyzer)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/scans/abc", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var scan domain.Scan
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &scan))
	assert.Equal(t, "stored", scan.Summary)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/scans/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/keenbingwood-bot/redflag2601/internal/core/domain"
)

const (
	analyzeFailedMessage  = "Failed to analyze job description"
	analyzeSuccessMessage = "Job description analyzed successfully"
	maxAnalyzeBodyBytes   = 64 << 10
)

// Analyzer é a parte do serviço de análise usada pelos handlers.
type Analyzer interface {
	Analyze(ctx context.Context, in domain.AnalyzeInput) (domain.ScanResult, error)
	Find(ctx context.Context, id string) (domain.Scan, error)
}

type analyzeResponse struct {
	Success       bool         `json:"success"`
	Data          *domain.Scan `json:"data,omitempty"`
	Message       string       `json:"message"`
	Error         string       `json:"error,omitempty"`
	DatabaseSaved *bool        `json:"databaseSaved,omitempty"`
}

type AnalyzeHandler struct {
	analyzer Analyzer
}

func NewAnalyzeHandler(analyzer Analyzer) *AnalyzeHandler {
	return &AnalyzeHandler{analyzer: analyzer}
}

func (h *AnalyzeHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var in domain.AnalyzeInput
	dec := json.NewDecoder(io.LimitReader(r.Body, maxAnalyzeBodyBytes))
	if err := dec.Decode(&in); err != nil {
		writeAnalyzeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.analyzer.Analyze(r.Context(), in)
	if err != nil {
		log.WithError(err).Error("error analyzing job description")
		switch {
		case errors.Is(err, domain.ErrInvalidInput):
			writeAnalyzeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrProtectedURL):
			writeAnalyzeError(w, http.StatusUnprocessableEntity, domain.ErrProtectedURL.Error())
		case errors.Is(err, domain.ErrFetchFailed):
			writeAnalyzeError(w, http.StatusBadGateway, "Failed to fetch content from URL. Please try pasting the text directly.")
		default:
			writeAnalyzeError(w, http.StatusInternalServerError, "Unknown error occurred")
		}
		return
	}

	saved := result.DatabaseSaved
	writeJSON(w, http.StatusOK, analyzeResponse{
		Success:       true,
		Data:          &result.Scan,
		Message:       analyzeSuccessMessage,
		DatabaseSaved: &saved,
	})
}

func (h *AnalyzeHandler) GetScan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	scan, err := h.analyzer.Find(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrScanNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "scan not found"})
			return
		}
		log.WithError(err).WithField("scan_id", id).Error("failed to load scan")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": http.StatusText(http.StatusInternalServerError)})
		return
	}
	writeJSON(w, http.StatusOK, scan)
}

func writeAnalyzeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, analyzeResponse{
		Success: false,
		Error:   msg,
		Message: analyzeFailedMessage,
	})
}

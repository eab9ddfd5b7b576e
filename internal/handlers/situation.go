package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/benvon/situation-monitor/internal/apperr"
	"github.com/benvon/situation-monitor/internal/services/situation"
	"github.com/benvon/situation-monitor/internal/validation"
)

// SituationAnalyzer is the analysis operation exposed over HTTP.
type SituationAnalyzer interface {
	Analyze(ctx context.Context, handle string) (*situation.Result, error)
}

var _ SituationAnalyzer = (*situation.Analyzer)(nil)

// SituationRequest is the body of POST /api/v1/situation-meme. An empty handle
// passes validation so the analyzer can answer with its own message.
type SituationRequest struct {
	Handle string `json:"handle" validate:"omitempty,social_handle"`
}

// SituationHandler serves the situation analysis endpoint.
type SituationHandler struct {
	analyzer SituationAnalyzer
	logger   *zap.Logger
}

// NewSituationHandler creates a new situation handler
func NewSituationHandler(analyzer SituationAnalyzer, logger *zap.Logger) *SituationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SituationHandler{analyzer: analyzer, logger: logger}
}

// RegisterRoutes registers situation routes on the /api/v1 router
func (h *SituationHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/situation-meme", h.GenerateSituationMeme).Methods("POST")
}

// GenerateSituationMeme analyzes the posted handle
func (h *SituationHandler) GenerateSituationMeme(w http.ResponseWriter, r *http.Request) {
	var req SituationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Handle = blankToEmpty(req.Handle)
	if err := validation.Validate.Struct(req); err != nil {
		respondJSONError(w, http.StatusBadRequest, string(apperr.KindBadRequest), validation.FirstError(err))
		return
	}

	result, err := h.analyzer.Analyze(r.Context(), req.Handle)
	if err != nil {
		respondAppError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// blankToEmpty maps a handle with nothing but whitespace or control characters
// to "", so it skips the format check and gets the analyzer's required message.
// Any other handle is kept as typed; the response echoes it.
func blankToEmpty(handle string) string {
	if validation.SanitizeText(handle) == "" {
		return ""
	}
	return handle
}

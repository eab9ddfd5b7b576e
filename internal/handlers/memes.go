package handlers

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/benvon/situation-monitor/internal/apperr"
	"github.com/benvon/situation-monitor/internal/composer"
	"github.com/benvon/situation-monitor/internal/render"
	"github.com/benvon/situation-monitor/internal/validation"
)

// ExportFilename is the download name of exported memes.
const ExportFilename = "situation-meme.png"

const pngUnavailableMessage = "PNG export is not available on this server."

// HistoryFactory returns the remix history of one client.
type HistoryFactory func(clientID string) composer.HistoryStore

// MemeRequest is the body of POST /api/v1/memes.
type MemeRequest struct {
	Handle   string `json:"handle" validate:"omitempty,social_handle"`
	ClientID string `json:"clientId" validate:"required,client_id"`
}

// MemeHandler composes memes server-side for clients that cannot keep local history.
type MemeHandler struct {
	analyzer  SituationAnalyzer
	histories HistoryFactory
	renderer  *render.Renderer
	logger    *zap.Logger
}

// NewMemeHandler creates a new meme handler. A nil renderer disables ?format=png.
func NewMemeHandler(analyzer SituationAnalyzer, histories HistoryFactory, renderer *render.Renderer, logger *zap.Logger) *MemeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemeHandler{analyzer: analyzer, histories: histories, renderer: renderer, logger: logger}
}

// RegisterRoutes registers meme routes on the /api/v1 router
func (h *MemeHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/memes", h.CreateMeme).Methods("POST")
}

// CreateMeme analyzes the handle, picks the client's next template and returns
// the meme as JSON, or as the exported PNG with ?format=png.
func (h *MemeHandler) CreateMeme(w http.ResponseWriter, r *http.Request) {
	var req MemeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Handle = blankToEmpty(req.Handle)
	if err := validation.Validate.Struct(req); err != nil {
		respondJSONError(w, http.StatusBadRequest, string(apperr.KindBadRequest), validation.FirstError(err))
		return
	}
	format := r.URL.Query().Get("format")
	if format != "" && format != "json" && format != "png" {
		respondJSONError(w, http.StatusBadRequest, string(apperr.KindBadRequest), "format must be json or png")
		return
	}
	if format == "png" && h.renderer == nil {
		respondJSONError(w, http.StatusBadRequest, string(apperr.KindBadRequest), pngUnavailableMessage)
		return
	}

	ctx := r.Context()
	result, err := h.analyzer.Analyze(ctx, req.Handle)
	if err != nil {
		respondAppError(w, r, h.logger, err)
		return
	}

	// the template choice is only recorded once the PNG has rendered
	var buf bytes.Buffer
	c := composer.New(h.histories(req.ClientID))
	meme, err := c.NextThen(ctx, composer.Analysis{
		Situation:       result.Situation,
		ProfileImageURL: result.ProfileImageURL,
		Handle:          result.Handle,
	}, func(m *composer.Meme) error {
		if format != "png" {
			return nil
		}
		return h.renderer.ExportPNG(ctx, &buf, m)
	})
	if err != nil {
		respondAppError(w, r, h.logger, err)
		return
	}

	if format != "png" {
		respondJSON(w, http.StatusOK, meme)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", `attachment; filename="`+ExportFilename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

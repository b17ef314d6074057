package match

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/weakest-rival/internal/auth"
	"github.com/gokatarajesh/weakest-rival/internal/logging"
	httperrors "github.com/gokatarajesh/weakest-rival/pkg/http/errors"
)

// HTTPHandlers provides REST endpoints for match operations.
type HTTPHandlers struct {
	engine *Engine
	logger zerolog.Logger
}

// NewHTTPHandlers creates HTTP handlers for match endpoints.
func NewHTTPHandlers(engine *Engine, logger zerolog.Logger) *HTTPHandlers {
	return &HTTPHandlers{
		engine: engine,
		logger: logging.Component(logger, "match_http"),
	}
}

type createMatchRequest struct {
	MatchID    string `json:"match_id,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
	Locale     string `json:"locale,omitempty"`
}

type createMatchResponse struct {
	MatchID string `json:"match_id"`
	Created bool   `json:"created"`
}

// CreateMatch handles POST /v1/matches. The caller becomes the host and
// joins over the WebSocket afterwards.
func (h *HTTPHandlers) CreateMatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httperrors.RespondError(w, http.StatusMethodNotAllowed, httperrors.ErrCodeInvalidRequest, "Method not allowed")
		return
	}
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeAuthenticationRequired, "Authentication required")
		return
	}

	var req createMatchRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid JSON payload")
			return
		}
	}

	create := CreateRequest{Difficulty: req.Difficulty, Locale: req.Locale}
	if req.MatchID != "" {
		id, err := uuid.Parse(req.MatchID)
		if err != nil {
			httperrors.RespondValidationError(w, httperrors.ErrCodeInvalidMatchID, "match_id must be a UUID", "match_id")
			return
		}
		create.MatchID = id
	}

	id, created, err := h.engine.CreateMatch(r.Context(), Participant{UserID: p.UserID, DisplayName: p.DisplayName}, create)
	if err != nil {
		h.respondEngineError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	h.respondJSON(w, status, createMatchResponse{MatchID: id.String(), Created: created})
}

// Match handles GET /v1/matches/{id} and POST /v1/matches/{id}/reset.
func (h *HTTPHandlers) Match(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeAuthenticationRequired, "Authentication required")
		return
	}

	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/matches/"), "/")
	rawID, action, _ := strings.Cut(rest, "/")
	id, err := uuid.Parse(rawID)
	if err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidMatchID, "Invalid match ID")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		view, err := h.engine.Snapshot(r.Context(), id, p.UserID)
		if err != nil {
			h.respondEngineError(w, err)
			return
		}
		h.respondJSON(w, http.StatusOK, view)
	case action == "reset" && r.Method == http.MethodPost:
		if err := h.engine.ResetBy(r.Context(), id, p.UserID); err != nil {
			h.respondEngineError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case action == "" || action == "reset":
		httperrors.RespondError(w, http.StatusMethodNotAllowed, httperrors.ErrCodeInvalidRequest, "Method not allowed")
	default:
		httperrors.RespondNotFound(w, httperrors.ErrCodeNotFound, "Not found")
	}
}

func (h *HTTPHandlers) respondEngineError(w http.ResponseWriter, err error) {
	code, message := PublicError(err)
	switch {
	case errors.Is(err, ErrMatchNotFound):
		httperrors.RespondNotFound(w, code, message)
	case errors.Is(err, ErrNotHost), errors.Is(err, ErrNotInMatch):
		httperrors.RespondForbidden(w, code, message)
	case IsPrecondition(err):
		httperrors.RespondError(w, http.StatusConflict, code, message)
	default:
		h.logger.Error().Err(err).Msg("match request failed")
		httperrors.RespondInternalError(w, message)
	}
}

func (h *HTTPHandlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn().Err(err).Msg("encode response failed")
	}
}

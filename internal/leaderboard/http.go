package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/weakest-rival/internal/db/repository"
	httperrors "github.com/gokatarajesh/weakest-rival/pkg/http/errors"
	ws "github.com/gokatarajesh/weakest-rival/pkg/http/ws"
)

// HTTPHandler exposes REST endpoints for leaderboard queries.
type HTTPHandler struct {
	svc    topReader
	store  SnapshotStore
	logger zerolog.Logger
	now    func() time.Time
}

// NewHTTPHandler constructs a leaderboard HTTP handler.
func NewHTTPHandler(svc topReader, store SnapshotStore, logger zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		svc:    svc,
		store:  store,
		logger: logger.With().Str("component", "leaderboard_http").Logger(),
		now:    time.Now,
	}
}

// HandleGet responds with the current leaderboard for a given window.
// Route: GET /v1/leaderboards/{window}?limit=10
func (h *HTTPHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httperrors.RespondError(w, http.StatusMethodNotAllowed, httperrors.ErrCodeInvalidRequest, "method not allowed")
		return
	}

	window := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/leaderboards/"), "/")
	if window == "" || !IsValidWindow(window) {
		httperrors.RespondError(w, http.StatusNotFound, httperrors.ErrCodeUnknownWindow, "unknown leaderboard window")
		return
	}

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	ctx := r.Context()
	var (
		top    []ws.LeaderboardEntry
		source = "redis"
	)

	var redisErr error
	if h.svc != nil {
		var entries []Entry
		if entries, redisErr = h.svc.Top(ctx, window, limit); redisErr == nil {
			top = toWSEntries(entries)
		} else {
			h.logger.Warn().Err(redisErr).Str("window", window).Msg("redis leaderboard fetch failed")
		}
	}

	if len(top) == 0 {
		source = "snapshot"
		var snapErr error
		top, snapErr = h.snapshotFallback(ctx, window, limit)
		if redisErr != nil && snapErr != nil {
			httperrors.RespondServiceUnavailable(w, httperrors.ErrCodeUpstreamError, "leaderboard temporarily unavailable")
			return
		}
	}

	resp := map[string]interface{}{
		"window":      window,
		"top":         top,
		"source":      source,
		"retrievedAt": h.now().UTC().Format(time.RFC3339),
	}

	writeJSON(w, resp)
}

// snapshotFallback reads the latest persisted copy of window. A missing
// snapshot is not an error.
func (h *HTTPHandler) snapshotFallback(ctx context.Context, window string, limit int) ([]ws.LeaderboardEntry, error) {
	if h.store == nil {
		return nil, nil
	}
	snap, err := h.store.LatestSnapshot(ctx, window)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		h.logger.Warn().Err(err).Str("window", window).Msg("snapshot fetch failed")
		return nil, err
	}

	var entries []ws.LeaderboardEntry
	if err := json.Unmarshal(snap.Entries, &entries); err != nil {
		h.logger.Warn().Err(err).Msg("snapshot payload decode failed")
		return nil, err
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

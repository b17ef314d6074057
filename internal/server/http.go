package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/weakest-rival/internal/config"
	"github.com/gokatarajesh/weakest-rival/internal/logging"
	httperrors "github.com/gokatarajesh/weakest-rival/pkg/http/errors"
)

// WSUpgrader handles WebSocket upgrades. NewHTTPServer installs the origin
// check from config.
var WSUpgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Handlers are the feature endpoints mounted on the API mux. Nil entries are
// left unmounted.
type Handlers struct {
	// Authenticate wraps the REST match endpoints.
	Authenticate func(http.Handler) http.Handler
	MatchWS      http.HandlerFunc
	CreateMatch  http.HandlerFunc
	Match        http.HandlerFunc
	Leaderboard  http.HandlerFunc
	// Ping checks upstream dependencies for /v1/ping.
	Ping func(ctx context.Context) error
}

// NewHTTPServer wires health, metrics and feature routes for the API service.
func NewHTTPServer(cfg *config.App, logger zerolog.Logger, h Handlers) *http.Server {
	WSUpgrader.CheckOrigin = originChecker(cfg.AllowedOrigins)

	return &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: newMux(logger, h),
	}
}

func newMux(logger zerolog.Logger, h Handlers) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/v1/ping", func(w http.ResponseWriter, r *http.Request) {
		if h.Ping != nil {
			ctx := logging.IntoContext(r.Context(), logger)
			if err := h.Ping(ctx); err != nil {
				logger.Error().Err(err).Msg("dependency ping failed")
				httperrors.RespondError(w, http.StatusBadGateway, httperrors.ErrCodeUpstreamError, "upstream error")
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"pong":true}`))
	})

	if h.MatchWS != nil {
		mux.HandleFunc("/ws/matches", h.MatchWS)
	} else {
		mux.HandleFunc("/ws/matches", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "WebSocket handler not configured", http.StatusNotImplemented)
		})
	}

	wrap := h.Authenticate
	if wrap == nil {
		wrap = func(next http.Handler) http.Handler { return next }
	}
	if h.CreateMatch != nil {
		mux.Handle("/v1/matches", wrap(h.CreateMatch))
	}
	if h.Match != nil {
		mux.Handle("/v1/matches/", wrap(h.Match))
	}

	if h.Leaderboard != nil {
		mux.HandleFunc("/v1/leaderboards/", h.Leaderboard)
	}
	return mux
}

// PingDependencies checks Postgres and Redis.
func PingDependencies(pool *pgxpool.Pool, rdb redis.UniversalClient) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	}
}

// originChecker allows requests without an Origin header and those whose
// host is listed. An empty list allows every origin.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	hosts := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		a = strings.TrimSpace(a)
		if u, err := url.Parse(a); err == nil && u.Host != "" {
			a = u.Host
		}
		if a != "" {
			hosts[strings.ToLower(a)] = struct{}{}
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := hosts[strings.ToLower(u.Host)]
		return ok
	}
}

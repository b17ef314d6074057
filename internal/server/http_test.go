package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://play.example.com", "localhost:3000"})

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"https://play.example.com", true},
		{"https://PLAY.example.com", true},
		{"http://localhost:3000", true},
		{"https://evil.example.com", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/ws/matches", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		assert.Equal(t, tt.want, check(r), "origin %q", tt.origin)
	}

	open := originChecker(nil)
	r := httptest.NewRequest(http.MethodGet, "/ws/matches", nil)
	r.Header.Set("Origin", "https://anything.example.com")
	assert.True(t, open(r))
}

func TestMuxRoutes(t *testing.T) {
	var hits []string
	record := func(name string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			hits = append(hits, name)
			w.WriteHeader(http.StatusTeapot)
		}
	}
	authed := 0
	mux := newMux(zerolog.Nop(), Handlers{
		Authenticate: func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				authed++
				next.ServeHTTP(w, r)
			})
		},
		MatchWS:     record("ws"),
		CreateMatch: record("create"),
		Match:       record("match"),
		Leaderboard: record("leaderboard"),
	})

	for _, path := range []string{"/ws/matches", "/v1/matches", "/v1/matches/abc", "/v1/leaderboards/daily"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusTeapot, rec.Code, path)
	}
	assert.Equal(t, []string{"ws", "create", "match", "leaderboard"}, hits)
	assert.Equal(t, 2, authed)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestPingReportsUpstreamFailure(t *testing.T) {
	fail := true
	mux := newMux(zerolog.Nop(), Handlers{
		Ping: func(ctx context.Context) error {
			if fail {
				return errors.New("redis: connection refused")
			}
			return nil
		},
	})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/ping", nil))
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "upstream_error")

	fail = false
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/ping", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"pong":true}`, rec.Body.String())

	unconfigured := newMux(zerolog.Nop(), Handlers{})
	rec = httptest.NewRecorder()
	unconfigured.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws/matches", nil))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

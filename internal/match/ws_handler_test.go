package match

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/weakest-rival/internal/auth"
	"github.com/gokatarajesh/weakest-rival/pkg/http/ws"
)

type tokenResolver map[string]auth.Principal

func (r tokenResolver) ResolvePrincipal(_ context.Context, credential string) (auth.Principal, error) {
	if credential == "banned" {
		return auth.Principal{}, &auth.SanctionedError{Reason: "cheating", EndsAt: time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)}
	}
	p, ok := r[credential]
	if !ok {
		return auth.Principal{}, auth.ErrInvalidCredential
	}
	return p, nil
}

func dialMatch(t *testing.T, srv *httptest.Server, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/matches?token=" + token
	return websocket.DefaultDialer.Dial(url, nil)
}

// readUntil returns the first message of msgType, skipping others.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) ws.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg ws.Message
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == msgType {
			return msg
		}
	}
}

func TestWebSocketSession(t *testing.T) {
	h := newHarness(t, testRules())
	host := auth.Principal{UserID: uuid.New(), DisplayName: "host"}
	handler := NewHandler(h.engine, tokenResolver{"host-token": host}, zerolog.Nop())
	srv := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	defer srv.Close()

	conn, _, err := dialMatch(t, srv, "host-token")
	require.NoError(t, err)
	defer conn.Close()

	matchID := uuid.New()
	create, err := ws.NewMessage(ws.TypeCreateMatch, ws.CreateMatchPayload{MatchID: matchID.String()})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(create))

	joined := readUntil(t, conn, ws.TypeMatchJoined)
	assert.Contains(t, string(joined.Payload), matchID.String())
	assert.Contains(t, string(joined.Payload), host.UserID.String())

	ping := ws.Message{Type: ws.TypePing, RequestID: "r-7"}
	require.NoError(t, conn.WriteJSON(ping))
	pong := readUntil(t, conn, ws.TypePong)
	assert.Equal(t, "r-7", pong.RequestID)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return h.hub.GroupSize(matchID) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketRejectsBadCredential(t *testing.T) {
	h := newHarness(t, testRules())
	handler := NewHandler(h.engine, tokenResolver{}, zerolog.Nop())
	srv := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	defer srv.Close()

	_, resp, err := dialMatch(t, srv, "forged")
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocketDisconnectsSanctionedAccount(t *testing.T) {
	h := newHarness(t, testRules())
	handler := NewHandler(h.engine, tokenResolver{}, zerolog.Nop())
	srv := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	defer srv.Close()

	conn, _, err := dialMatch(t, srv, "banned")
	require.NoError(t, err)
	defer conn.Close()

	msg := readUntil(t, conn, ws.TypeForcedDisconnect)
	assert.JSONEq(t, `{"code":"sanctioned","sanction_end_at_utc":"2030-01-02T03:04:05Z"}`, string(msg.Payload))
}

package match

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gokatarajesh/weakest-rival/internal/auth"
	"github.com/gokatarajesh/weakest-rival/internal/server"
	ws "github.com/gokatarajesh/weakest-rival/pkg/http/ws"
)

// DisconnectSanctioned is sent to a sanctioned account right after upgrade.
const DisconnectSanctioned = "sanctioned"

// HandleWebSocket authenticates the caller, upgrades the connection and runs
// its read loop. The credential comes from the token query parameter or a
// bearer Authorization header.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}

	principal, err := h.authSvc.ResolvePrincipal(r.Context(), token)
	var sanctioned *auth.SanctionedError
	if err != nil && !errors.As(err, &sanctioned) {
		h.logger.Debug().Err(err).Msg("WebSocket credential rejected")
		auth.RespondAuthError(w, err, h.logger)
		return
	}

	conn, err := server.WSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	if sanctioned != nil {
		h.rejectSanctioned(conn, sanctioned)
		return
	}
	h.HandleConnection(conn, principal)
}

// HandleConnection serves an authenticated connection until it closes.
func (h *Handler) HandleConnection(conn *websocket.Conn, principal auth.Principal) {
	wsConn := ws.NewConnection(conn, h.logger)
	sess := newSession(principal, wsConn)

	go wsConn.WritePump()

	h.logger.Debug().
		Str("session_id", sess.id.String()).
		Str("user_id", principal.UserID.String()).
		Msg("WebSocket session opened")

	wsConn.ReadPump(func(msg ws.Message) error {
		return h.handleMessage(context.Background(), sess, msg)
	})

	h.close(sess)
	wsConn.Close()
}

func (h *Handler) rejectSanctioned(conn *websocket.Conn, sanctioned *auth.SanctionedError) {
	wsConn := ws.NewConnection(conn, h.logger)
	go wsConn.WritePump()

	ends := sanctioned.EndsAt.UTC().Format(time.RFC3339)
	ws.NotifyForcedDisconnect(wsConn, ws.ForcedDisconnectPayload{
		Code:             DisconnectSanctioned,
		SanctionEndAtUtc: &ends,
	}, h.logger)
}

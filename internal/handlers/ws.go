package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"

	"github.com/huddlehq/huddle/backend/internal/services"
	"github.com/huddlehq/huddle/backend/internal/utils"
	"github.com/huddlehq/huddle/backend/pkg/logger"
	"github.com/huddlehq/huddle/backend/pkg/response"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096

	handshakeTimeout = 5 * time.Second
)

// WSHandler authenticates real-time connections and binds them to a project
// room. Authorization is derived from the same token the REST surface uses;
// room membership lives in memory only, so a reconnect re-runs the whole
// handshake.
type WSHandler struct {
	hub            *services.Hub
	projectService *services.ProjectService
	revocations    services.RevocationStore
	upgrader       websocket.Upgrader
}

func NewWSHandler(db *gorm.DB, hub *services.Hub, revocations services.RevocationStore) *WSHandler {
	return &WSHandler{
		hub:            hub,
		projectService: services.NewProjectService(db),
		revocations:    revocations,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients connect cross-origin; the token is the gate.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// inboundMessage is the single message event clients send after joining.
type inboundMessage struct {
	Message string `json:"message"`
}

// Connect performs the handshake and, on success, admits the connection to
// the room keyed by the project id.
// GET /ws?projectId=...&token=...
func (h *WSHandler) Connect(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		authHeader := c.GetHeader("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		}
	}
	if token == "" {
		response.Unauthorized(c, "missing token")
		return
	}

	claims, err := utils.ParseToken(token)
	if err != nil {
		response.Unauthorized(c, "invalid or expired token")
		return
	}

	// Bounded round-trip; a store timeout rejects rather than hanging the
	// connection.
	ctx, cancel := context.WithTimeout(c.Request.Context(), handshakeTimeout)
	revoked, err := h.revocations.IsRevoked(ctx, token)
	cancel()
	if err != nil {
		logger.Warn().Err(err).Msg("revocation check failed during handshake")
		response.Unauthorized(c, "authentication unavailable")
		return
	}
	if revoked {
		response.Unauthorized(c, "token has been revoked")
		return
	}

	projectID, err := strconv.ParseUint(c.Query("projectId"), 10, 32)
	if err != nil {
		response.BadRequest(c, "invalid project id")
		return
	}

	project, err := h.projectService.GetByID(uint(projectID))
	if err != nil {
		response.Error(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	roomID := strconv.FormatUint(uint64(project.ID), 10)
	client := h.hub.Join(roomID, claims.UserID, claims.Email)

	logger.Info().
		Str("client", client.ID).
		Str("room", roomID).
		Uint("user", claims.UserID).
		Int("room_size", h.hub.RoomSize(roomID)).
		Msg("client joined room")

	go h.writePump(conn, client)
	h.readPump(conn, client)
}

// readPump pulls message events off the wire and hands them to the hub. It
// exits when the connection drops, unregistering the client.
func (h *WSHandler) readPump(conn *websocket.Conn, client *services.RoomClient) {
	defer func() {
		h.hub.Leave(client)
		conn.Close()
		logger.Info().Str("client", client.ID).Str("room", client.RoomID).Msg("client left room")
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn().Err(err).Str("client", client.ID).Msg("websocket read error")
			}
			return
		}

		var in inboundMessage
		if err := json.Unmarshal(data, &in); err != nil {
			logger.Warn().Err(err).Str("client", client.ID).Msg("malformed message event")
			continue
		}
		if in.Message == "" {
			continue
		}

		h.hub.HandleMessage(client, in.Message)
	}
}

// writePump drains the client's send channel onto the wire and keeps the
// connection alive with pings.
func (h *WSHandler) writePump(conn *websocket.Conn, client *services.RoomClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.Send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

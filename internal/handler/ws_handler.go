package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/neetly/session-backend/internal/middleware"
	"github.com/neetly/session-backend/internal/session"
	"github.com/rs/zerolog"
)

const (
	wsWriteDeadline = 10 * time.Second
	wsReadDeadline  = 5 * time.Minute
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams session events (countdown ticks, lockdown warnings,
// fullscreen nags, completion) to the client and accepts violation reports
// on the same connection.
type WSHandler struct {
	manager  *session.Manager
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a WSHandler.
func NewWSHandler(manager *session.Manager, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		manager:  manager,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// wsInbound is what the client may send: violation reports and pings.
type wsInbound struct {
	Type   string `json:"type"`
	Kind   string `json:"kind,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// SessionStream godoc
// WS /ws/v1/sessions/:id/stream?token=...
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session ID"})
		return
	}

	ctrl, err := h.manager.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	log := h.log.With().Str("session_id", id.String()).Logger()
	log.Debug().Msg("Session stream opened")

	events, cancel := ctrl.Subscribe()
	defer cancel()

	// Reader: violation reports and pings. Closes done on disconnect.
	// The request context ends with this handler, so recording uses its
	// own context.
	reportCtx := context.Background()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var in wsInbound
			if err := json.Unmarshal(data, &in); err != nil {
				continue
			}
			switch in.Type {
			case "violation":
				ctrl.Guard().Report(reportCtx, session.ViolationKind(in.Kind), in.Detail)
			case "ping":
				// Read deadline already reset above.
			}
		}
	}()

	for {
		select {
		case <-done:
			log.Debug().Msg("Session stream closed by client")
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
			if err := conn.WriteJSON(e); err != nil {
				log.Debug().Err(err).Msg("Session stream write failed")
				return
			}
			if e.Type == session.EventCompleted {
				// Nothing further will ever arrive.
				return
			}
		}
	}
}

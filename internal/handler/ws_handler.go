package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/examloop/examloop-backend/internal/middleware"
	"github.com/examloop/examloop-backend/internal/repository"
	ws "github.com/examloop/examloop-backend/internal/websocket"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
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

// WSHandler streams the attempt clock over WebSocket.
type WSHandler struct {
	attempts repository.AttemptStore
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(attempts repository.AttemptStore, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attempts: attempts,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// AttemptClockStream godoc
// WS /ws/v1/attempts/:attempt_id/clock?token=...
// Pushes a countdown tick every second and a finalized event once the
// attempt closes, whether by submission or by the expiry sweep.
func (h *WSHandler) AttemptClockStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid attempt ID"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	attempt, err := h.attempts.GetByID(c.Request.Context(), attemptID)
	if err != nil {
		ws.WriteError(conn, "attempt not found")
		return
	}
	if attempt.UserID != claims.UserID {
		ws.WriteError(conn, "attempt belongs to another user")
		return
	}

	wsLog := h.log.With().
		Int("user_id", claims.UserID).
		Str("attempt_id", attemptID.String()).
		Logger()
	wsLog.Info().Msg("Clock stream opened")
	defer wsLog.Info().Msg("Clock stream closed")

	// Reader goroutine only detects the client going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			attempt, err := h.attempts.GetByID(c.Request.Context(), attemptID)
			if err != nil {
				ws.WriteError(conn, "attempt lookup failed")
				return
			}

			if !attempt.Open() {
				resp := ws.FinalizedResponse{Event: ws.EventFinalized, Score: attempt.Score}
				if attempt.GradedBy != nil {
					resp.GradedBy = *attempt.GradedBy
				}
				ws.WriteTyped(conn, resp)
				return
			}

			tick := ws.TickResponse{Event: ws.EventTick, RemainingSeconds: -1}
			if attempt.ExpiresAt != nil {
				remaining := time.Until(*attempt.ExpiresAt)
				if remaining < 0 {
					remaining = 0
				}
				tick.RemainingSeconds = int64(remaining / time.Second)
				tick.Deadline = attempt.ExpiresAt.UTC().Format(time.RFC3339)
			}
			if err := ws.WriteTyped(conn, tick); err != nil {
				return
			}
		}
	}
}

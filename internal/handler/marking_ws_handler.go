package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prepwise/prepwise-backend/internal/config"
	"github.com/prepwise/prepwise-backend/internal/middleware"
	"github.com/prepwise/prepwise-backend/internal/model"
	"github.com/prepwise/prepwise-backend/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty slice permits all origins (development mode).
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

// MarkingWSHandler streams marking progress over WebSocket while the
// marking worker churns through a submitted attempt.
type MarkingWSHandler struct {
	rdb            *redis.Client
	attemptService *service.AttemptService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewMarkingWSHandler creates a new MarkingWSHandler.
func NewMarkingWSHandler(rdb *redis.Client, attemptService *service.AttemptService, log zerolog.Logger, allowedOrigins []string) *MarkingWSHandler {
	return &MarkingWSHandler{
		rdb:            rdb,
		attemptService: attemptService,
		log:            log.With().Str("component", "marking_ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// Stream godoc
// WS /ws/v1/attempts/:id/marking
// Sends the current marking state immediately, then pushes every update
// published by the marking worker until the job reaches a terminal state.
func (h *MarkingWSHandler) Stream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	attemptID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || attemptID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid attempt ID"})
		return
	}

	// Ownership check before upgrading; after the upgrade we can only
	// report errors in-band.
	progress, err := h.attemptService.GetMarkingProgress(c.Request.Context(), claims.UserID, attemptID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "marking not found"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int("user_id", claims.UserID).
		Int64("attempt_id", attemptID).
		Logger()
	wsLog.Info().Msg("Client connected to marking stream")

	// Subscribe before sending the snapshot so no update can slip
	// through the gap between the two.
	sub := h.rdb.Subscribe(c.Request.Context(), config.CacheKey.MarkingProgressChannel(attemptID))
	defer sub.Close()

	if err := conn.WriteJSON(progress); err != nil {
		wsLog.Debug().Err(err).Msg("Initial write failed")
		return
	}
	if isTerminal(progress.Status) {
		return
	}

	// Reader goroutine: its only job is surfacing the client close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ch := sub.Channel()
	for {
		select {
		case <-closed:
			wsLog.Debug().Msg("Client disconnected")
			return
		case <-c.Request.Context().Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			// The worker publishes a nudge, not a payload; the
			// progress row in Postgres is the source of truth.
			update, err := h.attemptService.GetMarkingProgress(c.Request.Context(), claims.UserID, attemptID)
			if err != nil {
				wsLog.Warn().Err(err).Msg("Progress re-read failed")
				continue
			}
			if err := conn.WriteJSON(update); err != nil {
				wsLog.Debug().Err(err).Msg("Write failed")
				return
			}
			if isTerminal(update.Status) {
				wsLog.Info().Str("status", string(update.Status)).Msg("Marking stream finished")
				return
			}
		}
	}
}

func isTerminal(status model.MarkingStatus) bool {
	return status == model.MarkingStatusCompleted || status == model.MarkingStatusFailed
}

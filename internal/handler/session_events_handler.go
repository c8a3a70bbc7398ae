package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/itilprep/itil-exam-backend/internal/middleware"
	"github.com/itilprep/itil-exam-backend/internal/service"
	"github.com/rs/zerolog"
)

const keepAliveInterval = 30 * time.Second

// SessionEventsHandler streams a session's events over Server-Sent Events
// for read-only viewers such as a second browser tab.
type SessionEventsHandler struct {
	sessionService *service.ExamSessionService
	log            zerolog.Logger
}

// NewSessionEventsHandler creates a new SessionEventsHandler.
func NewSessionEventsHandler(sessionService *service.ExamSessionService, log zerolog.Logger) *SessionEventsHandler {
	return &SessionEventsHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "session_events_handler").Logger(),
	}
}

// StreamEvents godoc
// GET /api/v1/sessions/:id/events
// Sends a snapshot, then every event until the session goes away.
func (h *SessionEventsHandler) StreamEvents(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	userID := middleware.UserID(c)

	events, unsubscribe, err := h.sessionService.Subscribe(id, userID)
	if err != nil {
		failWith(c, err)
		return
	}
	defer unsubscribe()

	view, err := h.sessionService.Get(id, userID)
	if err != nil {
		failWith(c, err)
		return
	}

	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Status(http.StatusOK)

	c.SSEvent("state", view)
	c.Writer.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	h.log.Debug().Str("session_id", id.String()).Msg("Viewer attached to session events")

	for {
		select {
		case <-reqCtx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				c.SSEvent("closed", gin.H{"session_id": id.String()})
				c.Writer.Flush()
				return
			}
			c.SSEvent(string(ev.Type), ev)
			c.Writer.Flush()
		case <-keepAlive.C:
			// Comment lines keep proxies from timing out the stream.
			c.Writer.Write([]byte(": ping\n\n"))
			c.Writer.Flush()
		}
	}
}

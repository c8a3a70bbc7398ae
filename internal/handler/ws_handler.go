package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/itilprep/itil-exam-backend/internal/middleware"
	"github.com/itilprep/itil-exam-backend/internal/response"
	"github.com/itilprep/itil-exam-backend/internal/service"
	ws "github.com/itilprep/itil-exam-backend/internal/websocket"
	"github.com/rs/zerolog"
)

const (
	wsReadLimit      = 4096
	wsOutboundBuffer = 16
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
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

// WSHandler streams a live exam session: countdown ticks, state changes,
// the graded result and the persistence outcome go out; session actions
// come in.
type WSHandler struct {
	sessionService *service.ExamSessionService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessionService *service.ExamSessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/sessions/:id/stream[?token=]
// Upgrades to WebSocket for a running exam session.
func (h *WSHandler) SessionStream(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	userID := middleware.UserID(c)

	// Subscribe before the upgrade so that access errors are plain HTTP.
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

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().Str("session_id", id.String()).Str("user_id", userID).Logger()
	wsLog.Info().Msg("Client attached to session stream")

	// gorilla allows a single writer; everything outbound goes through writeLoop.
	outbound := make(chan interface{}, wsOutboundBuffer)
	outbound <- ws.StateResponse{Event: ws.EventState, SessionID: id.String(), Session: view}

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writeLoop(conn, events, outbound, wsLog)
	}()

	ws.PrepareRead(conn, wsReadLimit)
	for {
		var req ws.Request
		if err := ws.ReadJSON(conn, &req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		reply := h.dispatch(id, userID, req)
		if reply == nil {
			continue
		}
		select {
		case outbound <- reply:
		case <-done:
		}
	}

	close(outbound)
	<-done
}

// writeLoop forwards session events and replies until the session stream
// closes, the reader goes away, or a write fails.
func (h *WSHandler) writeLoop(conn *websocket.Conn, events <-chan service.SessionEvent, outbound <-chan interface{}, log zerolog.Logger) {
	ticker := time.NewTicker(ws.PingPeriod)
	defer ticker.Stop()
	// Unblocks the reader when the writer stops first.
	defer conn.Close()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
				return
			}
			if err := ws.WriteTyped(conn, ev); err != nil {
				log.Debug().Err(err).Msg("Event write failed")
				return
			}
		case msg, ok := <-outbound:
			if !ok {
				return
			}
			if err := ws.WriteTyped(conn, msg); err != nil {
				log.Debug().Err(err).Msg("Reply write failed")
				return
			}
		case <-ticker.C:
			if err := ws.WritePing(conn); err != nil {
				return
			}
		}
	}
}

// dispatch applies one client action. Successful changes reach the client as
// session events, so only pongs and errors are returned as direct replies.
func (h *WSHandler) dispatch(id uuid.UUID, userID string, req ws.Request) interface{} {
	var err error
	switch req.Action {
	case ws.ActionPing:
		return ws.PongResponse{Event: ws.EventPong}
	case ws.ActionStart:
		_, err = h.sessionService.Start(id, userID)
	case ws.ActionAnswer:
		if req.Index == nil || req.Option == nil {
			return wsError(req.Action, response.ErrInvalidPayload)
		}
		_, err = h.sessionService.SelectAnswer(id, userID, *req.Index, *req.Option)
	case ws.ActionFlag, ws.ActionImportant, ws.ActionGoTo:
		if req.Index == nil {
			return wsError(req.Action, response.ErrInvalidPayload)
		}
		switch req.Action {
		case ws.ActionFlag:
			_, err = h.sessionService.ToggleFlag(id, userID, *req.Index)
		case ws.ActionImportant:
			_, err = h.sessionService.ToggleImportant(id, userID, *req.Index)
		default:
			_, err = h.sessionService.GoTo(id, userID, *req.Index)
		}
	case ws.ActionNext:
		_, err = h.sessionService.Next(id, userID)
	case ws.ActionPrev:
		_, err = h.sessionService.Previous(id, userID)
	case ws.ActionRandomize:
		_, err = h.sessionService.Randomize(id, userID)
	case ws.ActionSubmit:
		_, _, err = h.sessionService.Submit(id, userID)
	default:
		return wsError(req.Action, response.ErrInvalidPayload)
	}

	if err != nil {
		_, code := errorStatus(err)
		if code == response.ErrInternal {
			h.log.Error().Err(err).Str("session_id", id.String()).Str("action", string(req.Action)).Msg("Session action failed")
		}
		return wsError(req.Action, code)
	}
	return nil
}

func wsError(action ws.Action, code response.ErrCode) ws.ErrorResponse {
	return ws.ErrorResponse{
		Event:  ws.EventError,
		Action: action,
		Code:   string(code),
		Error:  response.GetMessage(code),
	}
}

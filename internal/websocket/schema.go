package websocket

import "github.com/itilprep/itil-exam-backend/internal/service"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionStart     Action = "start"
	ActionAnswer    Action = "answer"
	ActionFlag      Action = "flag"
	ActionImportant Action = "important"
	ActionGoTo      Action = "goto"
	ActionNext      Action = "next"
	ActionPrev      Action = "prev"
	ActionRandomize Action = "randomize"
	ActionSubmit    Action = "submit"
	ActionPing      Action = "ping"
)

// Request is a client message. Index and Option are only read by the
// actions that need them.
type Request struct {
	Action Action `json:"action"`
	Index  *int   `json:"index,omitempty"`
	Option *int   `json:"option,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	// EventState carries the full session view, sent once on connect.
	// Later changes arrive as service session events.
	EventState Event = "state"
	EventError Event = "error"
	EventPong  Event = "pong"
)

// StateResponse is the snapshot sent when a client attaches.
type StateResponse struct {
	Event     Event                `json:"event"`
	SessionID string               `json:"session_id"`
	Session   *service.SessionView `json:"session"`
}

// ErrorResponse reports a rejected action. Code mirrors the HTTP error codes.
type ErrorResponse struct {
	Event  Event  `json:"event"`
	Action Action `json:"action,omitempty"`
	Code   string `json:"code"`
	Error  string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}

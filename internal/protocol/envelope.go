package protocol

import "encoding/json"

// Frame kinds the gateway sends back.
const (
	FrameResponse = "res"
	FrameEvent    = "event"
)

// Request methods the client issues.
const (
	MethodConnect = "connect"
	MethodAgent   = "agent"
)

// Event names pushed from the gateway.
const (
	EventConnectChallenge = "connect.challenge"
	EventAgent            = "agent"
	EventChat             = "chat"
	EventTick             = "tick"
)

// Agent event streams (in payload.stream).
const (
	StreamAssistant = "assistant"
	StreamThinking  = "thinking"
	StreamTool      = "tool"
)

// Agent turn statuses (in payload.status).
const (
	StatusCompleted = "completed"
	StatusAborted   = "aborted"
	StatusError     = "error"
)

// Request is the outgoing command frame: {id, method, params}.
type Request struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// Frame is any inbound frame. Type distinguishes responses ("res",
// correlated by ID) from events ("event", routed by Event name).
type Frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	OK      bool            `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *ErrorInfo      `json:"error,omitempty"`
	Event   string          `json:"event,omitempty"`
}

// ErrorInfo carries the server message on a failed response.
type ErrorInfo struct {
	Message string `json:"message"`
}

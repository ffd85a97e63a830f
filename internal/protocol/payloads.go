package protocol

import "encoding/json"

// ChallengePayload is the connect.challenge event body.
type ChallengePayload struct {
	Nonce string `json:"nonce"`
}

// ClientInfo identifies the connecting client to the gateway.
type ClientInfo struct {
	Mode       string `json:"mode"`
	InstanceID string `json:"instanceId"`
}

// AuthParams carries the reusable device token.
type AuthParams struct {
	DeviceToken string `json:"deviceToken"`
}

// ConnectParams is the handshake request body.
type ConnectParams struct {
	Client ClientInfo  `json:"client"`
	Auth   *AuthParams `json:"auth,omitempty"`
	Nonce  string      `json:"nonce"`
}

// HelloOK is the handshake success payload. Auth is present when the
// gateway issues (or rotates) a device token.
type HelloOK struct {
	Type     string      `json:"type"`
	Protocol int         `json:"protocol"`
	Auth     *AuthParams `json:"auth,omitempty"`
}

// AgentParams is the sendMessage request body.
type AgentParams struct {
	Message       string `json:"message"`
	SessionKey    string `json:"sessionKey,omitempty"`
	ThinkingLevel string `json:"thinkingLevel,omitempty"`
	Model         string `json:"model,omitempty"`
}

// AgentAccepted acknowledges a sendMessage. The streamed reply arrives
// later as agent events.
type AgentAccepted struct {
	Status string `json:"status"`
	RunID  string `json:"runId,omitempty"`
}

// AgentData is the streamed delta inside an agent event.
type AgentData struct {
	Delta string          `json:"delta,omitempty"`
	Text  string          `json:"text,omitempty"`
	Tool  string          `json:"tool,omitempty"`
	Args  json.RawMessage `json:"args,omitempty"`
}

// AgentEventPayload is the agent event body. Stream+Data carry streamed
// output; Status marks the end of a turn.
type AgentEventPayload struct {
	Stream string     `json:"stream,omitempty"`
	Data   *AgentData `json:"data,omitempty"`
	Status string     `json:"status,omitempty"`
	Error  string     `json:"error,omitempty"`
}

// ChatEventPayload is the side-channel chat event body.
type ChatEventPayload struct {
	FromAssistant bool   `json:"fromAssistant"`
	Text          string `json:"text"`
}

// TickPayload is the gateway heartbeat body.
type TickPayload struct {
	TS int64 `json:"ts"`
}

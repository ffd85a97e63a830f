package gateway

import (
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/ayano-dev/clawlink/internal/protocol"
)

func newTestDecoder() *decoder {
	return &decoder{logger: slog.Default()}
}

func agentDelta(delta string) json.RawMessage {
	p := protocol.AgentEventPayload{
		Stream: protocol.StreamAssistant,
		Data:   &protocol.AgentData{Delta: delta},
	}
	b, _ := json.Marshal(p)
	return b
}

func agentStatus(status string) json.RawMessage {
	b, _ := json.Marshal(protocol.AgentEventPayload{Status: status})
	return b
}

func TestDecodeAssistantDeltasAccumulate(t *testing.T) {
	d := newTestDecoder()

	chunks := d.decode(protocol.EventAgent, agentDelta("你"))
	if len(chunks) != 1 || chunks[0].Kind != ChunkText || chunks[0].Content != "你" {
		t.Fatalf("first delta: got %+v", chunks)
	}
	chunks = d.decode(protocol.EventAgent, agentDelta("好"))
	if len(chunks) != 1 || chunks[0].Content != "好" {
		t.Fatalf("second delta: got %+v", chunks)
	}

	chunks = d.decode(protocol.EventAgent, agentStatus(protocol.StatusCompleted))
	if len(chunks) != 1 {
		t.Fatalf("completion: got %+v", chunks)
	}
	if chunks[0].Kind != ChunkEnd || chunks[0].Content != "你好" {
		t.Fatalf("end chunk should carry the full turn, got %+v", chunks[0])
	}
}

func TestDecodeAccumulatorResetsBetweenTurns(t *testing.T) {
	d := newTestDecoder()
	d.decode(protocol.EventAgent, agentDelta("first"))
	d.decode(protocol.EventAgent, agentStatus(protocol.StatusCompleted))

	d.decode(protocol.EventAgent, agentDelta("second"))
	chunks := d.decode(protocol.EventAgent, agentStatus(protocol.StatusAborted))
	if len(chunks) != 1 || chunks[0].Content != "second" {
		t.Fatalf("stale text leaked into next turn: %+v", chunks)
	}
}

func TestDecodeErrorStatus(t *testing.T) {
	d := newTestDecoder()
	d.decode(protocol.EventAgent, agentDelta("partial"))

	b, _ := json.Marshal(protocol.AgentEventPayload{Status: protocol.StatusError, Error: "model overloaded"})
	chunks := d.decode(protocol.EventAgent, b)
	if len(chunks) != 1 || chunks[0].Kind != ChunkError || chunks[0].Content != "model overloaded" {
		t.Fatalf("got %+v", chunks)
	}

	// Error ends the turn too.
	chunks = d.decode(protocol.EventAgent, agentStatus(protocol.StatusCompleted))
	if len(chunks) != 1 || chunks[0].Content != "" {
		t.Fatalf("accumulator not reset after error: %+v", chunks)
	}
}

func TestDecodeThinkingAndToolStreams(t *testing.T) {
	d := newTestDecoder()

	b, _ := json.Marshal(protocol.AgentEventPayload{
		Stream: protocol.StreamThinking,
		Data:   &protocol.AgentData{Delta: "hmm"},
	})
	chunks := d.decode(protocol.EventAgent, b)
	if len(chunks) != 1 || chunks[0].Kind != ChunkThinking || chunks[0].Content != "hmm" {
		t.Fatalf("thinking: got %+v", chunks)
	}

	b, _ = json.Marshal(protocol.AgentEventPayload{
		Stream: protocol.StreamTool,
		Data:   &protocol.AgentData{Tool: "read_file", Args: json.RawMessage(`{"path":"a.go"}`)},
	})
	chunks = d.decode(protocol.EventAgent, b)
	if len(chunks) != 1 || chunks[0].Kind != ChunkTool {
		t.Fatalf("tool: got %+v", chunks)
	}
	if chunks[0].Content != `read_file {"path":"a.go"}` {
		t.Fatalf("tool content: %q", chunks[0].Content)
	}

	// Thinking and tool streams do not pollute the text accumulator.
	chunks = d.decode(protocol.EventAgent, agentStatus(protocol.StatusCompleted))
	if chunks[0].Content != "" {
		t.Fatalf("non-assistant stream leaked into turn text: %q", chunks[0].Content)
	}
}

func TestDecodeChatEvent(t *testing.T) {
	d := newTestDecoder()

	b, _ := json.Marshal(protocol.ChatEventPayload{FromAssistant: true, Text: "hello there"})
	chunks := d.decode(protocol.EventChat, b)
	if len(chunks) != 2 {
		t.Fatalf("expected text+end, got %+v", chunks)
	}
	if chunks[0].Kind != ChunkText || chunks[0].Content != "hello there" {
		t.Fatalf("text chunk: %+v", chunks[0])
	}
	if chunks[1].Kind != ChunkEnd || chunks[1].Content != "hello there" {
		t.Fatalf("end chunk: %+v", chunks[1])
	}

	// Echoes of our own messages are dropped.
	b, _ = json.Marshal(protocol.ChatEventPayload{FromAssistant: false, Text: "me again"})
	if chunks := d.decode(protocol.EventChat, b); len(chunks) != 0 {
		t.Fatalf("user echo produced chunks: %+v", chunks)
	}
}

func TestDecodeTickAndUnknownEvents(t *testing.T) {
	d := newTestDecoder()

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).UnixMilli()
	b, _ := json.Marshal(protocol.TickPayload{TS: ts})
	if chunks := d.decode(protocol.EventTick, b); len(chunks) != 0 {
		t.Fatalf("tick produced chunks: %+v", chunks)
	}
	if got := d.lastTick.UnixMilli(); got != ts {
		t.Fatalf("lastTick = %d, want %d", got, ts)
	}

	if chunks := d.decode("mystery.event", []byte(`{"x":1}`)); chunks != nil {
		t.Fatalf("unknown event produced chunks: %+v", chunks)
	}
	if chunks := d.decode(protocol.EventAgent, nil); chunks != nil {
		t.Fatalf("empty agent payload produced chunks: %+v", chunks)
	}
}

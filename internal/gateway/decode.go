package gateway

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/ayano-dev/clawlink/internal/protocol"
)

// decoder turns inbound event frames into the uniform chunk sequence.
// Frames from one session are processed strictly in arrival order, which
// is why per-turn text can accumulate by plain concatenation.
type decoder struct {
	turn     strings.Builder
	lastTick time.Time
	logger   *slog.Logger
}

func (d *decoder) reset() {
	d.turn.Reset()
}

func (d *decoder) decode(event string, payload json.RawMessage) []Chunk {
	now := time.Now()
	switch event {
	case protocol.EventAgent:
		return d.decodeAgent(payload, now)
	case protocol.EventChat:
		var p protocol.ChatEventPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			d.logger.Warn("dropping malformed chat event", "error", err)
			return nil
		}
		if !p.FromAssistant {
			return nil
		}
		// Side channel: the full text at once, never partial delivery,
		// and it does not touch the active turn's accumulator.
		return []Chunk{
			{Kind: ChunkText, Content: p.Text, Time: now},
			{Kind: ChunkEnd, Content: p.Text, Time: now},
		}
	case protocol.EventTick:
		var p protocol.TickPayload
		if err := json.Unmarshal(payload, &p); err == nil && p.TS != 0 {
			d.lastTick = time.UnixMilli(p.TS)
		} else {
			d.lastTick = now
		}
		return nil
	default:
		// Unrecognized event names are not errors.
		return nil
	}
}

func (d *decoder) decodeAgent(payload json.RawMessage, now time.Time) []Chunk {
	var p protocol.AgentEventPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &p); err != nil {
			d.logger.Warn("dropping malformed agent event", "error", err)
			return nil
		}
	}

	var chunks []Chunk
	if p.Stream != "" && p.Data != nil {
		content := p.Data.Delta
		if content == "" {
			content = p.Data.Text
		}
		switch p.Stream {
		case protocol.StreamAssistant:
			if content != "" {
				d.turn.WriteString(content)
				chunks = append(chunks, Chunk{Kind: ChunkText, Content: content, Time: now})
			}
		case protocol.StreamThinking:
			if content != "" {
				chunks = append(chunks, Chunk{Kind: ChunkThinking, Content: content, Time: now})
			}
		case protocol.StreamTool:
			if c := toolContent(p.Data); c != "" {
				chunks = append(chunks, Chunk{Kind: ChunkTool, Content: c, Time: now})
			}
		}
	}

	switch p.Status {
	case protocol.StatusCompleted, protocol.StatusAborted:
		// The completed text is what accumulated since the last
		// end/error, not the terminal event's own content.
		chunks = append(chunks, Chunk{Kind: ChunkEnd, Content: d.turn.String(), Time: now})
		d.turn.Reset()
	case protocol.StatusError:
		msg := p.Error
		if msg == "" {
			msg = "agent error"
		}
		chunks = append(chunks, Chunk{Kind: ChunkError, Content: msg, Time: now})
		d.turn.Reset()
	}
	return chunks
}

func toolContent(data *protocol.AgentData) string {
	if data.Tool == "" {
		return ""
	}
	if len(data.Args) > 0 {
		return data.Tool + " " + string(data.Args)
	}
	return data.Tool
}

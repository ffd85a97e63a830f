package gateway

import "time"

// ChunkKind tags a decoded unit of agent output.
type ChunkKind string

const (
	ChunkText     ChunkKind = "text"
	ChunkThinking ChunkKind = "thinking"
	ChunkTool     ChunkKind = "tool"
	ChunkEnd      ChunkKind = "end"
	ChunkError    ChunkKind = "error"
)

// Chunk is one normalized unit of streamed agent output. Chunks are
// produced only by the decoder and immutable once emitted. An end chunk
// carries the accumulated assistant text for the turn it closes.
type Chunk struct {
	Kind    ChunkKind
	Content string
	Time    time.Time
}

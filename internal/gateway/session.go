package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/ayano-dev/clawlink/internal/protocol"
)

const (
	writeTimeout = 10 * time.Second
	readLimit    = 512 * 1024 // matches the gateway read limit
)

// session owns exactly one open WebSocket connection. No business logic
// lives here: it dials, serializes writes, and feeds parsed frames to a
// dispatch callback until the connection drops.
type session struct {
	conn    *websocket.Conn
	cancel  context.CancelFunc
	writeMu sync.Mutex
	logger  *slog.Logger
}

func dial(ctx context.Context, url, token string, logger *slog.Logger) (*session, error) {
	opts := &websocket.DialOptions{
		HTTPHeader: make(http.Header),
	}
	if token != "" {
		opts.HTTPHeader.Set("Authorization", "Bearer "+token)
	}
	conn, _, err := websocket.Dial(ctx, url, opts)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	conn.SetReadLimit(readLimit)
	return &session{conn: conn, logger: logger}, nil
}

// writeJSON serializes v onto the socket. Writes are serialized so
// concurrent senders cannot interleave frames.
func (s *session) writeJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return s.conn.Write(wctx, websocket.MessageText, data)
}

// readLoop parses inbound frames until the connection drops and returns
// the terminal error. A payload that fails to parse as the envelope is
// dropped and logged; one malformed frame never tears down the session.
func (s *session) readLoop(ctx context.Context, onFrame func(protocol.Frame)) error {
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		var f protocol.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			s.logger.Warn("dropping malformed frame", "error", err)
			continue
		}
		switch f.Type {
		case protocol.FrameResponse, protocol.FrameEvent:
			onFrame(f)
		default:
			s.logger.Debug("dropping frame with unknown type", "frame_type", f.Type)
		}
	}
}

// pingLoop keeps the connection alive through load balancers with idle
// timeouts. Gateway tick events are inbound only and don't count.
func (s *session) pingLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.conn.Ping(ctx); err != nil {
				return
			}
		}
	}
}

func (s *session) close() {
	if s.cancel != nil {
		s.cancel()
	}
	_ = s.conn.Close(websocket.StatusNormalClosure, "bye")
}

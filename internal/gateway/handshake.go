package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ayano-dev/clawlink/internal/protocol"
)

type hsState int

const (
	hsAwaitingChallenge hsState = iota
	hsAwaitingResult
	hsReady
	hsFailed
)

// handshake drives the one-time challenge/response exchange right after a
// session opens. The first completion, success or failure, wins; later
// signals are ignored.
type handshake struct {
	mu    sync.Mutex
	state hsState
	hello *protocol.HelloOK
	err   error
	done  chan struct{}
}

func newHandshake() *handshake {
	return &handshake{
		state: hsAwaitingChallenge,
		done:  make(chan struct{}),
	}
}

// onChallenge moves awaiting-challenge → awaiting-result. Returns false
// for duplicate or late challenges so the connect request is sent once.
func (h *handshake) onChallenge() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != hsAwaitingChallenge {
		return false
	}
	h.state = hsAwaitingResult
	return true
}

func (h *handshake) succeed(hello *protocol.HelloOK) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == hsReady || h.state == hsFailed {
		return
	}
	h.state = hsReady
	h.hello = hello
	close(h.done)
}

func (h *handshake) fail(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == hsReady || h.state == hsFailed {
		return
	}
	h.state = hsFailed
	h.err = err
	close(h.done)
}

func (h *handshake) ready() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state == hsReady
}

// wait blocks until the handshake completes, the timeout elapses, or ctx
// is cancelled. A silent gateway cannot hang the caller forever.
func (h *handshake) wait(ctx context.Context, timeout time.Duration) (*protocol.HelloOK, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-h.done:
	case <-t.C:
		h.fail(fmt.Errorf("%w: no result within %s", ErrHandshakeFailed, timeout))
	case <-ctx.Done():
		h.fail(fmt.Errorf("%w: %v", ErrHandshakeFailed, ctx.Err()))
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return nil, h.err
	}
	return h.hello, nil
}

package gateway

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ayano-dev/clawlink/internal/protocol"
)

type result struct {
	payload json.RawMessage
	err     error
}

// pendingEntry tracks one in-flight request from send until the matching
// response, an explicit failure, or its timeout. Ids are uuids, so an id
// is never reused while outstanding.
type pendingEntry struct {
	id       string
	issuedAt time.Time
	ch       chan result
	timer    *time.Timer
}

type pendingTable struct {
	mu      sync.Mutex
	timeout time.Duration
	entries map[string]*pendingEntry
	logger  *slog.Logger
}

func newPendingTable(timeout time.Duration, logger *slog.Logger) *pendingTable {
	return &pendingTable{
		timeout: timeout,
		entries: make(map[string]*pendingEntry),
		logger:  logger,
	}
}

// add registers a new pending request under a fresh id and arms its
// timeout.
func (t *pendingTable) add() *pendingEntry {
	e := &pendingEntry{
		id:       uuid.NewString(),
		issuedAt: time.Now(),
		ch:       make(chan result, 1),
	}
	t.mu.Lock()
	t.entries[e.id] = e
	t.mu.Unlock()
	e.timer = time.AfterFunc(t.timeout, func() { t.expire(e.id) })
	return e
}

// take removes and returns the entry for id, stopping its timer. Each
// entry can be taken at most once, so resolve/expire/failAll cannot
// double-complete a request.
func (t *pendingTable) take(id string) *pendingEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entries[id]
	if e == nil {
		return nil
	}
	delete(t.entries, id)
	if e.timer != nil {
		e.timer.Stop()
	}
	return e
}

// resolve completes the pending request for id. Responses for unknown
// ids (stale frames, duplicates, replies to timed-out requests) are
// dropped silently.
func (t *pendingTable) resolve(id string, ok bool, payload json.RawMessage, errInfo *protocol.ErrorInfo) {
	e := t.take(id)
	if e == nil {
		t.logger.Debug("dropping response for unknown id", "id", id)
		return
	}
	if ok {
		e.ch <- result{payload: payload}
		return
	}
	msg := "request failed"
	if errInfo != nil && errInfo.Message != "" {
		msg = errInfo.Message
	}
	e.ch <- result{err: &ServerError{Message: msg}}
}

func (t *pendingTable) expire(id string) {
	e := t.take(id)
	if e == nil {
		return
	}
	t.logger.Warn("request timed out", "id", id, "after", t.timeout)
	e.ch <- result{err: fmt.Errorf("%w after %s", ErrRequestTimeout, t.timeout)}
}

// drop abandons a pending request without completing it; the caller gave
// up on its own (context cancellation, write failure).
func (t *pendingTable) drop(id string) {
	t.take(id)
}

// failAll completes every outstanding request with err. Called on session
// teardown so no caller is left blocked; late frames for these ids hit an
// empty table and are dropped.
func (t *pendingTable) failAll(err error) {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[string]*pendingEntry)
	t.mu.Unlock()
	for _, e := range entries {
		if e.timer != nil {
			e.timer.Stop()
		}
		e.ch <- result{err: err}
	}
}

// Package gateway is the session layer between the app and the remote
// agent gateway: one authenticated WebSocket session at a time, request
// correlation, event decoding into chunks, and bounded reconnection.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ayano-dev/clawlink/internal/identity"
	"github.com/ayano-dev/clawlink/internal/protocol"
)

// SendOptions are the optional parameters of one agent request.
type SendOptions struct {
	SessionKey    string
	ThinkingLevel string
	Model         string
}

// Connector is the object the rest of the app talks to. Each instance
// owns its own connection state machine, so instances are independently
// testable; there is no process-wide singleton.
type Connector struct {
	logger     *slog.Logger
	ident      *identity.Store
	instanceID string

	// connectMu serializes Connect calls so two sessions never race to
	// update status; a second Connect while one is in flight waits, then
	// observes the result.
	connectMu sync.Mutex

	mu         sync.Mutex
	cfg        Config
	status     Status
	statusSubs map[int]func(Status)
	msgSubs    map[int]func(Chunk)
	nextSub    int

	// gen invalidates callbacks from a torn-down session; exactly one
	// session is live per generation.
	gen     int
	sess    *session
	hs      *handshake
	pending *pendingTable
	dec     *decoder

	protoVersion  int
	attempts      int
	retryTimer    *time.Timer
	closing       bool
	everConnected bool
}

// New creates a Connector. ident may be nil, in which case no device
// identity is sent or persisted.
func New(cfg Config, logger *slog.Logger, ident *identity.Store) *Connector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Connector{
		logger:     logger,
		ident:      ident,
		instanceID: uuid.NewString(),
		cfg:        cfg.withDefaults(),
		status:     StatusDisconnected,
		statusSubs: make(map[int]func(Status)),
		msgSubs:    make(map[int]func(Chunk)),
		dec:        &decoder{logger: logger},
	}
}

// Connect opens a session and drives the handshake to ready. It is a
// no-op when already connected. Status moves to connecting immediately,
// then to connected on success or error on failure (with the failure
// returned to the caller).
func (c *Connector) Connect(ctx context.Context) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	c.mu.Lock()
	if c.status == StatusConnected && c.hs != nil && c.hs.ready() {
		c.mu.Unlock()
		return nil
	}
	c.closing = false
	c.stopRetryLocked()
	c.mu.Unlock()

	c.transition(StatusConnecting)
	if err := c.establish(ctx); err != nil {
		c.transition(StatusError)
		return err
	}
	c.transition(StatusConnected)
	return nil
}

// Disconnect is idempotent and safe from any state: it cancels any
// scheduled reconnect, fails in-flight requests, closes the session if
// open, and forces status disconnected.
func (c *Connector) Disconnect() {
	c.mu.Lock()
	c.closing = true
	c.stopRetryLocked()
	sess := c.sess
	pending := c.pending
	c.sess = nil
	c.gen++
	c.mu.Unlock()

	if pending != nil {
		pending.failAll(ErrSessionClosed)
	}
	if sess != nil {
		sess.close()
	}
	c.transition(StatusDisconnected)
}

// SendMessage submits text to the agent. It resolves false with no
// network traffic when not connected, and true once the gateway accepts
// the run. The streamed reply arrives later through OnMessage.
func (c *Connector) SendMessage(ctx context.Context, text string, opts SendOptions) (bool, error) {
	c.mu.Lock()
	sess := c.sess
	pending := c.pending
	connected := c.status == StatusConnected && sess != nil
	c.mu.Unlock()
	if !connected {
		return false, nil
	}

	params := protocol.AgentParams{
		Message:       text,
		SessionKey:    opts.SessionKey,
		ThinkingLevel: opts.ThinkingLevel,
		Model:         opts.Model,
	}
	payload, err := c.request(ctx, sess, pending, protocol.MethodAgent, params)
	if err != nil {
		return false, err
	}
	var acc protocol.AgentAccepted
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &acc); err != nil {
			return false, fmt.Errorf("bad agent ack: %w", err)
		}
	}
	if acc.RunID != "" {
		c.logger.Debug("message accepted", "run_id", acc.RunID)
	}
	return true, nil
}

// OnMessage registers a subscriber for decoded chunks and returns its
// unsubscribe. Every subscriber is notified for every chunk; a panicking
// callback cannot suppress delivery to the others.
func (c *Connector) OnMessage(fn func(Chunk)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.msgSubs[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.msgSubs, id)
		c.mu.Unlock()
	}
}

// OnStatusChange registers a status subscriber and invokes it once,
// synchronously, with the current status, so late subscribers observe
// state, not only transitions. That initial call is deliberately not
// isolated: a panic propagates to the subscribing caller. Deliveries on
// later transitions are isolated like message callbacks.
func (c *Connector) OnStatusChange(fn func(Status)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.statusSubs[id] = fn
	current := c.status
	c.mu.Unlock()
	fn(current)
	return func() {
		c.mu.Lock()
		delete(c.statusSubs, id)
		c.mu.Unlock()
	}
}

// SetToken replaces the bearer token used by the next Connect. An open
// session is unaffected.
func (c *Connector) SetToken(token string) {
	c.mu.Lock()
	c.cfg.Token = token
	c.mu.Unlock()
}

// UpdateConfig replaces the parameters used by the next Connect. An open
// session is unaffected.
func (c *Connector) UpdateConfig(cfg Config) {
	c.mu.Lock()
	c.cfg = cfg.withDefaults()
	c.mu.Unlock()
}

// GetStatus returns a synchronous snapshot.
func (c *Connector) GetStatus() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Protocol returns the version negotiated by the last handshake, zero if
// none succeeded yet.
func (c *Connector) Protocol() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.protoVersion
}

// LastTick reports the gateway's most recent heartbeat, zero if none
// arrived yet.
func (c *Connector) LastTick() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dec.lastTick
}

// establish dials, wires up a fresh session generation, and waits for the
// handshake. On success the attempt counter resets; on failure the
// session is torn down and the error returned for the caller's policy.
func (c *Connector) establish(ctx context.Context) error {
	c.mu.Lock()
	cfg := c.cfg
	c.mu.Unlock()

	sess, err := dial(ctx, cfg.URL, cfg.Token, c.logger)
	if err != nil {
		return err
	}

	hs := newHandshake()
	pending := newPendingTable(cfg.RequestTimeout, c.logger)

	sctx, cancel := context.WithCancel(context.Background())
	sess.cancel = cancel

	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		sess.close()
		return ErrSessionClosed
	}
	c.gen++
	gen := c.gen
	c.sess = sess
	c.hs = hs
	c.pending = pending
	c.dec.reset()
	c.mu.Unlock()

	go sess.pingLoop(sctx, cfg.PingInterval)
	go func() {
		readErr := sess.readLoop(sctx, func(f protocol.Frame) {
			c.dispatch(gen, sess, hs, pending, f)
		})
		c.sessionClosed(gen, hs, pending, readErr)
	}()

	if _, err := hs.wait(ctx, cfg.HandshakeTimeout); err != nil {
		c.mu.Lock()
		if gen == c.gen {
			c.sess = nil
		}
		c.mu.Unlock()
		sess.close()
		pending.failAll(ErrSessionClosed)
		return err
	}

	c.mu.Lock()
	c.attempts = 0
	c.everConnected = true
	version := c.protoVersion
	c.mu.Unlock()
	c.logger.Info("gateway session ready", "protocol", version)
	return nil
}

// dispatch routes one inbound frame: responses to the pending table,
// the challenge to the handshake, everything else to the decoder.
func (c *Connector) dispatch(gen int, sess *session, hs *handshake, pending *pendingTable, f protocol.Frame) {
	switch f.Type {
	case protocol.FrameResponse:
		pending.resolve(f.ID, f.OK, f.Payload, f.Error)
	case protocol.FrameEvent:
		if f.Event == protocol.EventConnectChallenge {
			var p protocol.ChallengePayload
			if err := json.Unmarshal(f.Payload, &p); err != nil || p.Nonce == "" {
				c.logger.Warn("dropping malformed challenge", "error", err)
				return
			}
			if !hs.onChallenge() {
				return
			}
			go c.performHandshake(sess, hs, pending, p.Nonce)
			return
		}
		c.handleEvent(gen, f)
	}
}

func (c *Connector) handleEvent(gen int, f protocol.Frame) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	chunks := c.dec.decode(f.Event, f.Payload)
	subs := make([]func(Chunk), 0, len(c.msgSubs))
	for _, fn := range c.msgSubs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, ch := range chunks {
		for _, fn := range subs {
			c.safeNotify(fn, ch)
		}
	}
}

func (c *Connector) safeNotify(fn func(Chunk), ch Chunk) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("message subscriber panicked", "panic", r)
		}
	}()
	fn(ch)
}

// performHandshake answers the challenge with a connect request carrying
// client mode, instance id, and the stored device identity, then persists
// any token the gateway issues.
func (c *Connector) performHandshake(sess *session, hs *handshake, pending *pendingTable, nonce string) {
	c.mu.Lock()
	mode := c.cfg.Mode
	c.mu.Unlock()

	params := protocol.ConnectParams{
		Client: protocol.ClientInfo{Mode: mode, InstanceID: c.instanceID},
		Nonce:  nonce,
	}
	if c.ident != nil {
		ident, err := c.ident.Load()
		if err != nil {
			c.logger.Warn("device identity unavailable", "error", err)
		} else {
			// The persisted device id outlives the process, so the
			// gateway sees the same instance across restarts.
			if ident.DeviceID != "" {
				params.Client.InstanceID = ident.DeviceID
			}
			if ident.DeviceToken != "" {
				params.Auth = &protocol.AuthParams{DeviceToken: ident.DeviceToken}
			}
		}
	}

	payload, err := c.request(context.Background(), sess, pending, protocol.MethodConnect, params)
	if err != nil {
		hs.fail(fmt.Errorf("%w: %v", ErrHandshakeFailed, err))
		return
	}
	var hello protocol.HelloOK
	if err := json.Unmarshal(payload, &hello); err != nil {
		hs.fail(fmt.Errorf("%w: bad hello payload: %v", ErrHandshakeFailed, err))
		return
	}
	if c.ident != nil && hello.Auth != nil && hello.Auth.DeviceToken != "" {
		if err := c.ident.SaveToken(hello.Auth.DeviceToken); err != nil {
			c.logger.Warn("persist device token", "error", err)
		}
	}
	c.mu.Lock()
	c.protoVersion = hello.Protocol
	c.mu.Unlock()
	hs.succeed(&hello)
}

// request issues {id, method, params} and waits for the matching
// response. The per-request timeout lives in the pending table; ctx only
// lets the caller give up early.
func (c *Connector) request(ctx context.Context, sess *session, pending *pendingTable, method string, params any) (json.RawMessage, error) {
	e := pending.add()
	req := protocol.Request{ID: e.id, Method: method, Params: params}
	if err := sess.writeJSON(ctx, req); err != nil {
		pending.drop(e.id)
		return nil, err
	}
	select {
	case res := <-e.ch:
		return res.payload, res.err
	case <-ctx.Done():
		pending.drop(e.id)
		return nil, ctx.Err()
	}
}

// sessionClosed runs when a session's read loop exits. A close during
// Disconnect is terminal; a close before ready is surfaced through the
// handshake to whoever drives it; anything else is abnormal and goes
// through the reconnect policy.
func (c *Connector) sessionClosed(gen int, hs *handshake, pending *pendingTable, err error) {
	wasReady := hs.ready()
	hs.fail(fmt.Errorf("%w: %v", ErrHandshakeFailed, err))
	pending.failAll(ErrSessionClosed)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.sess = nil
	if !wasReady {
		c.mu.Unlock()
		return
	}
	if c.closing {
		c.mu.Unlock()
		c.transition(StatusDisconnected)
		return
	}
	c.logger.Warn("gateway session lost", "error", err)
	next := c.scheduleRetryLocked()
	c.mu.Unlock()
	if next != nil {
		c.transition(*next)
		return
	}
	c.transition(StatusConnecting)
}

// scheduleRetryLocked arms the next reconnect attempt or gives up once
// the budget is spent. Returns a terminal status to publish, if any.
// Caller holds c.mu.
func (c *Connector) scheduleRetryLocked() *Status {
	if c.closing {
		return nil
	}
	if c.attempts >= c.cfg.MaxReconnectAttempts {
		c.logger.Warn("reconnect attempts exhausted", "attempts", c.attempts)
		st := StatusError
		if !c.everConnected {
			st = StatusDisconnected
		}
		return &st
	}
	c.attempts++
	c.logger.Info("scheduling reconnect", "attempt", c.attempts, "delay", c.cfg.ReconnectInterval)
	c.retryTimer = time.AfterFunc(c.cfg.ReconnectInterval, c.retry)
	return nil
}

func (c *Connector) retry() {
	// Serialized with Connect so a user-driven connect and a scheduled
	// retry can never race to open two sessions.
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	c.mu.Lock()
	c.retryTimer = nil
	if c.closing || c.status == StatusConnected {
		c.mu.Unlock()
		return
	}
	cfg := c.cfg
	c.mu.Unlock()

	c.transition(StatusConnecting)
	ctx, cancel := context.WithTimeout(context.Background(), cfg.HandshakeTimeout)
	err := c.establish(ctx)
	cancel()
	if err == nil {
		c.transition(StatusConnected)
		return
	}
	c.logger.Warn("reconnect attempt failed", "error", err)

	c.mu.Lock()
	next := c.scheduleRetryLocked()
	c.mu.Unlock()
	if next != nil {
		c.transition(*next)
	}
}

// stopRetryLocked cancels a scheduled reconnect. Caller holds c.mu.
func (c *Connector) stopRetryLocked() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}

// transition publishes a status change to subscribers. No-op when the
// status is unchanged.
func (c *Connector) transition(st Status) {
	c.mu.Lock()
	if c.status == st {
		c.mu.Unlock()
		return
	}
	c.status = st
	subs := make([]func(Status), 0, len(c.statusSubs))
	for _, fn := range c.statusSubs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("status subscriber panicked", "panic", r)
				}
			}()
			fn(st)
		}()
	}
}

// Package chat provides a Go client for the realtime chat backend. It keeps
// one authenticated WebSocket channel open, correlates requests with their
// responses, reconnects with backoff when the channel drops, and fans out
// server pushes (messages, acks, read receipts, presence) as typed events.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/NeboLoop/chat-go-sdk/event"
	"github.com/NeboLoop/chat-go-sdk/frame"
	"github.com/NeboLoop/chat-go-sdk/wire"
)

const (
	defaultRequestTimeout    = 10 * time.Second
	defaultHeartbeatInterval = 20 * time.Second

	inboxSize       = 256
	writeBufferSize = 256
)

var (
	errAuthTimeout      = errors.New("no auth response")
	errHeartbeatTimeout = errors.New("heartbeat timeout")
)

// Config holds connection parameters.
type Config struct {
	Endpoint          string        // WebSocket URL (e.g. "wss://chat.example.com/ws")
	APIEndpoint       string        // REST API URL; derived from Endpoint if empty
	RequestTimeout    time.Duration // default deadline for correlated calls (10s)
	AuthTimeout       time.Duration // wait for auth_success; defaults to RequestTimeout
	HeartbeatInterval time.Duration // liveness ping period (20s)
	Backoff           Backoff       // reconnection schedule; zero fields take defaults
	Logger            *slog.Logger  // defaults to slog.Default()
	Dialer            Dialer        // defaults to WSDialer{}
	Clock             Clock         // defaults to SystemClock()
}

func (cfg Config) withDefaults() Config {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = cfg.RequestTimeout
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	cfg.Backoff = cfg.Backoff.withDefaults()
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Dialer == nil {
		cfg.Dialer = WSDialer{}
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock()
	}
	return cfg
}

// Client owns the connection to the chat server. Construct one per session
// with New and share it by reference.
//
// Every piece of connection state (status, the live channel, pending
// requests, the outbound queue, heartbeat and reconnect timers) is owned by a
// single loop goroutine. Public methods post commands to that loop; socket
// reads, dials and timers post their results back to it.
type Client struct {
	cfg    Config
	logger *slog.Logger
	clock  Clock
	events *event.Dispatcher
	pump   *eventPump

	inbox     chan input
	done      chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once

	snapMu   sync.RWMutex
	snap     Status
	snapUser string

	// Owned by run.
	status         Status
	attempts       int
	token          string
	userID         string
	gen            uint64
	conn           Conn
	writeCh        chan []byte
	writerStop     chan struct{}
	writerDone     chan struct{}
	lastRecv       time.Time
	dialCancel     context.CancelFunc
	authTimer      Timer
	reconnectTimer Timer
	waiters        []chan connectOutcome
	correlator     *correlator
	queue          outboundQueue
	heartbeat      *heartbeat
}

// New creates a disconnected client and starts its event loop. Call Close to
// release it.
func New(cfg Config) *Client {
	cfg = cfg.withDefaults()
	c := &Client{
		cfg:      cfg,
		logger:   cfg.Logger,
		clock:    cfg.Clock,
		events:   event.NewDispatcher(cfg.Logger),
		inbox:    make(chan input, inboxSize),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	c.pump = newEventPump(c.events)
	c.correlator = newCorrelator(c.clock.Now)
	c.heartbeat = newHeartbeat(c.clock, cfg.HeartbeatInterval, c.post)

	go c.pump.run()
	go c.run()
	return c
}

// Dial creates a client and connects it with token.
func Dial(ctx context.Context, cfg Config, token string) (*Client, error) {
	c := New(cfg)
	if _, err := c.Connect(ctx, token); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// Events returns the dispatcher carrying lifecycle events and server pushes.
func (c *Client) Events() *event.Dispatcher { return c.events }

// Status returns the current connection status.
func (c *Client) Status() Status {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.snap
}

// UserID returns the authenticated user id, or "" when not connected.
func (c *Client) UserID() string {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.snapUser
}

// Connect opens and authenticates the channel. It returns immediately if the
// client is already connected, whatever token is passed. Otherwise an empty
// token fails with *AuthError. Concurrent calls share one outcome. ctx only
// bounds how long the caller waits.
func (c *Client) Connect(ctx context.Context, token string) (string, error) {
	reply := make(chan connectOutcome, 1)
	if err := c.postCtx(ctx, connectCmd{token: token, reply: reply}); err != nil {
		return "", err
	}
	select {
	case out := <-reply:
		return out.userID, out.err
	case <-ctx.Done():
		return "", ctx.Err()
	case <-c.done:
		return "", ErrClientClosed
	}
}

// Disconnect closes the channel normally, cancels reconnection and rejects
// every pending call. It is idempotent.
func (c *Client) Disconnect() {
	reply := make(chan struct{})
	if !c.post(disconnectCmd{reply: reply}) {
		return
	}
	select {
	case <-reply:
	case <-c.done:
	}
}

// Close disconnects, stops the event loop and delivers any events still
// queued for listeners.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	<-c.loopDone
	c.pump.close()
	return nil
}

// Send issues an uncorrelated frame. Frames issued while the channel is not
// usable are queued and sent in order once connected.
func (c *Client) Send(ctx context.Context, typ string, payload any) error {
	data, err := frame.Encode(typ, payload)
	if err != nil {
		return err
	}
	return c.postCtx(ctx, sendCmd{data: data})
}

// Call issues a correlated request and waits for the matching response.
// timeout <= 0 uses Config.RequestTimeout. An error response yields a
// *ServerError, no response a *TimeoutError, and a dropped channel
// ErrConnectionClosed. Cancelling ctx stops the wait but not the request.
func (c *Client) Call(ctx context.Context, typ string, payload any, timeout time.Duration) (frame.Frame, error) {
	data, err := frame.Encode(typ, payload)
	if err != nil {
		return frame.Frame{}, err
	}
	id := frame.NewRequestID()
	if data, err = frame.WithRequestID(data, id); err != nil {
		return frame.Frame{}, err
	}

	reply := make(chan callResult, 1)
	cmd := callCmd{requestID: id, typ: typ, data: data, timeout: timeout, reply: reply}
	if err := c.postCtx(ctx, cmd); err != nil {
		return frame.Frame{}, err
	}
	select {
	case res := <-reply:
		return res.frame, res.err
	case <-ctx.Done():
		return frame.Frame{}, ctx.Err()
	case <-c.done:
		return frame.Frame{}, ErrClientClosed
	}
}

// --- Loop inputs ---

// input is anything posted to the client loop.
type input any

type connectOutcome struct {
	userID string
	err    error
}

type connectCmd struct {
	token string
	reply chan connectOutcome
}

type disconnectCmd struct{ reply chan struct{} }

type sendCmd struct{ data []byte }

type callCmd struct {
	requestID string
	typ       string
	data      []byte
	timeout   time.Duration
	reply     chan callResult
}

type statsCmd struct{ reply chan clientStats }

type clientStats struct {
	pending int
	queued  int
}

type dialResult struct {
	gen  uint64
	conn Conn
	err  error
}

type frameIn struct {
	gen  uint64
	data []byte
}

type connClosed struct {
	gen uint64
	err error
}

type callTimeout struct{ requestID string }

type authTimeout struct{ gen uint64 }

type heartbeatTick struct{ gen uint64 }

type reconnectDue struct{ attempt int }

// post hands an input to the loop. It reports false once the client is
// closed.
func (c *Client) post(in input) bool {
	select {
	case c.inbox <- in:
		return true
	case <-c.done:
		return false
	}
}

func (c *Client) postCtx(ctx context.Context, in input) error {
	select {
	case c.inbox <- in:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClientClosed
	}
}

// --- Loop ---

func (c *Client) run() {
	defer close(c.loopDone)
	for {
		select {
		case in := <-c.inbox:
			c.handle(in)
		case <-c.done:
			c.teardown(ErrClientClosed)
			return
		}
	}
}

func (c *Client) handle(in input) {
	switch in := in.(type) {
	case connectCmd:
		c.handleConnect(in)
	case disconnectCmd:
		c.teardown(ErrConnectionClosed)
		c.token = ""
		close(in.reply)
	case sendCmd:
		c.submit("", in.data)
	case callCmd:
		c.handleCall(in)
	case statsCmd:
		in.reply <- clientStats{pending: c.correlator.len(), queued: c.queue.len()}
	case dialResult:
		c.handleDial(in)
	case frameIn:
		c.handleFrame(in)
	case connClosed:
		c.handleClosed(in)
	case callTimeout:
		if p := c.correlator.expire(in.requestID); p != nil {
			c.queue.remove(in.requestID)
			c.logger.Debug("request timed out", "type", p.typ, "request_id", p.requestID, "timeout", p.timeout)
		}
	case authTimeout:
		c.handleAuthTimeout(in)
	case heartbeatTick:
		c.handleHeartbeat(in)
	case reconnectDue:
		c.handleReconnectDue(in)
	default:
		c.logger.Error("unknown loop input", "input", fmt.Sprintf("%T", in))
	}
}

// setStatus applies a transition from the table in state.go and emits
// status:change. Illegal transitions are refused.
func (c *Client) setStatus(next Status) bool {
	prev := c.status
	if prev == next {
		return true
	}
	if prev.State != next.State && !canTransition(prev.State, next.State) {
		c.logger.Error("illegal state transition", "from", prev.String(), "to", next.String())
		return false
	}
	c.status = next
	if next.State != StateConnected {
		c.userID = ""
	}

	c.snapMu.Lock()
	c.snap = next
	c.snapUser = c.userID
	c.snapMu.Unlock()

	c.logger.Debug("status change", "from", prev.String(), "to", next.String())
	c.emit(event.StatusChanged{Status: next.String(), Previous: prev.String(), Attempt: next.Attempt})
	return true
}

func (c *Client) emit(e event.Event) { c.pump.push(e) }

// --- Connect / dial ---

func (c *Client) handleConnect(in connectCmd) {
	if c.status.State == StateConnected {
		in.reply <- connectOutcome{userID: c.userID}
		return
	}
	if in.token == "" {
		in.reply <- connectOutcome{err: &AuthError{Message: "missing token"}}
		return
	}
	switch c.status.State {
	case StateConnecting, StateAuthenticating:
		if in.token == c.token {
			c.waiters = append(c.waiters, in.reply)
			return
		}
	}
	c.token = in.token
	c.attempts = 0
	c.waiters = append(c.waiters, in.reply)
	c.stopReconnect()
	c.dial()
}

// dial releases any previous channel and opens a new one in the background.
func (c *Client) dial() {
	c.cancelDialing()
	c.releaseConn(CloseNormal, "reconnecting")
	c.gen++
	gen := c.gen
	c.setStatus(Status{State: StateConnecting, Attempt: c.attempts})

	ctx, cancel := context.WithCancel(context.Background())
	c.dialCancel = cancel
	endpoint := c.cfg.Endpoint
	go func() {
		conn, err := c.cfg.Dialer.Dial(ctx, endpoint)
		if !c.post(dialResult{gen: gen, conn: conn, err: err}) && conn != nil {
			conn.Close(CloseGoingAway, "client closed")
		}
	}()
}

func (c *Client) handleDial(in dialResult) {
	if in.gen != c.gen || c.status.State != StateConnecting {
		if in.conn != nil {
			go in.conn.Close(CloseNormal, "superseded")
		}
		return
	}
	c.cancelDialing()
	if in.err != nil {
		c.logger.Warn("dial failed", "endpoint", c.cfg.Endpoint, "attempt", c.attempts, "error", in.err)
		c.lost(&ChannelError{Err: in.err})
		return
	}

	c.attach(in.gen, in.conn)
	auth, err := frame.Encode(frame.TypeAuth, wire.AuthPayload{Token: c.token})
	if err != nil {
		c.releaseConn(CloseNormal, "")
		c.lost(&ChannelError{Err: err})
		return
	}
	c.setStatus(Status{State: StateAuthenticating, Attempt: c.attempts})
	c.writeNow(auth)

	gen := in.gen
	c.authTimer = c.clock.AfterFunc(c.cfg.AuthTimeout, func() {
		c.post(authTimeout{gen: gen})
	})
}

func (c *Client) attach(gen uint64, conn Conn) {
	c.conn = conn
	c.writeCh = make(chan []byte, writeBufferSize)
	c.writerStop = make(chan struct{})
	c.writerDone = make(chan struct{})
	c.lastRecv = c.clock.Now()

	go c.readLoop(gen, conn)
	go c.writeLoop(gen, conn, c.writeCh, c.writerStop, c.writerDone)
}

func (c *Client) handleAuthSuccess(f frame.Frame) {
	if c.status.State != StateAuthenticating {
		c.logger.Debug("ignoring auth_success", "status", c.status.String())
		return
	}
	var p wire.AuthSuccessPayload
	if err := f.Unmarshal(&p); err != nil {
		c.logger.Warn("bad auth_success", "error", err)
		return
	}
	c.stopAuthTimer()
	c.userID = p.UserID
	c.attempts = 0
	c.setStatus(Status{State: StateConnected})
	c.heartbeat.start(c.gen)
	c.flushQueue()

	for _, w := range c.waiters {
		w <- connectOutcome{userID: p.UserID}
	}
	c.waiters = nil

	c.logger.Info("connected to chat server", "endpoint", c.cfg.Endpoint, "user_id", p.UserID)
	c.emit(event.Connected{UserID: p.UserID})
}

func (c *Client) handleAuthError(f frame.Frame) {
	if c.status.State != StateAuthenticating {
		c.logger.Debug("ignoring auth_error", "status", c.status.String())
		return
	}
	msg := f.Message()
	if msg == "" {
		msg = "authentication rejected"
	}
	c.releaseConn(CloseNormal, "authentication failed")
	c.attempts = 0
	c.setStatus(Status{State: StateAuthError})
	c.failWaiters(&AuthError{Message: msg})

	c.logger.Warn("authentication rejected", "message", msg)
	c.emit(event.AuthFailed{Message: msg})
}

func (c *Client) handleAuthTimeout(in authTimeout) {
	if in.gen != c.gen || c.status.State != StateAuthenticating {
		return
	}
	c.logger.Warn("no auth response", "timeout", c.cfg.AuthTimeout)
	c.releaseConn(CloseNormal, "auth timeout")
	c.lost(&ChannelError{Err: errAuthTimeout})
}

func (c *Client) failWaiters(err error) {
	for _, w := range c.waiters {
		w <- connectOutcome{err: err}
	}
	c.waiters = nil
}

// --- Reading / writing ---

func (c *Client) readLoop(gen uint64, conn Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			c.post(connClosed{gen: gen, err: err})
			return
		}
		if !c.post(frameIn{gen: gen, data: data}) {
			return
		}
	}
}

// writeLoop drains out onto conn. done closes before the failure is posted,
// since the loop may itself be blocked in writeNow waiting on it.
func (c *Client) writeLoop(gen uint64, conn Conn, out <-chan []byte, stop, done chan struct{}) {
	for {
		select {
		case data := <-out:
			if err := conn.WriteMessage(data); err != nil {
				close(done)
				c.logger.Warn("write error", "error", err)
				c.post(connClosed{gen: gen, err: err})
				return
			}
		case <-stop:
			close(done)
			return
		}
	}
}

// writeNow hands data to the current channel's writer, bypassing the queue.
func (c *Client) writeNow(data []byte) bool {
	if c.conn == nil {
		return false
	}
	select {
	case c.writeCh <- data:
		return true
	case <-c.writerDone:
		return false
	}
}

// submit sends data if connected, otherwise queues it.
func (c *Client) submit(requestID string, data []byte) {
	if c.status.State == StateConnected && c.queue.len() == 0 && c.writeNow(data) {
		if requestID != "" {
			c.correlator.markSent(requestID)
		}
		return
	}
	c.queue.push(requestID, data)
}

func (c *Client) flushQueue() {
	items := c.queue.drain()
	for i, it := range items {
		if !c.writeNow(it.data) {
			c.queue.requeueFront(items[i:])
			return
		}
		if it.requestID != "" {
			c.correlator.markSent(it.requestID)
		}
	}
	if len(items) > 0 {
		c.logger.Debug("flushed outbound queue", "frames", len(items))
	}
}

func (c *Client) handleCall(in callCmd) {
	timeout := in.timeout
	if timeout <= 0 {
		timeout = c.cfg.RequestTimeout
	}
	id := in.requestID
	p := &pendingRequest{
		requestID: id,
		typ:       in.typ,
		createdAt: c.clock.Now(),
		timeout:   timeout,
		data:      in.data,
		reply:     in.reply,
	}
	p.timer = c.clock.AfterFunc(timeout, func() {
		c.post(callTimeout{requestID: id})
	})
	c.correlator.register(p)
	c.submit(id, in.data)
}

// --- Inbound frames ---

func (c *Client) handleFrame(in frameIn) {
	if in.gen != c.gen || c.conn == nil {
		return
	}
	c.lastRecv = c.clock.Now()

	f, err := frame.Decode(in.data)
	if err != nil {
		c.logger.Debug("bad frame", "error", err)
		return
	}

	switch f.Type {
	case frame.TypeAuthSuccess:
		c.handleAuthSuccess(f)
		return
	case frame.TypeAuthError:
		c.handleAuthError(f)
		return
	case frame.TypePing:
		if pong, err := frame.Encode(frame.TypePong, nil); err == nil {
			c.writeNow(pong)
		}
		return
	case frame.TypePong:
		return
	}

	if f.RequestID != "" {
		if c.correlator.resolve(f) {
			return
		}
		if c.correlator.isLateDuplicate(f.RequestID) {
			c.logger.Debug("dropping late response", "type", f.Type, "request_id", f.RequestID)
			return
		}
	}
	c.route(f)
}

// --- Closure / reconnection ---

func (c *Client) handleClosed(in connClosed) {
	if in.gen != c.gen || c.conn == nil {
		return
	}
	code, reason := closeInfo(in.err)
	c.releaseConn(CloseAbnormal, "")

	if code == CloseNormal {
		c.logger.Info("connection closed by server", "reason", reason)
		c.correlator.rejectSent(ErrConnectionClosed)
		c.failWaiters(fmt.Errorf("connect: %w", ErrConnectionClosed))
		c.attempts = 0
		c.setStatus(Status{State: StateDisconnected})
		return
	}

	c.logger.Warn("connection closed abnormally", "code", code, "reason", reason)
	c.emit(event.AbnormalClosure{Code: code, Reason: reason})
	c.lost(&ChannelError{Err: in.err})
}

// lost handles an unexpected loss of the channel: the connect outcome (if
// any) fails, requests already on the wire are rejected, and the next
// reconnection attempt is scheduled.
func (c *Client) lost(cause error) {
	switch c.status.State {
	case StateConnecting, StateAuthenticating:
		c.failWaiters(cause)
	}
	if n := c.correlator.rejectSent(ErrConnectionClosed); n > 0 {
		c.logger.Debug("rejected in-flight requests", "count", n)
	}
	c.emit(event.Error{Err: cause})
	c.scheduleReconnect()
}

func (c *Client) scheduleReconnect() {
	if c.token == "" {
		c.setStatus(Status{State: StateDisconnected})
		return
	}
	if c.attempts >= c.cfg.Backoff.MaxAttempts {
		attempts := c.attempts
		c.setStatus(Status{State: StateFailed, Attempt: attempts})
		c.correlator.rejectAll(ErrConnectionClosed)
		c.queue.clear()
		c.logger.Error("giving up reconnecting", "endpoint", c.cfg.Endpoint, "attempts", attempts)
		c.emit(event.ConnectionFailed{Attempts: attempts})
		return
	}

	c.attempts++
	attempt := c.attempts
	delay := c.cfg.Backoff.Delay(attempt)
	c.setStatus(Status{State: StateReconnecting, Attempt: attempt})
	c.logger.Info("reconnecting", "attempt", attempt, "delay", delay)
	c.reconnectTimer = c.clock.AfterFunc(delay, func() {
		c.post(reconnectDue{attempt: attempt})
	})
}

func (c *Client) handleReconnectDue(in reconnectDue) {
	if c.status.State != StateReconnecting || in.attempt != c.attempts {
		return
	}
	c.reconnectTimer = nil
	c.dial()
}

func (c *Client) handleHeartbeat(in heartbeatTick) {
	if c.status.State != StateConnected || in.gen != c.gen || !c.heartbeat.active(in.gen) {
		return
	}
	if silent := c.clock.Now().Sub(c.lastRecv); silent > c.heartbeat.deadline() {
		c.logger.Warn("heartbeat timeout", "silent_for", silent)
		c.releaseConn(CloseHeartbeatTimeout, "heartbeat timeout")
		c.emit(event.AbnormalClosure{Code: CloseHeartbeatTimeout, Reason: "heartbeat timeout"})
		c.lost(&ChannelError{Err: errHeartbeatTimeout})
		return
	}
	if ping, err := frame.Encode(frame.TypePing, nil); err == nil {
		c.writeNow(ping)
	}
	c.heartbeat.schedule()
}

// --- Teardown ---

// releaseConn closes the current channel and retires its generation so
// late reads, writes and ticks from it are ignored.
func (c *Client) releaseConn(code int, reason string) {
	c.stopAuthTimer()
	c.heartbeat.stop()
	if c.conn == nil {
		return
	}
	conn := c.conn
	c.conn = nil
	close(c.writerStop)
	c.requeueUnwritten()
	c.writeCh = nil
	c.gen++
	go conn.Close(code, reason)
}

// requeueUnwritten moves fire-and-forget frames still buffered for the
// retired writer back to the head of the queue. Correlated frames were
// already marked sent and are rejected with the channel; control frames
// belong to the old session.
func (c *Client) requeueUnwritten() {
	var items []queuedFrame
	for {
		select {
		case data := <-c.writeCh:
			f, err := frame.Decode(data)
			if err != nil || f.RequestID != "" {
				continue
			}
			switch f.Type {
			case frame.TypeAuth, frame.TypePing, frame.TypePong:
				continue
			}
			items = append(items, queuedFrame{data: data})
		default:
			if len(items) > 0 {
				c.logger.Debug("requeued unwritten frames", "frames", len(items))
			}
			c.queue.requeueFront(items)
			return
		}
	}
}

func (c *Client) teardown(cause error) {
	c.stopReconnect()
	c.cancelDialing()
	c.releaseConn(CloseNormal, "client disconnect")
	c.gen++
	c.correlator.rejectAll(cause)
	c.queue.clear()
	c.failWaiters(fmt.Errorf("connect: %w", cause))
	c.attempts = 0
	c.setStatus(Status{State: StateDisconnected})
}

func (c *Client) stopAuthTimer() {
	if c.authTimer != nil {
		c.authTimer.Stop()
		c.authTimer = nil
	}
}

func (c *Client) stopReconnect() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

func (c *Client) cancelDialing() {
	if c.dialCancel != nil {
		c.dialCancel()
		c.dialCancel = nil
	}
}

// stats reports loop-owned counters; used by tests.
func (c *Client) stats() clientStats {
	reply := make(chan clientStats, 1)
	if !c.post(statsCmd{reply: reply}) {
		return clientStats{}
	}
	select {
	case s := <-reply:
		return s
	case <-c.done:
		return clientStats{}
	}
}

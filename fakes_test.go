package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/NeboLoop/chat-go-sdk/event"
	"github.com/NeboLoop/chat-go-sdk/frame"
)

const waitFor = 2 * time.Second

// --- Clock ---

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Advance moves time forward and runs every timer that came due, in order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

// pending returns the durations of timers that have not fired or stopped.
func (c *fakeClock) pending() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []time.Duration
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t.d)
		}
	}
	return out
}

// --- Transport ---

var errConnDropped = errors.New("connection reset by peer")

type fakeConn struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}

	mu        sync.Mutex
	once      sync.Once
	readErr   error
	closeCode int
	stalled   chan []byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 64),
		out:    make(chan []byte, 256),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.in:
		return data, nil
	case <-c.closed:
		c.mu.Lock()
		defer c.mu.Unlock()
		return nil, c.readErr
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	select {
	case <-c.closed:
		return io.ErrClosedPipe
	default:
	}
	c.mu.Lock()
	stalled := c.stalled
	c.mu.Unlock()
	if stalled != nil {
		stalled <- data
		<-c.closed
		return io.ErrClosedPipe
	}
	c.out <- data
	return nil
}

// stall makes the next write hang until the connection closes. The frame is
// reported on the returned channel instead of out.
func (c *fakeConn) stall() <-chan []byte {
	ch := make(chan []byte, 1)
	c.mu.Lock()
	c.stalled = ch
	c.mu.Unlock()
	return ch
}

func (c *fakeConn) Close(code int, reason string) error {
	c.shut(code, &CloseError{Code: code, Reason: reason})
	return nil
}

func (c *fakeConn) shut(code int, readErr error) {
	c.once.Do(func() {
		c.mu.Lock()
		c.closeCode = code
		c.readErr = readErr
		c.mu.Unlock()
		close(c.closed)
	})
}

// drop simulates a network failure.
func (c *fakeConn) drop() { c.shut(CloseAbnormal, errConnDropped) }

// serverClose simulates a close handshake initiated by the server.
func (c *fakeConn) serverClose(code int) { c.shut(code, &CloseError{Code: code}) }

func (c *fakeConn) code() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// push sends a server frame to the client.
func (c *fakeConn) push(t *testing.T, typ string, payload any) {
	t.Helper()
	data, err := frame.Encode(typ, payload)
	require.NoError(t, err)
	c.in <- data
}

// reply answers request with a frame of typ carrying payload.
func (c *fakeConn) reply(t *testing.T, request frame.Frame, typ string, payload any) {
	t.Helper()
	data, err := frame.Encode(typ, payload)
	require.NoError(t, err)
	data, err = frame.WithRequestID(data, request.RequestID)
	require.NoError(t, err)
	c.in <- data
}

// expect waits for the next client frame and checks its type.
func (c *fakeConn) expect(t *testing.T, typ string) frame.Frame {
	t.Helper()
	select {
	case data := <-c.out:
		f, err := frame.Decode(data)
		require.NoError(t, err)
		require.Equal(t, typ, f.Type, "frame %s", data)
		return f
	case <-time.After(waitFor):
		t.Fatalf("timed out waiting for %s frame", typ)
		return frame.Frame{}
	}
}

func (c *fakeConn) expectNothing(t *testing.T) {
	t.Helper()
	select {
	case data := <-c.out:
		t.Fatalf("unexpected frame %s", data)
	default:
	}
}

type fakeDialer struct {
	mu    sync.Mutex
	fail  bool
	dials int
	conns chan *fakeConn
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{conns: make(chan *fakeConn, 64)}
}

func (d *fakeDialer) Dial(_ context.Context, _ string) (Conn, error) {
	d.mu.Lock()
	d.dials++
	fail := d.fail
	d.mu.Unlock()
	if fail {
		return nil, errors.New("connection refused")
	}
	c := newFakeConn()
	d.conns <- c
	return c, nil
}

func (d *fakeDialer) setFail(fail bool) {
	d.mu.Lock()
	d.fail = fail
	d.mu.Unlock()
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) next(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case c := <-d.conns:
		return c
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for dial")
		return nil
	}
}

// --- Events ---

type eventLog struct {
	mu     sync.Mutex
	events []event.Event
}

var allNames = []event.Name{
	event.NameStatusChange, event.NameConnected, event.NameAuthError, event.NameError,
	event.NameConnectionFailed, event.NameAbnormalClosure, event.NameDirectMessage,
	event.NameDirectMessageAck, event.NameDirectMessageHistory, event.NameGroupMessage,
	event.NameGroupMessageAck, event.NameGroupMessageHistory, event.NameMessageRead,
	event.NameGroupRead, event.NameUserStatus,
}

func (l *eventLog) HandleEvent(e event.Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) all() []event.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]event.Event(nil), l.events...)
}

func (l *eventLog) named(name event.Name) []event.Event {
	var out []event.Event
	for _, e := range l.all() {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

func (l *eventLog) statuses() []string {
	var out []string
	for _, e := range l.named(event.NameStatusChange) {
		out = append(out, e.(event.StatusChanged).Status)
	}
	return out
}

// --- Harness ---

type testEnv struct {
	c      *Client
	clock  *fakeClock
	dialer *fakeDialer
	log    *eventLog
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{clock: newFakeClock(), dialer: newFakeDialer(), log: &eventLog{}}
	env.c = New(Config{
		Endpoint: "ws://chat.test/ws",
		Dialer:   env.dialer,
		Clock:    env.clock,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	for _, name := range allNames {
		env.c.Events().Subscribe(name, env.log)
	}
	t.Cleanup(func() { env.c.Close() })
	return env
}

// sync waits until the loop has handled everything posted so far.
func (env *testEnv) sync() clientStats { return env.c.stats() }

func (env *testEnv) waitStatus(t *testing.T, want string) {
	t.Helper()
	require.Eventually(t, func() bool { return env.c.Status().String() == want },
		waitFor, time.Millisecond, "status %s, want %s", env.c.Status(), want)
}

func (env *testEnv) waitEvent(t *testing.T, name event.Name) event.Event {
	t.Helper()
	var got event.Event
	require.Eventually(t, func() bool {
		evs := env.log.named(name)
		if len(evs) == 0 {
			return false
		}
		got = evs[len(evs)-1]
		return true
	}, waitFor, time.Millisecond, "no %s event", name)
	return got
}

// connect runs a full handshake and returns the server side of the channel.
func (env *testEnv) connect(t *testing.T) *fakeConn {
	t.Helper()
	type result struct {
		userID string
		err    error
	}
	done := make(chan result, 1)
	go func() {
		id, err := env.c.Connect(context.Background(), "good-token")
		done <- result{id, err}
	}()

	conn := env.dialer.next(t)
	env.handshake(t, conn)

	select {
	case r := <-done:
		require.NoError(t, r.err)
		require.Equal(t, "u1", r.userID)
	case <-time.After(waitFor):
		t.Fatal("connect did not return")
	}
	return conn
}

// handshake answers the auth frame on conn.
func (env *testEnv) handshake(t *testing.T, conn *fakeConn) {
	t.Helper()
	auth := conn.expect(t, frame.TypeAuth)
	require.Contains(t, string(auth.Raw), `"token":"good-token"`)
	conn.push(t, frame.TypeAuthSuccess, map[string]string{"userId": "u1"})
}

type callOutcome struct {
	f   frame.Frame
	err error
}

// goCall issues a call on its own goroutine.
func (env *testEnv) goCall(typ string, payload any, timeout time.Duration) <-chan callOutcome {
	ch := make(chan callOutcome, 1)
	go func() {
		f, err := env.c.Call(context.Background(), typ, payload, timeout)
		ch <- callOutcome{f, err}
	}()
	return ch
}

func await(t *testing.T, ch <-chan callOutcome) callOutcome {
	t.Helper()
	select {
	case out := <-ch:
		return out
	case <-time.After(waitFor):
		t.Fatal("call did not complete")
		return callOutcome{}
	}
}

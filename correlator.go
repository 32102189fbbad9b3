package chat

import (
	"fmt"
	"time"

	"github.com/NeboLoop/chat-go-sdk/frame"
)

type callResult struct {
	frame frame.Frame
	err   error
}

// pendingRequest is one in-flight correlated call.
type pendingRequest struct {
	requestID string
	typ       string
	createdAt time.Time
	timeout   time.Duration
	timer     Timer
	data      []byte
	sent      bool
	reply     chan callResult // capacity 1
}

// correlator tracks pending requests by id. It is owned by the client loop;
// every entry is removed before its reply is delivered, so each call gets
// exactly one outcome.
type correlator struct {
	pending  map[string]*pendingRequest
	resolved *frame.DedupWindow
}

func newCorrelator(now func() time.Time) *correlator {
	return &correlator{
		pending:  make(map[string]*pendingRequest),
		resolved: frame.NewDedupWindowSize(1000, 5*time.Minute, now),
	}
}

func (c *correlator) register(p *pendingRequest) {
	c.pending[p.requestID] = p
}

func (c *correlator) take(id string) *pendingRequest {
	p, ok := c.pending[id]
	if !ok {
		return nil
	}
	delete(c.pending, id)
	if p.timer != nil {
		p.timer.Stop()
	}
	return p
}

func (c *correlator) markSent(id string) {
	if p, ok := c.pending[id]; ok {
		p.sent = true
	}
}

// resolve completes the call matching f.RequestID. It returns false if no
// call is waiting for that id.
func (c *correlator) resolve(f frame.Frame) bool {
	p := c.take(f.RequestID)
	if p == nil {
		return false
	}
	c.resolved.Add(f.RequestID)
	if f.IsError() {
		p.reply <- callResult{err: &ServerError{RequestID: f.RequestID, Message: f.Message()}}
		return true
	}
	p.reply <- callResult{frame: f}
	return true
}

// isLateDuplicate reports whether id belongs to a call that already got its
// outcome.
func (c *correlator) isLateDuplicate(id string) bool {
	return c.resolved.Contains(id)
}

// expire rejects the call with a timeout error.
func (c *correlator) expire(id string) *pendingRequest {
	p := c.take(id)
	if p == nil {
		return nil
	}
	c.resolved.Add(id)
	p.reply <- callResult{err: &TimeoutError{Type: p.typ, RequestID: id, After: p.timeout}}
	return p
}

// rejectSent rejects every call whose frame already went out on a channel
// that is now gone. Calls still sitting in the outbound queue stay pending.
func (c *correlator) rejectSent(cause error) int {
	n := 0
	for id, p := range c.pending {
		if !p.sent {
			continue
		}
		c.take(id)
		c.resolved.Add(id)
		p.reply <- callResult{err: fmt.Errorf("%s: %w", p.typ, cause)}
		n++
	}
	return n
}

// rejectAll rejects every pending call.
func (c *correlator) rejectAll(cause error) int {
	n := 0
	for id, p := range c.pending {
		c.take(id)
		c.resolved.Add(id)
		p.reply <- callResult{err: fmt.Errorf("%s: %w", p.typ, cause)}
		n++
	}
	return n
}

func (c *correlator) len() int { return len(c.pending) }

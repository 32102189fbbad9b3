package chat

import (
	"sync"

	"github.com/NeboLoop/chat-go-sdk/event"
	"github.com/NeboLoop/chat-go-sdk/frame"
	"github.com/NeboLoop/chat-go-sdk/wire"
)

// eventPump delivers events to the dispatcher on its own goroutine, in the
// order they were pushed. Listeners therefore never block the client loop.
// A listener must not call Client.Close, which waits for the pump to drain.
type eventPump struct {
	d    *event.Dispatcher
	wake chan struct{}
	done chan struct{}

	mu     sync.Mutex
	queue  []event.Event
	closed bool
}

func newEventPump(d *event.Dispatcher) *eventPump {
	return &eventPump{
		d:    d,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (p *eventPump) push(e event.Event) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.queue = append(p.queue, e)
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *eventPump) run() {
	defer close(p.done)
	for {
		p.mu.Lock()
		batch := p.queue
		p.queue = nil
		closed := p.closed
		p.mu.Unlock()

		for _, e := range batch {
			p.d.Publish(e)
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-p.wake
	}
}

// close stops accepting events and waits until queued ones are delivered.
func (p *eventPump) close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
	<-p.done
}

// route turns an unsolicited frame into a typed event.
func (c *Client) route(f frame.Frame) {
	switch f.Type {
	case frame.TypeChatMessage:
		if p, ok := decodePush[wire.MessagePush](c, f); ok {
			c.emit(event.DirectMessage{Message: p.Message})
		}
	case frame.TypeGroupChatMessage:
		if p, ok := decodePush[wire.MessagePush](c, f); ok {
			c.emit(event.GroupMessage{Message: p.Message})
		}
	case frame.TypeMessageAck:
		if p, ok := decodePush[wire.MessageAck](c, f); ok {
			c.emit(event.DirectMessageAck{Ack: p})
		}
	case frame.TypeGroupMessageSent:
		if p, ok := decodePush[wire.MessageAck](c, f); ok {
			c.emit(event.GroupMessageAck{Ack: p})
		}
	case frame.TypeDirectHistory:
		if p, ok := decodePush[wire.History](c, f); ok {
			c.emit(event.DirectMessageHistory{History: p})
		}
	case frame.TypeGroupHistory:
		if p, ok := decodePush[wire.History](c, f); ok {
			c.emit(event.GroupMessageHistory{History: p})
		}
	case frame.TypeMessageRead:
		if p, ok := decodePush[wire.MessageRead](c, f); ok {
			c.emit(event.MessageRead{Read: p})
		}
	case frame.TypeMarkedGroupRead:
		if p, ok := decodePush[wire.GroupPayload](c, f); ok {
			c.emit(event.GroupRead{GroupID: p.GroupID})
		}
	case frame.TypeUserStatus:
		if p, ok := decodePush[wire.UserStatus](c, f); ok {
			c.emit(event.UserStatus{Status: p})
		}
	case frame.TypeError:
		c.logger.Warn("server error", "message", f.Message(), "request_id", f.RequestID)
		c.emit(event.Error{Err: &ServerError{RequestID: f.RequestID, Message: f.Message()}})
	default:
		c.logger.Debug("unhandled frame", "type", f.Type)
	}
}

func decodePush[T any](c *Client, f frame.Frame) (T, bool) {
	var v T
	if err := f.Unmarshal(&v); err != nil {
		c.logger.Debug("bad push payload", "type", f.Type, "error", err)
		return v, false
	}
	return v, true
}

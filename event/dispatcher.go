package event

import (
	"log/slog"
	"reflect"
	"sync"
)

// Listener receives events from a Dispatcher.
type Listener interface {
	HandleEvent(Event)
}

// ListenerFunc adapts a function to Listener. Functions are not comparable,
// so a ListenerFunc can only be removed with the func returned by Subscribe.
type ListenerFunc func(Event)

// HandleEvent calls f(e).
func (f ListenerFunc) HandleEvent(e Event) { f(e) }

type registration struct {
	id       uint64
	listener Listener
}

// Dispatcher is a synchronous publish/subscribe registry. Publish runs
// listeners in registration order on the caller's goroutine; a panicking
// listener is recovered and logged and does not affect the others.
type Dispatcher struct {
	mu     sync.RWMutex
	subs   map[Name][]registration
	nextID uint64
	logger *slog.Logger
}

// NewDispatcher creates an empty dispatcher. A nil logger uses slog.Default.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		subs:   make(map[Name][]registration),
		logger: logger,
	}
}

// Subscribe registers l for name and returns a func that removes it.
// Subscribing the same comparable listener twice for one name is a no-op
// and returns a remover for the existing registration.
func (d *Dispatcher) Subscribe(name Name, l Listener) func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, r := range d.subs[name] {
		if sameListener(r.listener, l) {
			return d.remover(name, r.id)
		}
	}
	d.nextID++
	id := d.nextID
	d.subs[name] = append(d.subs[name], registration{id: id, listener: l})
	return d.remover(name, id)
}

// Unsubscribe removes l from name. Removing an unregistered listener is a
// no-op.
func (d *Dispatcher) Unsubscribe(name Name, l Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()

	subs := d.subs[name]
	for i, r := range subs {
		if sameListener(r.listener, l) {
			d.removeAtLocked(name, i)
			return
		}
	}
}

// Publish delivers e to every listener currently registered for its name.
func (d *Dispatcher) Publish(e Event) {
	name := e.EventName()

	d.mu.RLock()
	subs := make([]registration, len(d.subs[name]))
	copy(subs, d.subs[name])
	d.mu.RUnlock()

	for _, r := range subs {
		d.deliver(name, r, e)
	}
}

// ListenerCount returns the number of listeners registered for name.
func (d *Dispatcher) ListenerCount(name Name) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs[name])
}

func (d *Dispatcher) deliver(name Name, r registration, e Event) {
	defer func() {
		if p := recover(); p != nil {
			d.logger.Error("event listener panicked",
				"event", string(name),
				"listener", r.id,
				"panic", p,
			)
		}
	}()
	r.listener.HandleEvent(e)
}

func (d *Dispatcher) remover(name Name, id uint64) func() {
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		for i, r := range d.subs[name] {
			if r.id == id {
				d.removeAtLocked(name, i)
				return
			}
		}
	}
}

func (d *Dispatcher) removeAtLocked(name Name, i int) {
	subs := d.subs[name]
	next := make([]registration, 0, len(subs)-1)
	next = append(next, subs[:i]...)
	next = append(next, subs[i+1:]...)
	if len(next) == 0 {
		delete(d.subs, name)
		return
	}
	d.subs[name] = next
}

// sameListener compares listeners without panicking on uncomparable
// dynamic types such as ListenerFunc.
func sameListener(a, b Listener) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || ta == nil || !ta.Comparable() {
		return false
	}
	return a == b
}

// On subscribes fn to the event type E, deriving the name from E.
//
//	unsub := event.On(d, func(e event.DirectMessage) { render(e.Message) })
func On[E Event](d *Dispatcher, fn func(E)) func() {
	var zero E
	return d.Subscribe(zero.EventName(), ListenerFunc(func(e Event) {
		if typed, ok := e.(E); ok {
			fn(typed)
		}
	}))
}

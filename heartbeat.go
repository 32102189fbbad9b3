package chat

import "time"

// heartbeat schedules liveness pings for one authenticated connection. It is
// owned by the client loop; ticks are posted back to the loop tagged with the
// connection generation so a tick never acts on a stale channel.
type heartbeat struct {
	clock    Clock
	interval time.Duration
	post     func(input) bool

	timer Timer
	gen   uint64
}

func newHeartbeat(clock Clock, interval time.Duration, post func(input) bool) *heartbeat {
	return &heartbeat{clock: clock, interval: interval, post: post}
}

// start (re)arms the heartbeat for connection gen, discarding any previous
// schedule.
func (h *heartbeat) start(gen uint64) {
	h.stop()
	h.gen = gen
	h.schedule()
}

func (h *heartbeat) schedule() {
	gen := h.gen
	h.timer = h.clock.AfterFunc(h.interval, func() {
		h.post(heartbeatTick{gen: gen})
	})
}

func (h *heartbeat) stop() {
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.gen = 0
}

// active reports whether the heartbeat is armed for gen.
func (h *heartbeat) active(gen uint64) bool {
	return h.timer != nil && h.gen == gen
}

// deadline is how long the connection may stay silent before it is
// considered dead.
func (h *heartbeat) deadline() time.Duration { return 2 * h.interval }

package chat

import (
	"math"
	"time"
)

// Backoff is the reconnection schedule: attempt n waits
// min(Base * Factor^(n-1), Max). After MaxAttempts consecutive failures the
// client gives up.
type Backoff struct {
	Base        time.Duration
	Factor      float64
	Max         time.Duration
	MaxAttempts int
}

// DefaultBackoff returns 1s base, 1.5 factor, 30s cap, 20 attempts.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:        time.Second,
		Factor:      1.5,
		Max:         30 * time.Second,
		MaxAttempts: 20,
	}
}

// Delay returns the wait before attempt n (n >= 1).
func (b Backoff) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := float64(b.Base) * math.Pow(b.Factor, float64(n-1))
	if d >= float64(b.Max) {
		return b.Max
	}
	return time.Duration(d)
}

func (b Backoff) withDefaults() Backoff {
	def := DefaultBackoff()
	if b.Base <= 0 {
		b.Base = def.Base
	}
	if b.Factor < 1 {
		b.Factor = def.Factor
	}
	if b.Max <= 0 {
		b.Max = def.Max
	}
	if b.Max < b.Base {
		b.Max = b.Base
	}
	if b.MaxAttempts <= 0 {
		b.MaxAttempts = def.MaxAttempts
	}
	return b
}

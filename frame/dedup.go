package frame

import (
	"sync"
	"time"
)

const (
	defaultDedupSize = 1000
	defaultDedupTTL  = 5 * time.Minute
)

// dedupEntry tracks a seen id.
type dedupEntry struct {
	id   string
	seen time.Time
}

// DedupWindow is a sliding window of recently seen ids. It remembers up to
// size ids or ttl, whichever is reached first.
type DedupWindow struct {
	mu      sync.Mutex
	size    int
	ttl     time.Duration
	now     func() time.Time
	entries []dedupEntry
	index   map[string]struct{}
}

// NewDedupWindow creates a window with the default size and TTL.
func NewDedupWindow() *DedupWindow {
	return NewDedupWindowSize(defaultDedupSize, defaultDedupTTL, time.Now)
}

// NewDedupWindowSize creates a window with explicit bounds and time source.
func NewDedupWindowSize(size int, ttl time.Duration, now func() time.Time) *DedupWindow {
	if size <= 0 {
		size = defaultDedupSize
	}
	if ttl <= 0 {
		ttl = defaultDedupTTL
	}
	if now == nil {
		now = time.Now
	}
	return &DedupWindow{
		size:    size,
		ttl:     ttl,
		now:     now,
		entries: make([]dedupEntry, 0, size),
		index:   make(map[string]struct{}, size),
	}
}

// Add records id. It returns false if id was already in the window.
func (d *DedupWindow) Add(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.evictLocked()
	if _, ok := d.index[id]; ok {
		return false
	}
	if len(d.entries) >= d.size {
		d.dropLocked(1)
	}
	d.entries = append(d.entries, dedupEntry{id: id, seen: d.now()})
	d.index[id] = struct{}{}
	return true
}

// Contains reports whether id is in the window without recording it.
func (d *DedupWindow) Contains(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.evictLocked()
	_, ok := d.index[id]
	return ok
}

// Len returns the current number of tracked ids.
func (d *DedupWindow) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

func (d *DedupWindow) evictLocked() {
	cutoff := d.now().Add(-d.ttl)
	n := 0
	for n < len(d.entries) && d.entries[n].seen.Before(cutoff) {
		n++
	}
	d.dropLocked(n)
}

func (d *DedupWindow) dropLocked(n int) {
	for _, e := range d.entries[:n] {
		delete(d.index, e.id)
	}
	d.entries = d.entries[n:]
}

package annotation

import (
	"sync"
	"time"
)

const (
	DefaultDebounceWait    = 300 * time.Millisecond
	DefaultDebounceMaxWait = time.Second
)

// Debouncer coalesces calls per key. A scheduled call runs once no new call
// for the same key arrived for wait, and no later than maxWait after the
// first call that is still pending.
type Debouncer struct {
	mu      sync.Mutex
	wait    time.Duration
	maxWait time.Duration
	pending map[string]*pendingCall
	stopped bool
}

type pendingCall struct {
	fn    func()
	first time.Time
	timer *time.Timer
	gen   uint64
}

// NewDebouncer creates a debouncer. Non-positive durations use the defaults
// and maxWait is raised to wait if smaller.
func NewDebouncer(wait, maxWait time.Duration) *Debouncer {
	if wait <= 0 {
		wait = DefaultDebounceWait
	}
	if maxWait <= 0 {
		maxWait = DefaultDebounceMaxWait
	}
	if maxWait < wait {
		maxWait = wait
	}
	return &Debouncer{wait: wait, maxWait: maxWait, pending: make(map[string]*pendingCall)}
}

// Schedule replaces the pending call for key with fn and restarts its quiet
// window.
func (d *Debouncer) Schedule(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	now := time.Now()
	p, ok := d.pending[key]
	if ok {
		p.timer.Stop()
	} else {
		p = &pendingCall{first: now}
		d.pending[key] = p
	}
	p.fn = fn
	p.gen++

	delay := d.wait
	if rest := d.maxWait - now.Sub(p.first); rest < delay {
		delay = max(rest, 0)
	}
	gen := p.gen
	p.timer = time.AfterFunc(delay, func() { d.fire(key, p, gen) })
}

func (d *Debouncer) fire(key string, p *pendingCall, gen uint64) {
	d.mu.Lock()
	if d.pending[key] != p || p.gen != gen {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	fn := p.fn
	d.mu.Unlock()
	fn()
}

// Cancel drops the pending call for key. It reports whether one existed.
func (d *Debouncer) Cancel(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pending[key]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(d.pending, key)
	return true
}

// Pending reports whether a call is scheduled for key.
func (d *Debouncer) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[key]
	return ok
}

// Flush runs the pending call for key now, on the calling goroutine.
func (d *Debouncer) Flush(key string) bool {
	d.mu.Lock()
	p, ok := d.pending[key]
	if ok {
		p.timer.Stop()
		delete(d.pending, key)
	}
	d.mu.Unlock()
	if ok {
		p.fn()
	}
	return ok
}

// FlushAll runs every pending call now.
func (d *Debouncer) FlushAll() {
	d.mu.Lock()
	calls := make([]func(), 0, len(d.pending))
	for key, p := range d.pending {
		p.timer.Stop()
		calls = append(calls, p.fn)
		delete(d.pending, key)
	}
	d.mu.Unlock()
	for _, fn := range calls {
		fn()
	}
}

// Stop drops every pending call and rejects new ones.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, p := range d.pending {
		p.timer.Stop()
		delete(d.pending, key)
	}
	d.stopped = true
}

package tasks

import (
	"sync"
	"time"
)

// DefaultDebounce is the delay between the last keystroke and the fetch it schedules.
const DefaultDebounce = 300 * time.Millisecond

// Debouncer delays work per channel, dropping any not-yet-fired call when a newer one arrives.
type Debouncer struct {
	window time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
	gen    map[string]uint64
}

// NewDebouncer creates a [Debouncer]. A non-positive window uses [DefaultDebounce].
func NewDebouncer(window time.Duration) *Debouncer {
	if window <= 0 {
		window = DefaultDebounce
	}
	return &Debouncer{
		window: window,
		timers: make(map[string]*time.Timer),
		gen:    make(map[string]uint64),
	}
}

// delay returns the configured window.
func (d *Debouncer) delay() time.Duration { return d.window }

// Trigger schedules fn on channel after the window, replacing any pending call on the same channel.
func (d *Debouncer) Trigger(channel string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t, ok := d.timers[channel]; ok {
		t.Stop()
	}
	d.gen[channel]++
	g := d.gen[channel]

	d.timers[channel] = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		if d.gen[channel] != g {
			d.mu.Unlock()
			return
		}
		delete(d.timers, channel)
		d.mu.Unlock()
		fn()
	})
}

// Cancel drops the pending call on channel, if any.
func (d *Debouncer) Cancel(channel string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancel(channel)
}

func (d *Debouncer) cancel(channel string) {
	if t, ok := d.timers[channel]; ok {
		t.Stop()
		delete(d.timers, channel)
	}
	d.gen[channel]++
}

// pending reports whether channel has a call waiting to fire.
func (d *Debouncer) pending(channel string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.timers[channel]
	return ok
}

// Stop drops every pending call.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for channel := range d.timers {
		d.cancel(channel)
	}
}

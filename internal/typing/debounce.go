package typing

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultQuietPeriod is how long input must pause before "stopped typing" is sent.
const DefaultQuietPeriod = time.Second

// Debouncer turns a stream of keystrokes into typing start/stop signals.
type Debouncer struct {
	clock clock.Clock
	quiet time.Duration
	emit  func(isTyping bool)

	mu    sync.Mutex
	timer *clock.Timer
	gen   uint64
}

// New builds a Debouncer. A nil clock means the wall clock; a non-positive quiet
// period means DefaultQuietPeriod.
func New(clk clock.Clock, quiet time.Duration, emit func(isTyping bool)) *Debouncer {
	if clk == nil {
		clk = clock.New()
	}
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	return &Debouncer{clock: clk, quiet: quiet, emit: emit}
}

// Input records a keystroke: any pending stop is cancelled, start is emitted right
// away and stop is scheduled after the quiet period.
func (d *Debouncer) Input() {
	d.mu.Lock()
	d.cancelLocked()
	gen := d.gen
	d.timer = d.clock.AfterFunc(d.quiet, func() { d.fire(gen) })
	d.mu.Unlock()

	d.emit(true)
}

// Stop cancels the pending stop timer and emits stop if one was pending.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	pending := d.timer != nil
	d.cancelLocked()
	d.mu.Unlock()

	if pending {
		d.emit(false)
	}
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.mu.Unlock()

	d.emit(false)
}

func (d *Debouncer) cancelLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}

package orchestrator

import (
	"sync"
	"time"
)

// Debouncer coalesces rapid-fire triggers into one callback after a quiet
// period. Every trigger resets the timer, so only the final callback of a
// burst runs; superseded callbacks never fire.
type Debouncer struct {
	interval time.Duration

	mu         sync.Mutex
	timer      *time.Timer
	generation int
}

func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{interval: interval}
}

func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.generation++
	generation := d.generation

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, func() {
		d.mu.Lock()
		current := d.generation == generation
		d.mu.Unlock()

		// Stop() cannot win a race against a timer that already fired, so the
		// generation check is what actually suppresses superseded callbacks
		if current {
			fn()
		}
	})
}

func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.generation++
	if d.timer != nil {
		d.timer.Stop()
	}
}

package scheduler

import (
	"sync/atomic"
	"time"
)

// Timer is a one-shot deadline. The callback runs at most once, on a runtime
// goroutine, and only if Cancel did not win the race.
type Timer struct {
	t *time.Timer
	// 0 pending, 1 fired, 2 canceled
	state atomic.Int32
}

func newTimer(d time.Duration, fn func()) *Timer {
	tm := &Timer{}
	tm.t = time.AfterFunc(d, func() {
		if !tm.state.CompareAndSwap(0, 1) {
			return
		}
		fn()
	})
	return tm
}

// Cancel prevents the callback if it has not started. It reports whether the
// fire was prevented.
func (t *Timer) Cancel() bool {
	if t == nil {
		return false
	}
	if !t.state.CompareAndSwap(0, 2) {
		return false
	}
	t.t.Stop()
	return true
}

func (t *Timer) Fired() bool {
	return t != nil && t.state.Load() == 1
}

package ratelimit

import (
	"sync"
	"time"
)

// Window admits at most max events per rolling window. It is the global
// admission gate shared by every worker, so all state lives under one
// mutex. Beyond-limit callers are told how long to wait, never rejected.
type Window struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	times  []time.Time // admission timestamps, oldest first

	now func() time.Time // overridable in tests
}

func NewWindow(max int, window time.Duration) *Window {
	if max <= 0 {
		max = 1
	}
	return &Window{
		max:    max,
		window: window,
		now:    time.Now,
	}
}

// Reserve tries to record one admission. It returns (true, 0) when under
// the limit, or (false, wait) where wait is how long until the oldest
// in-window admission ages out.
func (w *Window) Reserve() (bool, time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.times) && !w.times[i].After(cutoff) {
		i++
	}
	w.times = append(w.times[:0], w.times[i:]...)

	if len(w.times) < w.max {
		w.times = append(w.times, now)
		return true, 0
	}
	return false, w.times[0].Add(w.window).Sub(now)
}

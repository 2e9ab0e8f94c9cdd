package testutil

import (
	"sync"
	"time"
)

// ManualTimer is a pending callback registered with a ManualScheduler
type ManualTimer struct {
	Delay time.Duration
	fn    func()
	s     *ManualScheduler
	done  bool
}

// Stop cancels the timer. It reports whether the timer was still pending.
func (t *ManualTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

// ManualScheduler only runs callbacks when a test fires them
type ManualScheduler struct {
	mu     sync.Mutex
	timers []*ManualTimer
	fired  []time.Duration
}

func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// AfterFunc registers fn to run when fired and returns its stop function
func (s *ManualScheduler) AfterFunc(d time.Duration, fn func()) func() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &ManualTimer{Delay: d, fn: fn, s: s}
	s.timers = append(s.timers, t)
	return t.Stop
}

// Pending returns the delays of timers that have neither fired nor stopped
func (s *ManualScheduler) Pending() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var delays []time.Duration
	for _, t := range s.timers {
		if !t.done {
			delays = append(delays, t.Delay)
		}
	}
	return delays
}

// Fired returns the delays of every timer fired so far, in order
func (s *ManualScheduler) Fired() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.fired...)
}

// FireNext runs the oldest pending timer with the given delay.
// It reports false when no such timer exists.
func (s *ManualScheduler) FireNext(d time.Duration) bool {
	s.mu.Lock()
	var target *ManualTimer
	for _, t := range s.timers {
		if !t.done && t.Delay == d {
			target = t
			break
		}
	}
	if target == nil {
		s.mu.Unlock()
		return false
	}
	target.done = true
	s.fired = append(s.fired, d)
	s.mu.Unlock()

	target.fn()
	return true
}

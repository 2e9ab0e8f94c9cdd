package autosave

import "time"

// Scheduler runs f once after d. The returned function cancels the call and
// reports whether it was still pending.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

type timerScheduler struct{}

func (timerScheduler) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// RealScheduler is backed by time.AfterFunc
var RealScheduler Scheduler = timerScheduler{}

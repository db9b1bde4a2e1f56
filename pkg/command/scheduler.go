package command

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Scheduler runs a function once after a delay without blocking the caller.
type Scheduler interface {
	Schedule(d time.Duration, fn func()) string
}

// TimerScheduler backs reminders with time.AfterFunc. Stop cancels every
// pending timer so none fire after shutdown.
type TimerScheduler struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

// NewTimerScheduler creates an empty scheduler.
func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{timers: make(map[string]*time.Timer)}
}

// Schedule arranges for fn to run after d and returns the reminder ID.
// After Stop it returns an empty ID and never runs fn.
func (s *TimerScheduler) Schedule(d time.Duration, fn func()) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ""
	}

	id := uuid.NewString()
	s.timers[id] = time.AfterFunc(d, func() {
		s.mu.Lock()
		_, live := s.timers[id]
		delete(s.timers, id)
		s.mu.Unlock()
		if live {
			fn()
		}
	})
	return id
}

// Cancel stops a pending reminder. It reports whether one was pending.
func (s *TimerScheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[id]
	if !ok {
		return false
	}
	t.Stop()
	delete(s.timers, id)
	return true
}

// Pending returns the number of reminders that have not fired.
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels all pending reminders and rejects new ones.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

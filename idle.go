package stationauth

import (
	"sync"
	"time"
)

// IdleSupervisor signs the user out after a configurable period without
// activity. Touch debounce-resets the deadline; it never accumulates.
// Stop must be called on sign-out and dispose so a stale timer cannot
// fire against a cleared session.
type IdleSupervisor struct {
	mu           sync.Mutex
	timeout      time.Duration
	timer        *time.Timer
	lastActivity time.Time
	onTimeout    func()
	stopped      bool
}

func newIdleSupervisor(timeout time.Duration, onTimeout func()) *IdleSupervisor {
	return &IdleSupervisor{
		timeout:   timeout,
		onTimeout: onTimeout,
	}
}

// Start arms the deadline timer. Starting an already-running supervisor
// resets it, and a stopped supervisor can be restarted on the next
// sign-in.
func (s *IdleSupervisor) Start() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = false
	s.lastActivity = time.Now()
	s.resetLocked()
}

// Touch records user activity and resets the deadline. Calls against a
// stopped supervisor are ignored.
func (s *IdleSupervisor) Touch() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.lastActivity = time.Now()
	s.resetLocked()
}

// Stop cancels the deadline. After Stop the timeout callback is
// guaranteed not to run until the next Start.
func (s *IdleSupervisor) Stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// LastActivity returns the most recent recorded activity time.
func (s *IdleSupervisor) LastActivity() time.Time {
	if s == nil {
		return time.Time{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// SetTimeout replaces the idle period, rearming the deadline if running.
func (s *IdleSupervisor) SetTimeout(timeout time.Duration) {
	if s == nil || timeout <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.timeout = timeout
	if !s.stopped && s.timer != nil {
		s.resetLocked()
	}
}

func (s *IdleSupervisor) resetLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.timeout, s.fire)
}

func (s *IdleSupervisor) fire() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.timer = nil
	callback := s.onTimeout
	s.mu.Unlock()

	if callback != nil {
		callback()
	}
}

package stationauth

import (
	"context"
	"sync"
	"time"
)

// MemorySecurityStore is the default [SecurityStore]: a volatile
// in-memory tracker scoped to one engine instance. The audit trail is a
// bounded newest-first ring; the oldest entry is dropped once the
// capacity is reached.
type MemorySecurityStore struct {
	capacity int

	mu       sync.RWMutex
	trail    []AuditEntry
	alerts   []SecurityAlert
	devices  []DeviceInfo
	sessions []SessionInfo
}

// NewMemorySecurityStore creates a tracker whose audit trail holds at
// most capacity entries. Non-positive capacity falls back to 100.
func NewMemorySecurityStore(capacity int) *MemorySecurityStore {
	if capacity <= 0 {
		capacity = 100
	}
	return &MemorySecurityStore{capacity: capacity}
}

// AppendAudit prepends the entry, truncating the oldest past capacity.
func (s *MemorySecurityStore) AppendAudit(_ context.Context, entry AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trail = append([]AuditEntry{entry}, s.trail...)
	if len(s.trail) > s.capacity {
		s.trail = s.trail[:s.capacity]
	}
	return nil
}

// ListAudit returns the trail newest-first. An empty userID lists all.
func (s *MemorySecurityStore) ListAudit(_ context.Context, userID string) ([]AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]AuditEntry, 0, len(s.trail))
	for _, entry := range s.trail {
		if userID == "" || entry.UserID == userID {
			out = append(out, entry)
		}
	}
	return out, nil
}

// AppendAlert records a new alert, newest-first.
func (s *MemorySecurityStore) AppendAlert(_ context.Context, alert SecurityAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.alerts = append([]SecurityAlert{alert}, s.alerts...)
	return nil
}

// ListAlerts returns alerts newest-first.
func (s *MemorySecurityStore) ListAlerts(_ context.Context, _ string) ([]SecurityAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]SecurityAlert, len(s.alerts))
	copy(out, s.alerts)
	return out, nil
}

// ResolveAlert flips the alert to resolved. Resolving an unknown or
// already-resolved alert is a no-op; the transition is one-way.
func (s *MemorySecurityStore) ResolveAlert(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.alerts {
		if s.alerts[i].ID == id {
			s.alerts[i].Resolved = true
			return nil
		}
	}
	return nil
}

// PutDevice inserts or replaces a device record keyed by ID.
func (s *MemorySecurityStore) PutDevice(_ context.Context, device DeviceInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.devices {
		if s.devices[i].ID == device.ID {
			s.devices[i] = device
			return nil
		}
	}
	s.devices = append(s.devices, device)
	return nil
}

// ListDevices returns the tracked devices for a user.
func (s *MemorySecurityStore) ListDevices(_ context.Context, userID string) ([]DeviceInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]DeviceInfo, 0, len(s.devices))
	for _, device := range s.devices {
		if userID == "" || device.UserID == userID {
			out = append(out, device)
		}
	}
	return out, nil
}

// SetDeviceTrusted toggles the trust flag on one device.
func (s *MemorySecurityStore) SetDeviceTrusted(_ context.Context, id string, trusted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.devices {
		if s.devices[i].ID == id {
			s.devices[i].IsTrusted = trusted
			return nil
		}
	}
	return nil
}

// RemoveDevice deletes one device record. Current-device protection is
// enforced at the engine layer, not here.
func (s *MemorySecurityStore) RemoveDevice(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.devices {
		if s.devices[i].ID == id {
			s.devices = append(s.devices[:i], s.devices[i+1:]...)
			return nil
		}
	}
	return nil
}

// PutSession inserts or replaces a session record keyed by ID.
func (s *MemorySecurityStore) PutSession(_ context.Context, session SessionInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.sessions {
		if s.sessions[i].ID == session.ID {
			s.sessions[i] = session
			return nil
		}
	}
	s.sessions = append(s.sessions, session)
	return nil
}

// ListSessions returns the tracked sessions for a user.
func (s *MemorySecurityStore) ListSessions(_ context.Context, userID string) ([]SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]SessionInfo, 0, len(s.sessions))
	for _, session := range s.sessions {
		if userID == "" || session.UserID == userID {
			out = append(out, session)
		}
	}
	return out, nil
}

// TouchSession records activity on one session.
func (s *MemorySecurityStore) TouchSession(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.sessions {
		if s.sessions[i].ID == id {
			s.sessions[i].LastActivity = at
			return nil
		}
	}
	return nil
}

// RevokeSession removes exactly the named session.
func (s *MemorySecurityStore) RevokeSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.sessions {
		if s.sessions[i].ID == id {
			s.sessions = append(s.sessions[:i], s.sessions[i+1:]...)
			return nil
		}
	}
	return nil
}

// RevokeAllSessions removes every session for the user except, when
// exceptSessionID is non-empty, that one session.
func (s *MemorySecurityStore) RevokeAllSessions(_ context.Context, userID, exceptSessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.sessions[:0]
	for _, session := range s.sessions {
		if session.UserID == userID && session.ID != exceptSessionID {
			continue
		}
		kept = append(kept, session)
	}
	s.sessions = kept
	return nil
}

// Clear drops all tracked state for the user. Called on sign-out.
func (s *MemorySecurityStore) Clear(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if userID == "" {
		s.trail = nil
		s.alerts = nil
		s.devices = nil
		s.sessions = nil
		return nil
	}

	trail := s.trail[:0]
	for _, entry := range s.trail {
		if entry.UserID != userID {
			trail = append(trail, entry)
		}
	}
	s.trail = trail

	devices := s.devices[:0]
	for _, device := range s.devices {
		if device.UserID != userID {
			devices = append(devices, device)
		}
	}
	s.devices = devices

	sessions := s.sessions[:0]
	for _, session := range s.sessions {
		if session.UserID != userID {
			sessions = append(sessions, session)
		}
	}
	s.sessions = sessions

	s.alerts = nil
	return nil
}

package stationauth

import (
	"context"
	"log"
)

/*
====================================
SECURITY TRACKER FACADE
====================================
*/

// AuditTrail returns the current user's audit entries, newest first.
// Read paths favor availability: a store failure logs and returns an
// empty slice rather than an error.
func (e *Engine) AuditTrail(ctx context.Context) []AuditEntry {
	userID := e.currentUserID()
	if userID == "" {
		return nil
	}

	entries, err := e.security.ListAudit(ctx, userID)
	if err != nil {
		log.Printf("stationauth: audit list failed: %v", err)
		return []AuditEntry{}
	}
	return entries
}

// Alerts returns the current user's security alerts, newest first,
// including resolved ones.
func (e *Engine) Alerts(ctx context.Context) []SecurityAlert {
	userID := e.currentUserID()
	if userID == "" {
		return nil
	}

	alerts, err := e.security.ListAlerts(ctx, userID)
	if err != nil {
		log.Printf("stationauth: alert list failed: %v", err)
		return []SecurityAlert{}
	}
	return alerts
}

// ResolveAlert marks one alert as resolved. Resolving an already
// resolved or unknown alert is a no-op, not an error.
func (e *Engine) ResolveAlert(ctx context.Context, id string) error {
	if err := e.ready(); err != nil {
		return err
	}
	return e.security.ResolveAlert(ctx, id)
}

/*
====================================
DEVICES
====================================
*/

// Devices returns the user's known devices with IsCurrentDevice set on
// the one backing this engine's session.
func (e *Engine) Devices(ctx context.Context) []DeviceInfo {
	userID := e.currentUserID()
	if userID == "" {
		return nil
	}

	devices, err := e.security.ListDevices(ctx, userID)
	if err != nil {
		log.Printf("stationauth: device list failed: %v", err)
		return []DeviceInfo{}
	}

	e.mu.Lock()
	current := e.currentDeviceID
	e.mu.Unlock()
	for i := range devices {
		devices[i].IsCurrentDevice = devices[i].ID == current
	}
	return devices
}

// TrustDevice marks a device as trusted.
func (e *Engine) TrustDevice(ctx context.Context, id string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if e.currentUserID() == "" {
		return ErrNotAuthenticated
	}

	if err := e.security.SetDeviceTrusted(ctx, id, true); err != nil {
		return err
	}
	e.recordAudit(ctx, ActionDeviceTrusted, "device marked trusted", RiskLow)
	return nil
}

// UntrustDevice clears a device's trusted flag.
func (e *Engine) UntrustDevice(ctx context.Context, id string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if e.currentUserID() == "" {
		return ErrNotAuthenticated
	}
	return e.security.SetDeviceTrusted(ctx, id, false)
}

// RemoveDevice deletes a device record. Removing the device backing the
// current session is rejected with [ErrCurrentDevice]; sign out instead.
func (e *Engine) RemoveDevice(ctx context.Context, id string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if e.currentUserID() == "" {
		return ErrNotAuthenticated
	}

	e.mu.Lock()
	current := e.currentDeviceID
	e.mu.Unlock()
	if id == current {
		return ErrCurrentDevice
	}

	if err := e.security.RemoveDevice(ctx, id); err != nil {
		return err
	}
	e.recordAudit(ctx, ActionDeviceRemoved, "device removed", RiskMedium)
	return nil
}

/*
====================================
SESSIONS
====================================
*/

// Sessions returns the user's tracked sessions, newest first.
func (e *Engine) Sessions(ctx context.Context) []SessionInfo {
	userID := e.currentUserID()
	if userID == "" {
		return nil
	}

	sessions, err := e.security.ListSessions(ctx, userID)
	if err != nil {
		log.Printf("stationauth: session list failed: %v", err)
		return []SessionInfo{}
	}
	return sessions
}

// RevokeSession marks one session inactive. Revoking the engine's own
// session is allowed; the next gate evaluation will force re-auth.
func (e *Engine) RevokeSession(ctx context.Context, id string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if e.currentUserID() == "" {
		return ErrNotAuthenticated
	}

	if err := e.security.RevokeSession(ctx, id); err != nil {
		return err
	}
	e.metrics.Inc(MetricSessionRevoked)
	e.recordAudit(ctx, ActionSessionRevoked, "session revoked", RiskMedium)
	return nil
}

// RevokeAllSessions marks every tracked session inactive. When
// excludeCurrent is true the session backing this engine survives;
// callers must pass the choice explicitly.
func (e *Engine) RevokeAllSessions(ctx context.Context, excludeCurrent bool) error {
	if err := e.ready(); err != nil {
		return err
	}
	userID := e.currentUserID()
	if userID == "" {
		return ErrNotAuthenticated
	}

	except := ""
	if excludeCurrent {
		e.mu.Lock()
		except = e.currentSessionID
		e.mu.Unlock()
	}

	if err := e.security.RevokeAllSessions(ctx, userID, except); err != nil {
		return err
	}
	e.metrics.Inc(MetricSessionRevoked)
	e.recordAudit(ctx, ActionSessionRevoked, "all sessions revoked", RiskHigh)
	return nil
}

func (e *Engine) currentUserID() string {
	if e == nil {
		return ""
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.user == nil {
		return ""
	}
	return e.user.ID
}

// Package stationauth provides the session and authorization engine for
// venue-management dashboards: credential sessions against a pluggable
// identity service, role-based permissions over a closed permission set,
// TOTP second factor with backup codes, and a per-user security trail of
// audit entries, alerts, devices, and sessions.
//
// The package is designed for a single interactive session per Engine:
// one Engine instance backs one signed-in user surface. Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// stationauth is the public surface. It exposes [Engine], [Builder],
// [Config], the [Gate] evaluator, and value types (Profile, AuditEntry,
// DeviceInfo, SessionInfo, etc.). Credential verification lives behind
// the [IdentityService] interface; the identity sub-package ships a
// Redis-backed implementation, and hosted providers can be adapted the
// same way. Profile persistence sits behind [ProfileStore] and the
// security trail behind [SecurityStore], both with in-memory and Redis
// implementations in-tree.
//
// # Failure posture
//
// Read paths favor availability: profile resolution degrades to an
// ephemeral viewer-level profile after bounded retries, and trail reads
// return empty lists on store failure. Write paths the user explicitly
// requested (profile updates, second-factor changes, revocations)
// propagate errors instead.
package stationauth

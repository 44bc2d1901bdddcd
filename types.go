package stationauth

import (
	"context"
	"time"

	"github.com/Dexploarer/stationauth/permission"
)

// Identity is the authenticated principal issued by the external identity
// service. The engine only holds a reference; the identity store itself is
// owned by the service behind [IdentityService].
type Identity struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

// TokenPair is the access/refresh token pair returned by the identity
// service on sign-in, sign-up, and refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// SecuritySettings carries the per-profile knobs consulted by the engine.
type SecuritySettings struct {
	SessionTimeoutMinutes int
	LoginNotifications    bool
}

// TwoFactorAuth is the second-factor state stored on a profile. The secret
// is the raw TOTP key; backup codes are stored as SHA-256 hashes only,
// plaintext is handed to the user exactly once.
type TwoFactorAuth struct {
	Enabled         bool
	Confirmed       bool
	Secret          []byte
	LastUsedCounter int64
	BackupCodes     []BackupCodeRecord
}

// BackupCodeRecord stores the SHA-256 hash of a single backup code.
type BackupCodeRecord struct {
	Hash [32]byte
}

// Profile is the application-level record describing a user's role and
// security posture. One profile per identity, created lazily on first
// successful sign-in, never hard-deleted by this layer.
type Profile struct {
	ID                  string
	Email               string
	FullName            string
	Role                permission.Role
	Department          string
	IsActive            bool
	Security            SecuritySettings
	TwoFactor           TwoFactorAuth
	FailedLoginAttempts int
	AccountLockedUntil  *time.Time
	PasswordChangedAt   *time.Time
	MustChangePassword  bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Ephemeral reports whether the profile is a degraded in-memory fallback
// that was never persisted. Consumers should treat permissions from an
// ephemeral profile as reduced-guarantee.
func (p *Profile) Ephemeral() bool {
	return p != nil && p.ID == ""
}

// ProfileUpdate is a partial profile mutation. Nil fields are left
// untouched by [ProfileStore.Update].
type ProfileUpdate struct {
	FullName            *string
	Role                *permission.Role
	Department          *string
	IsActive            *bool
	Security            *SecuritySettings
	TwoFactor           *TwoFactorAuth
	FailedLoginAttempts *int
	AccountLockedUntil  **time.Time
	PasswordChangedAt   **time.Time
	MustChangePassword  *bool
}

// RiskLevel grades the severity of an audit entry or alert.
type RiskLevel string

const (
	// RiskLow is an informational grading for routine events.
	RiskLow RiskLevel = "low"
	// RiskMedium flags events worth reviewing, e.g. a failed login.
	RiskMedium RiskLevel = "medium"
	// RiskHigh flags events suggesting an active attack attempt.
	RiskHigh RiskLevel = "high"
	// RiskCritical flags events requiring immediate attention.
	RiskCritical RiskLevel = "critical"
)

// AuditAction names a security-relevant operation recorded in the trail.
type AuditAction string

const (
	// ActionLogin records a completed sign-in.
	ActionLogin AuditAction = "login"
	// ActionLogout records a sign-out.
	ActionLogout AuditAction = "logout"
	// ActionFailedLogin records a rejected credential or second-factor attempt.
	ActionFailedLogin AuditAction = "failed_login"
	// ActionLoginLocked records a sign-in attempt against a locked account.
	ActionLoginLocked AuditAction = "login_attempt_locked"
	// ActionSignUp records account creation.
	ActionSignUp AuditAction = "signup"
	// ActionProfileUpdate records a persisted profile mutation.
	ActionProfileUpdate AuditAction = "profile_update"
	// ActionTwoFactorEnabled records second-factor activation.
	ActionTwoFactorEnabled AuditAction = "two_factor_enabled"
	// ActionTwoFactorDisabled records second-factor deactivation.
	ActionTwoFactorDisabled AuditAction = "two_factor_disabled"
	// ActionBackupCodesRegenerated records wholesale backup-code replacement.
	ActionBackupCodesRegenerated AuditAction = "backup_codes_regenerated"
	// ActionPasswordReset records an out-of-band reset request.
	ActionPasswordReset AuditAction = "password_reset_requested"
	// ActionSessionTimeout records a forced sign-out by the idle supervisor.
	ActionSessionTimeout AuditAction = "session_timeout"
	// ActionSessionRefreshed records a token refresh.
	ActionSessionRefreshed AuditAction = "session_refreshed"
	// ActionSessionRevoked records explicit session revocation.
	ActionSessionRevoked AuditAction = "session_revoked"
	// ActionDeviceTrusted records a device-trust toggle.
	ActionDeviceTrusted AuditAction = "device_trusted"
	// ActionDeviceRemoved records device removal.
	ActionDeviceRemoved AuditAction = "device_removed"
)

// AuditEntry is an immutable record of a security-relevant event. Entries
// are append-only and live in a bounded newest-first trail.
type AuditEntry struct {
	ID        string      `json:"id"`
	UserID    string      `json:"user_id,omitempty"`
	Action    AuditAction `json:"action"`
	Details   string      `json:"details,omitempty"`
	IPAddress string      `json:"ip_address,omitempty"`
	UserAgent string      `json:"user_agent,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RiskLevel RiskLevel   `json:"risk_level"`
	Location  string      `json:"location,omitempty"`
}

// SecurityAlert is a user-visible security notice. Resolved flips true
// exactly once and never reverts.
type SecurityAlert struct {
	ID        string
	Type      string
	Message   string
	Timestamp time.Time
	Resolved  bool
	Severity  RiskLevel
}

// DeviceInfo describes a browser/OS fingerprint associated with one or
// more sessions. Derived from user-agent parsing at session start.
type DeviceInfo struct {
	ID              string
	UserID          string
	DeviceName      string
	DeviceType      string
	Browser         string
	OS              string
	IPAddress       string
	LastUsed        time.Time
	IsCurrentDevice bool
	IsTrusted       bool
	Location        string
}

// SessionInfo describes a bounded-lifetime authenticated browsing context
// tied to a device.
type SessionInfo struct {
	ID           string
	UserID       string
	DeviceID     string
	StartTime    time.Time
	LastActivity time.Time
	IPAddress    string
	IsActive     bool
	ExpiresAt    time.Time
}

// SignUpMetadata carries optional attributes applied to the profile
// created alongside a new identity.
type SignUpMetadata struct {
	FullName   string
	Role       permission.Role
	Department string
}

// SignInResult is returned by [Engine.SignIn] and [Engine.SignUp] on
// success.
type SignInResult struct {
	Identity *Identity
	Tokens   *TokenPair
	Profile  *Profile

	// MustChangePassword mirrors the profile flag so consumers can force
	// the change-password flow before rendering anything else.
	MustChangePassword bool
}

// SecondFactorSetup is returned by [Engine.EnableSecondFactor]. The
// secret and backup codes appear in plaintext here and nowhere else.
type SecondFactorSetup struct {
	SecretBase32    string
	ProvisioningURI string
	QRCodePNG       string
	BackupCodes     []string
}

// State is the engine's per-instance authentication state machine.
type State int

const (
	// StateUnauthenticated is the initial and terminal state.
	StateUnauthenticated State = iota
	// StateAuthenticating covers in-flight credential checks.
	StateAuthenticating
	// StateSecondFactorPending means credentials passed and a code is awaited.
	StateSecondFactorPending
	// StateAuthenticated means identity and profile are established.
	StateAuthenticated
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateSecondFactorPending:
		return "second_factor_pending"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// IdentityService is the consumed identity-provider boundary. All methods
// are asynchronous request/response operations; implementations return
// the sentinel errors from this package where the taxonomy applies.
type IdentityService interface {
	SignUp(ctx context.Context, email, password string) (*Identity, *TokenPair, error)
	SignIn(ctx context.Context, email, password string) (*Identity, *TokenPair, error)
	SignOut(ctx context.Context, accessToken string) error
	CurrentSession(ctx context.Context, accessToken string) (*Identity, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	SendPasswordReset(ctx context.Context, email string) error
}

// ProfileStore is the consumed profile-persistence boundary. A missing
// row must be reported as [ErrProfileNotFound] so callers can distinguish
// creation from degradation; any other failure should wrap
// [ErrStoreUnavailable].
type ProfileStore interface {
	GetByID(ctx context.Context, id string) (*Profile, error)
	GetByEmail(ctx context.Context, email string) (*Profile, error)
	Insert(ctx context.Context, p *Profile) error
	Update(ctx context.Context, id string, u ProfileUpdate) (*Profile, error)
	Upsert(ctx context.Context, p *Profile) error
}

// SecurityStore is the pluggable persistence boundary for the audit
// trail, alerts, devices, and sessions. Each population supports append,
// list, mutate-one, and clear-all. The default backing is
// [MemorySecurityStore]; list operations are availability-favoring at the
// engine layer (failures degrade to empty lists).
type SecurityStore interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
	ListAudit(ctx context.Context, userID string) ([]AuditEntry, error)

	AppendAlert(ctx context.Context, alert SecurityAlert) error
	ListAlerts(ctx context.Context, userID string) ([]SecurityAlert, error)
	ResolveAlert(ctx context.Context, id string) error

	PutDevice(ctx context.Context, device DeviceInfo) error
	ListDevices(ctx context.Context, userID string) ([]DeviceInfo, error)
	SetDeviceTrusted(ctx context.Context, id string, trusted bool) error
	RemoveDevice(ctx context.Context, id string) error

	PutSession(ctx context.Context, session SessionInfo) error
	ListSessions(ctx context.Context, userID string) ([]SessionInfo, error)
	TouchSession(ctx context.Context, id string, at time.Time) error
	RevokeSession(ctx context.Context, id string) error
	RevokeAllSessions(ctx context.Context, userID, exceptSessionID string) error

	Clear(ctx context.Context, userID string) error
}

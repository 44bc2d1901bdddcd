package stationauth

import (
	"errors"
	"time"

	"github.com/Dexploarer/stationauth/permission"
)

// Config defines the engine's per-concern configuration sections. A
// Config is validated once at [Builder.Build] time and treated as
// immutable afterwards.
type Config struct {
	Profile      ProfileConfig
	Lockout      LockoutConfig
	SecondFactor SecondFactorConfig
	Idle         IdleConfig
	Gate         GateConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

/*
====================================
PROFILE CONFIG
====================================
*/

// ProfileConfig controls lazy profile creation and the bounded
// retry-with-backoff applied before degrading to an ephemeral profile.
type ProfileConfig struct {
	DefaultRole    permission.Role
	RetryAttempts  int
	RetryBaseDelay time.Duration
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig controls the failed-attempt counter maintained on the
// profile and the auto-lock it triggers.
type LockoutConfig struct {
	MaxFailedAttempts int
	LockDuration      time.Duration
}

/*
====================================
SECOND FACTOR CONFIG
====================================
*/

// SecondFactorConfig controls TOTP verification and backup codes.
// Digits, Period, and Skew follow RFC 6238; VerifyRatePerMinute and
// VerifyBurst bound the in-process attempt throttle.
type SecondFactorConfig struct {
	Issuer                  string
	Digits                  int
	Period                  int
	Skew                    int
	Algorithm               string // "SHA1" (default), "SHA256", "SHA512"
	BackupCodeCount         int
	BackupCodeLength        int
	EnforceReplayProtection bool
	QRCodeSize              int
	VerifyRatePerMinute     int
	VerifyBurst             int
}

/*
====================================
IDLE CONFIG
====================================
*/

// IdleConfig sizes the inactivity timeout supervisor. DefaultTimeout is
// used when the profile carries no session-timeout setting.
type IdleConfig struct {
	Enabled        bool
	DefaultTimeout time.Duration
}

/*
====================================
GATE CONFIG
====================================
*/

// GateConfig bounds how long the permission gate waits for profile
// resolution before degrading to reduced-permission rendering.
type GateConfig struct {
	ProfileWait time.Duration
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the bounded in-memory trail and the async export
// dispatcher.
type AuditConfig struct {
	Enabled       bool
	TrailCapacity int
	BufferSize    int
	DropIfFull    bool
}

// MetricsConfig toggles the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the baseline configuration: viewer as the default
// role, five-attempt lockout for fifteen minutes, RFC 6238 defaults for
// the second factor, a thirty-minute idle timeout, a 100-entry trail, and
// a three-second gate wait.
func DefaultConfig() Config {
	return Config{
		Profile: ProfileConfig{
			DefaultRole:    permission.RoleViewer,
			RetryAttempts:  3,
			RetryBaseDelay: 100 * time.Millisecond,
		},
		Lockout: LockoutConfig{
			MaxFailedAttempts: 5,
			LockDuration:      15 * time.Minute,
		},
		SecondFactor: SecondFactorConfig{
			Issuer:                  "stationauth",
			Digits:                  6,
			Period:                  30,
			Skew:                    1,
			Algorithm:               "SHA1",
			BackupCodeCount:         10,
			BackupCodeLength:        10,
			EnforceReplayProtection: true,
			QRCodeSize:              256,
			VerifyRatePerMinute:     10,
			VerifyBurst:             5,
		},
		Idle: IdleConfig{
			Enabled:        true,
			DefaultTimeout: 30 * time.Minute,
		},
		Gate: GateConfig{
			ProfileWait: 3 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:       true,
			TrailCapacity: 100,
			BufferSize:    256,
			DropIfFull:    true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func validateConfig(cfg Config) error {
	if !cfg.Profile.DefaultRole.Valid() {
		return errors.New("profile default role outside the closed role enumeration")
	}
	if cfg.Profile.RetryAttempts < 0 {
		return errors.New("profile retry attempts cannot be negative")
	}
	if cfg.Profile.RetryAttempts > 0 && cfg.Profile.RetryBaseDelay <= 0 {
		return errors.New("profile retry base delay must be positive")
	}
	if cfg.Lockout.MaxFailedAttempts < 0 {
		return errors.New("lockout attempt threshold cannot be negative")
	}
	if cfg.Lockout.MaxFailedAttempts > 0 && cfg.Lockout.LockDuration <= 0 {
		return errors.New("lockout duration must be positive")
	}
	if cfg.SecondFactor.Digits < 6 || cfg.SecondFactor.Digits > 8 {
		return errors.New("second factor digits must be 6-8")
	}
	if cfg.SecondFactor.Period <= 0 {
		return errors.New("second factor period must be positive")
	}
	if cfg.SecondFactor.Skew < 0 || cfg.SecondFactor.Skew > 2 {
		return errors.New("second factor skew must be 0-2 steps")
	}
	switch cfg.SecondFactor.Algorithm {
	case "", "SHA1", "SHA256", "SHA512":
	default:
		return errors.New("unsupported second factor algorithm")
	}
	if cfg.SecondFactor.BackupCodeCount <= 0 {
		return errors.New("backup code count must be positive")
	}
	if cfg.SecondFactor.BackupCodeLength < 8 {
		return errors.New("backup code length must be at least 8")
	}
	if cfg.Idle.Enabled && cfg.Idle.DefaultTimeout <= 0 {
		return errors.New("idle default timeout must be positive")
	}
	if cfg.Gate.ProfileWait <= 0 {
		return errors.New("gate profile wait must be positive")
	}
	if cfg.Audit.Enabled && cfg.Audit.TrailCapacity <= 0 {
		return errors.New("audit trail capacity must be positive")
	}
	return nil
}

package stationauth

import "errors"

var (
	// ErrInvalidCredentials is returned when the identity service rejects
	// the email/password pair.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned by the sign-in pre-check while the
	// profile's lock expiry lies in the future.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountInactive is returned when the resolved profile is disabled.
	ErrAccountInactive = errors.New("account inactive")
	// ErrSecondFactorRequired is returned when a second factor is enabled
	// and no code was supplied. It signals a re-prompt, not a failure.
	ErrSecondFactorRequired = errors.New("second factor required")
	// ErrSecondFactorInvalid is returned when the supplied code fails
	// verification against the stored secret.
	ErrSecondFactorInvalid = errors.New("invalid second factor code")
	// ErrSecondFactorNotConfigured is returned by second-factor operations
	// when no secret has been provisioned.
	ErrSecondFactorNotConfigured = errors.New("second factor not configured")
	// ErrSecondFactorRateLimited is returned when verification attempts
	// exceed the in-process throttle.
	ErrSecondFactorRateLimited = errors.New("second factor attempts rate limited")
	// ErrProfileNotFound distinguishes a missing profile row from other
	// store failures. It is internal to resolution: callers of the engine
	// never observe it because a missing profile converts to creation.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrStoreUnavailable wraps transient persistence failures. Read paths
	// convert it to degraded defaults; write paths surface it as-is.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrSessionExpired is returned when a refresh is attempted against an
	// expired or revoked session.
	ErrSessionExpired = errors.New("session expired")
	// ErrNotAuthenticated is returned by operations that require an
	// established session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrCurrentDevice is returned when removal of the current device is
	// attempted. The operation is rejected, not silently ignored.
	ErrCurrentDevice = errors.New("current device cannot be removed")
	// ErrEngineNotReady is returned when the engine is used before Build
	// completed or after Close.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrEmailExists is returned by sign-up when the email is taken.
	ErrEmailExists = errors.New("email already registered")
	// ErrIdentityNotFound is returned by identity lookups for unknown
	// principals.
	ErrIdentityNotFound = errors.New("identity not found")
)

package stationauth

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/Dexploarer/stationauth/permission"
	"github.com/google/uuid"
)

// Engine is the session and authorization manager: it establishes
// identity against the external identity service, resolves a
// role-bearing profile, computes permissions, and maintains the audit
// trail, device list, session list, and alerts for consumers to query.
//
// An Engine is built once via [Builder], used from the UI event loop,
// and disposed with [Engine.Close]. All exported methods are safe for
// concurrent use.
type Engine struct {
	config   Config
	identity IdentityService
	profiles ProfileStore
	security SecurityStore
	resolver *profileResolver
	audit    *auditDispatcher
	metrics  *Metrics
	totp     *totpManager
	limiter  *secondFactorLimiter
	idle     *IdleSupervisor

	// onTimeoutNotice surfaces the user-visible idle sign-out notice.
	onTimeoutNotice func()

	mu               sync.Mutex
	state            State
	user             *Identity
	profile          *Profile
	tokens           *TokenPair
	currentDeviceID  string
	currentSessionID string
	loading          bool
	authStartedAt    time.Time
	closed           bool
}

// Close drains the audit dispatcher and stops the idle supervisor. The
// engine is unusable afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	e.idle.Stop()
	e.audit.Close()
}

// AuditDropped reports how many entries the async dispatcher discarded
// because its buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

/*
====================================
STATE FACADE
====================================
*/

// State returns the current authentication state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// CurrentUser returns the authenticated identity, or nil.
func (e *Engine) CurrentUser() *Identity {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.user
}

// CurrentProfile returns the resolved profile, or nil.
func (e *Engine) CurrentProfile() *Profile {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.profile
}

// Loading reports whether a backend call is in flight.
func (e *Engine) Loading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loading
}

// HasPermission reports whether the current profile's role grants p.
// Unauthenticated callers and ephemeral profiles fall back to the role
// table like any other profile; a super_admin profile satisfies every
// check via the root bit.
func (e *Engine) HasPermission(p permission.Permission) bool {
	profile := e.CurrentProfile()
	if profile == nil {
		return false
	}
	mask, err := permission.PermissionsFor(profile.Role)
	if err != nil {
		return false
	}
	return mask.Has(p)
}

// HasPermissionToken is the UI-boundary form of [Engine.HasPermission],
// accepting dotted tokens such as "events.update".
func (e *Engine) HasPermissionToken(token string) bool {
	p, err := permission.Parse(token)
	if err != nil {
		return false
	}
	return e.HasPermission(p)
}

// HasRole reports whether the current profile carries exactly r.
func (e *Engine) HasRole(r permission.Role) bool {
	profile := e.CurrentProfile()
	return profile != nil && profile.Role == r
}

// IsAdmin reports whether the current role is admin or super_admin.
func (e *Engine) IsAdmin() bool {
	return e.HasRole(permission.RoleAdmin) || e.HasRole(permission.RoleSuperAdmin)
}

// EvaluateGate resolves a [Gate] against the engine's current state.
func (e *Engine) EvaluateGate(g Gate) GateDecision {
	e.mu.Lock()
	snapshot := GateSnapshot{
		Identity: e.user,
		Profile:  e.profile,
		Loading:  e.loading,
	}
	if e.user != nil && e.profile == nil && !e.authStartedAt.IsZero() {
		snapshot.ProfileWaited = time.Since(e.authStartedAt)
	}
	e.mu.Unlock()

	return g.Evaluate(snapshot, e.config.Gate.ProfileWait)
}

/*
====================================
CREDENTIAL SESSION CONTROLLER
====================================
*/

// SignUp creates a new identity, then creates the matching profile
// out-of-band. A profile-create failure does not roll back the identity;
// the resolver degrades and the inconsistency closes on the next
// sign-in.
func (e *Engine) SignUp(ctx context.Context, email, password string, meta SignUpMetadata) (*SignInResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	e.setLoading(true)
	defer e.setLoading(false)
	e.setState(StateAuthenticating)

	identity, tokens, err := e.identity.SignUp(ctx, email, password)
	if err != nil {
		e.setState(StateUnauthenticated)
		return nil, err
	}

	profile := e.createSignUpProfile(ctx, identity, meta)
	e.establishSession(ctx, identity, profile, tokens)
	e.recordAudit(ctx, ActionSignUp, "account created", RiskLow)

	return &SignInResult{
		Identity:           identity,
		Tokens:             tokens,
		Profile:            profile,
		MustChangePassword: profile.MustChangePassword,
	}, nil
}

func (e *Engine) createSignUpProfile(ctx context.Context, identity *Identity, meta SignUpMetadata) *Profile {
	role := meta.Role
	if !role.Valid() {
		role = e.config.Profile.DefaultRole
	}

	now := time.Now()
	profile := &Profile{
		ID:         identity.ID,
		Email:      identity.Email,
		FullName:   meta.FullName,
		Role:       role,
		Department: meta.Department,
		IsActive:   true,
		CreatedAt:  identity.CreatedAt,
		UpdatedAt:  now,
	}

	if err := e.profiles.Upsert(ctx, profile); err != nil {
		// Identity creation is not rolled back; the resolver will retry
		// profile creation on the next sign-in.
		log.Printf("stationauth: profile create after sign-up failed for %s: %v", identity.ID, err)
		e.metrics.Inc(MetricProfileDegraded)
		return e.resolver.minimalProfile(identity)
	}

	e.metrics.Inc(MetricProfileCreated)
	return profile
}

// SignIn establishes a session: lockout pre-check, credential check at
// the identity service, profile resolution, second-factor enforcement,
// then device and session registration. The returned errors follow the
// taxonomy in errors.go; [ErrSecondFactorRequired] is a re-prompt, not a
// failure, and records no failed_login entry.
func (e *Engine) SignIn(ctx context.Context, email, password, secondFactorCode string) (*SignInResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	e.setLoading(true)
	defer e.setLoading(false)
	e.setState(StateAuthenticating)

	// Lockout pre-check is availability-favoring: a failed read skips
	// the check rather than blocking sign-in.
	known, err := e.profiles.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrProfileNotFound) {
		log.Printf("stationauth: lockout pre-check read failed: %v", err)
		known = nil
	}
	if known != nil && known.AccountLockedUntil != nil && known.AccountLockedUntil.After(time.Now()) {
		e.metrics.Inc(MetricLoginLocked)
		e.recordAuditFor(ctx, known.ID, ActionLoginLocked, "sign-in attempt while account locked", RiskHigh)
		e.setState(StateUnauthenticated)
		return nil, ErrAccountLocked
	}

	identity, tokens, err := e.identity.SignIn(ctx, email, password)
	if err != nil {
		e.metrics.Inc(MetricLoginFailure)
		userID := ""
		if known != nil {
			userID = known.ID
		}
		e.recordAuditFor(ctx, userID, ActionFailedLogin, "credential check rejected", RiskMedium)
		e.registerFailedAttempt(ctx, known)
		e.setState(StateUnauthenticated)
		if errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrIdentityNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	profile := e.resolver.FetchOrCreate(ctx, identity)
	if !profile.IsActive {
		e.recordAuditFor(ctx, profile.ID, ActionFailedLogin, "sign-in attempt on inactive account", RiskMedium)
		e.setState(StateUnauthenticated)
		return nil, ErrAccountInactive
	}

	if profile.TwoFactor.Enabled && profile.TwoFactor.Confirmed {
		if secondFactorCode == "" {
			e.metrics.Inc(MetricSecondFactorRequired)
			e.setState(StateSecondFactorPending)
			return nil, ErrSecondFactorRequired
		}
		if err := e.verifySecondFactor(ctx, profile, secondFactorCode); err != nil {
			e.metrics.Inc(MetricSecondFactorFailure)
			e.recordAuditFor(ctx, profile.ID, ActionFailedLogin, "second factor rejected", RiskHigh)
			e.setState(StateUnauthenticated)
			return nil, err
		}
		e.metrics.Inc(MetricSecondFactorSuccess)
	}

	e.clearFailedAttempts(ctx, profile)
	e.establishSession(ctx, identity, profile, tokens)

	e.metrics.Inc(MetricLoginSuccess)
	e.recordAudit(ctx, ActionLogin, "signed in", RiskLow)

	return &SignInResult{
		Identity:           identity,
		Tokens:             tokens,
		Profile:            profile,
		MustChangePassword: profile.MustChangePassword,
	}, nil
}

// Resume restores an existing session on mount: it validates the access
// token with the identity service, resolves the profile, and starts the
// idle supervisor. No audit entry is recorded; resuming is not a login.
func (e *Engine) Resume(ctx context.Context, tokens *TokenPair) error {
	if err := e.ready(); err != nil {
		return err
	}
	if tokens == nil || tokens.AccessToken == "" {
		return ErrNotAuthenticated
	}
	e.setLoading(true)
	defer e.setLoading(false)
	e.setState(StateAuthenticating)

	identity, err := e.identity.CurrentSession(ctx, tokens.AccessToken)
	if err != nil {
		e.setState(StateUnauthenticated)
		if errors.Is(err, ErrSessionExpired) {
			return ErrSessionExpired
		}
		return err
	}

	profile := e.resolver.FetchOrCreate(ctx, identity)
	e.establishSession(ctx, identity, profile, tokens)
	return nil
}

// SignOut records the logout, stops the idle supervisor, clears all
// local security state, and delegates to the identity service. Local
// state is cleared even when the delegate fails.
func (e *Engine) SignOut(ctx context.Context) error {
	if err := e.ready(); err != nil {
		return err
	}

	e.mu.Lock()
	user := e.user
	tokens := e.tokens
	e.mu.Unlock()
	if user == nil {
		return ErrNotAuthenticated
	}

	e.recordAudit(ctx, ActionLogout, "signed out", RiskLow)
	e.metrics.Inc(MetricLogout)

	// Stop the timer before clearing state so it cannot fire against a
	// cleared session.
	e.idle.Stop()

	if err := e.security.Clear(ctx, user.ID); err != nil {
		log.Printf("stationauth: security state clear failed: %v", err)
	}

	e.mu.Lock()
	e.user = nil
	e.profile = nil
	e.tokens = nil
	e.currentDeviceID = ""
	e.currentSessionID = ""
	e.state = StateUnauthenticated
	e.mu.Unlock()

	if tokens != nil {
		return e.identity.SignOut(ctx, tokens.AccessToken)
	}
	return nil
}

// ResetPassword requests the identity service's out-of-band reset flow.
// An audit entry is recorded regardless of outcome.
func (e *Engine) ResetPassword(ctx context.Context, email string) error {
	if err := e.ready(); err != nil {
		return err
	}

	err := e.identity.SendPasswordReset(ctx, email)
	if err != nil {
		e.recordAudit(ctx, ActionPasswordReset, "reset request failed: "+err.Error(), RiskMedium)
		return err
	}
	e.recordAudit(ctx, ActionPasswordReset, "reset email requested", RiskLow)
	return nil
}

// RefreshSession re-requests a token pair. Unlike profile resolution
// this path propagates failure: callers must handle it, typically by
// forcing re-authentication.
func (e *Engine) RefreshSession(ctx context.Context) error {
	if err := e.ready(); err != nil {
		return err
	}

	e.mu.Lock()
	tokens := e.tokens
	sessionID := e.currentSessionID
	e.mu.Unlock()
	if tokens == nil || tokens.RefreshToken == "" {
		return ErrNotAuthenticated
	}

	next, err := e.identity.Refresh(ctx, tokens.RefreshToken)
	if err != nil {
		e.metrics.Inc(MetricRefreshFailure)
		return err
	}

	e.mu.Lock()
	e.tokens = next
	e.mu.Unlock()

	if sessionID != "" {
		if touchErr := e.security.TouchSession(ctx, sessionID, time.Now()); touchErr != nil {
			log.Printf("stationauth: session touch after refresh failed: %v", touchErr)
		}
	}

	e.metrics.Inc(MetricRefreshSuccess)
	e.recordAudit(ctx, ActionSessionRefreshed, "token pair refreshed", RiskLow)
	return nil
}

// UpdateProfile persists a partial update and applies it to in-memory
// state only after the write succeeds. Unlike the read paths this
// propagates failure: the caller explicitly requested a change.
func (e *Engine) UpdateProfile(ctx context.Context, update ProfileUpdate) error {
	if err := e.ready(); err != nil {
		return err
	}

	e.mu.Lock()
	profile := e.profile
	e.mu.Unlock()
	if profile == nil {
		return ErrNotAuthenticated
	}
	if profile.Ephemeral() {
		return ErrStoreUnavailable
	}

	updated, err := e.profiles.Update(ctx, profile.ID, update)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.profile = updated
	e.mu.Unlock()

	if update.Security != nil && update.Security.SessionTimeoutMinutes > 0 {
		e.idle.SetTimeout(time.Duration(update.Security.SessionTimeoutMinutes) * time.Minute)
	}

	e.recordAudit(ctx, ActionProfileUpdate, "profile updated", RiskLow)
	return nil
}

/*
====================================
SESSION ESTABLISHMENT
====================================
*/

func (e *Engine) establishSession(ctx context.Context, identity *Identity, profile *Profile, tokens *TokenPair) {
	deviceID := e.registerDevice(ctx, identity)
	sessionID := e.registerSession(ctx, identity, deviceID, tokens)

	e.mu.Lock()
	e.user = identity
	e.profile = profile
	e.tokens = tokens
	e.currentDeviceID = deviceID
	e.currentSessionID = sessionID
	e.state = StateAuthenticated
	e.authStartedAt = time.Now()
	e.mu.Unlock()

	e.startIdle(profile)
}

func (e *Engine) registerDevice(ctx context.Context, identity *Identity) string {
	userAgent := userAgentFromContext(ctx)
	ip := clientIPFromContext(ctx)
	browser, os, deviceType := deviceFromUserAgent(userAgent)

	// Reuse an existing record for the same browser/OS/IP triple so a
	// returning browser does not accumulate duplicate devices.
	deviceID := ""
	existing, err := e.security.ListDevices(ctx, identity.ID)
	if err != nil {
		log.Printf("stationauth: device list failed: %v", err)
	}
	for _, d := range existing {
		if d.Browser == browser && d.OS == os && d.IPAddress == ip {
			deviceID = d.ID
			break
		}
	}
	if deviceID == "" {
		deviceID = uuid.NewString()
	}

	for _, d := range existing {
		if d.IsCurrentDevice && d.ID != deviceID {
			d.IsCurrentDevice = false
			if err := e.security.PutDevice(ctx, d); err != nil {
				log.Printf("stationauth: device update failed: %v", err)
			}
		}
	}

	trusted := false
	for _, d := range existing {
		if d.ID == deviceID {
			trusted = d.IsTrusted
			break
		}
	}

	device := DeviceInfo{
		ID:              deviceID,
		UserID:          identity.ID,
		DeviceName:      deviceName(browser, os),
		DeviceType:      deviceType,
		Browser:         browser,
		OS:              os,
		IPAddress:       ip,
		LastUsed:        time.Now(),
		IsCurrentDevice: true,
		IsTrusted:       trusted,
		Location:        locationFromContext(ctx),
	}
	if err := e.security.PutDevice(ctx, device); err != nil {
		log.Printf("stationauth: device register failed: %v", err)
	}
	return deviceID
}

func (e *Engine) registerSession(ctx context.Context, identity *Identity, deviceID string, tokens *TokenPair) string {
	now := time.Now()
	expires := now.Add(e.idleTimeoutFor(nil))
	if tokens != nil && !tokens.ExpiresAt.IsZero() {
		expires = tokens.ExpiresAt
	}

	session := SessionInfo{
		ID:           uuid.NewString(),
		UserID:       identity.ID,
		DeviceID:     deviceID,
		StartTime:    now,
		LastActivity: now,
		IPAddress:    clientIPFromContext(ctx),
		IsActive:     true,
		ExpiresAt:    expires,
	}
	if err := e.security.PutSession(ctx, session); err != nil {
		log.Printf("stationauth: session register failed: %v", err)
	}
	return session.ID
}

/*
====================================
LOCKOUT
====================================
*/

func (e *Engine) registerFailedAttempt(ctx context.Context, profile *Profile) {
	if profile == nil || profile.Ephemeral() || e.config.Lockout.MaxFailedAttempts <= 0 {
		return
	}

	attempts := profile.FailedLoginAttempts + 1
	update := ProfileUpdate{FailedLoginAttempts: &attempts}

	if attempts >= e.config.Lockout.MaxFailedAttempts {
		until := time.Now().Add(e.config.Lockout.LockDuration)
		untilPtr := &until
		update.AccountLockedUntil = &untilPtr
		e.raiseAlert(ctx, "account_locked",
			"account locked after repeated failed sign-in attempts", RiskHigh)
	}

	// Attempt accounting is best-effort: a store failure must not turn a
	// failed login into a different error.
	if _, err := e.profiles.Update(ctx, profile.ID, update); err != nil {
		log.Printf("stationauth: failed-attempt update failed for %s: %v", profile.ID, err)
	}
}

func (e *Engine) clearFailedAttempts(ctx context.Context, profile *Profile) {
	if profile == nil || profile.Ephemeral() {
		return
	}
	if profile.FailedLoginAttempts == 0 && profile.AccountLockedUntil == nil {
		return
	}

	zero := 0
	var cleared *time.Time
	update := ProfileUpdate{
		FailedLoginAttempts: &zero,
		AccountLockedUntil:  &cleared,
	}
	if _, err := e.profiles.Update(ctx, profile.ID, update); err != nil {
		log.Printf("stationauth: failed-attempt reset failed for %s: %v", profile.ID, err)
		return
	}
	profile.FailedLoginAttempts = 0
	profile.AccountLockedUntil = nil
}

/*
====================================
IDLE SUPERVISOR WIRING
====================================
*/

// Touch records user activity: it resets the inactivity deadline and
// stamps the current session. Call it on every qualifying input signal.
func (e *Engine) Touch() {
	if e == nil {
		return
	}
	e.idle.Touch()

	e.mu.Lock()
	sessionID := e.currentSessionID
	e.mu.Unlock()
	if sessionID != "" {
		if err := e.security.TouchSession(context.Background(), sessionID, time.Now()); err != nil {
			log.Printf("stationauth: session touch failed: %v", err)
		}
	}
}

// LastActivity returns the idle supervisor's most recent activity time.
func (e *Engine) LastActivity() time.Time {
	if e == nil {
		return time.Time{}
	}
	return e.idle.LastActivity()
}

func (e *Engine) startIdle(profile *Profile) {
	if !e.config.Idle.Enabled || e.idle == nil {
		return
	}
	e.idle.SetTimeout(e.idleTimeoutFor(profile))
	e.idle.Start()
}

func (e *Engine) idleTimeoutFor(profile *Profile) time.Duration {
	if profile != nil && profile.Security.SessionTimeoutMinutes > 0 {
		return time.Duration(profile.Security.SessionTimeoutMinutes) * time.Minute
	}
	return e.config.Idle.DefaultTimeout
}

func (e *Engine) handleIdleTimeout() {
	ctx := context.Background()

	e.metrics.Inc(MetricSessionTimeout)
	e.recordAudit(ctx, ActionSessionTimeout, "signed out after inactivity", RiskMedium)

	if e.onTimeoutNotice != nil {
		e.onTimeoutNotice()
	}

	if err := e.SignOut(ctx); err != nil && !errors.Is(err, ErrNotAuthenticated) {
		log.Printf("stationauth: forced sign-out after idle timeout failed: %v", err)
	}
}

/*
====================================
AUDIT HELPERS
====================================
*/

func (e *Engine) recordAudit(ctx context.Context, action AuditAction, details string, risk RiskLevel) {
	userID := ""
	e.mu.Lock()
	if e.user != nil {
		userID = e.user.ID
	}
	e.mu.Unlock()
	e.recordAuditFor(ctx, userID, action, details, risk)
}

func (e *Engine) recordAuditFor(ctx context.Context, userID string, action AuditAction, details string, risk RiskLevel) {
	if !e.config.Audit.Enabled {
		return
	}

	entry := AuditEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Action:    action,
		Details:   details,
		IPAddress: clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Timestamp: time.Now(),
		RiskLevel: risk,
		Location:  locationFromContext(ctx),
	}

	if err := e.security.AppendAudit(ctx, entry); err != nil {
		log.Printf("stationauth: audit append failed: %v", err)
	}
	e.audit.Emit(ctx, entry)
}

func (e *Engine) raiseAlert(ctx context.Context, alertType, message string, severity RiskLevel) {
	alert := SecurityAlert{
		ID:        uuid.NewString(),
		Type:      alertType,
		Message:   message,
		Timestamp: time.Now(),
		Severity:  severity,
	}
	if err := e.security.AppendAlert(ctx, alert); err != nil {
		log.Printf("stationauth: alert append failed: %v", err)
	}
}

func (e *Engine) ready() error {
	if e == nil || e.identity == nil || e.profiles == nil || e.security == nil {
		return ErrEngineNotReady
	}
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return ErrEngineNotReady
	}
	return nil
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	if s == StateAuthenticating {
		e.authStartedAt = time.Now()
	}
	e.mu.Unlock()
}

func (e *Engine) setLoading(v bool) {
	e.mu.Lock()
	e.loading = v
	e.mu.Unlock()
}

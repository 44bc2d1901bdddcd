package stationauth

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/Dexploarer/stationauth/internal"
	qrcode "github.com/skip2/go-qrcode"
)

/*
====================================
SECOND FACTOR OPERATIONS
====================================
*/

// EnableSecondFactor stages TOTP enrollment for the current user: it
// generates a secret, builds the provisioning URI and QR code, and
// issues fresh backup codes. The factor stays unconfirmed (and is not
// enforced at sign-in) until [Engine.ConfirmSecondFactor] succeeds with
// a code from the enrolled authenticator.
//
// The returned backup codes are the only plaintext copy; the profile
// stores hashes.
func (e *Engine) EnableSecondFactor(ctx context.Context) (*SecondFactorSetup, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	profile := e.profile
	e.mu.Unlock()
	if profile == nil {
		return nil, ErrNotAuthenticated
	}
	if profile.Ephemeral() {
		return nil, ErrStoreUnavailable
	}

	secret, secretBase32, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}
	uri := e.totp.ProvisionURI(secretBase32, profile.Email)

	png, err := qrcode.Encode(uri, qrcode.Medium, e.config.SecondFactor.QRCodeSize)
	if err != nil {
		return nil, err
	}

	codes, records, err := e.newBackupCodes()
	if err != nil {
		return nil, err
	}

	staged := TwoFactorAuth{
		Enabled:     true,
		Confirmed:   false,
		Secret:      secret,
		BackupCodes: records,
	}
	updated, err := e.profiles.Update(ctx, profile.ID, ProfileUpdate{TwoFactor: &staged})
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.profile = updated
	e.mu.Unlock()

	return &SecondFactorSetup{
		SecretBase32:    secretBase32,
		ProvisioningURI: uri,
		QRCodePNG:       "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		BackupCodes:     codes,
	}, nil
}

// ConfirmSecondFactor completes enrollment by proving the authenticator
// holds the staged secret. Only a confirmed factor is enforced at
// sign-in.
func (e *Engine) ConfirmSecondFactor(ctx context.Context, code string) error {
	if err := e.ready(); err != nil {
		return err
	}

	e.mu.Lock()
	profile := e.profile
	e.mu.Unlock()
	if profile == nil {
		return ErrNotAuthenticated
	}
	if !profile.TwoFactor.Enabled || len(profile.TwoFactor.Secret) == 0 {
		return ErrSecondFactorNotConfigured
	}

	ok, counter, err := e.totp.VerifyCode(profile.TwoFactor.Secret, code, time.Now())
	if err != nil {
		return err
	}
	if !ok {
		return ErrSecondFactorInvalid
	}

	confirmed := profile.TwoFactor
	confirmed.Confirmed = true
	confirmed.LastUsedCounter = counter
	updated, err := e.profiles.Update(ctx, profile.ID, ProfileUpdate{TwoFactor: &confirmed})
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.profile = updated
	e.mu.Unlock()

	e.recordAudit(ctx, ActionTwoFactorEnabled, "second factor confirmed", RiskLow)
	return nil
}

// DisableSecondFactor turns the factor off after re-verifying the
// caller's password against the identity service. Secret and backup
// code hashes are discarded.
func (e *Engine) DisableSecondFactor(ctx context.Context, password string) error {
	if err := e.ready(); err != nil {
		return err
	}

	e.mu.Lock()
	profile := e.profile
	user := e.user
	e.mu.Unlock()
	if profile == nil || user == nil {
		return ErrNotAuthenticated
	}
	if !profile.TwoFactor.Enabled {
		return ErrSecondFactorNotConfigured
	}

	if _, _, err := e.identity.SignIn(ctx, user.Email, password); err != nil {
		if errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrIdentityNotFound) {
			return ErrInvalidCredentials
		}
		return err
	}

	cleared := TwoFactorAuth{}
	updated, err := e.profiles.Update(ctx, profile.ID, ProfileUpdate{TwoFactor: &cleared})
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.profile = updated
	e.mu.Unlock()

	e.limiter.Reset(profile.ID)
	e.recordAudit(ctx, ActionTwoFactorDisabled, "second factor disabled", RiskMedium)
	return nil
}

// RegenerateBackupCodes replaces the full backup code set. Previously
// issued codes stop working immediately.
func (e *Engine) RegenerateBackupCodes(ctx context.Context) ([]string, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	profile := e.profile
	e.mu.Unlock()
	if profile == nil {
		return nil, ErrNotAuthenticated
	}
	if !profile.TwoFactor.Enabled {
		return nil, ErrSecondFactorNotConfigured
	}

	codes, records, err := e.newBackupCodes()
	if err != nil {
		return nil, err
	}

	next := profile.TwoFactor
	next.BackupCodes = records
	updated, err := e.profiles.Update(ctx, profile.ID, ProfileUpdate{TwoFactor: &next})
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.profile = updated
	e.mu.Unlock()

	e.recordAudit(ctx, ActionBackupCodesRegenerated, "backup codes regenerated", RiskMedium)
	return codes, nil
}

// BackupCodesRemaining reports how many unused backup codes the current
// profile still holds.
func (e *Engine) BackupCodesRemaining() int {
	profile := e.CurrentProfile()
	if profile == nil {
		return 0
	}
	return len(profile.TwoFactor.BackupCodes)
}

/*
====================================
VERIFICATION
====================================
*/

// verifySecondFactor accepts either a TOTP code or a backup code. TOTP
// acceptance advances the replay counter; a backup code is consumed on
// use. Both paths persist before returning success.
func (e *Engine) verifySecondFactor(ctx context.Context, profile *Profile, code string) error {
	if !e.limiter.Allow(profile.ID) {
		e.raiseAlert(ctx, "second_factor_throttled",
			"second-factor verification rate limit exceeded", RiskHigh)
		return ErrSecondFactorRateLimited
	}

	trimmed := strings.TrimSpace(code)

	if len(trimmed) == e.config.SecondFactor.Digits && isNumericString(trimmed) {
		ok, counter, err := e.totp.VerifyCode(profile.TwoFactor.Secret, trimmed, time.Now())
		if err != nil {
			return err
		}
		if ok {
			if e.config.SecondFactor.EnforceReplayProtection &&
				counter <= profile.TwoFactor.LastUsedCounter {
				return ErrSecondFactorInvalid
			}
			next := profile.TwoFactor
			next.LastUsedCounter = counter
			if _, err := e.profiles.Update(ctx, profile.ID, ProfileUpdate{TwoFactor: &next}); err != nil {
				return err
			}
			profile.TwoFactor.LastUsedCounter = counter
			e.limiter.Reset(profile.ID)
			return nil
		}
		return ErrSecondFactorInvalid
	}

	return e.consumeBackupCode(ctx, profile, trimmed)
}

func (e *Engine) consumeBackupCode(ctx context.Context, profile *Profile, code string) error {
	hash := internal.HashBackupCode(strings.ToUpper(code))

	match := -1
	for i, record := range profile.TwoFactor.BackupCodes {
		if subtle.ConstantTimeCompare(record.Hash[:], hash[:]) == 1 {
			match = i
			break
		}
	}
	if match < 0 {
		return ErrSecondFactorInvalid
	}

	next := profile.TwoFactor
	next.BackupCodes = make([]BackupCodeRecord, 0, len(profile.TwoFactor.BackupCodes)-1)
	next.BackupCodes = append(next.BackupCodes, profile.TwoFactor.BackupCodes[:match]...)
	next.BackupCodes = append(next.BackupCodes, profile.TwoFactor.BackupCodes[match+1:]...)

	if _, err := e.profiles.Update(ctx, profile.ID, ProfileUpdate{TwoFactor: &next}); err != nil {
		return err
	}
	profile.TwoFactor.BackupCodes = next.BackupCodes

	e.metrics.Inc(MetricBackupCodeUsed)
	e.limiter.Reset(profile.ID)
	if len(next.BackupCodes) <= 2 {
		e.raiseAlert(ctx, "backup_codes_low",
			"two or fewer backup codes remain; regenerate soon", RiskMedium)
	}
	return nil
}

func (e *Engine) newBackupCodes() ([]string, []BackupCodeRecord, error) {
	count := e.config.SecondFactor.BackupCodeCount
	length := e.config.SecondFactor.BackupCodeLength

	codes := make([]string, 0, count)
	records := make([]BackupCodeRecord, 0, count)
	for i := 0; i < count; i++ {
		code, err := internal.NewBackupCode(length)
		if err != nil {
			return nil, nil, err
		}
		codes = append(codes, code)
		records = append(records, BackupCodeRecord{Hash: internal.HashBackupCode(code)})
	}
	return codes, records, nil
}

package stationauth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Dexploarer/stationauth/permission"
)

// currentCode derives the TOTP code the enrolled authenticator would
// show right now for the given profile.
func currentCode(t *testing.T, cfg SecondFactorConfig, secret []byte, offsetSteps int64) string {
	t.Helper()

	counter := time.Now().Unix()/int64(cfg.Period) + offsetSteps
	code, err := hotpCode(secret, counter, cfg.Digits, cfg.Algorithm)
	if err != nil {
		t.Fatalf("hotpCode failed: %v", err)
	}
	return code
}

// enrollSecondFactor signs in, enables, and confirms TOTP. Returns the
// setup material and the shared secret.
func enrollSecondFactor(t *testing.T, env *testEnv) (*SecondFactorSetup, []byte) {
	t.Helper()
	ctx := context.Background()

	setup, err := env.engine.EnableSecondFactor(ctx)
	if err != nil {
		t.Fatalf("EnableSecondFactor failed: %v", err)
	}

	secret := env.engine.CurrentProfile().TwoFactor.Secret
	if len(secret) == 0 {
		t.Fatal("expected staged secret on profile")
	}

	code := currentCode(t, env.engine.config.SecondFactor, secret, 0)
	if err := env.engine.ConfirmSecondFactor(ctx, code); err != nil {
		t.Fatalf("ConfirmSecondFactor failed: %v", err)
	}
	return setup, secret
}

func TestEnableSecondFactorStagesUnconfirmed(t *testing.T) {
	cfg := engineTestConfig()
	env, done := newTestEngine(t, cfg)
	defer done()
	env.seedUser(t, "alice@example.com", "correct-horse", permission.RoleManager)

	if _, err := env.engine.SignIn(context.Background(), "alice@example.com", "correct-horse", ""); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}

	setup, err := env.engine.EnableSecondFactor(context.Background())
	if err != nil {
		t.Fatalf("EnableSecondFactor failed: %v", err)
	}

	if len(setup.BackupCodes) != cfg.SecondFactor.BackupCodeCount {
		t.Fatalf("expected %d backup codes, got %d", cfg.SecondFactor.BackupCodeCount, len(setup.BackupCodes))
	}
	if !strings.HasPrefix(setup.QRCodePNG, "data:image/png;base64,") {
		t.Fatal("expected PNG data URL in setup material")
	}
	if !strings.HasPrefix(setup.ProvisioningURI, "otpauth://totp/") {
		t.Fatalf("unexpected provisioning URI %q", setup.ProvisioningURI)
	}
	if !strings.Contains(setup.ProvisioningURI, setup.SecretBase32) {
		t.Fatal("provisioning URI must embed the secret")
	}

	profile := env.engine.CurrentProfile()
	if !profile.TwoFactor.Enabled || profile.TwoFactor.Confirmed {
		t.Fatalf("expected enabled-but-unconfirmed factor, got %+v", profile.TwoFactor)
	}

	// Unconfirmed enrollment must not gate sign-in.
	if err := env.engine.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}
	if _, err := env.engine.SignIn(context.Background(), "alice@example.com", "correct-horse", ""); err != nil {
		t.Fatalf("sign-in with unconfirmed factor should not require a code: %v", err)
	}
}

func TestConfirmedSecondFactorGatesSignIn(t *testing.T) {
	env, done := newTestEngine(t, engineTestConfig())
	defer done()
	id := env.seedUser(t, "alice@example.com", "correct-horse", permission.RoleManager)

	if _, err := env.engine.SignIn(context.Background(), "alice@example.com", "correct-horse", ""); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	_, secret := enrollSecondFactor(t, env)
	if err := env.engine.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}

	// No code: re-prompt, pending state, and crucially no failed_login.
	_, err := env.engine.SignIn(context.Background(), "alice@example.com", "correct-horse", "")
	if !errors.Is(err, ErrSecondFactorRequired) {
		t.Fatalf("expected ErrSecondFactorRequired, got %v", err)
	}
	if env.engine.State() != StateSecondFactorPending {
		t.Fatalf("expected second-factor pending state, got %s", env.engine.State())
	}
	entries, _ := env.security.ListAudit(context.Background(), id)
	if n := countAction(entries, ActionFailedLogin); n != 0 {
		t.Fatalf("code re-prompt must not record failed_login, got %d", n)
	}

	// Wrong code: high-risk failed_login.
	_, err = env.engine.SignIn(context.Background(), "alice@example.com", "correct-horse", "000000")
	if !errors.Is(err, ErrSecondFactorInvalid) {
		t.Fatalf("expected ErrSecondFactorInvalid, got %v", err)
	}
	entries, _ = env.security.ListAudit(context.Background(), id)
	if n := countAction(entries, ActionFailedLogin); n != 1 {
		t.Fatalf("expected one failed_login after bad code, got %d", n)
	}
	if entries[0].RiskLevel != RiskHigh {
		t.Fatalf("expected high risk on second-factor failure, got %s", entries[0].RiskLevel)
	}

	// Correct code completes the sign-in. Confirmation already consumed
	// the current step, so the authenticator's next code (one step ahead,
	// still inside the skew window) is used.
	code := currentCode(t, env.engine.config.SecondFactor, secret, 1)
	if _, err := env.engine.SignIn(context.Background(), "alice@example.com", "correct-horse", code); err != nil {
		t.Fatalf("sign-in with valid code failed: %v", err)
	}
	if env.engine.State() != StateAuthenticated {
		t.Fatalf("expected authenticated, got %s", env.engine.State())
	}
}

func TestSecondFactorReplayRejected(t *testing.T) {
	env, done := newTestEngine(t, engineTestConfig())
	defer done()
	env.seedUser(t, "alice@example.com", "correct-horse", permission.RoleManager)

	if _, err := env.engine.SignIn(context.Background(), "alice@example.com", "correct-horse", ""); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	_, secret := enrollSecondFactor(t, env)
	if err := env.engine.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}

	code := currentCode(t, env.engine.config.SecondFactor, secret, 1)
	if _, err := env.engine.SignIn(context.Background(), "alice@example.com", "correct-horse", code); err != nil {
		t.Fatalf("first use failed: %v", err)
	}
	if err := env.engine.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}

	// Same step, same code: replay protection rejects it.
	if _, err := env.engine.SignIn(context.Background(), "alice@example.com", "correct-horse", code); !errors.Is(err, ErrSecondFactorInvalid) {
		t.Fatalf("expected replay rejection, got %v", err)
	}
}

func TestBackupCodeSignInConsumesCode(t *testing.T) {
	env, done := newTestEngine(t, engineTestConfig())
	defer done()
	env.seedUser(t, "alice@example.com", "correct-horse", permission.RoleManager)

	if _, err := env.engine.SignIn(context.Background(), "alice@example.com", "correct-horse", ""); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	setup, _ := enrollSecondFactor(t, env)
	before := env.engine.BackupCodesRemaining()
	if err := env.engine.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}

	if _, err := env.engine.SignIn(context.Background(), "alice@example.com", "correct-horse", setup.BackupCodes[0]); err != nil {
		t.Fatalf("backup code sign-in failed: %v", err)
	}
	if got := env.engine.BackupCodesRemaining(); got != before-1 {
		t.Fatalf("expected %d codes remaining, got %d", before-1, got)
	}
	if err := env.engine.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}

	// Second use of the same code fails.
	if _, err := env.engine.SignIn(context.Background(), "alice@example.com", "correct-horse", setup.BackupCodes[0]); !errors.Is(err, ErrSecondFactorInvalid) {
		t.Fatalf("expected consumed code rejection, got %v", err)
	}
}

func TestRegenerateBackupCodesInvalidatesOld(t *testing.T) {
	env, done := newTestEngine(t, engineTestConfig())
	defer done()
	env.seedUser(t, "alice@example.com", "correct-horse", permission.RoleManager)

	if _, err := env.engine.SignIn(context.Background(), "alice@example.com", "correct-horse", ""); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	setup, _ := enrollSecondFactor(t, env)

	fresh, err := env.engine.RegenerateBackupCodes(context.Background())
	if err != nil {
		t.Fatalf("RegenerateBackupCodes failed: %v", err)
	}
	if len(fresh) != len(setup.BackupCodes) {
		t.Fatalf("expected %d fresh codes, got %d", len(setup.BackupCodes), len(fresh))
	}
	if err := env.engine.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}

	if _, err := env.engine.SignIn(context.Background(), "alice@example.com", "correct-horse", setup.BackupCodes[0]); !errors.Is(err, ErrSecondFactorInvalid) {
		t.Fatalf("expected old code rejection, got %v", err)
	}
	if _, err := env.engine.SignIn(context.Background(), "alice@example.com", "correct-horse", fresh[0]); err != nil {
		t.Fatalf("fresh code sign-in failed: %v", err)
	}
}

func TestDisableSecondFactorRequiresPassword(t *testing.T) {
	env, done := newTestEngine(t, engineTestConfig())
	defer done()
	env.seedUser(t, "alice@example.com", "correct-horse", permission.RoleManager)

	if _, err := env.engine.SignIn(context.Background(), "alice@example.com", "correct-horse", ""); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	enrollSecondFactor(t, env)

	if err := env.engine.DisableSecondFactor(context.Background(), "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected re-auth rejection, got %v", err)
	}
	if err := env.engine.DisableSecondFactor(context.Background(), "correct-horse"); err != nil {
		t.Fatalf("DisableSecondFactor failed: %v", err)
	}

	profile := env.engine.CurrentProfile()
	if profile.TwoFactor.Enabled || len(profile.TwoFactor.Secret) != 0 || len(profile.TwoFactor.BackupCodes) != 0 {
		t.Fatalf("expected cleared factor, got %+v", profile.TwoFactor)
	}

	// Sign-in no longer asks for a code.
	if err := env.engine.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}
	if _, err := env.engine.SignIn(context.Background(), "alice@example.com", "correct-horse", ""); err != nil {
		t.Fatalf("sign-in after disable failed: %v", err)
	}
}

func TestSecondFactorRateLimited(t *testing.T) {
	cfg := engineTestConfig()
	cfg.SecondFactor.VerifyRatePerMinute = 1
	cfg.SecondFactor.VerifyBurst = 2
	env, done := newTestEngine(t, cfg)
	defer done()
	env.seedUser(t, "alice@example.com", "correct-horse", permission.RoleManager)

	if _, err := env.engine.SignIn(context.Background(), "alice@example.com", "correct-horse", ""); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	enrollSecondFactor(t, env)
	if err := env.engine.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}

	sawLimited := false
	for i := 0; i < 5 && !sawLimited; i++ {
		_, err := env.engine.SignIn(context.Background(), "alice@example.com", "correct-horse", "000000")
		switch {
		case errors.Is(err, ErrSecondFactorRateLimited):
			sawLimited = true
		case errors.Is(err, ErrSecondFactorInvalid):
			// burst not yet exhausted
		default:
			t.Fatalf("attempt %d: unexpected error %v", i+1, err)
		}
	}
	if !sawLimited {
		t.Fatal("expected rate limiter to engage within burst+3 attempts")
	}
}

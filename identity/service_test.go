package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	stationauth "github.com/Dexploarer/stationauth"
	"github.com/Dexploarer/stationauth/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testConfig() Config {
	return Config{
		JWTSecret: []byte("0123456789abcdef0123456789abcdef"),
		Issuer:    "stationauth-test",
		// cheap argon2id settings for the suite
		Password: password.Params{
			MemoryKB:    8 * 1024,
			Iterations:  1,
			Parallelism: 1,
			SaltLength:  16,
			KeyLength:   16,
		},
	}
}

func newTestService(t *testing.T, cfg Config) (*Service, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})

	svc, err := NewService(client, cfg)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return svc, mr
}

func TestSignUpAndSignIn(t *testing.T) {
	svc, _ := newTestService(t, testConfig())
	ctx := context.Background()

	identity, tokens, err := svc.SignUp(ctx, "alice@example.com", "orchestra pit 9")
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if identity.ID == "" || identity.Email != "alice@example.com" {
		t.Fatalf("unexpected identity: %+v", identity)
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Fatal("sign-up must open a session")
	}

	again, _, err := svc.SignIn(ctx, "alice@example.com", "orchestra pit 9")
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if again.ID != identity.ID {
		t.Fatalf("sign-in resolved a different identity: %s vs %s", again.ID, identity.ID)
	}
}

func TestSignUpRejectsDuplicateEmail(t *testing.T) {
	svc, _ := newTestService(t, testConfig())
	ctx := context.Background()

	if _, _, err := svc.SignUp(ctx, "alice@example.com", "orchestra pit 9"); err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if _, _, err := svc.SignUp(ctx, "alice@example.com", "different pass"); !errors.Is(err, stationauth.ErrEmailExists) {
		t.Fatalf("expected ErrEmailExists, got %v", err)
	}
}

func TestSignUpRejectsMalformedInput(t *testing.T) {
	svc, _ := newTestService(t, testConfig())
	ctx := context.Background()

	if _, _, err := svc.SignUp(ctx, "not-an-email", "orchestra pit 9"); !errors.Is(err, stationauth.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := svc.SignUp(ctx, "alice@example.com", "short"); !errors.Is(err, password.ErrPasswordTooShort) {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}
}

func TestSignInIndistinguishableFailures(t *testing.T) {
	svc, _ := newTestService(t, testConfig())
	ctx := context.Background()

	if _, _, err := svc.SignUp(ctx, "alice@example.com", "orchestra pit 9"); err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}

	_, _, wrongPass := svc.SignIn(ctx, "alice@example.com", "wrong password")
	_, _, noUser := svc.SignIn(ctx, "ghost@example.com", "orchestra pit 9")
	if !errors.Is(wrongPass, stationauth.ErrInvalidCredentials) || !errors.Is(noUser, stationauth.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for both, got %v / %v", wrongPass, noUser)
	}
}

func TestCurrentSessionRoundTrip(t *testing.T) {
	svc, _ := newTestService(t, testConfig())
	ctx := context.Background()

	identity, tokens, err := svc.SignUp(ctx, "alice@example.com", "orchestra pit 9")
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}

	resumed, err := svc.CurrentSession(ctx, tokens.AccessToken)
	if err != nil {
		t.Fatalf("CurrentSession failed: %v", err)
	}
	if resumed.ID != identity.ID {
		t.Fatalf("resumed wrong identity: %s", resumed.ID)
	}

	if _, err := svc.CurrentSession(ctx, "garbage.token.here"); !errors.Is(err, stationauth.ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestSignOutKillsSession(t *testing.T) {
	svc, _ := newTestService(t, testConfig())
	ctx := context.Background()

	_, tokens, err := svc.SignUp(ctx, "alice@example.com", "orchestra pit 9")
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if err := svc.SignOut(ctx, tokens.AccessToken); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}

	// The token is cryptographically fresh but the session is gone.
	if _, err := svc.CurrentSession(ctx, tokens.AccessToken); !errors.Is(err, stationauth.ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}

	// Signing out an invalid token is a no-op.
	if err := svc.SignOut(ctx, "garbage"); err != nil {
		t.Fatalf("SignOut of invalid token must be a no-op, got %v", err)
	}
}

func TestRefreshRotatesAndDetectsReuse(t *testing.T) {
	svc, _ := newTestService(t, testConfig())
	ctx := context.Background()

	_, tokens, err := svc.SignUp(ctx, "alice@example.com", "orchestra pit 9")
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}

	rotated, err := svc.Refresh(ctx, tokens.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if rotated.RefreshToken == tokens.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}
	if _, err := svc.CurrentSession(ctx, rotated.AccessToken); err != nil {
		t.Fatalf("rotated access token rejected: %v", err)
	}

	// Replaying the pre-rotation token burns the whole chain.
	if _, err := svc.Refresh(ctx, tokens.RefreshToken); !errors.Is(err, stationauth.ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired on reuse, got %v", err)
	}
	if _, err := svc.Refresh(ctx, rotated.RefreshToken); !errors.Is(err, stationauth.ErrSessionExpired) {
		t.Fatalf("expected burned chain, got %v", err)
	}
}

func TestRefreshRejectsMalformedToken(t *testing.T) {
	svc, _ := newTestService(t, testConfig())

	if _, err := svc.Refresh(context.Background(), "not a refresh token"); !errors.Is(err, stationauth.ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	svc, _ := newTestService(t, testConfig())
	ctx := context.Background()

	identity, tokens, err := svc.SignUp(ctx, "alice@example.com", "orchestra pit 9")
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}

	if err := svc.SendPasswordReset(ctx, "alice@example.com"); err != nil {
		t.Fatalf("SendPasswordReset failed: %v", err)
	}
	token, err := svc.PeekResetToken(ctx, identity.ID)
	if err != nil {
		t.Fatalf("PeekResetToken failed: %v", err)
	}

	if err := svc.CompletePasswordReset(ctx, token, "stage door left"); err != nil {
		t.Fatalf("CompletePasswordReset failed: %v", err)
	}

	// Old password dead, new one live, prior sessions revoked.
	if _, _, err := svc.SignIn(ctx, "alice@example.com", "orchestra pit 9"); !errors.Is(err, stationauth.ErrInvalidCredentials) {
		t.Fatalf("old password still accepted: %v", err)
	}
	if _, _, err := svc.SignIn(ctx, "alice@example.com", "stage door left"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
	if _, err := svc.CurrentSession(ctx, tokens.AccessToken); !errors.Is(err, stationauth.ErrSessionExpired) {
		t.Fatalf("reset must revoke existing sessions, got %v", err)
	}

	// The token is single-use.
	if err := svc.CompletePasswordReset(ctx, token, "third password!"); !errors.Is(err, stationauth.ErrSessionExpired) {
		t.Fatalf("expected consumed token to fail, got %v", err)
	}
}

func TestPasswordResetUnknownEmailIsSilent(t *testing.T) {
	svc, _ := newTestService(t, testConfig())

	if err := svc.SendPasswordReset(context.Background(), "ghost@example.com"); err != nil {
		t.Fatalf("unknown email must not error: %v", err)
	}
}

func TestPasswordResetTokenExpires(t *testing.T) {
	cfg := testConfig()
	cfg.ResetTTL = time.Minute
	svc, mr := newTestService(t, cfg)
	ctx := context.Background()

	identity, _, err := svc.SignUp(ctx, "alice@example.com", "orchestra pit 9")
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if err := svc.SendPasswordReset(ctx, "alice@example.com"); err != nil {
		t.Fatalf("SendPasswordReset failed: %v", err)
	}
	token, err := svc.PeekResetToken(ctx, identity.ID)
	if err != nil {
		t.Fatalf("PeekResetToken failed: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if err := svc.CompletePasswordReset(ctx, token, "stage door left"); !errors.Is(err, stationauth.ErrSessionExpired) {
		t.Fatalf("expected expired token rejection, got %v", err)
	}
}

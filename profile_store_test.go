package stationauth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Dexploarer/stationauth/permission"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisProfileStore(t *testing.T) (*RedisProfileStore, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	return NewRedisProfileStore(client), func() {
		_ = client.Close()
		mr.Close()
	}
}

// profileStores runs a subtest against both ProfileStore implementations.
func profileStores(t *testing.T, fn func(t *testing.T, store ProfileStore)) {
	t.Helper()

	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryProfileStore())
	})
	t.Run("redis", func(t *testing.T) {
		store, done := newRedisProfileStore(t)
		defer done()
		fn(t, store)
	})
}

func seedProfile(t *testing.T, store ProfileStore, id, email string) *Profile {
	t.Helper()

	p := &Profile{
		ID:        id,
		Email:     email,
		Role:      permission.RoleStaff,
		IsActive:  true,
		CreatedAt: time.Now().Add(-time.Hour),
	}
	if err := store.Upsert(context.Background(), p); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	return p
}

func TestProfileStoreMissingRowIsNotFound(t *testing.T) {
	profileStores(t, func(t *testing.T, store ProfileStore) {
		if _, err := store.GetByID(context.Background(), "missing"); !errors.Is(err, ErrProfileNotFound) {
			t.Fatalf("expected ErrProfileNotFound, got %v", err)
		}
		if _, err := store.GetByEmail(context.Background(), "nobody@example.com"); !errors.Is(err, ErrProfileNotFound) {
			t.Fatalf("expected ErrProfileNotFound, got %v", err)
		}
	})
}

func TestProfileStoreRoundTrip(t *testing.T) {
	profileStores(t, func(t *testing.T, store ProfileStore) {
		seedProfile(t, store, "u1", "Alice@Example.com")

		byID, err := store.GetByID(context.Background(), "u1")
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if byID.Role != permission.RoleStaff || !byID.IsActive {
			t.Fatalf("unexpected profile: %+v", byID)
		}

		// Email lookup is case-insensitive.
		byEmail, err := store.GetByEmail(context.Background(), "alice@example.COM")
		if err != nil {
			t.Fatalf("GetByEmail failed: %v", err)
		}
		if byEmail.ID != "u1" {
			t.Fatalf("expected u1, got %s", byEmail.ID)
		}
	})
}

func TestProfileStoreInsertRejectsDuplicate(t *testing.T) {
	profileStores(t, func(t *testing.T, store ProfileStore) {
		p := seedProfile(t, store, "u1", "alice@example.com")
		if err := store.Insert(context.Background(), p); err == nil {
			t.Fatal("expected duplicate insert to fail")
		}
	})
}

func TestProfileStorePartialUpdate(t *testing.T) {
	profileStores(t, func(t *testing.T, store ProfileStore) {
		seedProfile(t, store, "u1", "alice@example.com")

		attempts := 4
		lock := time.Now().Add(time.Hour).Truncate(time.Second)
		lockPtr := &lock
		updated, err := store.Update(context.Background(), "u1", ProfileUpdate{
			FailedLoginAttempts: &attempts,
			AccountLockedUntil:  &lockPtr,
		})
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if updated.FailedLoginAttempts != 4 {
			t.Fatalf("expected attempts 4, got %d", updated.FailedLoginAttempts)
		}
		if updated.AccountLockedUntil == nil || !updated.AccountLockedUntil.Equal(lock) {
			t.Fatalf("expected lock %v, got %v", lock, updated.AccountLockedUntil)
		}
		// Untouched fields survive.
		if updated.Email != "alice@example.com" || updated.Role != permission.RoleStaff {
			t.Fatalf("partial update clobbered fields: %+v", updated)
		}

		// The double pointer clears the nullable field.
		var cleared *time.Time
		updated, err = store.Update(context.Background(), "u1", ProfileUpdate{AccountLockedUntil: &cleared})
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if updated.AccountLockedUntil != nil {
			t.Fatalf("expected cleared lock, got %v", updated.AccountLockedUntil)
		}
		if updated.FailedLoginAttempts != 4 {
			t.Fatalf("clear must not touch attempts, got %d", updated.FailedLoginAttempts)
		}
	})
}

func TestProfileStoreUpdateMissingRow(t *testing.T) {
	profileStores(t, func(t *testing.T, store ProfileStore) {
		name := "X"
		if _, err := store.Update(context.Background(), "missing", ProfileUpdate{FullName: &name}); !errors.Is(err, ErrProfileNotFound) {
			t.Fatalf("expected ErrProfileNotFound, got %v", err)
		}
	})
}

func TestProfileStoreTwoFactorRoundTrip(t *testing.T) {
	profileStores(t, func(t *testing.T, store ProfileStore) {
		seedProfile(t, store, "u1", "alice@example.com")

		tf := TwoFactorAuth{
			Enabled:         true,
			Confirmed:       true,
			Secret:          []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
			LastUsedCounter: 42,
			BackupCodes: []BackupCodeRecord{
				{Hash: [32]byte{0xAA}},
				{Hash: [32]byte{0xBB}},
			},
		}
		if _, err := store.Update(context.Background(), "u1", ProfileUpdate{TwoFactor: &tf}); err != nil {
			t.Fatalf("Update failed: %v", err)
		}

		got, err := store.GetByID(context.Background(), "u1")
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if !got.TwoFactor.Confirmed || got.TwoFactor.LastUsedCounter != 42 {
			t.Fatalf("unexpected factor state: %+v", got.TwoFactor)
		}
		if len(got.TwoFactor.Secret) != 10 || got.TwoFactor.Secret[0] != 1 {
			t.Fatalf("secret did not round-trip: %v", got.TwoFactor.Secret)
		}
		if len(got.TwoFactor.BackupCodes) != 2 || got.TwoFactor.BackupCodes[1].Hash[0] != 0xBB {
			t.Fatalf("backup codes did not round-trip: %+v", got.TwoFactor.BackupCodes)
		}
	})
}

func TestMemoryProfileStoreReturnsCopies(t *testing.T) {
	store := NewMemoryProfileStore()
	seedProfile(t, store, "u1", "alice@example.com")

	first, _ := store.GetByID(context.Background(), "u1")
	first.FullName = "mutated"
	first.TwoFactor.Secret = []byte{9}

	second, _ := store.GetByID(context.Background(), "u1")
	if second.FullName == "mutated" || len(second.TwoFactor.Secret) != 0 {
		t.Fatal("store state must not alias returned profiles")
	}
}

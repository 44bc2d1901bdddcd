package stationauth

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/Dexploarer/stationauth/internal"
	"github.com/Dexploarer/stationauth/permission"
)

// permissionDefaultRole backs the ephemeral fallback when no resolver
// config is available at all.
var permissionDefaultRole = permission.RoleViewer

// profileResolver turns an authenticated identity into a profile without
// ever failing the caller: a missing row becomes a lazy create, a
// transient store failure becomes a bounded retry and then an ephemeral
// degraded profile. Availability over consistency, by contract.
type profileResolver struct {
	store   ProfileStore
	config  ProfileConfig
	metrics *Metrics
}

func newProfileResolver(store ProfileStore, cfg ProfileConfig, metrics *Metrics) *profileResolver {
	return &profileResolver{
		store:   store,
		config:  cfg,
		metrics: metrics,
	}
}

// FetchOrCreate resolves the profile for an identity. It always returns
// a non-nil profile; the degraded fallback carries an empty ID so
// consumers can detect reduced guarantees via [Profile.Ephemeral].
func (r *profileResolver) FetchOrCreate(ctx context.Context, identity *Identity) *Profile {
	if r == nil || r.store == nil || identity == nil {
		return r.minimalProfile(identity)
	}

	var profile *Profile
	err := internal.Retry(ctx, r.config.RetryAttempts, r.config.RetryBaseDelay, func() error {
		p, err := r.store.GetByID(ctx, identity.ID)
		if err != nil {
			// A missing row is a definitive answer, not a transient
			// failure; stop retrying and create below.
			if errors.Is(err, ErrProfileNotFound) {
				profile = nil
				return nil
			}
			return err
		}
		profile = p
		return nil
	})
	if err != nil {
		log.Printf("stationauth: profile read degraded to ephemeral for %s: %v", identity.ID, err)
		r.metrics.Inc(MetricProfileDegraded)
		return r.minimalProfile(identity)
	}

	if profile != nil {
		return profile
	}

	created := r.defaultProfile(identity)
	if err := r.store.Insert(ctx, created); err != nil {
		log.Printf("stationauth: profile create failed for %s: %v", identity.ID, err)
		r.metrics.Inc(MetricProfileDegraded)
		return r.minimalProfile(identity)
	}

	r.metrics.Inc(MetricProfileCreated)
	return created
}

func (r *profileResolver) defaultProfile(identity *Identity) *Profile {
	now := time.Now()
	return &Profile{
		ID:        identity.ID,
		Email:     identity.Email,
		Role:      r.config.DefaultRole,
		IsActive:  true,
		CreatedAt: identity.CreatedAt,
		UpdatedAt: now,
	}
}

// minimalProfile is the ephemeral fallback: never persisted, default
// role, empty ID.
func (r *profileResolver) minimalProfile(identity *Identity) *Profile {
	role := permissionDefaultRole
	if r != nil {
		role = r.config.DefaultRole
	}

	p := &Profile{
		Role:     role,
		IsActive: true,
	}
	if identity != nil {
		p.Email = identity.Email
		p.CreatedAt = identity.CreatedAt
	}
	return p
}

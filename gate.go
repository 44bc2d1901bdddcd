package stationauth

import (
	"time"

	"github.com/Dexploarer/stationauth/permission"
)

// Gate is a reusable guard that decides whether protected UI may render.
// It is pure over a [GateSnapshot]; the engine supplies snapshots via
// [Engine.EvaluateGate].
type Gate struct {
	RequireAuth  bool
	AllowedRoles []permission.Role
}

// GateSnapshot is the authorization state a gate evaluates: the current
// identity and profile, whether a backend call is in flight, and how long
// the caller has already waited for profile resolution.
type GateSnapshot struct {
	Identity      *Identity
	Profile       *Profile
	Loading       bool
	ProfileWaited time.Duration
}

// GateDecision is the outcome of one gate evaluation.
type GateDecision int

const (
	// DecisionLoading means an auth check is still in flight; render a
	// loading affordance.
	DecisionLoading GateDecision = iota
	// DecisionRedirectToLogin means auth is required and absent.
	DecisionRedirectToLogin
	// DecisionRenderChildren means all checks passed.
	DecisionRenderChildren
	// DecisionProfileLoading means identity is present but the profile is
	// still resolving within the bounded wait.
	DecisionProfileLoading
	// DecisionDegradedChildren means the bounded wait elapsed without a
	// profile; render with reduced permissions rather than deadlock.
	DecisionDegradedChildren
	// DecisionAccessDenied means the profile's role is not allowed.
	DecisionAccessDenied
)

// String returns the decision name.
func (d GateDecision) String() string {
	switch d {
	case DecisionLoading:
		return "loading"
	case DecisionRedirectToLogin:
		return "redirect_to_login"
	case DecisionRenderChildren:
		return "render"
	case DecisionProfileLoading:
		return "profile_loading"
	case DecisionDegradedChildren:
		return "render_degraded"
	case DecisionAccessDenied:
		return "access_denied"
	default:
		return "unknown"
	}
}

// Evaluate resolves the gate against a snapshot. maxProfileWait bounds
// how long a present identity may sit without a profile before the gate
// degrades instead of spinning forever; the trade is strict authorization
// for availability.
func (g Gate) Evaluate(s GateSnapshot, maxProfileWait time.Duration) GateDecision {
	if s.Loading {
		return DecisionLoading
	}

	if s.Identity == nil {
		if g.RequireAuth {
			return DecisionRedirectToLogin
		}
		return DecisionRenderChildren
	}

	if s.Profile == nil {
		if s.ProfileWaited < maxProfileWait {
			return DecisionProfileLoading
		}
		return DecisionDegradedChildren
	}

	if len(g.AllowedRoles) > 0 {
		allowed := false
		for _, role := range g.AllowedRoles {
			if s.Profile.Role == role {
				allowed = true
				break
			}
		}
		if !allowed {
			return DecisionAccessDenied
		}
	}

	return DecisionRenderChildren
}

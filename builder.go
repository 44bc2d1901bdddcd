package stationauth

import (
	"errors"

	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. Configure during initialization, call
// Build once, and treat the result as immutable wiring.
type Builder struct {
	config Config
	redis  *redis.Client

	identity IdentityService
	profiles ProfileStore
	security SecurityStore
	sink     AuditSink

	onTimeoutNotice func()

	built bool
}

// New returns a builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis supplies a Redis client. When no explicit [ProfileStore] is
// set, Build derives a [RedisProfileStore] from it.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithIdentityService sets the credential backend. Required.
func (b *Builder) WithIdentityService(svc IdentityService) *Builder {
	b.identity = svc
	return b
}

// WithProfileStore sets the profile persistence backend.
func (b *Builder) WithProfileStore(store ProfileStore) *Builder {
	b.profiles = store
	return b
}

// WithSecurityStore replaces the default in-memory security store.
func (b *Builder) WithSecurityStore(store SecurityStore) *Builder {
	b.security = store
	return b
}

// WithAuditSink sets the async export sink for audit entries.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithTimeoutNotice registers a callback invoked when the idle
// supervisor forces a sign-out, before local state is cleared. The UI
// uses it to show the "signed out due to inactivity" notice.
func (b *Builder) WithTimeoutNotice(fn func()) *Builder {
	b.onTimeoutNotice = fn
	return b
}

// Build validates the configuration, fills in defaults for the optional
// stores, and returns a ready engine. A builder can be used once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	if b.identity == nil {
		return nil, errors.New("identity service required")
	}

	profiles := b.profiles
	if profiles == nil && b.redis != nil {
		profiles = NewRedisProfileStore(b.redis)
	}
	if profiles == nil {
		return nil, errors.New("profile store required (set one or supply a redis client)")
	}

	security := b.security
	if security == nil {
		security = NewMemorySecurityStore(cfg.Audit.TrailCapacity)
	}

	engine := &Engine{
		config:          cfg,
		identity:        b.identity,
		profiles:        profiles,
		security:        security,
		onTimeoutNotice: b.onTimeoutNotice,
		state:           StateUnauthenticated,
	}

	engine.metrics = NewMetrics(cfg.Metrics)
	engine.resolver = newProfileResolver(profiles, cfg.Profile, engine.metrics)
	engine.audit = newAuditDispatcher(cfg.Audit, b.sink)
	engine.totp = newTOTPManager(cfg.SecondFactor)
	engine.limiter = newSecondFactorLimiter(cfg.SecondFactor)
	engine.idle = newIdleSupervisor(cfg.Idle.DefaultTimeout, engine.handleIdleTimeout)

	b.built = true

	return engine, nil
}

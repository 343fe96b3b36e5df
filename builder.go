package goIdentity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/MrEthical07/goIdentity/account"
	"github.com/MrEthical07/goIdentity/internal/audit"
	"github.com/MrEthical07/goIdentity/internal/logging"
	"github.com/MrEthical07/goIdentity/internal/rate"
	"github.com/MrEthical07/goIdentity/jwt"
	"github.com/MrEthical07/goIdentity/lockout"
	"github.com/MrEthical07/goIdentity/mail"
	"github.com/MrEthical07/goIdentity/password"
	"github.com/MrEthical07/goIdentity/permission"
	"github.com/MrEthical07/goIdentity/session"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. Each Builder builds at most once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	store     account.Store
	mailer    mail.Deliverer
	hasher    password.Hasher
	auditSink AuditSink
	logger    *slog.Logger
	clock     func() time.Time

	built bool
}

// New returns a Builder preloaded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the account store. Required.
func (b *Builder) WithStore(store account.Store) *Builder {
	b.store = store
	return b
}

// WithMailer sets the email collaborator. Without one, messages are logged.
func (b *Builder) WithMailer(d mail.Deliverer) *Builder {
	b.mailer = d
	return b
}

// WithRedis makes the throttle shared across instances.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithPasswordHasher replaces the hasher built from Config.Password.
func (b *Builder) WithPasswordHasher(h password.Hasher) *Builder {
	b.hasher = h
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithClock overrides time.Now for every expiry and lock decision.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("account store required")
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	log := logging.NewSlogLogger(logger).With("component", "goidentity")

	engine := &Engine{
		config:  cloneConfig(cfg),
		store:   b.store,
		roles:   permission.Standard(),
		lockout: lockout.Policy{Threshold: cfg.Lockout.Threshold, Duration: cfg.Lockout.Duration},
		metrics: NewMetrics(cfg.Metrics),
		log:     log,
		clock:   clock,
	}

	// -------- PASSWORD HASHING --------
	hasher := b.hasher
	if hasher == nil {
		h, err := newPasswordHasher(cfg.Password)
		if err != nil {
			return nil, err
		}
		hasher = h
	}
	engine.hasher = password.NewPool(hasher, cfg.Password.MaxConcurrentHashes)

	dummy, err := hasher.Hash("goidentity-unknown-account")
	if err != nil {
		return nil, err
	}
	engine.dummyHash = dummy

	// -------- TOKENS --------
	access, refresh, err := newTokenManagers(cfg.JWT, clock)
	if err != nil {
		return nil, err
	}
	engine.access = access
	engine.refresh = refresh

	// -------- SESSIONS --------
	registry, err := session.NewRegistry(account.SessionMutator(b.store, clock), session.Config{
		MaxPerAccount:      cfg.Session.MaxPerAccount,
		TTL:                cfg.JWT.RefreshTTL,
		MaxUserAgentLength: cfg.Session.MaxUserAgentLength,
		Now:                clock,
	})
	if err != nil {
		return nil, err
	}
	engine.sessions = registry

	// -------- MAIL --------
	engine.mailer = b.mailer
	if engine.mailer == nil {
		engine.mailer = mail.NewLogDeliverer(log.With("subsystem", "mail"), false)
	}

	// -------- THROTTLE --------
	if cfg.RateLimit.Enabled {
		if b.redis != nil {
			engine.limiter = rate.NewRedis(b.redis, cfg.RateLimit.RedisPrefix)
		} else {
			engine.limiter = rate.NewMemory(clock)
		}
	}

	// -------- AUDIT --------
	sink := b.auditSink
	if sink == nil {
		sink = audit.NewLogSink(log.With("subsystem", "audit"))
	}
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:      cfg.Audit.Enabled,
		BufferSize:   cfg.Audit.BufferSize,
		DropIfFull:   cfg.Audit.DropIfFull,
		FlushTimeout: cfg.Audit.FlushTimeout,
	}, sink)

	b.built = true
	log.Info(context.Background(), "engine ready",
		"password_algorithm", cfg.Password.Algorithm,
		"signing_method", cfg.JWT.SigningMethod,
		"rate_limit", cfg.RateLimit.Enabled,
	)
	return engine, nil
}

func newPasswordHasher(cfg PasswordConfig) (password.Hasher, error) {
	argon, err := password.NewArgon2(password.Argon2Config{
		Memory:      cfg.Memory,
		Time:        cfg.Time,
		Parallelism: cfg.Parallelism,
		SaltLength:  cfg.SaltLength,
		KeyLength:   cfg.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	bc, err := password.NewBcrypt(password.BcryptConfig{Cost: cfg.BcryptCost})
	if err != nil {
		return nil, err
	}
	multi, err := password.NewMulti(password.Algorithm(cfg.Algorithm), map[password.Algorithm]password.Hasher{
		password.AlgorithmArgon2id: argon,
		password.AlgorithmBcrypt:   bc,
	})
	if err != nil {
		return nil, err
	}
	return multi, nil
}

func newTokenManagers(cfg JWTConfig, clock func() time.Time) (*jwt.Manager, *jwt.Manager, error) {
	base := jwt.Config{
		SigningMethod: jwt.SigningMethod(cfg.SigningMethod),
		Issuer:        cfg.Issuer,
		Audience:      cfg.Audience,
		Leeway:        cfg.Leeway,
		Now:           clock,
	}

	accessCfg := base
	accessCfg.Class = jwt.ClassAccess
	accessCfg.TTL = cfg.AccessTTL

	refreshCfg := base
	refreshCfg.Class = jwt.ClassRefresh
	refreshCfg.TTL = cfg.RefreshTTL

	if base.SigningMethod == jwt.MethodHS256 {
		accessCfg.PrivateKey = cloneBytes(cfg.AccessSecret)
		refreshCfg.PrivateKey = cloneBytes(cfg.RefreshSecret)
	} else {
		accessCfg.PrivateKey = cloneBytes(cfg.AccessPrivateKey)
		accessCfg.PublicKey = cloneBytes(cfg.AccessPublicKey)
		refreshCfg.PrivateKey = cloneBytes(cfg.RefreshPrivateKey)
		refreshCfg.PublicKey = cloneBytes(cfg.RefreshPublicKey)
	}

	access, err := jwt.NewManager(accessCfg)
	if err != nil {
		return nil, nil, err
	}
	refresh, err := jwt.NewManager(refreshCfg)
	if err != nil {
		return nil, nil, err
	}
	return access, refresh, nil
}

package goIdentity

import (
	"bytes"
	"errors"
	"time"

	"github.com/MrEthical07/goIdentity/password"
)

// Config is the full engine configuration. Start from DefaultConfig and
// override what you need; Build validates the result.
type Config struct {
	JWT               JWTConfig
	Password          PasswordConfig
	Lockout           LockoutConfig
	Session           SessionConfig
	EmailVerification EmailVerificationConfig
	PasswordReset     PasswordResetConfig
	Account           AccountConfig
	RateLimit         RateLimitConfig
	Audit             AuditConfig
	Metrics           MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures access and refresh tokens.
//
// Each token class signs with its own key material and the two must
// differ: a secret per class with "hs256", a key pair per class with
// "ed25519".
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	AccessSecret  []byte
	RefreshSecret []byte

	// Raw ed25519 keys.
	AccessPrivateKey  []byte
	AccessPublicKey   []byte
	RefreshPrivateKey []byte
	RefreshPublicKey  []byte

	Issuer   string
	Audience string
	Leeway   time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig selects the hashing algorithm and the acceptance policy
// for new passwords.
type PasswordConfig struct {
	Algorithm string // "argon2id" (default) or "bcrypt"

	// Argon2id, Memory in KiB.
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	BcryptCost int

	// MaxConcurrentHashes bounds CPU-heavy hash and verify calls. 0 means
	// GOMAXPROCS.
	MaxConcurrentHashes int

	MinLength     int // runes
	MaxLength     int // bytes
	RequireLetter bool
	RequireDigit  bool
}

// LockoutConfig controls the failed-login lock.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
}

// SessionConfig bounds per-account sessions. Session lifetime follows
// JWT.RefreshTTL.
type SessionConfig struct {
	MaxPerAccount      int
	MaxUserAgentLength int
}

type EmailVerificationConfig struct {
	TokenTTL time.Duration
	// RequireForLogin rejects logins from unverified accounts with
	// ErrEmailUnverified.
	RequireForLogin bool
}

type PasswordResetConfig struct {
	TokenTTL time.Duration
}

// AccountConfig holds profile limits.
type AccountConfig struct {
	MaxNameLength  int
	MaxEmailLength int
}

// RateLimitRule allows Limit hits per Window. A zero rule is disabled.
type RateLimitRule struct {
	Limit  int
	Window time.Duration
}

// RateLimitConfig throttles the unauthenticated entry points. The backend
// is Redis when the Builder has a client, process memory otherwise.
type RateLimitConfig struct {
	Enabled            bool
	RedisPrefix        string
	Register           RateLimitRule // per client IP
	Login              RateLimitRule // per client IP
	ForgotPassword     RateLimitRule // per email
	ResendVerification RateLimitRule // per account
}

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// FlushTimeout bounds how long Close waits for queued events.
	FlushTimeout time.Duration
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	argon := password.DefaultArgon2Config()
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "hs256",
			Issuer:        "goidentity",
			Audience:      "goidentity",
			Leeway:        5 * time.Second,
		},
		Password: PasswordConfig{
			Algorithm:     string(password.AlgorithmArgon2id),
			Memory:        argon.Memory,
			Time:          argon.Time,
			Parallelism:   argon.Parallelism,
			SaltLength:    argon.SaltLength,
			KeyLength:     argon.KeyLength,
			BcryptCost:    password.DefaultBcryptCost,
			MinLength:     8,
			MaxLength:     password.MaxBcryptPasswordBytes,
			RequireLetter: true,
			RequireDigit:  true,
		},
		Lockout: LockoutConfig{
			Threshold: 5,
			Duration:  2 * time.Hour,
		},
		Session: SessionConfig{
			MaxPerAccount:      5,
			MaxUserAgentLength: 256,
		},
		EmailVerification: EmailVerificationConfig{
			TokenTTL:        24 * time.Hour,
			RequireForLogin: false,
		},
		PasswordReset: PasswordResetConfig{
			TokenTTL: time.Hour,
		},
		Account: AccountConfig{
			MaxNameLength:  100,
			MaxEmailLength: 254,
		},
		RateLimit: RateLimitConfig{
			Enabled:            false,
			RedisPrefix:        "grl",
			Register:           RateLimitRule{Limit: 10, Window: time.Hour},
			Login:              RateLimitRule{Limit: 30, Window: 15 * time.Minute},
			ForgotPassword:     RateLimitRule{Limit: 5, Window: time.Hour},
			ResendVerification: RateLimitRule{Limit: 5, Window: time.Hour},
		},
		Audit: AuditConfig{
			Enabled:      false,
			BufferSize:   1024,
			DropIfFull:   true,
			FlushTimeout: 5 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

// DefaultConfig returns the defaults. JWT secrets or keys must still be
// supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.AccessSecret = cloneBytes(cfg.JWT.AccessSecret)
	out.JWT.RefreshSecret = cloneBytes(cfg.JWT.RefreshSecret)
	out.JWT.AccessPrivateKey = cloneBytes(cfg.JWT.AccessPrivateKey)
	out.JWT.AccessPublicKey = cloneBytes(cfg.JWT.AccessPublicKey)
	out.JWT.RefreshPrivateKey = cloneBytes(cfg.JWT.RefreshPrivateKey)
	out.JWT.RefreshPublicKey = cloneBytes(cfg.JWT.RefreshPublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be greater than AccessTTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}
	switch c.JWT.SigningMethod {
	case "hs256":
		if len(c.JWT.AccessSecret) < 32 || len(c.JWT.RefreshSecret) < 32 {
			return errors.New("JWT hs256 secrets must be at least 32 bytes")
		}
		if bytes.Equal(c.JWT.AccessSecret, c.JWT.RefreshSecret) {
			return errors.New("JWT access and refresh secrets must differ")
		}
	case "ed25519":
		if len(c.JWT.AccessPrivateKey) == 0 || len(c.JWT.AccessPublicKey) == 0 ||
			len(c.JWT.RefreshPrivateKey) == 0 || len(c.JWT.RefreshPublicKey) == 0 {
			return errors.New("JWT ed25519 requires access and refresh key pairs")
		}
		if bytes.Equal(c.JWT.AccessPrivateKey, c.JWT.RefreshPrivateKey) ||
			bytes.Equal(c.JWT.AccessPublicKey, c.JWT.RefreshPublicKey) {
			return errors.New("JWT access and refresh key pairs must differ")
		}
	default:
		return errors.New("JWT SigningMethod must be hs256 or ed25519")
	}

	// Password
	switch password.Algorithm(c.Password.Algorithm) {
	case password.AlgorithmArgon2id, password.AlgorithmBcrypt:
	default:
		return errors.New("Password Algorithm must be argon2id or bcrypt")
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MaxLength must be >= MinLength")
	}
	if password.Algorithm(c.Password.Algorithm) == password.AlgorithmBcrypt &&
		c.Password.MaxLength > password.MaxBcryptPasswordBytes {
		return errors.New("Password MaxLength must be <= 72 with bcrypt")
	}
	if c.Password.MaxConcurrentHashes < 0 {
		return errors.New("Password MaxConcurrentHashes must be >= 0")
	}

	// Lockout
	if c.Lockout.Threshold < 1 {
		return errors.New("Lockout Threshold must be >= 1")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}

	// Session
	if c.Session.MaxPerAccount < 1 {
		return errors.New("Session MaxPerAccount must be >= 1")
	}
	if c.Session.MaxUserAgentLength < 1 {
		return errors.New("Session MaxUserAgentLength must be >= 1")
	}

	// Single-use tokens
	if c.EmailVerification.TokenTTL <= 0 {
		return errors.New("EmailVerification TokenTTL must be > 0")
	}
	if c.PasswordReset.TokenTTL <= 0 {
		return errors.New("PasswordReset TokenTTL must be > 0")
	}

	// Account
	if c.Account.MaxNameLength < 1 {
		return errors.New("Account MaxNameLength must be >= 1")
	}
	if c.Account.MaxEmailLength < 3 {
		return errors.New("Account MaxEmailLength must be >= 3")
	}

	// Rate limits
	if c.RateLimit.Enabled {
		rules := []RateLimitRule{
			c.RateLimit.Register,
			c.RateLimit.Login,
			c.RateLimit.ForgotPassword,
			c.RateLimit.ResendVerification,
		}
		for _, r := range rules {
			if r.Limit < 0 || r.Window < 0 {
				return errors.New("RateLimit rules must not be negative")
			}
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}
	if c.Audit.FlushTimeout < 0 {
		return errors.New("Audit FlushTimeout must not be negative")
	}

	return nil
}

// Package serverconfig loads identityd settings from the environment.
package serverconfig

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreSQL    = "sql"
)

// Config is the full server configuration. Field tags name the IDENTITY_*
// variables and their defaults.
type Config struct {
	Addr            string        `env:"IDENTITY_ADDR" envDefault:":8080"`
	APIPrefix       string        `env:"IDENTITY_API_PREFIX" envDefault:"/api/v1/auth"`
	ShutdownTimeout time.Duration `env:"IDENTITY_SHUTDOWN_TIMEOUT" envDefault:"15s"`
	SecureCookies   bool          `env:"IDENTITY_SECURE_COOKIES" envDefault:"true"`
	// TrustedProxies lists CIDRs whose X-Forwarded-For is believed. Empty
	// means the client address is the TCP peer.
	TrustedProxies []string `env:"IDENTITY_TRUSTED_PROXIES" envSeparator:","`

	LogFormat string `env:"IDENTITY_LOG_FORMAT" envDefault:"json"`
	LogLevel  string `env:"IDENTITY_LOG_LEVEL" envDefault:"info"`

	Store       string `env:"IDENTITY_STORE" envDefault:"memory"`
	RedisAddr   string `env:"IDENTITY_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPrefix string `env:"IDENTITY_REDIS_PREFIX" envDefault:"goidentity"`
	SQLDialect  string `env:"IDENTITY_SQL_DIALECT" envDefault:"sqlite"`
	SQLDSN      string `env:"IDENTITY_SQL_DSN" envDefault:"file:goidentity.db?_pragma=busy_timeout(5000)"`
	SQLMigrate  bool   `env:"IDENTITY_SQL_MIGRATE" envDefault:"true"`

	// AMQPURL enables the RabbitMQ mailer. Empty logs messages instead.
	AMQPURL   string `env:"IDENTITY_AMQP_URL"`
	AMQPQueue string `env:"IDENTITY_AMQP_QUEUE" envDefault:"goidentity.mail"`

	// MailLogTokens includes tokens in logged messages. Development only.
	MailLogTokens bool `env:"IDENTITY_MAIL_LOG_TOKENS" envDefault:"false"`

	JWT       JWT       `envPrefix:"IDENTITY_JWT_"`
	Password  Password  `envPrefix:"IDENTITY_PASSWORD_"`
	Lockout   Lockout   `envPrefix:"IDENTITY_LOCKOUT_"`
	Session   Session   `envPrefix:"IDENTITY_SESSION_"`
	Tokens    Tokens    `envPrefix:"IDENTITY_TOKEN_"`
	RateLimit RateLimit `envPrefix:"IDENTITY_RATE_LIMIT_"`

	AuditEnabled   bool `env:"IDENTITY_AUDIT_ENABLED" envDefault:"true"`
	MetricsEnabled bool `env:"IDENTITY_METRICS_ENABLED" envDefault:"true"`
}

type JWT struct {
	AccessTTL     time.Duration `env:"ACCESS_TTL" envDefault:"15m"`
	RefreshTTL    time.Duration `env:"REFRESH_TTL" envDefault:"168h"`
	SigningMethod string        `env:"SIGNING_METHOD" envDefault:"hs256"`
	AccessSecret  string        `env:"ACCESS_SECRET"`
	RefreshSecret string        `env:"REFRESH_SECRET"`
	Issuer        string        `env:"ISSUER" envDefault:"goidentity"`
	Audience      string        `env:"AUDIENCE" envDefault:"goidentity"`
	Leeway        time.Duration `env:"LEEWAY" envDefault:"5s"`

	// Base64 (standard encoding) raw ed25519 keys, one pair per class.
	AccessPrivateKey  string `env:"ACCESS_PRIVATE_KEY"`
	AccessPublicKey   string `env:"ACCESS_PUBLIC_KEY"`
	RefreshPrivateKey string `env:"REFRESH_PRIVATE_KEY"`
	RefreshPublicKey  string `env:"REFRESH_PUBLIC_KEY"`
}

type Password struct {
	Algorithm  string `env:"ALGORITHM" envDefault:"argon2id"`
	MinLength  int    `env:"MIN_LENGTH" envDefault:"8"`
	BcryptCost int    `env:"BCRYPT_COST" envDefault:"12"`
	MaxHashers int    `env:"MAX_CONCURRENT_HASHES" envDefault:"0"`
}

type Lockout struct {
	Threshold int           `env:"THRESHOLD" envDefault:"5"`
	Duration  time.Duration `env:"DURATION" envDefault:"2h"`
}

type Session struct {
	MaxPerAccount int `env:"MAX_PER_ACCOUNT" envDefault:"5"`
}

type Tokens struct {
	VerificationTTL        time.Duration `env:"VERIFICATION_TTL" envDefault:"24h"`
	ResetTTL               time.Duration `env:"RESET_TTL" envDefault:"1h"`
	RequireVerifiedToLogin bool          `env:"REQUIRE_VERIFIED_LOGIN" envDefault:"false"`
}

type RateLimit struct {
	Enabled         bool `env:"ENABLED" envDefault:"true"`
	LoginPer15m     int  `env:"LOGIN" envDefault:"30"`
	RegisterPerHour int  `env:"REGISTER" envDefault:"10"`
	ForgotPerHour   int  `env:"FORGOT_PASSWORD" envDefault:"5"`
	ResendPerHour   int  `env:"RESEND_VERIFICATION" envDefault:"5"`
}

// Load reads an optional dotenv file, then the environment. Variables that
// are already set win over the file. An empty path tries ".env".
func Load(path string) (Config, error) {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", path, err)
	}
	return Parse()
}

// Parse reads the environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the server-only settings. Engine settings are checked
// by Engine.
func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory, StoreRedis:
	case StoreSQL:
		switch c.SQLDialect {
		case "postgres", "mysql", "sqlite":
		default:
			return fmt.Errorf("IDENTITY_SQL_DIALECT %q is not postgres, mysql or sqlite", c.SQLDialect)
		}
		if c.SQLDSN == "" {
			return errors.New("IDENTITY_SQL_DSN is required for the sql store")
		}
	default:
		return fmt.Errorf("IDENTITY_STORE %q is not memory, redis or sql", c.Store)
	}
	if c.Store == StoreRedis && c.RedisAddr == "" {
		return errors.New("IDENTITY_REDIS_ADDR is required for the redis store")
	}
	if !strings.HasPrefix(c.APIPrefix, "/") {
		return errors.New("IDENTITY_API_PREFIX must start with /")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("IDENTITY_SHUTDOWN_TIMEOUT must be > 0")
	}
	if _, err := c.ProxyNets(); err != nil {
		return err
	}
	return nil
}

// Engine maps the settings onto an engine configuration and validates it.
func (c Config) Engine() (goIdentity.Config, error) {
	cfg := goIdentity.DefaultConfig()

	cfg.JWT.AccessTTL = c.JWT.AccessTTL
	cfg.JWT.RefreshTTL = c.JWT.RefreshTTL
	cfg.JWT.SigningMethod = strings.ToLower(c.JWT.SigningMethod)
	cfg.JWT.Issuer = c.JWT.Issuer
	cfg.JWT.Audience = c.JWT.Audience
	cfg.JWT.Leeway = c.JWT.Leeway
	switch cfg.JWT.SigningMethod {
	case "ed25519":
		keys := []struct {
			name  string
			value string
			dst   *[]byte
		}{
			{"IDENTITY_JWT_ACCESS_PRIVATE_KEY", c.JWT.AccessPrivateKey, &cfg.JWT.AccessPrivateKey},
			{"IDENTITY_JWT_ACCESS_PUBLIC_KEY", c.JWT.AccessPublicKey, &cfg.JWT.AccessPublicKey},
			{"IDENTITY_JWT_REFRESH_PRIVATE_KEY", c.JWT.RefreshPrivateKey, &cfg.JWT.RefreshPrivateKey},
			{"IDENTITY_JWT_REFRESH_PUBLIC_KEY", c.JWT.RefreshPublicKey, &cfg.JWT.RefreshPublicKey},
		}
		for _, k := range keys {
			key, err := decodeKey(k.name, k.value)
			if err != nil {
				return goIdentity.Config{}, err
			}
			*k.dst = key
		}
	default:
		cfg.JWT.AccessSecret = []byte(c.JWT.AccessSecret)
		cfg.JWT.RefreshSecret = []byte(c.JWT.RefreshSecret)
	}

	cfg.Password.Algorithm = strings.ToLower(c.Password.Algorithm)
	cfg.Password.MinLength = c.Password.MinLength
	cfg.Password.BcryptCost = c.Password.BcryptCost
	cfg.Password.MaxConcurrentHashes = c.Password.MaxHashers

	cfg.Lockout.Threshold = c.Lockout.Threshold
	cfg.Lockout.Duration = c.Lockout.Duration
	cfg.Session.MaxPerAccount = c.Session.MaxPerAccount

	cfg.EmailVerification.TokenTTL = c.Tokens.VerificationTTL
	cfg.EmailVerification.RequireForLogin = c.Tokens.RequireVerifiedToLogin
	cfg.PasswordReset.TokenTTL = c.Tokens.ResetTTL

	cfg.RateLimit.Enabled = c.RateLimit.Enabled
	cfg.RateLimit.RedisPrefix = c.RedisPrefix + ":rl"
	cfg.RateLimit.Login = goIdentity.RateLimitRule{Limit: c.RateLimit.LoginPer15m, Window: 15 * time.Minute}
	cfg.RateLimit.Register = goIdentity.RateLimitRule{Limit: c.RateLimit.RegisterPerHour, Window: time.Hour}
	cfg.RateLimit.ForgotPassword = goIdentity.RateLimitRule{Limit: c.RateLimit.ForgotPerHour, Window: time.Hour}
	cfg.RateLimit.ResendVerification = goIdentity.RateLimitRule{Limit: c.RateLimit.ResendPerHour, Window: time.Hour}

	cfg.Audit.Enabled = c.AuditEnabled
	cfg.Metrics.Enabled = c.MetricsEnabled
	cfg.Metrics.EnableLatencyHistograms = c.MetricsEnabled

	if err := cfg.Validate(); err != nil {
		return goIdentity.Config{}, fmt.Errorf("engine config: %w", err)
	}
	return cfg, nil
}

// ProxyNets parses TrustedProxies.
func (c Config) ProxyNets() ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(c.TrustedProxies))
	for _, cidr := range c.TrustedProxies {
		cidr = strings.TrimSpace(cidr)
		if cidr == "" {
			continue
		}
		_, n, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("IDENTITY_TRUSTED_PROXIES: %w", err)
		}
		nets = append(nets, n)
	}
	return nets, nil
}

func decodeKey(name, value string) ([]byte, error) {
	if value == "" {
		return nil, fmt.Errorf("%s is required for ed25519", name)
	}
	key, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return key, nil
}

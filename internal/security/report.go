package security

import "time"

type PasswordReport struct {
	Algorithm   string
	Memory      uint32
	Time        uint32
	Parallelism uint8
	BcryptCost  int
	MinLength   int
}

// Report summarizes the security posture of a configured engine. It holds
// no secrets and is safe to log.
type Report struct {
	SigningAlgorithm        string
	AccessTTL               time.Duration
	RefreshTTL              time.Duration
	Password                PasswordReport
	LockoutActive           bool
	LockoutThreshold        int
	LockoutDuration         time.Duration
	SessionCap              int
	RateLimitingActive      bool
	RateLimitBackend        string
	EmailVerificationForced bool
	AuditActive             bool
	Warnings                []string
}

type ReportInput struct {
	SigningAlgorithm      string
	AccessTTL             time.Duration
	RefreshTTL            time.Duration
	Password              PasswordReport
	LockoutThreshold      int
	LockoutDuration       time.Duration
	MaxSessionsPerAccount int
	RateLimitEnabled      bool
	RedisRateLimit        bool
	RequireVerifiedLogin  bool
	AuditEnabled          bool
	PasswordResetTokenTTL time.Duration
}

const (
	longAccessTTL    = time.Hour
	longResetTTL     = 24 * time.Hour
	minArgon2Memory  = 19 * 1024
	minBcryptCost    = 10
	minPasswordRunes = 8
)

func BuildReport(input ReportInput) Report {
	backend := "none"
	if input.RateLimitEnabled {
		backend = "memory"
		if input.RedisRateLimit {
			backend = "redis"
		}
	}

	r := Report{
		SigningAlgorithm:        input.SigningAlgorithm,
		AccessTTL:               input.AccessTTL,
		RefreshTTL:              input.RefreshTTL,
		Password:                input.Password,
		LockoutActive:           input.LockoutThreshold > 0 && input.LockoutDuration > 0,
		LockoutThreshold:        input.LockoutThreshold,
		LockoutDuration:         input.LockoutDuration,
		SessionCap:              input.MaxSessionsPerAccount,
		RateLimitingActive:      input.RateLimitEnabled,
		RateLimitBackend:        backend,
		EmailVerificationForced: input.RequireVerifiedLogin,
		AuditActive:             input.AuditEnabled,
	}

	if input.AccessTTL > longAccessTTL {
		r.Warnings = append(r.Warnings, "access tokens outlive revocation for more than an hour")
	}
	if input.PasswordResetTokenTTL > longResetTTL {
		r.Warnings = append(r.Warnings, "password reset tokens live longer than a day")
	}
	switch input.Password.Algorithm {
	case "argon2id":
		if input.Password.Memory < minArgon2Memory {
			r.Warnings = append(r.Warnings, "argon2id memory below 19 MiB")
		}
	case "bcrypt":
		if input.Password.BcryptCost < minBcryptCost {
			r.Warnings = append(r.Warnings, "bcrypt cost below 10")
		}
	}
	if input.Password.MinLength < minPasswordRunes {
		r.Warnings = append(r.Warnings, "minimum password length below 8")
	}
	if !input.RateLimitEnabled {
		r.Warnings = append(r.Warnings, "unauthenticated endpoints are not rate limited")
	}
	return r
}

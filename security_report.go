package goIdentity

import (
	"github.com/MrEthical07/goIdentity/internal/rate"
	"github.com/MrEthical07/goIdentity/internal/security"
)

// SecurityReport summarizes the engine's configured posture with warnings
// for weak settings. It contains no key material.
func (e *Engine) SecurityReport() security.Report {
	cfg := e.config
	_, redisLimiter := e.limiter.(*rate.Redis)
	return security.BuildReport(security.ReportInput{
		SigningAlgorithm: cfg.JWT.SigningMethod,
		AccessTTL:        cfg.JWT.AccessTTL,
		RefreshTTL:       cfg.JWT.RefreshTTL,
		Password: security.PasswordReport{
			Algorithm:   cfg.Password.Algorithm,
			Memory:      cfg.Password.Memory,
			Time:        cfg.Password.Time,
			Parallelism: cfg.Password.Parallelism,
			BcryptCost:  cfg.Password.BcryptCost,
			MinLength:   cfg.Password.MinLength,
		},
		LockoutThreshold:      cfg.Lockout.Threshold,
		LockoutDuration:       cfg.Lockout.Duration,
		MaxSessionsPerAccount: cfg.Session.MaxPerAccount,
		RateLimitEnabled:      e.limiter != nil,
		RedisRateLimit:        redisLimiter,
		RequireVerifiedLogin:  cfg.EmailVerification.RequireForLogin,
		AuditEnabled:          cfg.Audit.Enabled,
		PasswordResetTokenTTL: cfg.PasswordReset.TokenTTL,
	})
}

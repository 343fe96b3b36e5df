package goIdentity

import (
	"context"
	"testing"
	"time"

	"github.com/MrEthical07/goIdentity/mail"
)

func TestVerifyEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	grant := env.register(t, testEmail)
	token := env.mailer.lastToken(t, mail.KindEmailVerification)

	pub, err := env.engine.VerifyEmail(ctx, token)
	if err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}
	if !pub.EmailVerified || pub.ID != grant.Account.ID {
		t.Fatalf("unexpected account after verification: %+v", pub)
	}

	_, err = env.engine.VerifyEmail(ctx, token)
	assertIs(t, err, ErrTokenInvalid)

	err = env.engine.ResendVerification(ctx, grant.Account.ID)
	assertKind(t, err, KindValidation)
	assertIs(t, err, ErrAlreadyVerified)
}

func TestVerifyEmailExpired(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, testEmail)
	token := env.mailer.lastToken(t, mail.KindEmailVerification)

	env.clock.Advance(24*time.Hour + time.Second)
	_, err := env.engine.VerifyEmail(context.Background(), token)
	assertIs(t, err, ErrTokenExpired)
}

func TestResendVerificationReplacesToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	grant := env.register(t, testEmail)
	old := env.mailer.lastToken(t, mail.KindEmailVerification)

	if err := env.engine.ResendVerification(ctx, grant.Account.ID); err != nil {
		t.Fatalf("ResendVerification: %v", err)
	}
	fresh := env.mailer.lastToken(t, mail.KindEmailVerification)
	if fresh == old {
		t.Fatal("resend reused the previous token")
	}

	_, err := env.engine.VerifyEmail(ctx, old)
	assertIs(t, err, ErrTokenInvalid)
	if _, err := env.engine.VerifyEmail(ctx, fresh); err != nil {
		t.Fatalf("VerifyEmail with fresh token: %v", err)
	}

	err = env.engine.ResendVerification(ctx, "missing")
	assertIs(t, err, ErrAccountNotFound)
}

func TestResendVerificationThrottled(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.RateLimit.Enabled = true
		cfg.RateLimit.ResendVerification = RateLimitRule{Limit: 2, Window: time.Hour}
	})
	ctx := context.Background()
	grant := env.register(t, testEmail)

	for i := 0; i < 2; i++ {
		if err := env.engine.ResendVerification(ctx, grant.Account.ID); err != nil {
			t.Fatalf("ResendVerification #%d: %v", i+1, err)
		}
	}
	err := env.engine.ResendVerification(ctx, grant.Account.ID)
	assertKind(t, err, KindRateLimited)

	env.clock.Advance(time.Hour + time.Second)
	if err := env.engine.ResendVerification(ctx, grant.Account.ID); err != nil {
		t.Fatalf("ResendVerification after window: %v", err)
	}
}

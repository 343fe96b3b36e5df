package goIdentity

import (
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MrEthical07/goIdentity/account"
)

// checkPassword enforces Config.Password length and composition rules.
func (e *Engine) checkPassword(plain string) error {
	cfg := e.config.Password
	if plain == "" {
		return ErrValidation.WithField("password").WithMessage("password required")
	}
	if !utf8.ValidString(plain) {
		return ErrPasswordPolicy.WithField("password").WithMessage("password must be valid UTF-8")
	}
	if utf8.RuneCountInString(plain) < cfg.MinLength {
		return ErrPasswordPolicy.WithField("password").WithMessage("password too short")
	}
	if len(plain) > cfg.MaxLength {
		return ErrPasswordPolicy.WithField("password").WithMessage("password too long")
	}

	var letter, digit bool
	for _, r := range plain {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if cfg.RequireLetter && !letter {
		return ErrPasswordPolicy.WithField("password").WithMessage("password must contain a letter")
	}
	if cfg.RequireDigit && !digit {
		return ErrPasswordPolicy.WithField("password").WithMessage("password must contain a digit")
	}
	return nil
}

// normalizeEmail lowercases and checks a bare address. Display names and
// angle brackets are rejected.
func (e *Engine) normalizeEmail(raw string) (string, error) {
	email := account.NormalizeEmail(raw)
	if email == "" {
		return "", ErrValidation.WithField("email").WithMessage("email required")
	}
	if len(email) > e.config.Account.MaxEmailLength {
		return "", ErrValidation.WithField("email").WithMessage("email too long")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Name != "" || addr.Address != email {
		return "", ErrValidation.WithField("email").WithMessage("email malformed")
	}
	return email, nil
}

func (e *Engine) normalizeName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if !utf8.ValidString(name) {
		return "", ErrValidation.WithField("name").WithMessage("name must be valid UTF-8")
	}
	if utf8.RuneCountInString(name) > e.config.Account.MaxNameLength {
		return "", ErrValidation.WithField("name").WithMessage("name too long")
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return "", ErrValidation.WithField("name").WithMessage("name contains control characters")
		}
	}
	return name, nil
}

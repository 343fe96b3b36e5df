// Package mail defines how the engine hands outbound messages to a
// delivery backend. Rendering and SMTP live outside this module; a
// Deliverer only needs to get the message to whatever does that.
package mail

import (
	"context"
	"errors"
	"maps"

	"github.com/MrEthical07/goIdentity/internal"
	"github.com/MrEthical07/goIdentity/internal/logging"
)

// Kind selects the template a downstream renderer uses.
type Kind string

const (
	KindEmailVerification Kind = "email_verification"
	KindPasswordReset     Kind = "password_reset"
	KindPasswordChanged   Kind = "password_changed"
)

// Template data keys.
const (
	DataName      = "name"
	DataToken     = "token"
	DataExpiresAt = "expires_at"
)

// ErrNoRecipient is returned for messages without a To address.
var ErrNoRecipient = errors.New("mail: recipient required")

// Message is one outbound email request.
type Message struct {
	To   string            `json:"to"`
	Kind Kind              `json:"kind"`
	Data map[string]string `json:"data,omitempty"`
}

// Deliverer accepts messages for delivery and returns a backend message id.
type Deliverer interface {
	Deliver(ctx context.Context, msg Message) (string, error)
}

// LogDeliverer writes messages to a logger instead of sending them.
type LogDeliverer struct {
	log logging.Logger
	// Verbose includes template data, tokens included. Development only.
	Verbose bool
}

func NewLogDeliverer(log logging.Logger, verbose bool) *LogDeliverer {
	if log == nil {
		log = logging.Nop{}
	}
	return &LogDeliverer{log: log, Verbose: verbose}
}

func (d *LogDeliverer) Deliver(ctx context.Context, msg Message) (string, error) {
	if msg.To == "" {
		return "", ErrNoRecipient
	}
	id := internal.NewID()
	args := []any{"message_id", id, "to", msg.To, "kind", string(msg.Kind)}
	if d.Verbose {
		args = append(args, "data", maps.Clone(msg.Data))
	}
	d.log.Info(ctx, "mail delivered", args...)
	return id, nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/wneessen/go-mail"

	"github.com/holomush/authgate/internal/auth"
)

// TLS policies accepted by SMTPConfig.TLS.
const (
	TLSMandatory     = "mandatory"
	TLSOpportunistic = "opportunistic"
	TLSNone          = "none"
)

// SMTPConfig configures SMTP delivery.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	TLS      string
	Timeout  time.Duration
}

// Validate checks the configuration before a client is built.
func (c SMTPConfig) Validate() error {
	switch {
	case c.Host == "":
		return oops.Code("CONFIG_INVALID").Errorf("smtp host is required")
	case c.Port <= 0 || c.Port > 65535:
		return oops.Code("CONFIG_INVALID").With("port", c.Port).Errorf("smtp port out of range")
	case c.From == "":
		return oops.Code("CONFIG_INVALID").Errorf("smtp from address is required")
	}
	if _, err := tlsPolicy(c.TLS); err != nil {
		return err
	}
	return nil
}

func tlsPolicy(name string) (mail.TLSPolicy, error) {
	switch strings.ToLower(name) {
	case "", TLSMandatory:
		return mail.TLSMandatory, nil
	case TLSOpportunistic:
		return mail.TLSOpportunistic, nil
	case TLSNone:
		return mail.NoTLS, nil
	default:
		return 0, oops.Code("CONFIG_INVALID").With("tls", name).Errorf("unknown smtp TLS policy")
	}
}

// sender is the part of *mail.Client the notifier uses.
type sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SMTPNotifier renders auth emails and delivers them over SMTP.
// It makes one delivery attempt per Send.
type SMTPNotifier struct {
	from     string
	renderer *Renderer
	client   sender
	logger   *slog.Logger
}

// NewSMTPNotifier builds an SMTP client from cfg. No connection is made
// until the first Send.
func NewSMTPNotifier(cfg SMTPConfig, renderer *Renderer, logger *slog.Logger) (*SMTPNotifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if renderer == nil {
		return nil, oops.Errorf("renderer is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	policy, _ := tlsPolicy(cfg.TLS) //nolint:errcheck // checked by Validate
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(timeout),
		mail.WithTLSPolicy(policy),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, oops.Code("SMTP_CLIENT_FAILED").With("host", cfg.Host).Wrap(err)
	}
	return newSMTPNotifier(cfg.From, renderer, client, logger), nil
}

func newSMTPNotifier(from string, renderer *Renderer, client sender, logger *slog.Logger) *SMTPNotifier {
	return &SMTPNotifier{from: from, renderer: renderer, client: client, logger: logger}
}

// Send renders email and delivers it.
func (n *SMTPNotifier) Send(ctx context.Context, email auth.Email) error {
	msg, err := n.message(email)
	if err != nil {
		return err
	}
	if err := n.client.DialAndSendWithContext(ctx, msg); err != nil {
		return oops.Code("SMTP_SEND_FAILED").With("template", email.Template).Wrap(err)
	}
	n.logger.InfoContext(ctx, "email sent", "template", email.Template)
	return nil
}

func (n *SMTPNotifier) message(email auth.Email) (*mail.Msg, error) {
	rendered, err := n.renderer.Render(email.Template, email.Data)
	if err != nil {
		return nil, err
	}

	msg := mail.NewMsg()
	if err := msg.From(n.from); err != nil {
		return nil, oops.Code("SMTP_BAD_ADDRESS").With("field", "from").Wrap(err)
	}
	if err := msg.To(email.To); err != nil {
		return nil, oops.Code("SMTP_BAD_ADDRESS").With("field", "to").Wrap(err)
	}
	msg.Subject(rendered.Subject)
	msg.SetBodyString(mail.TypeTextPlain, rendered.Text)
	if rendered.HTML != "" {
		msg.AddAlternativeString(mail.TypeTextHTML, rendered.HTML)
	}
	return msg, nil
}

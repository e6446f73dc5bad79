// Package mailer delivers transactional email over SMTP.
package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/slbhq/accounts/internal/apperr"
)

// Mailer sends one rendered message. Implementations must be safe for
// concurrent use by the worker pool.
type Mailer interface {
	Send(ctx context.Context, to, subject, html string) error
}

// SMTPConfig holds the upstream relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTP is a net/smtp backed Mailer. Every Send dials a fresh connection;
// delivery volume here is a handful of verification mails, not a campaign.
type SMTP struct {
	cfg  SMTPConfig
	addr string
}

var _ Mailer = (*SMTP)(nil)

// NewSMTP creates an SMTP mailer.
func NewSMTP(cfg SMTPConfig) (*SMTP, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("smtp sender address is required")
	}
	port := cfg.Port
	if port == 0 {
		port = 587
	}
	return &SMTP{
		cfg:  cfg,
		addr: net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", port)),
	}, nil
}

// sendTimeout bounds a Send whose context carries no deadline of its own.
const sendTimeout = 30 * time.Second

// Send delivers a single HTML message. Failures are classified for the
// delivery pipeline: connection trouble is transient, a relay rejecting the
// message itself is permanent. Every network step runs under one deadline,
// so a relay that accepts the connection and goes silent cannot hold a
// worker past its lease.
func (m *SMTP) Send(ctx context.Context, to, subject, html string) error {
	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		deadline = time.Now().Add(sendTimeout)
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", m.addr)
	if err != nil {
		return apperr.Wrap(apperr.KindTransient, "smtp dial failed", err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(deadline); err != nil {
		return apperr.Wrap(apperr.KindTransient, "smtp connection setup failed", err)
	}

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		return classify(err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
			return classify(err)
		}
	}

	if m.cfg.Username != "" {
		auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return classify(err)
		}
	}

	if err := client.Mail(m.cfg.From); err != nil {
		return classify(err)
	}
	if err := client.Rcpt(to); err != nil {
		return classify(err)
	}

	w, err := client.Data()
	if err != nil {
		return classify(err)
	}
	if _, err := w.Write(buildMessage(m.cfg.From, to, subject, html)); err != nil {
		return classify(err)
	}
	if err := w.Close(); err != nil {
		return classify(err)
	}

	if err := client.Quit(); err != nil {
		return classify(err)
	}
	return nil
}

// classify sorts a delivery error into the retry taxonomy.
func classify(err error) error {
	if rejected(err) {
		return apperr.Wrap(apperr.KindPermanent, "message rejected by relay", err)
	}
	return apperr.Wrap(apperr.KindTransient, "smtp delivery failed", err)
}

// rejected reports whether the relay refused the message for good. SMTP 5xx
// replies are permanent by protocol; everything else (dial errors, 4xx) is
// worth a retry.
func rejected(err error) bool {
	s := err.Error()
	return len(s) >= 4 && s[0] == '5' && s[3] == ' '
}

func buildMessage(from, to, subject, html string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(html)
	return []byte(b.String())
}

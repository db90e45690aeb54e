package alert

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"os"
	"strconv"
	"strings"

	"watchrag/internal/domain"
)

// DefaultRecipientEnv names the variable holding the operator address.
const DefaultRecipientEnv = "CORREO"

// Subject returns the alert subject line.
func Subject(event domain.AlertEvent) string {
	return fmt.Sprintf("RAG ALERT: possible answer failure (confidence: %.2f)", event.Confidence)
}

// Body returns the plain-text alert body.
func Body(event domain.AlertEvent) string {
	var b strings.Builder
	b.WriteString("The assistant did not answer properly although relevant information was found in the index.\n\n")
	b.WriteString("------------------------------------------------\n")
	fmt.Fprintf(&b, "Question:\n%s\n\n", event.Question)
	fmt.Fprintf(&b, "Answer:\n%s\n\n", event.Answer)
	fmt.Fprintf(&b, "Retrieval confidence:\n%.2f (high match)\n", event.Confidence)
	b.WriteString("------------------------------------------------\n\n")
	b.WriteString("Review the indexed chunks or the system prompt.\n")
	return b.String()
}

// SMTPConfig configures mail delivery.
type SMTPConfig struct {
	Host         string
	Port         int
	Username     string
	PasswordEnv  string
	From         string
	To           string
	RecipientEnv string
}

// SMTPNotifier mails alerts to the operator.
type SMTPNotifier struct {
	addr string
	auth smtp.Auth
	from string
	to   string
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPNotifier resolves the recipient from cfg.To or, when empty, from
// the environment variable cfg.RecipientEnv.
func NewSMTPNotifier(cfg SMTPConfig) (*SMTPNotifier, error) {
	if cfg.RecipientEnv == "" {
		cfg.RecipientEnv = DefaultRecipientEnv
	}
	to := cfg.To
	if to == "" {
		to = os.Getenv(cfg.RecipientEnv)
	}
	if to == "" {
		return nil, fmt.Errorf("%w: no alert recipient, set %s", domain.ErrInvalidConfig, cfg.RecipientEnv)
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: smtp host is required", domain.ErrInvalidConfig)
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	n := &SMTPNotifier{
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		from: cfg.From,
		to:   to,
		send: smtp.SendMail,
	}
	if cfg.Username != "" {
		n.auth = smtp.PlainAuth("", cfg.Username, os.Getenv(cfg.PasswordEnv), cfg.Host)
	}
	return n, nil
}

func (n *SMTPNotifier) Notify(_ context.Context, event domain.AlertEvent) error {
	msg := "From: " + n.from + "\r\n" +
		"To: " + n.to + "\r\n" +
		"Subject: " + Subject(event) + "\r\n" +
		"Content-Type: text/plain; charset=UTF-8\r\n" +
		"\r\n" +
		strings.ReplaceAll(Body(event), "\n", "\r\n")
	if err := n.send(n.addr, n.auth, n.from, []string{n.to}, []byte(msg)); err != nil {
		return fmt.Errorf("send alert mail: %w", err)
	}
	return nil
}

// LogNotifier writes alerts to the log instead of mailing them.
type LogNotifier struct {
	Log *slog.Logger
}

func (n LogNotifier) Notify(_ context.Context, event domain.AlertEvent) error {
	n.Log.Warn(Subject(event),
		slog.String("question", event.Question),
		slog.String("answer", event.Answer),
		slog.Time("raised_at", event.RaisedAt))
	return nil
}

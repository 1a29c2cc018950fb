// Package mail delivers one-time sign-in codes.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/smtp"
	"strings"
	"sync"
	"time"
)

// Mailer sends a one-time code to an email address.
type Mailer interface {
	SendOTP(ctx context.Context, to, code string, expiresAt time.Time) error
}

// Message is one plain-text email.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}

// OTPMessage renders the sign-in code email.
func OTPMessage(from, to, code string, expiresAt time.Time) Message {
	return Message{
		From:    from,
		To:      to,
		Subject: "Your Stash sign-in code",
		Body: fmt.Sprintf("Your one-time code is %s.\r\n\r\nIt expires at %s.\r\nIf you did not ask for it, ignore this email.\r\n",
			code, expiresAt.UTC().Format(time.RFC1123)),
	}
}

// Bytes renders the message with RFC 5322 headers and CRLF line endings.
func (m Message) Bytes() []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", m.From)
	fmt.Fprintf(&b, "To: %s\r\n", m.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", m.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(m.Body)
	return b.Bytes()
}

// LogMailer writes rendered messages to an outbox writer instead of sending
// them. It is meant for local development.
type LogMailer struct {
	From   string
	Outbox io.Writer
	Logger *slog.Logger

	mu sync.Mutex
}

// SendOTP writes the message to the outbox.
func (m *LogMailer) SendOTP(ctx context.Context, to, code string, expiresAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.Outbox == nil {
		return fmt.Errorf("mail outbox is not configured")
	}
	msg := OTPMessage(m.From, to, code, expiresAt)

	m.mu.Lock()
	_, err := fmt.Fprintf(m.Outbox, "----- outbox -----\r\n%s\r\n", msg.Bytes())
	m.mu.Unlock()
	if err != nil {
		return fmt.Errorf("write outbox: %w", err)
	}

	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("otp mail written to outbox", "component", "mail", "to", to)
	return nil
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer sends messages through an SMTP relay.
type SMTPMailer struct {
	Addr     string
	Username string
	Password string
	From     string

	send sendFunc
}

// NewSMTPMailer builds a mailer for host:port relay addr.
func NewSMTPMailer(addr, username, password, from string) (*SMTPMailer, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, fmt.Errorf("smtp address is required")
	}
	if strings.TrimSpace(from) == "" {
		return nil, fmt.Errorf("smtp from address is required")
	}
	return &SMTPMailer{Addr: addr, Username: username, Password: password, From: from, send: smtp.SendMail}, nil
}

// SendOTP relays the code email.
func (m *SMTPMailer) SendOTP(ctx context.Context, to, code string, expiresAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var auth smtp.Auth
	if m.Username != "" {
		host := m.Addr
		if i := strings.LastIndex(host, ":"); i >= 0 {
			host = host[:i]
		}
		auth = smtp.PlainAuth("", m.Username, m.Password, host)
	}
	send := m.send
	if send == nil {
		send = smtp.SendMail
	}
	msg := OTPMessage(m.From, to, code, expiresAt)
	if err := send(m.Addr, auth, m.From, []string{to}, msg.Bytes()); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

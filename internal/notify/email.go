package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// EmailSender delivers notifications over SMTP with implicit TLS, the mode
// used by providers on port 465.
type EmailSender struct {
	host     string
	port     string
	username string
	password string
	from     string
	to       []string
	timeout  time.Duration
}

// NewEmailSender creates an EmailSender. addr is "host:port" of the TLS SMTP
// endpoint.
func NewEmailSender(addr, username, password, from string, to []string) (*EmailSender, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("email: bad address %q: %w", addr, err)
	}
	return &EmailSender{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		to:       to,
		timeout:  15 * time.Second,
	}, nil
}

// Send connects, authenticates, and submits one message per call. The
// connection is not reused: trade alerts are rare enough that session setup
// cost does not matter, and a held-open session would be dropped by the
// server between trades anyway.
func (e *EmailSender) Send(ctx context.Context, title, message string) error {
	dialer := &net.Dialer{Timeout: e.timeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", net.JoinHostPort(e.host, e.port), &tls.Config{ServerName: e.host})
	if err != nil {
		return fmt.Errorf("email: dial: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return fmt.Errorf("email: set deadline: %w", err)
		}
	}

	client, err := smtp.NewClient(conn, e.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("email: smtp handshake: %w", err)
	}
	defer client.Close()

	auth := smtp.PlainAuth("", e.username, e.password, e.host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("email: auth: %w", err)
	}
	if err := client.Mail(e.from); err != nil {
		return fmt.Errorf("email: mail from: %w", err)
	}
	for _, rcpt := range e.to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("email: rcpt %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("email: data: %w", err)
	}
	if _, err := fmt.Fprint(w, e.compose(title, message)); err != nil {
		return fmt.Errorf("email: write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("email: close body: %w", err)
	}
	return client.Quit()
}

func (e *EmailSender) compose(title, message string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(e.to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", title)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(message)
	b.WriteString("\r\n")
	return b.String()
}

// Name returns the sender identifier.
func (e *EmailSender) Name() string {
	return "email"
}

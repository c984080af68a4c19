package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

const smtpDialTimeout = 10 * time.Second

// SMTPConfig describe el servidor de salida. ImplicitTLS abre la conexion ya
// cifrada (puerto 465); sin el se intenta STARTTLS si el servidor lo anuncia.
type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	From        string
	FromName    string
	ImplicitTLS bool
}

// SMTPSender envia los correos de verificacion y recuperacion.
type SMTPSender struct {
	cfg  SMTPConfig
	from mail.Address
	now  func() time.Time
}

func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	from, err := mail.ParseAddress(strings.TrimSpace(cfg.From))
	if err != nil {
		return nil, fmt.Errorf("smtp from: %w", err)
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if name := strings.TrimSpace(cfg.FromName); name != "" {
		from.Name = name
	}
	return &SMTPSender{cfg: cfg, from: *from, now: time.Now}, nil
}

func (s *SMTPSender) SendVerificationCode(ctx context.Context, toEmail string, code string, expiresAt time.Time) error {
	body := fmt.Sprintf(
		"Your ANOINT Array verification code is %s.\nIt expires at %s UTC.\n",
		code,
		expiresAt.UTC().Format(time.RFC3339),
	)
	return s.send(ctx, toEmail, "Confirm your email", body)
}

func (s *SMTPSender) SendPasswordReset(ctx context.Context, toEmail string, link string, expiresAt time.Time) error {
	body := fmt.Sprintf(
		"We received a request to reset your password.\nOpen %s to choose a new one.\nThe link expires at %s UTC.\nIf you did not request this, ignore this email.\n",
		link,
		expiresAt.UTC().Format(time.RFC3339),
	)
	return s.send(ctx, toEmail, "Reset your password", body)
}

func (s *SMTPSender) send(ctx context.Context, toEmail, subject, body string) error {
	to, err := mail.ParseAddress(strings.TrimSpace(toEmail))
	if err != nil {
		return fmt.Errorf("recipient: %w", err)
	}

	client, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if !s.cfg.ImplicitTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}
	if s.cfg.Username != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)); err != nil {
				return fmt.Errorf("smtp auth: %w", err)
			}
		}
	}
	if err := client.Mail(s.from.Address); err != nil {
		return err
	}
	if err := client.Rcpt(to.Address); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte(buildMessage(s.from, *to, subject, body, s.now()))); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

// dial respeta el deadline del contexto durante toda la conversacion SMTP.
func (s *SMTPSender) dial(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	dialer := &net.Dialer{Timeout: smtpDialTimeout}

	var conn net.Conn
	var err error
	if s.cfg.ImplicitTLS {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: s.cfg.Host}}
		conn, err = tlsDialer.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return client, nil
}

func buildMessage(from, to mail.Address, subject, body string, at time.Time) string {
	headers := []string{
		"From: " + from.String(),
		"To: " + to.String(),
		"Subject: " + subject,
		"Date: " + at.Format(time.RFC1123Z),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
	}
	return strings.Join(headers, "\r\n") + "\r\n\r\n" + strings.ReplaceAll(body, "\n", "\r\n")
}

package email

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// Sender define la interfaz para los correos del proveedor de identidad.
type Sender interface {
	SendVerificationCode(ctx context.Context, toEmail string, code string, expiresAt time.Time) error
	SendPasswordReset(ctx context.Context, toEmail string, link string, expiresAt time.Time) error
}

type disabledSender struct {
	reason string
}

func NewDisabledSender(reason string) Sender {
	return &disabledSender{reason: reason}
}

func (s *disabledSender) err() error {
	if s.reason == "" {
		return errors.New("email sender disabled")
	}
	return errors.New(s.reason)
}

func (s *disabledSender) SendVerificationCode(_ context.Context, _ string, _ string, _ time.Time) error {
	return s.err()
}

func (s *disabledSender) SendPasswordReset(_ context.Context, _ string, _ string, _ time.Time) error {
	return s.err()
}

// ConsoleSender escribe los correos en un writer; pensado para desarrollo local.
type ConsoleSender struct {
	mu sync.Mutex
	w  io.Writer
}

func NewConsoleSender(w io.Writer) *ConsoleSender {
	return &ConsoleSender{w: w}
}

func (s *ConsoleSender) SendVerificationCode(_ context.Context, toEmail string, code string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.w, "[email] to=%s verification code=%s expires=%s\n", toEmail, code, expiresAt.UTC().Format(time.RFC3339))
	return err
}

func (s *ConsoleSender) SendPasswordReset(_ context.Context, toEmail string, link string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.w, "[email] to=%s password reset link=%s expires=%s\n", toEmail, link, expiresAt.UTC().Format(time.RFC3339))
	return err
}

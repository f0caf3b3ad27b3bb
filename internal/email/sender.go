package email

import (
	"context"
	"errors"
	"time"
)

// Sender envia el codigo de confirmacion de registro.
type Sender interface {
	SendConfirmationCode(ctx context.Context, toEmail string, code string, expiresAt time.Time) error
}

type disabledSender struct {
	reason string
}

func NewDisabledSender(reason string) Sender {
	return &disabledSender{reason: reason}
}

func (s *disabledSender) SendConfirmationCode(_ context.Context, _ string, _ string, _ time.Time) error {
	if s.reason == "" {
		return errors.New("confirmation email sender disabled")
	}
	return errors.New(s.reason)
}

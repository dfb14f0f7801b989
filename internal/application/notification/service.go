// Package notification delivers activation and password reset codes to the
// owner of an email address.
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
)

// Kind identifies the purpose of a message.
type Kind string

const (
	KindActivation    Kind = "activation"
	KindPasswordReset Kind = "password_reset"
)

type Message struct {
	Kind    Kind
	To      string
	Subject string
	Body    string
}

// Sender delivers a composed message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type Service interface {
	SendActivation(ctx context.Context, email, code string) error
	SendPasswordReset(ctx context.Context, email, code string) error
}

type service struct {
	sender  Sender
	baseURL string
}

type ServiceDeps struct {
	Sender Sender
	// BaseURL is the public origin used to build activation links, without a trailing slash.
	BaseURL string
}

func NewService(deps ServiceDeps) Service {
	return &service{sender: deps.Sender, baseURL: deps.BaseURL}
}

func (s *service) SendActivation(ctx context.Context, email, code string) error {
	link := fmt.Sprintf("%s/v1/accounts/activate/%s", s.baseURL, url.PathEscape(code))
	return s.send(ctx, Message{
		Kind:    KindActivation,
		To:      email,
		Subject: "Activate your account",
		Body: "Welcome!\n\n" +
			"Open the link below to activate your account:\n" + link + "\n\n" +
			"Activation code: " + code + "\n",
	})
}

func (s *service) SendPasswordReset(ctx context.Context, email, code string) error {
	return s.send(ctx, Message{
		Kind:    KindPasswordReset,
		To:      email,
		Subject: "Reset your password",
		Body: "A password reset was requested for this address.\n\n" +
			"Reset code: " + code + "\n\n" +
			"If you did not ask for this, ignore this email. Your password has not changed.\n",
	})
}

func (s *service) send(ctx context.Context, msg Message) error {
	if err := s.sender.Send(ctx, msg); err != nil {
		slog.Error("notification delivery failed", "kind", msg.Kind, "email", msg.To, "err", err)
		return fmt.Errorf("deliver %s message: %w", msg.Kind, err)
	}
	return nil
}

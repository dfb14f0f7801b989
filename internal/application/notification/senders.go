package notification

import (
	"context"
	"log/slog"
)

type mailer interface {
	SendEmail(to, subject, body string) error
}

type publisher interface {
	Publish(ctx context.Context, subject, message string, attrs map[string]string) error
}

// MailSender delivers messages by SMTP.
func MailSender(m mailer) Sender { return mailSender{m} }

type mailSender struct{ m mailer }

func (s mailSender) Send(_ context.Context, msg Message) error {
	return s.m.SendEmail(msg.To, msg.Subject, msg.Body)
}

// TopicSender publishes messages to an SNS topic, with the recipient and kind
// as message attributes for subscription filter policies.
func TopicSender(p publisher) Sender { return topicSender{p} }

type topicSender struct{ p publisher }

func (s topicSender) Send(ctx context.Context, msg Message) error {
	return s.p.Publish(ctx, msg.Subject, msg.Body, map[string]string{
		"email": msg.To,
		"kind":  string(msg.Kind),
	})
}

// LogSender writes messages to the log instead of delivering them. Development only.
func LogSender(logger *slog.Logger) Sender { return logSender{logger} }

type logSender struct{ logger *slog.Logger }

func (s logSender) Send(ctx context.Context, msg Message) error {
	s.logger.InfoContext(ctx, "notification", "kind", msg.Kind, "email", msg.To, "subject", msg.Subject, "body", msg.Body)
	return nil
}

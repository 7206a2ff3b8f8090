package notify

import (
	"context"
	"strings"

	"github.com/mailjet/mailjet-apiv3-go/v4"
	"go.uber.org/zap"
)

// Sender delivers one plain-text message. Failures are logged and reported
// as false; they never surface as errors.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) bool
}

// MailjetConfig holds the Mailjet credentials and the From identity.
type MailjetConfig struct {
	APIKey    string
	APISecret string
	FromEmail string
	FromName  string
}

// MailjetSender sends through the Mailjet Send API v3.1.
type MailjetSender struct {
	send   func(*mailjet.MessagesV31) (*mailjet.ResultsV31, error)
	from   mailjet.RecipientV31
	logger *zap.Logger
}

// NewMailjetSender returns a sender for cfg.
func NewMailjetSender(cfg MailjetConfig, logger *zap.Logger) *MailjetSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := mailjet.NewMailjetClient(cfg.APIKey, cfg.APISecret)
	return &MailjetSender{
		send: func(m *mailjet.MessagesV31) (*mailjet.ResultsV31, error) {
			return client.SendMailV31(m)
		},
		from:   mailjet.RecipientV31{Email: cfg.FromEmail, Name: cfg.FromName},
		logger: logger,
	}
}

func (s *MailjetSender) Send(ctx context.Context, to, subject, body string) bool {
	if err := ctx.Err(); err != nil {
		s.logger.Warn("Mail not sent", zap.String("to", to), zap.Error(err))
		return false
	}
	from := s.from
	msg := &mailjet.MessagesV31{Info: []mailjet.InfoMessagesV31{{
		From:     &from,
		To:       &mailjet.RecipientsV31{{Email: to, Name: localPart(to)}},
		Subject:  subject,
		TextPart: body,
	}}}

	res, err := s.send(msg)
	if err != nil {
		s.logger.Warn("Mailjet send failed", zap.String("to", to), zap.String("subject", subject), zap.Error(err))
		return false
	}
	if res != nil {
		for _, r := range res.ResultsV31 {
			if !strings.EqualFold(r.Status, "success") {
				s.logger.Warn("Mailjet rejected message", zap.String("to", to), zap.String("status", r.Status))
				return false
			}
		}
	}
	s.logger.Info("Mail sent", zap.String("to", to), zap.String("subject", subject))
	return true
}

// LogSender stands in for a mail provider: it logs each message and
// reports success.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, to, subject, body string) bool {
	s.logger.Info("Mail (not sent, mail disabled)",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.Int("body_len", len(body)),
	)
	return true
}

func localPart(email string) string {
	if i := strings.Index(email, "@"); i > 0 {
		return email[:i]
	}
	return email
}

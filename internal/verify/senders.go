package verify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/percystore/smartsales/internal/config"
	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

const (
	emailSubject = "PercyStore: Código de verificación"
	emailBody    = "Tu código es %s"
	phoneBody    = "PercyStore código: %s"
)

type SMTPSender struct {
	Cfg config.SMTPConfig
}

func (s SMTPSender) Send(_ context.Context, _ Channel, to, code string) error {
	if !s.Cfg.Configured() {
		return ErrNotConfigured
	}
	msg := []byte("From: " + s.Cfg.From + "\r\n" +
		"To: " + to + "\r\n" +
		"Subject: " + emailSubject + "\r\n" +
		"Content-Type: text/plain; charset=UTF-8\r\n" +
		"\r\n" +
		fmt.Sprintf(emailBody, code) + "\r\n")

	var auth smtp.Auth
	if s.Cfg.User != "" {
		auth = smtp.PlainAuth("", s.Cfg.User, s.Cfg.Password, s.Cfg.Host)
	}
	return smtp.SendMail(s.Cfg.Host+":"+s.Cfg.Port, auth, s.Cfg.From, []string{to}, msg)
}

type TwilioSender struct {
	client  *twilio.RestClient
	fromSMS string
	fromWA  string
}

// NewTwilioSender returns nil when the account is not configured.
func NewTwilioSender(cfg config.TwilioConfig) *TwilioSender {
	if !cfg.Configured() {
		return nil
	}
	return &TwilioSender{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		}),
		fromSMS: cfg.FromSMS,
		fromWA:  cfg.FromWhatsApp,
	}
}

func (s *TwilioSender) Send(_ context.Context, ch Channel, to, code string) error {
	if s == nil {
		return ErrNotConfigured
	}
	from := s.fromSMS
	if ch == ChannelWhatsApp {
		from = s.fromWA
	}
	if from == "" {
		return fmt.Errorf("%w: no %s sender number", ErrNotConfigured, ch)
	}
	if ch == ChannelWhatsApp {
		from, to = whatsapp(from), whatsapp(to)
	}
	params := &twilioapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(from)
	params.SetBody(fmt.Sprintf(phoneBody, code))
	if _, err := s.client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("twilio %s: %w", ch, err)
	}
	return nil
}

func whatsapp(n string) string {
	if strings.HasPrefix(n, "whatsapp:") {
		return n
	}
	return "whatsapp:" + n
}

package sendemail

import (
	"errors"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"livechat/pkg/config"
)

var ErrEmailDisabled = errors.New("email delivery is not configured")

type EmailService interface {
	SendEmail(subject, toEmail, plainTextContent, htmlContent string) error
}

type emailService struct {
	client      *sendgrid.Client
	senderEmail string
	senderName  string
}

// NewEmailService returns a SendGrid-backed service, or a service that always
// fails with ErrEmailDisabled when no API key is configured.
func NewEmailService(cfg config.SendGridConfig) EmailService {
	if cfg.APIKey == "" || cfg.SenderEmail == "" {
		return disabledService{}
	}
	return &emailService{
		client:      sendgrid.NewSendClient(cfg.APIKey),
		senderEmail: cfg.SenderEmail,
		senderName:  cfg.SenderName,
	}
}

func (e *emailService) SendEmail(subject, toEmail, plainTextContent, htmlContent string) error {
	from := mail.NewEmail(e.senderName, e.senderEmail)
	to := mail.NewEmail("", toEmail)
	message := mail.NewSingleEmail(from, subject, to, plainTextContent, htmlContent)
	resp, err := e.client.Send(message)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid rejected email: status %d", resp.StatusCode)
	}
	return nil
}

type disabledService struct{}

func (disabledService) SendEmail(subject, toEmail, plainTextContent, htmlContent string) error {
	return ErrEmailDisabled
}

package mailer

import (
	"fmt"
	"html"
	"time"

	"gopkg.in/gomail.v2"
)

type IEmailService interface {
	SendUnattendedSessionAlert(toEmail string, alert UnattendedSessionAlert) error
}

type UnattendedSessionAlert struct {
	SessionId string
	VisitorId string
	CreatedAt time.Time
}

type emailService struct {
	dialer      *gomail.Dialer
	senderEmail string
	senderName  string
}

func NewEmailService(host string, port int, username, password, senderEmail, senderName string) IEmailService {
	return &emailService{
		dialer:      gomail.NewDialer(host, port, username, password),
		senderEmail: senderEmail,
		senderName:  senderName,
	}
}

func buildUnattendedAlert(from, to string, alert UnattendedSessionAlert) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", "New chat waiting: no operator available")
	m.SetBody("text/html", unattendedAlertBody(alert))
	return m
}

func unattendedAlertBody(alert UnattendedSessionAlert) string {
	return fmt.Sprintf(`
		<div style="font-family: Arial, sans-serif; padding: 20px; color: #333;">
			<h2>A visitor started a chat</h2>
			<p>No operator was available when the conversation began.</p>
			<p><strong>Session:</strong> %s<br><strong>Visitor:</strong> %s<br><strong>Started:</strong> %s</p>
			<p>Open the operator dashboard to reply.</p>
		</div>
	`, html.EscapeString(alert.SessionId), html.EscapeString(alert.VisitorId), alert.CreatedAt.UTC().Format(time.RFC1123))
}

func (s *emailService) SendUnattendedSessionAlert(toEmail string, alert UnattendedSessionAlert) error {
	from := s.senderEmail
	if s.senderName != "" {
		from = fmt.Sprintf("%s <%s>", s.senderName, s.senderEmail)
	}

	if err := s.dialer.DialAndSend(buildUnattendedAlert(from, toEmail, alert)); err != nil {
		return fmt.Errorf("send unattended alert to %s: %w", toEmail, err)
	}
	return nil
}

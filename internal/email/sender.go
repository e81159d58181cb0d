// Package email renders and delivers operator alert e-mails.
package email

import (
	"context"
	"fmt"
	"net"
	"time"

	"engagement_backend/platform/config"

	gomail "github.com/wneessen/go-mail"
)

// Sender delivers operator alerts.
type Sender interface {
	SendEscalationAlert(ctx context.Context, toEmail string, alert EscalationAlert) error
	SendBookingAlert(ctx context.Context, toEmail string, alert BookingAlert) error
}

// EscalationAlert describes a conversation that needs a human.
type EscalationAlert struct {
	ContactName string
	ExternalID  string
	Reason      string
	LastInbound string
	LastReply   string
}

// BookingAlert describes a confirmed booking.
type BookingAlert struct {
	ContactName string
	ExternalID  string
	Note        string
}

type NoopSender struct{}

func (NoopSender) SendEscalationAlert(context.Context, string, EscalationAlert) error { return nil }
func (NoopSender) SendBookingAlert(context.Context, string, BookingAlert) error       { return nil }

// SMTPSender implements Sender over a direct SMTP connection via go-mail.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

// NewSender returns an SMTP sender when e-mail is configured and a NoopSender otherwise.
func NewSender(cfg config.EmailConfig) Sender {
	if !cfg.IsEmailEnabled() {
		return NoopSender{}
	}
	return NewSMTPSender(cfg.GetSMTPHost(), cfg.GetSMTPPort(), cfg.GetSMTPUsername(), cfg.GetSMTPPassword(), cfg.GetEmailFromAddress(), cfg.GetEmailFromName())
}

// NewSMTPSender creates a new SMTPSender with the given SMTP credentials.
func NewSMTPSender(host string, port int, username, password, fromEmail, fromName string) *SMTPSender {
	return &SMTPSender{
		host:      host,
		port:      port,
		username:  username,
		password:  password,
		fromName:  fromName,
		fromEmail: fromEmail,
	}
}

func (s *SMTPSender) SendEscalationAlert(ctx context.Context, toEmail string, alert EscalationAlert) error {
	content, err := renderEmailTemplate("escalation.html", escalationEmailData{
		baseEmailData: baseEmailData{
			Title:   "Conversation needs review",
			Heading: "A conversation needs your attention",
		},
		EscalationAlert: alert,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, fmt.Sprintf(subjectEscalationFmt, displayName(alert.ContactName, alert.ExternalID)), content)
}

func (s *SMTPSender) SendBookingAlert(ctx context.Context, toEmail string, alert BookingAlert) error {
	content, err := renderEmailTemplate("booking.html", bookingEmailData{
		baseEmailData: baseEmailData{
			Title:   "Booking confirmed",
			Heading: "A lead booked a call",
		},
		BookingAlert: alert,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, fmt.Sprintf(subjectBookingFmt, displayName(alert.ContactName, alert.ExternalID)), content)
}

func (s *SMTPSender) send(ctx context.Context, toEmail, subject, htmlContent string) error {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(toEmail); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlContent)

	opts := []gomail.Option{
		gomail.WithPort(s.port),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15 * time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp", addr)
		}),
	}
	if s.username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.username),
			gomail.WithPassword(s.password),
		)
	}

	client, err := gomail.NewClient(s.host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	return nil
}

func displayName(name, externalID string) string {
	if name != "" {
		return name
	}
	return externalID
}

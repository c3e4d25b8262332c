package services

import (
	"fmt"
	"os"
	"strconv"

	log "github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// Mailer sends transactional email (OTP codes) over SMTP.
// SMTP_HOST, SMTP_PORT, SMTP_USERNAME, SMTP_PASSWORD, SMTP_FROM.
type Mailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewMailer() *Mailer {
	port, err := strconv.Atoi(os.Getenv("SMTP_PORT"))
	if err != nil {
		port = 587
	}
	from := os.Getenv("SMTP_FROM")
	if from == "" {
		from = "HouseRent <no-reply@houserent.local>"
	}
	return &Mailer{
		dialer: gomail.NewDialer(
			os.Getenv("SMTP_HOST"),
			port,
			os.Getenv("SMTP_USERNAME"),
			os.Getenv("SMTP_PASSWORD"),
		),
		from: from,
	}
}

// SendOTP emails a one-time code. kind is "verification" or "reset" and only
// affects the copy.
func (m *Mailer) SendOTP(email, otp, kind string) error {
	subject := "Verify your HouseRent account"
	heading := "Email Verification"
	if kind == "reset" {
		subject = "Your HouseRent password reset code"
		heading = "Password Reset"
	}

	html := fmt.Sprintf(`
		<div style="font-family: Arial, sans-serif; line-height: 1.6;">
			<h2 style="color: #2563eb;">HouseRent %s</h2>
			<p>Hello,</p>
			<p>Your one-time password (OTP) is:</p>
			<h3 style="background: #f1f5f9; color: #111; padding: 10px 15px; display: inline-block; border-radius: 6px;">%s</h3>
			<p>This code will expire in <strong>10 minutes</strong>.</p>
			<p>If you did not request this, ignore this email.</p>
			<br />
			<p>— The HouseRent Team</p>
		</div>`, heading, otp)

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", email)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", html)

	if err := m.dialer.DialAndSend(msg); err != nil {
		log.WithError(err).WithField("to", email).Error("failed to send OTP email")
		return fmt.Errorf("failed to send OTP email: %w", err)
	}
	log.WithField("to", email).Info("OTP email sent")
	return nil
}

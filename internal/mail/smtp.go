package mail

import (
	"bytes"
	"context"
	"io"

	"gopkg.in/gomail.v2"
)

// SMTP sends messages through a relay with gomail.
type SMTP struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
}

func (s SMTP) Send(ctx context.Context, msg Message) error {
	if s.Host == "" {
		return ErrNotConfigured
	}
	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.FromEmail, msg.FromName)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)
	for _, a := range msg.Attachments {
		content := a.Content
		m.Attach(a.Filename,
			gomail.SetHeader(map[string][]string{"Content-Type": {a.ContentType}}),
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := io.Copy(w, bytes.NewReader(content))
				return err
			}))
	}

	done := make(chan error, 1)
	go func() {
		done <- gomail.NewDialer(s.Host, s.Port, s.Username, s.Password).DialAndSend(m)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// Package mail delivers transactional email through SendGrid or plain SMTP.
package mail

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned when no delivery channel is set up.
var ErrNotConfigured = errors.New("email delivery is not configured")

type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

type Message struct {
	To          string
	FromName    string
	Subject     string
	HTML        string
	Attachments []Attachment
}

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

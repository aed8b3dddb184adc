package mail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const sendGridURL = "https://api.sendgrid.com/v3/mail/send"

// SendGrid posts messages to the SendGrid v3 mail API.
type SendGrid struct {
	APIKey    string
	FromEmail string
	URL       string
	Client    *http.Client
}

type sgAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sgContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sgAttachment struct {
	Content     string `json:"content"`
	Filename    string `json:"filename"`
	Type        string `json:"type"`
	Disposition string `json:"disposition"`
}

type sgRequest struct {
	Personalizations []struct {
		To []sgAddress `json:"to"`
	} `json:"personalizations"`
	From        sgAddress      `json:"from"`
	Subject     string         `json:"subject"`
	Content     []sgContent    `json:"content"`
	Attachments []sgAttachment `json:"attachments,omitempty"`
}

func (s SendGrid) Send(ctx context.Context, msg Message) error {
	if s.APIKey == "" {
		return ErrNotConfigured
	}
	req := sgRequest{
		From:    sgAddress{Email: s.FromEmail, Name: msg.FromName},
		Subject: msg.Subject,
		Content: []sgContent{{Type: "text/html", Value: msg.HTML}},
	}
	req.Personalizations = make([]struct {
		To []sgAddress `json:"to"`
	}, 1)
	req.Personalizations[0].To = []sgAddress{{Email: msg.To}}
	for _, a := range msg.Attachments {
		req.Attachments = append(req.Attachments, sgAttachment{
			Content:     base64.StdEncoding.EncodeToString(a.Content),
			Filename:    a.Filename,
			Type:        a.ContentType,
			Disposition: "attachment",
		})
	}
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	url := s.URL
	if url == "" {
		url = sendGridURL
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", "Bearer "+s.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("sendgrid request error: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("sendgrid request failed with status %d: %s", resp.StatusCode, detail)
}

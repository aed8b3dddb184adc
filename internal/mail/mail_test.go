package mail

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendGridPostsMessage(t *testing.T) {
	var got map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sg := SendGrid{APIKey: "SG.key", FromEmail: "no-reply@restaurant.local", URL: srv.URL, Client: srv.Client()}
	err := sg.Send(context.Background(), Message{
		To:          "guest@example.com",
		FromName:    "Noodle Bar",
		Subject:     "Receipt for A-12",
		HTML:        "<p>hi</p>",
		Attachments: []Attachment{{Filename: "A-12.pdf", ContentType: "application/pdf", Content: []byte("%PDF")}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer SG.key", auth)
	assert.Equal(t, "Receipt for A-12", got["subject"])
	from := got["from"].(map[string]any)
	assert.Equal(t, "no-reply@restaurant.local", from["email"])
	assert.Equal(t, "Noodle Bar", from["name"])
	att := got["attachments"].([]any)[0].(map[string]any)
	assert.Equal(t, "JVBERg==", att["content"])
	assert.Equal(t, "attachment", att["disposition"])
}

func TestSendGridReportsFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad from"}]}`))
	}))
	defer srv.Close()

	err := SendGrid{APIKey: "k", URL: srv.URL, Client: srv.Client()}.Send(context.Background(), Message{To: "a@b.co"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Contains(t, err.Error(), "bad from")
}

func TestUnconfiguredSenders(t *testing.T) {
	assert.ErrorIs(t, SendGrid{}.Send(context.Background(), Message{}), ErrNotConfigured)
	assert.ErrorIs(t, SMTP{}.Send(context.Background(), Message{}), ErrNotConfigured)
}

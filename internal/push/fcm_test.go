package push

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restopos-backend/internal/logger"
	"restopos-backend/internal/service"
)

type memTokens struct {
	tokens  []string
	removed []string
}

func (m *memTokens) TokensForTenant(context.Context, string) ([]string, error) { return m.tokens, nil }

func (m *memTokens) Remove(_ context.Context, tokens []string) error {
	m.removed = append(m.removed, tokens...)
	return nil
}

type fakeSender struct {
	batches  [][]string
	messages []*messaging.MulticastMessage
	fail     map[string]error
}

func (f *fakeSender) SendEachForMulticast(_ context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	f.batches = append(f.batches, msg.Tokens)
	f.messages = append(f.messages, msg)
	res := &messaging.BatchResponse{}
	for _, tok := range msg.Tokens {
		if err, ok := f.fail[tok]; ok {
			res.FailureCount++
			res.Responses = append(res.Responses, &messaging.SendResponse{Error: err})
			continue
		}
		res.SuccessCount++
		res.Responses = append(res.Responses, &messaging.SendResponse{Success: true, MessageID: "m-" + tok})
	}
	return res, nil
}

func TestPushToTenant(t *testing.T) {
	tokens := &memTokens{tokens: []string{"a", "b", "c"}}
	sender := &fakeSender{fail: map[string]error{"b": errors.New("quota exceeded")}}
	p := &FCM{Tokens: tokens, Sender: sender, Logger: logger.Discard()}

	err := p.PushToTenant(context.Background(), "t1", service.PushMessage{
		Title: "Low stock", Body: "Jasmine rice is running low", Data: map[string]string{"ingredientId": "i1"},
	})
	require.NoError(t, err)
	require.Len(t, sender.messages, 1)
	msg := sender.messages[0]
	assert.Equal(t, []string{"a", "b", "c"}, msg.Tokens)
	assert.Equal(t, "Low stock", msg.Notification.Title)
	assert.Equal(t, "i1", msg.Data["ingredientId"])
	assert.Empty(t, tokens.removed)
}

func TestPushBatchesLargeTenants(t *testing.T) {
	var all []string
	for i := 0; i < 1203; i++ {
		all = append(all, fmt.Sprintf("tok-%d", i))
	}
	sender := &fakeSender{}
	p := &FCM{Tokens: &memTokens{tokens: all}, Sender: sender, Logger: logger.Discard()}

	require.NoError(t, p.PushToTenant(context.Background(), "t1", service.PushMessage{Title: "x"}))
	require.Len(t, sender.batches, 3)
	assert.Len(t, sender.batches[0], 500)
	assert.Len(t, sender.batches[2], 203)
}

func TestPushWithoutDevices(t *testing.T) {
	sender := &fakeSender{}
	p := &FCM{Tokens: &memTokens{}, Sender: sender, Logger: logger.Discard()}
	require.NoError(t, p.PushToTenant(context.Background(), "t1", service.PushMessage{}))
	assert.Empty(t, sender.batches)
}

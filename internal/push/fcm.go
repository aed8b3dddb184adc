// Package push fans staff notifications out to registered devices over FCM.
package push

import (
	"context"
	"fmt"
	"log/slog"

	"firebase.google.com/go/v4/messaging"

	"restopos-backend/internal/service"
)

// FCM caps a multicast at this many tokens.
const maxMulticastTokens = 500

type TokenStore interface {
	TokensForTenant(ctx context.Context, tenantID string) ([]string, error)
	Remove(ctx context.Context, tokens []string) error
}

type MulticastSender interface {
	SendEachForMulticast(ctx context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

type FCM struct {
	Tokens TokenStore
	Sender MulticastSender
	Logger *slog.Logger
}

var _ service.Pusher = (*FCM)(nil)

// PushToTenant sends msg to every device of the tenant and prunes tokens
// FCM reports as unregistered.
func (p *FCM) PushToTenant(ctx context.Context, tenantID string, msg service.PushMessage) error {
	tokens, err := p.Tokens.TokensForTenant(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("load device tokens: %w", err)
	}
	if len(tokens) == 0 {
		return nil
	}

	var stale []string
	sent := 0
	for start := 0; start < len(tokens); start += maxMulticastTokens {
		end := min(start+maxMulticastTokens, len(tokens))
		batch := tokens[start:end]
		res, err := p.Sender.SendEachForMulticast(ctx, &messaging.MulticastMessage{
			Tokens:       batch,
			Notification: &messaging.Notification{Title: msg.Title, Body: msg.Body},
			Data:         msg.Data,
		})
		if err != nil {
			return fmt.Errorf("fcm multicast: %w", err)
		}
		sent += res.SuccessCount
		for i, r := range res.Responses {
			if r.Success || r.Error == nil {
				continue
			}
			if messaging.IsUnregistered(r.Error) {
				stale = append(stale, batch[i])
				continue
			}
			p.Logger.Warn("push delivery failed", "tenantId", tenantID, "err", r.Error)
		}
	}

	if len(stale) > 0 {
		if err := p.Tokens.Remove(ctx, stale); err != nil {
			p.Logger.Warn("prune device tokens failed", "tenantId", tenantID, "err", err)
		}
	}
	p.Logger.Debug("push sent", "tenantId", tenantID, "devices", len(tokens), "delivered", sent, "pruned", len(stale))
	return nil
}

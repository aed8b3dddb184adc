package events

import (
	"context"
	"log/slog"
	"time"

	"restopos-backend/internal/db"
)

// Wake turns NOTIFY traffic on Channel into a coalescing wake-up signal. The
// listener reconnects after errors until ctx is cancelled.
func Wake(ctx context.Context, pg *db.Postgres, log *slog.Logger) <-chan struct{} {
	wake := make(chan struct{}, 1)
	go func() {
		for ctx.Err() == nil {
			err := pg.Listen(ctx, Channel, func(string) {
				select {
				case wake <- struct{}{}:
				default:
				}
			})
			if err != nil {
				log.Warn("change listener dropped", "err", err)
			}
			select {
			case <-ctx.Done():
			case <-time.After(3 * time.Second):
			}
		}
	}()
	return wake
}

package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Listen takes a connection out of the pool, LISTENs on channel and forwards payloads
// to fn until ctx is cancelled.
func (p *Postgres) Listen(ctx context.Context, channel string, fn func(payload string)) error {
	pooled, err := p.Pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen conn: %w", err)
	}
	conn := pooled.Hijack()
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", channel, err)
	}
	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("wait for notification: %w", err)
		}
		fn(n.Payload)
	}
}

package events

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"restopos-backend/internal/metrics"
)

// Claimed is a change leased to this process for delivery.
type Claimed struct {
	Change
	// Pending lists handlers that still need the change; nil means all of them.
	Pending  []string
	Attempts int
}

// ChangeSource stores the change feed and its delivery state.
type ChangeSource interface {
	Claim(ctx context.Context, limit, maxAttempts int, lease time.Duration) ([]Claimed, error)
	Complete(ctx context.Context, id int64) error
	Fail(ctx context.Context, id int64, pending []string, lastErr string, retryAt time.Time) error
	// Abandon parks a change whose handlers kept failing until its last attempt.
	Abandon(ctx context.Context, id int64, pending []string, lastErr string) error
}

// Dispatcher pulls changes from a ChangeSource and fans them out to routes.
type Dispatcher struct {
	Source       ChangeSource
	Routes       []Route
	Logger       *slog.Logger
	Workers      int
	MaxAttempts  int
	PollInterval time.Duration
	Lease        time.Duration
	Now          func() time.Time
}

func (d *Dispatcher) workers() int {
	if d.Workers <= 0 {
		return 1
	}
	return d.Workers
}

func (d *Dispatcher) maxAttempts() int {
	if d.MaxAttempts <= 0 {
		return 8
	}
	return d.MaxAttempts
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Run delivers changes until ctx is cancelled. A value on wake triggers an
// immediate poll; otherwise the source is polled every PollInterval.
func (d *Dispatcher) Run(ctx context.Context, wake <-chan struct{}) error {
	interval := d.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	d.Logger.Info("change dispatcher started", "workers", d.workers(), "routes", len(d.Routes))
	for {
		for {
			n, err := d.DrainOnce(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				d.Logger.Error("claim document changes", "err", err)
				break
			}
			if n == 0 {
				break
			}
		}
		select {
		case <-ctx.Done():
			d.Logger.Info("change dispatcher stopped")
			return nil
		case <-wake:
		case <-ticker.C:
		}
	}
}

// DrainOnce claims one batch and delivers it. It returns the number of changes claimed.
func (d *Dispatcher) DrainOnce(ctx context.Context) (int, error) {
	lease := d.Lease
	if lease <= 0 {
		lease = 2 * time.Minute
	}
	batch, err := d.Source.Claim(ctx, d.workers()*4, d.maxAttempts(), lease)
	if err != nil {
		return 0, err
	}
	metrics.TriggerBacklog.Set(float64(len(batch)))
	if len(batch) == 0 {
		return 0, nil
	}

	sem := make(chan struct{}, d.workers())
	var wg sync.WaitGroup
	for _, cl := range batch {
		sem <- struct{}{}
		wg.Add(1)
		go func(cl Claimed) {
			defer wg.Done()
			defer func() { <-sem }()
			d.settle(ctx, cl)
		}(cl)
	}
	wg.Wait()
	return len(batch), nil
}

func (d *Dispatcher) settle(ctx context.Context, cl Claimed) {
	failed, errs := d.Deliver(ctx, cl)
	if len(failed) == 0 {
		if err := d.Source.Complete(ctx, cl.ID); err != nil {
			d.Logger.Error("mark change processed", "changeId", cl.ID, "err", err)
		}
		return
	}
	if cl.Attempts >= d.maxAttempts() {
		d.Logger.Error("giving up on document change",
			"changeId", cl.ID, "collection", cl.Collection, "docId", cl.DocID, "handlers", failed, "attempts", cl.Attempts)
		metrics.TriggerAbandoned.Inc()
		if err := d.Source.Abandon(ctx, cl.ID, failed, errs); err != nil {
			d.Logger.Error("record abandoned change", "changeId", cl.ID, "err", err)
		}
		return
	}
	if err := d.Source.Fail(ctx, cl.ID, failed, errs, d.now().Add(Backoff(cl.Attempts))); err != nil {
		d.Logger.Error("record change failure", "changeId", cl.ID, "err", err)
	}
}

// Deliver runs every matching, still-pending route for one change and returns the
// names of routes that failed with their joined error text.
func (d *Dispatcher) Deliver(ctx context.Context, cl Claimed) ([]string, string) {
	var failed []string
	var messages []string
	for _, r := range d.Routes {
		if !r.matches(cl.Change) {
			continue
		}
		if cl.Pending != nil && !contains(cl.Pending, r.Name) {
			continue
		}
		err := d.invoke(ctx, r, cl.Change)
		metrics.TriggerRuns.WithLabelValues(r.Name, metrics.Result(err)).Inc()
		if err != nil {
			d.Logger.Warn("document change handler failed",
				"handler", r.Name, "changeId", cl.ID, "collection", cl.Collection, "docId", cl.DocID, "attempt", cl.Attempts, "err", err)
			failed = append(failed, r.Name)
			messages = append(messages, r.Name+": "+err.Error())
		}
	}
	return failed, strings.Join(messages, "; ")
}

func (d *Dispatcher) invoke(ctx context.Context, r Route, c Change) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return r.Handle(ctx, c)
}

// Backoff is the delay before the next delivery after the given attempt.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 10 {
		return 10 * time.Minute
	}
	d := time.Duration(1<<uint(attempt-1)) * 5 * time.Second
	if d > 10*time.Minute {
		return 10 * time.Minute
	}
	return d
}

package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"restopos-backend/internal/apperr"
	"restopos-backend/internal/docstore"
	"restopos-backend/internal/events"
	"restopos-backend/internal/repository"
	"restopos-backend/internal/server/authctx"
)

// MaxBackfillAttempts bounds redelivery of one backfill page.
const MaxBackfillAttempts = 5

// BackfillQueue persists backfill pages.
type BackfillQueue interface {
	Enqueue(ctx context.Context, t repository.BackfillTask) (int64, error)
	ClaimNext(ctx context.Context) (*repository.BackfillTask, error)
	Finish(ctx context.Context, id int64) error
	Retry(ctx context.Context, id int64, lastErr string, runAfter time.Time, giveUp bool) error
}

// BackfillService rewrites stored master data to the current conventions, one
// page per task, with a single worker draining the queue.
type BackfillService struct {
	Store  docstore.Store
	Queue  BackfillQueue
	Logger *slog.Logger
	Now    func() time.Time
}

// BackfillStart is the response of a backfill request.
type BackfillStart struct {
	EnqueuedCollections []string `json:"enqueuedCollections"`
	BatchSize           int      `json:"batchSize"`
}

// Start queues the first page of each requested collection; nil means all master collections.
func (s BackfillService) Start(ctx context.Context, user *authctx.CurrentUser, collections []string, batchSize int) (*BackfillStart, error) {
	if user == nil {
		return nil, apperr.New(apperr.Unauthenticated, "Authentication is required for this operation.")
	}
	if !user.IsAdmin() {
		return nil, apperr.New(apperr.PermissionDenied, "Admin privileges are required to start a master data backfill.")
	}
	if collections == nil {
		collections = MasterDataCollections
	}
	if len(collections) == 0 {
		return nil, apperr.New(apperr.InvalidArgument, "At least one master data collection must be provided.")
	}
	var invalid []string
	for _, c := range collections {
		if !IsMasterDataCollection(c) {
			invalid = append(invalid, c)
		}
	}
	if len(invalid) > 0 {
		return nil, apperr.New(apperr.InvalidArgument, "Unsupported master data collection(s): %s", strings.Join(invalid, ", "))
	}
	size := NormalizeBackfillBatchSize(batchSize)
	for _, c := range collections {
		if _, err := s.Queue.Enqueue(ctx, repository.BackfillTask{Collection: c, BatchSize: size}); err != nil {
			return nil, fmt.Errorf("enqueue %s backfill: %w", c, err)
		}
	}
	s.Logger.Info("queued master data backfill", "collections", collections, "batchSize", size)
	return &BackfillStart{EnqueuedCollections: collections, BatchSize: size}, nil
}

// BackfillPage is the outcome of one task.
type BackfillPage struct {
	Scanned int
	Updated int
	Skipped int
	Next    string
}

// ProcessTask corrects one page and queues the next when the page was full.
func (s BackfillService) ProcessTask(ctx context.Context, t repository.BackfillTask) (BackfillPage, error) {
	var page BackfillPage
	if !IsMasterDataCollection(t.Collection) {
		s.Logger.Error("received backfill task for unsupported collection", "collection", t.Collection)
		return page, nil
	}
	size := NormalizeBackfillBatchSize(t.BatchSize)
	docs, err := s.Store.Query(ctx, docstore.Query{
		Collection: t.Collection,
		OrderBy:    docstore.DocumentID,
		StartAfter: t.StartAfter,
		Limit:      size,
	})
	if err != nil {
		return page, fmt.Errorf("read %s page: %w", t.Collection, err)
	}
	page.Scanned = len(docs)
	if len(docs) == 0 {
		s.Logger.Info("master data backfill completed", "collection", t.Collection)
		return page, nil
	}

	for _, d := range docs {
		updates := BuildBackfillUpdates(t.Collection, d.Data)
		merged := docstore.Clone(d.Data)
		docstore.MergeInto(merged, updates)
		if problems := ValidateMasterData(t.Collection, docstore.Normalize(merged)); len(problems) > 0 {
			s.Logger.Warn("skipping document due to constraint violations", "collection", t.Collection, "docId", d.ID, "errors", problems)
			page.Skipped++
			continue
		}
		if len(updates) == 0 {
			continue
		}
		fields := make([]docstore.Update, 0, len(updates))
		for k, v := range updates {
			fields = append(fields, docstore.SetField(k, v))
		}
		if err := s.Store.Update(ctx, t.Collection, d.ID, fields...); err != nil {
			return page, fmt.Errorf("backfill %s/%s: %w", t.Collection, d.ID, err)
		}
		page.Updated++
	}

	if len(docs) == size {
		page.Next = docs[len(docs)-1].ID
		if _, err := s.Queue.Enqueue(ctx, repository.BackfillTask{Collection: t.Collection, StartAfter: page.Next, BatchSize: size}); err != nil {
			return page, fmt.Errorf("enqueue next %s page: %w", t.Collection, err)
		}
	} else {
		s.Logger.Info("master data backfill processed final batch", "collection", t.Collection, "documents", len(docs))
	}
	return page, nil
}

// RunOnce claims and processes one task. It reports false when the queue was empty.
func (s BackfillService) RunOnce(ctx context.Context) (bool, error) {
	task, err := s.Queue.ClaimNext(ctx)
	if err != nil {
		return false, fmt.Errorf("claim backfill task: %w", err)
	}
	if task == nil {
		return false, nil
	}
	log := s.Logger.With("taskId", task.ID, "collection", task.Collection, "attempt", task.Attempts)
	page, err := s.ProcessTask(ctx, *task)
	if err == nil {
		log.Debug("backfill page done", "scanned", page.Scanned, "updated", page.Updated, "skipped", page.Skipped)
		return true, s.Queue.Finish(ctx, task.ID)
	}
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	giveUp := task.Attempts >= MaxBackfillAttempts
	if giveUp {
		log.Error("backfill task failed permanently", "err", err)
	} else {
		log.Warn("backfill task failed, will retry", "err", err)
	}
	if rerr := s.Queue.Retry(ctx, task.ID, err.Error(), now.Add(events.Backoff(task.Attempts)), giveUp); rerr != nil {
		return true, rerr
	}
	return true, nil
}

// Run drains the queue until ctx is cancelled, polling every interval when idle.
func (s BackfillService) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	for {
		worked, err := s.RunOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.Logger.Error("backfill worker", "err", err)
		}
		if worked && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

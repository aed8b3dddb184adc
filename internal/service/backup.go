package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"restopos-backend/internal/docstore"
	"restopos-backend/internal/domain"
)

// BlobWriter stores objects in a bucket.
type BlobWriter interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Location(key string) string
}

// BackupCollections are exported every night.
var BackupCollections = []string{
	domain.CollectionOrders,
	domain.CollectionRefunds,
	domain.CollectionMenuItems,
	domain.CollectionFeatureFlags,
	domain.CollectionStores,
	domain.CollectionCustomers,
}

const backupPageSize = 500

// BackupService writes JSON snapshots of whole collections to object storage.
type BackupService struct {
	Store       docstore.Store
	Blob        BlobWriter
	Logger      *slog.Logger
	Location    *time.Location
	Collections []string
	Now         func() time.Time
}

type backupDocument struct {
	ID   string         `json:"id"`
	Data map[string]any `json:"data"`
}

type backupFile struct {
	Collection    string           `json:"collection"`
	ExportedAt    string           `json:"exportedAt"`
	DocumentCount int              `json:"documentCount"`
	Documents     []backupDocument `json:"documents"`
}

// BackupFolder is the object prefix of one run: local date, then the UTC timestamp
// with ':' and '.' made path-safe.
func BackupFolder(executedAt time.Time, loc *time.Location) string {
	stamp := executedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	stamp = strings.NewReplacer(":", "-", ".", "-").Replace(stamp)
	return "backups/" + executedAt.In(loc).Format("20060102") + "/" + stamp
}

// Run exports every collection. All collections are attempted; the first failure is returned.
func (s BackupService) Run(ctx context.Context) error {
	if s.Blob == nil {
		s.Logger.Warn("skipping backup export because no backup bucket is configured")
		return nil
	}
	executedAt := time.Now()
	if s.Now != nil {
		executedAt = s.Now()
	}
	collections := s.Collections
	if collections == nil {
		collections = BackupCollections
	}
	folder := BackupFolder(executedAt, s.Location)

	var first error
	for _, name := range collections {
		key := folder + "/" + name + ".json"
		n, err := s.exportCollection(ctx, name, key, executedAt)
		if err != nil {
			s.Logger.Error("failed to export collection", "collection", name, "err", err)
			if first == nil {
				first = err
			}
			continue
		}
		s.Logger.Info("exported collection snapshot", "collection", name, "documents", n, "location", s.Blob.Location(key))
	}
	return first
}

func (s BackupService) exportCollection(ctx context.Context, name, key string, executedAt time.Time) (int, error) {
	file := backupFile{
		Collection: name,
		ExportedAt: executedAt.UTC().Format(time.RFC3339Nano),
		Documents:  []backupDocument{},
	}
	after := ""
	for {
		docs, err := s.Store.Query(ctx, docstore.Query{
			Collection: name,
			OrderBy:    docstore.DocumentID,
			StartAfter: after,
			Limit:      backupPageSize,
		})
		if err != nil {
			return 0, fmt.Errorf("read %s: %w", name, err)
		}
		for _, d := range docs {
			file.Documents = append(file.Documents, backupDocument{ID: d.ID, Data: d.Data})
		}
		if len(docs) < backupPageSize {
			break
		}
		after = docs[len(docs)-1].ID
	}
	file.DocumentCount = len(file.Documents)

	body, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", name, err)
	}
	if err := s.Blob.Put(ctx, key, body, "application/json"); err != nil {
		return 0, fmt.Errorf("upload %s: %w", key, err)
	}
	return file.DocumentCount, nil
}

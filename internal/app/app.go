// Package app assembles the service from configuration.
package app

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"

	"restopos-backend/internal/blob"
	"restopos-backend/internal/config"
	"restopos-backend/internal/db"
	"restopos-backend/internal/docstore"
	"restopos-backend/internal/events"
	"restopos-backend/internal/handler"
	"restopos-backend/internal/mail"
	"restopos-backend/internal/payment"
	"restopos-backend/internal/push"
	"restopos-backend/internal/repository"
	"restopos-backend/internal/scheduler"
	"restopos-backend/internal/server"
	"restopos-backend/internal/service"
	"restopos-backend/internal/stream"
)

// App holds the wired components. Close releases them.
type App struct {
	Config     config.Config
	Logger     *slog.Logger
	DB         *db.Postgres
	Store      docstore.Store
	Auth       service.AuthService
	Backfill   service.BackfillService
	Dispatcher *events.Dispatcher
	Scheduler  *scheduler.Scheduler
	Router     http.Handler

	closers []func() error
}

// New connects to every configured backend. Optional backends that are not
// configured are left out and the features that need them degrade.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	pg, err := db.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Logger: logger, DB: pg}
	a.closers = append(a.closers, func() error { pg.Close(); return nil })

	if cfg.RunMigrations {
		if err := pg.Migrate(ctx, logger); err != nil {
			a.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg, logger := a.Config, a.Logger
	loc := cfg.Location()
	store := docstore.Postgres{DB: a.DB, Guard: service.ValidateMasterData}
	a.Store = store

	fb, err := newFirebase(ctx, cfg)
	if err != nil {
		return err
	}

	a.Auth = service.AuthService{Config: cfg, Logger: logger}
	var pusher service.Pusher
	tokens := repository.DeviceTokenRepository{DB: a.DB}
	if fb != nil {
		authClient, err := fb.Auth(ctx)
		if err != nil {
			return fmt.Errorf("init firebase auth: %w", err)
		}
		a.Auth.FirebaseAuth = authClient
		msgClient, err := fb.Messaging(ctx)
		if err != nil {
			return fmt.Errorf("init firebase messaging: %w", err)
		}
		pusher = &push.FCM{Tokens: tokens, Sender: msgClient, Logger: logger}
	}

	backupBlob, err := newBackupBlob(ctx, cfg, fb)
	if err != nil {
		return err
	}

	var publisher service.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := stream.NewProducer(cfg.KafkaBrokers, "restopos-backend")
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		a.closers = append(a.closers, producer.Close)
		publisher = producer
	}

	analytics := service.AnalyticsStreamService{Store: store, Publisher: publisher, TopicPrefix: cfg.KafkaTopicPrefix, Logger: logger}
	privacy := service.PrivacyService{Store: store, Logger: logger}
	a.Backfill = service.BackfillService{Store: store, Queue: repository.BackfillRepository{DB: a.DB}, Logger: logger}

	a.Dispatcher = &events.Dispatcher{
		Source: events.PostgresSource{DB: a.DB},
		Routes: Routes(Triggers{
			Settlement:    service.SettlementService{Store: store, Logger: logger},
			Inventory:     service.InventoryService{Store: store, Logger: logger},
			Notifications: service.NotificationService{Store: store, Logger: logger, Push: pusher},
			Audit:         service.AuditService{Store: store, Logger: logger},
			Analytics:     analytics,
		}),
		Logger:      logger,
		Workers:     cfg.TriggerWorkers,
		MaxAttempts: cfg.TriggerMaxAttempts,
	}

	a.Scheduler = scheduler.New(loc, logger, scheduler.DefaultJobs(scheduler.Services{
		Aggregation: service.AggregationService{Store: store, Logger: logger, Location: loc},
		TTL:         service.TTLService{Store: store, Logger: logger, BatchSize: cfg.TTLBatchSize},
		Backup:      service.BackupService{Store: store, Blob: backupBlob, Logger: logger, Location: loc},
		Changes:     events.PostgresSource{DB: a.DB},
	}, logger)...)

	gateway := payment.NewClient(cfg.OmisePublicKey, cfg.OmiseSecretKey)
	if cfg.OmiseAPIBaseURL != "" {
		gateway.APIBaseURL = cfg.OmiseAPIBaseURL
	}
	if cfg.OmiseVaultBaseURL != "" {
		gateway.VaultBaseURL = cfg.OmiseVaultBaseURL
	}

	a.Router = server.NewRouter(logger, a.Auth, server.Handlers{
		Health:        handler.HealthHandler{DB: a.DB},
		Documents:     handler.DocumentHandler{Store: store, Logger: logger},
		Notifications: handler.NotificationHandler{Store: store},
		Tokens:        handler.FCMHandler{Repo: tokens},
		Payments:      handler.PaymentHandler{Charges: payment.ChargesAPI{Gateway: gateway}, Gateway: gateway, Logger: logger},
		AuditLogs:     handler.AuditLogHandler{Store: store},
		Analytics:     handler.AnalyticsHandler{Store: store, Location: loc},
		Callables: handler.CallableHandler{
			Privacy:  privacy,
			Toolkit:  service.AdminToolkit{Privacy: privacy, Analytics: analytics},
			Backfill: a.Backfill,
			Receipts: service.ReceiptService{Mailer: NewMailer(cfg), Validate: validator.New(), Logger: logger},
			Logger:   logger,
		},
		Jobs: handler.JobsHandler{Runner: a.Scheduler, Logger: logger},
	})
	return nil
}

// Run serves HTTP and runs the dispatcher, the backfill worker and, when
// enabled, the scheduler until ctx is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Start(ctx, a.Config, a.Router, a.Logger) })
	g.Go(func() error { return a.Dispatcher.Run(ctx, events.Wake(ctx, a.DB, a.Logger)) })
	g.Go(func() error { return a.Backfill.Run(ctx, 10*time.Second) })
	if a.Config.SchedulerEnabled {
		g.Go(func() error { return a.Scheduler.Start(ctx) })
	} else {
		a.Logger.Info("scheduler disabled; jobs run only on demand")
	}
	return g.Wait()
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("close component", "err", err)
		}
	}
	a.closers = nil
}

func newFirebase(ctx context.Context, cfg config.Config) (*firebase.App, error) {
	if cfg.FirebaseProjectID == "" {
		return nil, nil
	}
	fb, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.FirebaseProjectID}, FirebaseOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	return fb, nil
}

// FirebaseOptions accepts a credentials file path, inline JSON, or base64 JSON.
func FirebaseOptions(cfg config.Config) []option.ClientOption {
	if cfg.FirebaseCredFile == "" {
		return nil
	}

	cred := cfg.FirebaseCredFile
	// Allow inline JSON or base64-encoded JSON in env to avoid writing a file.
	if strings.HasPrefix(strings.TrimSpace(cred), "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(cred))}
	}
	if decoded, err := base64.StdEncoding.DecodeString(cred); err == nil && strings.HasPrefix(strings.TrimSpace(string(decoded)), "{") {
		return []option.ClientOption{option.WithCredentialsJSON(decoded)}
	}

	return []option.ClientOption{option.WithCredentialsFile(cred)}
}

func newBackupBlob(ctx context.Context, cfg config.Config, fb *firebase.App) (service.BlobWriter, error) {
	if cfg.BackupBucket == "" {
		return nil, nil
	}
	switch cfg.BackupProvider {
	case "gcs":
		if fb == nil {
			return nil, fmt.Errorf("BACKUP_PROVIDER=gcs requires FIREBASE_PROJECT_ID")
		}
		client, err := fb.Storage(ctx)
		if err != nil {
			return nil, fmt.Errorf("init firebase storage: %w", err)
		}
		return &blob.GCS{Client: client, Bucket: cfg.BackupBucket}, nil
	default:
		w, err := blob.NewS3(ctx, cfg.AWSRegion, cfg.BackupBucket)
		if err != nil {
			return nil, err
		}
		return w, nil
	}
}

// NewMailer prefers SendGrid and falls back to SMTP. It returns nil when
// neither is configured.
func NewMailer(cfg config.Config) mail.Sender {
	switch {
	case cfg.SendGridAPIKey != "":
		return mail.SendGrid{APIKey: cfg.SendGridAPIKey, FromEmail: cfg.SendGridFromEmail}
	case cfg.SMTPHost != "":
		return mail.SMTP{
			Host:      cfg.SMTPHost,
			Port:      cfg.SMTPPort,
			Username:  cfg.SMTPUsername,
			Password:  cfg.SMTPPassword,
			FromEmail: cfg.SendGridFromEmail,
		}
	default:
		return nil
	}
}

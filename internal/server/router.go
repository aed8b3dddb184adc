package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"restopos-backend/internal/domain"
	"restopos-backend/internal/handler"
)

// Handlers groups every route set the router mounts.
type Handlers struct {
	Health        handler.HealthHandler
	Auth          handler.AuthHandler
	Documents     handler.DocumentHandler
	Notifications handler.NotificationHandler
	Tokens        handler.FCMHandler
	Payments      handler.PaymentHandler
	AuditLogs     handler.AuditLogHandler
	Analytics     handler.AnalyticsHandler
	Callables     handler.CallableHandler
	Jobs          handler.JobsHandler
}

// NewRouter wires HTTP routes and middleware.
func NewRouter(logger *slog.Logger, auth Authenticator, h Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggerMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(httprate.LimitByIP(200, 1*time.Minute))

	h.Health.RegisterRoutes(r)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	h.Payments.RegisterWebhook(r)

	// Callables decide per operation whether a user is required.
	r.Group(func(cr chi.Router) {
		cr.Use(OptionalAuth(auth))
		h.Callables.RegisterRoutes(cr)
	})

	r.Group(func(jr chi.Router) {
		jr.Use(SchedulerAuth(auth))
		h.Jobs.RegisterRoutes(jr)
	})

	r.Route("/v1", func(pr chi.Router) {
		pr.Use(AuthMiddleware(auth))
		// staff-level (staff/manager/admin)
		pr.Group(func(sr chi.Router) {
			sr.Use(RequireRole(domain.RoleAdmin, domain.RoleManager, domain.RoleStaff))
			h.Auth.RegisterRoutes(sr)
			h.Documents.RegisterRoutes(sr)
			h.Notifications.RegisterRoutes(sr)
			h.Tokens.RegisterRoutes(sr)
			h.Payments.RegisterRoutes(sr)
		})
		// manager-level (manager/admin)
		pr.Group(func(mr chi.Router) {
			mr.Use(RequireRole(domain.RoleAdmin, domain.RoleManager))
			h.AuditLogs.RegisterRoutes(mr)
			h.Analytics.RegisterRoutes(mr)
		})
	})

	return r
}

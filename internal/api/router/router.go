package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/hmpv-lab-platform/internal/auth"
	"github.com/wolfman30/hmpv-lab-platform/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/hmpv-lab-platform/internal/http/middleware"
	"github.com/wolfman30/hmpv-lab-platform/internal/observability/metrics"
	"github.com/wolfman30/hmpv-lab-platform/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger  *logging.Logger
	Metrics *metrics.LabMetrics

	Lab      *handlers.LabHandler
	Auth     *handlers.AuthHandler
	Admin    *handlers.AdminHandler
	Verifier httpmiddleware.TokenVerifier

	HealthChecks   []handlers.HealthChecker
	MetricsHandler http.Handler

	CORSAllowedOrigins []string
	// AuthRateLimiter throttles login and registration per client IP (optional).
	AuthRateLimiter *httpmiddleware.RateLimiter
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	if cfg.Lab == nil || cfg.Auth == nil || cfg.Admin == nil || cfg.Verifier == nil {
		panic("router: lab, auth and admin handlers and a token verifier are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(logger, cfg.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", handlers.Health(cfg.HealthChecks...))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		public.Get("/tests", cfg.Lab.ListTests)
		public.Get("/track/{trackingID}", cfg.Lab.Track)
	})

	r.Route("/auth", func(a chi.Router) {
		a.Group(func(open chi.Router) {
			if cfg.AuthRateLimiter != nil {
				open.Use(cfg.AuthRateLimiter.Middleware)
			}
			open.Post("/login", cfg.Auth.Login)
			open.Post("/register", cfg.Auth.Register)
		})
		a.Group(func(session chi.Router) {
			session.Use(httpmiddleware.Authenticate(cfg.Verifier))
			session.Get("/session", cfg.Auth.Session)
			session.Post("/logout", cfg.Auth.Logout)
		})
	})

	// Signed-in patients and staff
	r.Group(func(user chi.Router) {
		user.Use(httpmiddleware.Authenticate(cfg.Verifier))
		user.Get("/appointments", cfg.Lab.ListMyAppointments)
		user.Post("/appointments", cfg.Lab.BookAppointment)
		user.Get("/reports", cfg.Lab.ListMyReports)
		user.Get("/reports/{reportID}", cfg.Lab.GetReport)
		user.Get("/reports/{reportID}/file", cfg.Lab.DownloadReportFile)
	})

	// Lab staff
	r.Route("/admin", func(admin chi.Router) {
		admin.Use(httpmiddleware.Authenticate(cfg.Verifier))
		admin.Use(httpmiddleware.RequireRole(auth.RoleAdmin))
		admin.Get("/dashboard", cfg.Admin.Dashboard)
		admin.Route("/appointments", func(appts chi.Router) {
			appts.Get("/", cfg.Admin.ListAppointments)
			appts.Get("/export", cfg.Admin.ExportAppointments)
			appts.Patch("/{appointmentID}/status", cfg.Admin.UpdateStatus)
			appts.Post("/{appointmentID}/report", cfg.Admin.AttachReport)
		})
	})

	return r
}

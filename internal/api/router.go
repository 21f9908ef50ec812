package api

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/adrianva1983/whatsApp-bot/internal/api/middleware"
	"github.com/adrianva1983/whatsApp-bot/internal/handlers"
)

// Options configures the router.
type Options struct {
	Logger  zerolog.Logger
	Handler *handlers.Handler
	// Events serves the SSE stream.
	Events http.Handler
	// Redis enables rate limiting when set.
	Redis *redis.Client
	// ControlTokenHash guards the mutating routes when set.
	ControlTokenHash string
	RateLimit        middleware.RateLimiterConfig
	// TrustedProxies may set the client address through forwarding headers.
	TrustedProxies []string
	StaticDir      string
}

// NewRouter creates and configures the HTTP router.
func NewRouter(opts Options) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(8 * 1024)) // 8KB max body
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(middleware.TrustedRealIP(opts.TrustedProxies, opts.Logger))
	r.Use(middleware.Logger(opts.Logger))
	r.Use(chimw.Recoverer)

	// Rate limiting
	limiter := middleware.NewRateLimiter(opts.Redis, opts.Logger, opts.RateLimit)
	r.Use(limiter.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := opts.Handler
	auth := middleware.NewAuthMiddleware(opts.ControlTokenHash, opts.Logger)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Pairing page
	r.Get("/", redirectToPairingPage)

	// Public routes
	r.Get("/health", h.Health)
	r.Get("/status", h.Status)
	r.Method(http.MethodGet, "/qr-events", opts.Events)
	r.Get("/messages/{number}", h.GetMessages)

	// Control routes (require the control token when configured)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)

		r.Delete("/messages/{number}", h.ClearMessages)
		r.Post("/send-test", h.SendTest)
		r.Post("/logout", h.Logout)
	})

	// Static files last so they never shadow the API
	r.Handle("/*", http.FileServer(http.Dir(staticDir(opts.StaticDir))))

	return r
}

// staticDir returns the path to static files directory.
func staticDir(configured string) string {
	// Check if running from app directory (production container)
	if configured == "" {
		if _, err := os.Stat("/app/web/static"); err == nil {
			return "/app/web/static"
		}
		return "web/static"
	}
	return configured
}

// redirectToPairingPage sends browsers to the QR page.
func redirectToPairingPage(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/qr.html", http.StatusFound)
}

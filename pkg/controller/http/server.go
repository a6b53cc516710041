package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/visagekit/blendstream/pkg/domain/interfaces"
	"github.com/visagekit/blendstream/pkg/infra/notify"
)

// config holds internal HTTP server configuration
type config struct {
	addr      string
	tmpDir    string
	rateLimit float64
	rateBurst int
	notifier  interfaces.Notifier
}

// Option is a functional option for Server configuration
type Option func(*config)

// WithAddr sets the server address
func WithAddr(addr string) Option {
	return func(c *config) {
		c.addr = addr
	}
}

// WithTmpDir sets the directory for uploaded audio temp files
func WithTmpDir(dir string) Option {
	return func(c *config) {
		c.tmpDir = dir
	}
}

// WithRateLimit sets the per-IP rate limit for audio processing requests
func WithRateLimit(rps float64, burst int) Option {
	return func(c *config) {
		c.rateLimit = rps
		c.rateBurst = burst
	}
}

// WithNotifier sets the failure notifier
func WithNotifier(n interfaces.Notifier) Option {
	return func(c *config) {
		c.notifier = n
	}
}

// Server represents the HTTP server
type Server struct {
	*http.Server

	metrics *Metrics
}

// NewServer creates a new HTTP server
func NewServer(
	ctx context.Context,
	streamUC interfaces.StreamUseCase,
	opts ...Option,
) (*Server, error) {
	// Default configuration
	cfg := &config{
		addr:      "localhost:8000",
		tmpDir:    "tmp",
		rateLimit: 5,
		rateBurst: 10,
		notifier:  notify.NewSlack(""),
	}

	// Apply options
	for _, opt := range opts {
		opt(cfg)
	}

	metrics := NewMetrics()

	router := chi.NewRouter()

	// Global middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(LoggingMiddleware(ctx, metrics))
	router.Use(Recoverer)

	router.Get("/", handleRoot)
	router.Get("/health", handleHealth(streamUC.PoolSize()))
	router.Method(http.MethodGet, "/metrics", metrics.Handler())

	// Audio processing endpoint, rate limited per client IP
	processHandler := NewProcessHandler(cfg.tmpDir, streamUC, cfg.notifier, metrics)
	router.Group(func(r chi.Router) {
		r.Use(RateLimitMiddleware(cfg.rateLimit, cfg.rateBurst, metrics))
		r.Post("/process-audio/", processHandler.Handle)
	})

	server := &Server{
		Server: &http.Server{
			Addr:              cfg.addr,
			Handler:           router,
			ReadHeaderTimeout: 15 * time.Second,
		},
		metrics: metrics,
	}

	return server, nil
}

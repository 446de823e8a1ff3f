package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"dontforget/internal/bookingflow"
	"dontforget/internal/config"
	"dontforget/internal/domain"
	"dontforget/internal/drafts"
	"dontforget/internal/notify"
	"dontforget/internal/payments"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Backend is the remote API as the gateway uses it.
type Backend interface {
	domain.BookingBackend
	domain.OwnerBackend
}

// Options are the collaborators of the HTTP server. Notifier, Center and
// Drafts may be nil, which disables their routes.
type Options struct {
	Backend  Backend
	Store    domain.Store
	Payments *payments.Registry
	Events   domain.EventPublisher
	Sessions *Sessions
	Notifier *notify.Watcher
	Center   *notify.Center
	Drafts   *drafts.Service
	// Ready reports whether dependencies are reachable.
	Ready  func(ctx context.Context) error
	Logger *zerolog.Logger
}

// HTTPServer is the booking gateway's JSON API.
type HTTPServer struct {
	cfg      config.HTTPConfig
	backend  Backend
	store    domain.Store
	payments *payments.Registry
	events   domain.EventPublisher
	sessions *Sessions
	notifier *notify.Watcher
	center   *notify.Center
	drafts   *drafts.Service
	ready    func(ctx context.Context) error
	logger   *zerolog.Logger
	limiter  *rateLimiter
	now      func() time.Time

	router chi.Router
	server *http.Server
}

func NewHTTPServer(cfg config.HTTPConfig, opts Options) *HTTPServer {
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	sessions := opts.Sessions
	if sessions == nil {
		sessions = NewSessions(30 * time.Minute)
	}

	srv := &HTTPServer{
		cfg:      cfg,
		backend:  opts.Backend,
		store:    opts.Store,
		payments: opts.Payments,
		events:   opts.Events,
		sessions: sessions,
		notifier: opts.Notifier,
		center:   opts.Center,
		drafts:   opts.Drafts,
		ready:    opts.Ready,
		logger:   logger,
		limiter:  newRateLimiter(cfg.RateLimit),
		now:      time.Now,
	}
	srv.router = srv.routes()

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

func (s *HTTPServer) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware(s.logger))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.limiter.Wrap)

		r.Route("/public/booking", func(r chi.Router) {
			r.Get("/", s.handlePublicLoad)
			s.flowActions(r, s.guestKey)
		})

		r.Route("/owner", func(r chi.Router) {
			r.Use(requireOwner)

			r.Route("/booking", func(r chi.Router) {
				r.Get("/", s.handleOwnerLoad)
				s.flowActions(r, s.ownerFlowKey)
			})

			r.Get("/packages", s.handleListPackages)
			r.Post("/packages", s.handleCreatePackage)
			r.Delete("/packages/{id}", s.handleDeletePackage)
			r.Get("/links", s.handleListLinks)
			r.Post("/links", s.handleCreateLink)
			r.Get("/dashboard", s.handleDashboard)
			r.Get("/bookings/export", s.handleExportBookings)

			if s.notifier != nil && s.center != nil {
				r.Get("/notifications", s.handleNotifications)
				r.Post("/notifications/seen", s.handleMarkSeen)
			}
			if s.drafts != nil {
				r.Get("/drafts/{name}", s.handleGetDraft)
				r.Put("/drafts/{name}", s.handleSaveDraft)
				r.Delete("/drafts/{name}", s.handleDiscardDraft)
			}
		})
	})
	return r
}

// Handler exposes the router, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.Warn().Err(err).Msg("readiness check failed")
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// pageURL is the absolute URL of the public booking page.
func (s *HTTPServer) pageURL() string {
	return s.cfg.PublicBaseURL + s.cfg.BookingPath
}

func (s *HTTPServer) publicConfig() bookingflow.Config {
	cfg := bookingflow.PublicConfig(s.pageURL())
	if s.cfg.RedirectDelayMS > 0 {
		cfg.RedirectDelay = time.Duration(s.cfg.RedirectDelayMS) * time.Millisecond
	}
	return cfg
}

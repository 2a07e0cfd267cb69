package http

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"buckify/internal/auth"
	applog "buckify/internal/log"
	"buckify/internal/middleware/ratelimit"
	"buckify/internal/middleware/security"
	"buckify/internal/middleware/trace"
	"buckify/internal/ports"
	"buckify/internal/services"
)

// Services bundles the application services the API exposes.
type Services struct {
	Categories   *services.CategoryService
	Transactions *services.TransactionService
	Summary      *services.SummaryService
	Imports      *services.ImportService
}

// Options configures the middleware around the API.
type Options struct {
	Auth               *auth.Issuer
	Pinger             ports.Pinger
	Logger             *applog.Logger
	RateLimitPerMinute int
}

type Server struct {
	http.Server

	categories   *services.CategoryService
	transactions *services.TransactionService
	summary      *services.SummaryService
	imports      *services.ImportService

	pinger      ports.Pinger
	rateLimiter *ratelimit.Limiter
	detector    *security.Detector
	tracer      *trace.Middleware
	now         func() time.Time

	shutdownOnce sync.Once
}

func NewServer(addr string, svc Services, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}

	s := &Server{
		categories:   svc.Categories,
		transactions: svc.Transactions,
		summary:      svc.Summary,
		imports:      svc.Imports,
		pinger:       opts.Pinger,
		rateLimiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		detector:     security.NewDetector(),
		now:          time.Now,
	}

	requests := applog.NewStructuredLogger(logger.WithComponent(applog.ComponentHTTP))
	s.tracer = trace.NewMiddleware(func(r *http.Request, status int, d time.Duration) {
		requests.LogHTTPEnd(r.Context(), r, status, d.Milliseconds(), s.detector.ExtractClientIP(r))
	})

	api := http.NewServeMux()
	api.HandleFunc("GET /api/categories", s.handleListCategories)
	api.HandleFunc("POST /api/categories", s.handleCreateCategory)
	api.HandleFunc("PUT /api/categories/{id}", s.handleUpdateCategory)
	api.HandleFunc("POST /api/categories/{id}/delete", s.handleDeleteCategory)

	api.HandleFunc("GET /api/transactions", s.handleListTransactions)
	api.HandleFunc("POST /api/transactions", s.handleCreateTransaction)
	api.HandleFunc("PUT /api/transactions/{id}", s.handleUpdateTransaction)
	api.HandleFunc("DELETE /api/transactions/{id}", s.handleDeleteTransaction)

	api.HandleFunc("GET /api/dashboard", s.handleDashboard)

	api.HandleFunc("POST /api/imports", s.handleUploadImport)
	api.HandleFunc("GET /api/imports/{id}", s.handleGetImport)
	api.HandleFunc("POST /api/imports/{id}/confirm", s.handleConfirmImport)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("/api/", auth.Middleware(opts.Auth)(api))

	limited := s.rateLimiter.Middleware(s.detector.ExtractClientIP, ratelimit.MutatingOnly, func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, please try again later").Write(w)
	})

	var handler http.Handler = mux
	handler = limited(handler)
	handler = s.detector.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = applog.Middleware(logger, trace.RequestID)(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Shutdown stops background routines and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			applog.FromContext(r.Context()).WarnContext(ctx, "Readiness check failed", applog.FieldError, err.Error())
			ErrorResponse(http.StatusServiceUnavailable, "store unavailable").Write(w)
			return
		}
	}
	NewJSONResponse().Body(map[string]string{"status": "ready"}).Write(w)
}

// ListenAndServe runs the server until it is shut down.
func (s *Server) ListenAndServe() error {
	if err := s.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

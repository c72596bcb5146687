package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"bulkmail/internal/dispatch"
	"bulkmail/internal/service"
)

const shutdownTimeout = 5 * time.Second

type Config struct {
	Port            int
	AllowedOrigins  []string
	// DispatchTimeout bounds a single POST /sendemails call. Zero means no bound.
	DispatchTimeout time.Duration
}

type bulkSender interface {
	Send(ctx context.Context, req service.Request) (dispatch.Result, error)
}

type Server struct {
	cfg     Config
	sender  bulkSender
	metrics http.Handler
	logger  *slog.Logger
}

func NewServer(cfg Config, sender bulkSender, metrics http.Handler) *Server {
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	return &Server{
		cfg:     cfg,
		sender:  sender,
		metrics: metrics,
		logger:  slog.With("component", "api"),
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Post("/sendemails", s.sendEmails)
	r.Get("/health-check", s.healthCheck)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	return r
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
// Requests in flight see ctx through their own context.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.cfg.Port, err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	baseContextFunc := func(_ net.Listener) context.Context {
		return ctx
	}

	srv := &http.Server{
		BaseContext:       baseContextFunc,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	s.logger.Info(fmt.Sprintf("listening on %s", ln.Addr()))

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	ctxShutDown, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctxShutDown); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.logger.Info(
			fmt.Sprintf("%s %s %d", r.Method, r.URL.Path, ww.Status()),
			"request_id", middleware.GetReqID(r.Context()),
			"duration", time.Since(start),
		)
	})
}

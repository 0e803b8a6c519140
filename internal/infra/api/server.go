package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"tg-bot-italian/internal/application"
	"tg-bot-italian/internal/config"
	"tg-bot-italian/internal/infra/logging"
	"tg-bot-italian/internal/infra/metrics"
	"tg-bot-italian/internal/infra/worker"
)

const secretHeader = "X-Telegram-Bot-Api-Secret-Token"

// Processor is the inbound pipeline.
type Processor interface {
	Process(ctx context.Context, raw []byte) (application.Outcome, error)
}

// HealthFunc pings the backing store.
type HealthFunc func(ctx context.Context) error

// Server is the webhook endpoint plus health and metrics.
type Server struct {
	cfg    config.WebhookConfig
	proc   Processor
	health HealthFunc
	pool   *worker.Pool
	log    *zerolog.Logger
	srv    *http.Server
	mounts map[string]http.Handler
}

func NewServer(cfg config.WebhookConfig, proc Processor, health HealthFunc, log *zerolog.Logger) *Server {
	if log == nil {
		log = logging.Nop()
	}
	if cfg.Path == "" {
		cfg.Path = "/webhook"
	}
	if cfg.RetryAfter <= 0 {
		cfg.RetryAfter = 2 * time.Second
	}
	s := &Server{cfg: cfg, proc: proc, health: health, log: logging.Component(log, "http")}
	if cfg.AsyncWorkers > 0 {
		s.pool = worker.NewPool(cfg.AsyncWorkers, cfg.AsyncQueue, log)
	}
	return s
}

// Mount adds an extra sub-router, e.g. the admin API. Call before serving.
func (s *Server) Mount(pattern string, h http.Handler) {
	if s.mounts == nil {
		s.mounts = make(map[string]http.Handler)
	}
	s.mounts[pattern] = h
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log))
	r.Post(s.cfg.Path, s.handleWebhook)
	r.With(Timeout(2*time.Second)).Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	for pattern, h := range s.mounts {
		r.Mount(pattern, h)
	}
	return r
}

// ListenAndServe serves until ctx is canceled, then shuts down within
// shutdownTimeout. Accepted async updates are drained before it returns.
func (s *Server) ListenAndServe(ctx context.Context, shutdownTimeout time.Duration) error {
	if s.pool != nil {
		// detached so queued updates still run after ctx ends
		s.pool.Start(context.WithoutCancel(ctx))
		defer s.pool.Stop()
	}
	s.srv = &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.Listen).Str("path", s.cfg.Path).Bool("async", s.pool != nil).Msg("http listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(sctx); err != nil {
		return err
	}
	return <-errc
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		s.respond(w, http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody()))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			// would never succeed on redelivery either
			metrics.IncDecoded("oversized")
			logging.With(r.Context(), s.log).Warn().Int64("limit", tooLarge.Limit).Msg("update body too large, dropped")
			s.respond(w, http.StatusOK)
			return
		}
		s.retryLater(w)
		return
	}

	if s.pool != nil {
		traceID := logging.TraceID(r.Context())
		err := s.pool.Submit(func(ctx context.Context) error {
			_, err := s.proc.Process(logging.WithTraceID(ctx, traceID), body)
			return err
		})
		if err != nil {
			logging.With(r.Context(), s.log).Warn().Err(err).Msg("async pool rejected update")
			s.retryLater(w)
			return
		}
		s.respond(w, http.StatusOK)
		return
	}

	if _, err := s.proc.Process(r.Context(), body); err != nil {
		s.retryLater(w)
		return
	}
	s.respond(w, http.StatusOK)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			logging.With(r.Context(), s.log).Warn().Err(err).Msg("health check failed")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("UNAVAILABLE"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) authorized(r *http.Request) bool {
	if s.cfg.Secret == "" {
		return true
	}
	got := r.Header.Get(secretHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.Secret)) == 1
}

func (s *Server) retryLater(w http.ResponseWriter) {
	secs := int(math.Ceil(s.cfg.RetryAfter.Seconds()))
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	s.respond(w, http.StatusServiceUnavailable)
}

func (s *Server) respond(w http.ResponseWriter, code int) {
	metrics.IncWebhookRequest(strconv.Itoa(code))
	w.WriteHeader(code)
}

func (s *Server) maxBody() int64 {
	if s.cfg.MaxBodyBytes > 0 {
		return s.cfg.MaxBodyBytes
	}
	return 1 << 20
}

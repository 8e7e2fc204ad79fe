package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/snarg/transcript-segmenter/internal/config"
	"github.com/snarg/transcript-segmenter/internal/metrics"
)

// ServerOptions wires the HTTP server to the rest of the process. Runs,
// Live, MQTT and Outputs are optional; leave them nil (not a typed nil)
// when the backing component is disabled.
type ServerOptions struct {
	Config    *config.Config
	Queue     JobQueue
	Runs      RunStore
	Live      LiveDataSource
	MQTT      ConnectionChecker
	Outputs   OutputReader
	StoreType string
	Model     *ModelInfo
	Version   string
	StartTime time.Time
	Log       zerolog.Logger
}

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

func NewServer(opts ServerOptions) *Server {
	cfg := opts.Config
	log := opts.Log

	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(log))
	r.Use(metrics.InstrumentHandler)
	r.Use(CORSWithOrigins(cfg.CORSOrigins))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Health endpoint, no auth
		r.Get("/health", NewHealthHandler(opts).ServeHTTP)

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(BearerAuth(cfg.AuthToken))
			if cfg.RateLimitRPS > 0 {
				r.Use(RateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst))
			}
			r.Use(MaxBodySize(cfg.MaxUploadMB << 20))

			NewSegmentHandler(opts.Queue, cfg.MaxUploadMB<<20, log).Routes(r)
			NewRunsHandler(opts.Runs, opts.Outputs).Routes(r)
			NewEventsHandler(opts.Live).Routes(r)
		})
	})

	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: log,
	}
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.http.Handler }

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}

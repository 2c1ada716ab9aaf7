package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/poisonednumber/scanner-map/internal/config"
	"github.com/poisonednumber/scanner-map/internal/database"
	"github.com/poisonednumber/scanner-map/internal/livefeed"
	"github.com/poisonednumber/scanner-map/internal/metrics"
	"github.com/poisonednumber/scanner-map/internal/storage"
	"github.com/poisonednumber/scanner-map/internal/summarize"
)

// Server wraps the HTTP listener and routing for the whole external
// interface of spec.md §6.
type Server struct {
	http *http.Server
	log  zerolog.Logger
}

// ServerOptions wires every dependency the route tree needs. Uploader,
// LiveFeed and Summary may be left nil, which leaves their routes
// unregistered (e.g. no Uploader during a DB-only maintenance boot).
// Config and DB are always dereferenced and must be set.
type ServerOptions struct {
	Config    *config.Config
	DB        *database.DB
	Store     storage.AudioStore
	Uploader  CallUploader
	LiveFeed  *livefeed.Bus
	Summary   *summarize.LatestStore
	Stats     metrics.IngestStats
	Checks    map[string]Checker
	Version   string
	StartTime time.Time
	Log       zerolog.Logger
}

func NewServer(opts ServerOptions) *Server {
	r := chi.NewRouter()

	var corsOrigins []string
	if opts.Config.CORSOrigins != "" {
		for _, o := range strings.Split(opts.Config.CORSOrigins, ",") {
			if s := strings.TrimSpace(o); s != "" {
				corsOrigins = append(corsOrigins, s)
			}
		}
	}

	// No MaxBodySize at the global level — the upload route needs a larger
	// limit than the read API.
	r.Use(RequestID)
	r.Use(CORSWithOrigins(corsOrigins))
	r.Use(RateLimiter(opts.Config.RateLimitRPS, opts.Config.RateLimitBurst))
	r.Use(Recoverer)
	r.Use(Logger(opts.Log))

	health := NewHealthHandler(opts.DB, opts.Version, opts.StartTime, opts.Checks)
	r.Get("/health", health.ServeHTTP)

	if opts.Config.MetricsEnabled {
		collector := metrics.NewCollector(opts.DB.Pool, opts.Stats)
		prometheus.MustRegister(collector)
		r.Get("/metrics", promhttp.Handler().ServeHTTP)
	}

	// Ingestion endpoint: auth lives inside the Uploader (bcrypt key check
	// against the stored key table), not the generic bearer middleware.
	if opts.Uploader != nil {
		uploadHandler := NewUploadHandler(opts.Uploader, opts.Log)
		r.Group(func(r chi.Router) {
			r.Use(MaxBodySize(64 << 20))
			uploadHandler.Routes(r)
		})
	}

	// Authenticated read/admin API.
	r.Group(func(r chi.Router) {
		r.Use(MaxBodySize(10 << 20))
		if opts.Config.MetricsEnabled {
			r.Use(metrics.InstrumentHandler)
		}
		r.Use(BearerAuth(opts.Config.AuthToken, opts.Config.WriteToken))
		r.Use(WriteAuth(opts.Config.WriteToken))
		r.Use(ResponseTimeout(opts.Config.WriteTimeout))

		NewCallsHandler(opts.DB, opts.Store).Routes(r)
		NewTalkgroupsHandler(opts.DB).Routes(r)
		NewMarkersHandler(opts.DB).Routes(r)
		NewLogsHandler(opts.DB).Routes(r)
		if opts.LiveFeed != nil {
			NewLiveFeedHandler(opts.LiveFeed).Routes(r)
		}
		if opts.Summary != nil {
			NewSummaryHandler(opts.Summary).Routes(r)
		}
	})

	srv := &http.Server{
		Addr:        opts.Config.HTTPAddr,
		Handler:     r,
		ReadTimeout: opts.Config.ReadTimeout,
		IdleTimeout: opts.Config.IdleTimeout,
		// WriteTimeout 0: the SSE live-feed stream (spec.md §4.5) is long-lived.
		WriteTimeout: 0,
	}

	return &Server{http: srv, log: opts.Log}
}

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

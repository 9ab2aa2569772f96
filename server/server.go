package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	v1 "github.com/prasetia/go-upload-cache/api/v1"
	"github.com/prasetia/go-upload-cache/cache"
	"github.com/prasetia/go-upload-cache/store"
	"github.com/prasetia/go-upload-cache/store/memory"
	"github.com/prasetia/go-upload-cache/store/sqlite"
)

const serviceName = "go-upload-cache"

type Opts struct {
	Config Config
}

func New(opts Opts) Server {
	s := Server{
		opts: opts,
	}
	return s
}

type Server struct {
	opts Opts
}

// Run starts the HTTP server and blocks until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	log.Info().Msg("starting server")

	cfg := s.opts.Config

	prometheusExporter := NewPrometheusExporter(ctx)
	meterShutdownFn := InitMeterProvider(ctx, serviceName, prometheusExporter)

	var traceShutdownFn ShutdownFn
	if cfg.OTLPEndpoint != "" {
		traceExporter := NewOTLPTraceExporter(ctx, cfg.OTLPEndpoint)
		traceShutdownFn = InitTraceProvider(ctx, serviceName, traceExporter)
	}

	var fileStore store.Store
	if cfg.DBPath != "" {
		db, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open file store: %w", err)
		}
		defer db.Close()
		fileStore = db
	} else {
		log.Warn().Msg("DB_PATH is not set, files are kept in memory")
		fileStore = memory.NewStore()
	}

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: s.newHTTPHandler(fileStore),
		// ReadTimeout is the maximum duration for reading the entire request, including the body.
		// This prevents slowloris attacks.
		ReadTimeout: 30 * time.Second,
		// WriteTimeout is the maximum duration before timing out writes of the response.
		// This is useful for handling slow client which read the response slowly.
		WriteTimeout: 30 * time.Second,
		// ReadHeaderTimeout is necessary here to prevent slowloris attacks.
		// https://www.cloudflare.com/learning/ddos/ddos-attack-tools/slowloris/
		ReadHeaderTimeout: 5 * time.Second,
		// IdleTimeout is the maximum amount of time to wait for the next request when keep-alives are enabled.
		IdleTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Msgf("Starting http server on %s", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msgf("listen:%+s\n", err)
		}
	}()

	<-ctx.Done()

	gracefulShutdownPeriod := 30 * time.Second
	log.Warn().Msg("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulShutdownPeriod)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to shutdown http server gracefully")
	}
	log.Warn().Msg("http server gracefully stopped")

	if traceShutdownFn != nil {
		if err := traceShutdownFn(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to shutdown trace provider")
		}
	}
	if err := meterShutdownFn(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to shutdown meter provider")
	}
	return nil
}

func (s *Server) newHTTPHandler(fileStore store.Store) http.Handler {
	cfg := s.opts.Config

	var cacheOpts []cache.Option
	if cfg.CacheSingleFlight {
		cacheOpts = append(cacheOpts, cache.WithSingleFlight())
	}
	lookup := cache.NewLookup(fileStore, cacheOpts...)

	controller := v1.NewController(fileStore, lookup,
		v1.WithMaxUploadBytes(cfg.MaxUploadBytes))

	m := mux.NewRouter()
	m.Use(
		otelhttp.NewMiddleware(serviceName),
		LogInterceptor)
	m.Handle("/metrics", promhttp.Handler())

	apiRouter := m.PathPrefix("/api").Subrouter()
	apiV1Router := apiRouter.PathPrefix("/v1").Subrouter()
	apiV1Router.Handle("/files", otelhttp.WithRouteTag("/api/v1/files", http.HandlerFunc(controller.Upload()))).Methods(http.MethodPost)
	apiV1Router.Handle("/files/{file_id}", otelhttp.WithRouteTag("/api/v1/files/{file_id}", http.HandlerFunc(controller.Head()))).Methods(http.MethodHead)
	apiV1Router.Handle("/files/{file_id}", otelhttp.WithRouteTag("/api/v1/files/{file_id}", http.HandlerFunc(controller.Get()))).Methods(http.MethodGet)

	return otelhttp.NewHandler(m, "/")
}

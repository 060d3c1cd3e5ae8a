package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	analysisprovider "github.com/keenbingwood-bot/redflag2601/internal/adapters/analysis"
	"github.com/keenbingwood-bot/redflag2601/internal/adapters/fetcher"
	httpHandlers "github.com/keenbingwood-bot/redflag2601/internal/adapters/http/handlers"
	httpMiddleware "github.com/keenbingwood-bot/redflag2601/internal/adapters/http/middleware"
	"github.com/keenbingwood-bot/redflag2601/internal/adapters/storage/database"
	memorystorage "github.com/keenbingwood-bot/redflag2601/internal/adapters/storage/memory"
	redisstorage "github.com/keenbingwood-bot/redflag2601/internal/adapters/storage/redis"
	"github.com/keenbingwood-bot/redflag2601/internal/config"
	"github.com/keenbingwood-bot/redflag2601/internal/core/ports"
	"github.com/keenbingwood-bot/redflag2601/internal/core/services"
	"github.com/keenbingwood-bot/redflag2601/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := logging.Setup(cfg.Log, nil); err != nil {
		log.Fatalf("failed to configure logging: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storage, recorder, closeFn, err := initStorage(ctx, cfg.Storage, cfg.RateLimiter.Analytics)
	if err != nil {
		log.Fatalf("failed to init storage: %v", err)
	}
	defer closeFn()

	admission, err := newAdmission(storage, recorder, cfg.RateLimiter)
	if err != nil {
		log.Fatalf("failed to create limiter: %v", err)
	}

	repository := initRepository(cfg.Database)

	analyzer, err := services.NewAnalysisService(
		analysisprovider.NewClient(analysisprovider.Config{
			BaseURL: cfg.Analysis.BaseURL,
			APIKey:  cfg.Analysis.APIKey,
			Model:   cfg.Analysis.Model,
			Timeout: cfg.Analysis.Timeout,
			RPS:     cfg.Analysis.RPS,
		}, nil),
		fetcher.NewClient(fetcher.Config{
			ReaderURL: cfg.Fetcher.ReaderURL,
			APIKey:    cfg.Fetcher.APIKey,
			Timeout:   cfg.Fetcher.Timeout,
		}, nil),
		repository,
	)
	if err != nil {
		log.Fatalf("failed to create analysis service: %v", err)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           newRouter(admission, analyzer, cfg.RateLimiter.APIPrefix),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		err := srv.ListenAndServe()
		if err != nil {
			errCh <- err
		}
	}()

	log.WithFields(log.Fields{
		"addr":       srv.Addr,
		"storage":    cfg.Storage.Type,
		"general":    fmt.Sprintf("%d/%s", cfg.RateLimiter.General.Capacity, cfg.RateLimiter.General.Window),
		"privileged": fmt.Sprintf("%d/%s", cfg.RateLimiter.Privileged.Capacity, cfg.RateLimiter.Privileged.Window),
		"fail_open":  cfg.RateLimiter.FailOpen,
	}).Info("server listening")

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}

func newRouter(admission ports.Admission, analyzer httpHandlers.Analyzer, apiPrefix string) http.Handler {
	analyze := httpHandlers.NewAnalyzeHandler(analyzer)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(httpMiddleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(httpMiddleware.NewRateLimiterMiddleware(admission, apiPrefix))

	r.Get("/healthz", httpHandlers.Healthz)
	r.Route("/api", func(r chi.Router) {
		r.Get("/test", httpHandlers.TestHandler)
		r.Post("/test", httpHandlers.TestHandler)
		r.Post("/analyze", analyze.Analyze)
		r.Get("/scans/{id}", analyze.GetScan)
	})
	return r
}

func newAdmission(storage ports.WindowStore, recorder ports.DecisionRecorder, cfg config.RateLimiterConfig) (*services.AdmissionService, error) {
	general, err := services.NewRateLimiterService(storage, cfg.General, services.WithStoreTimeout(cfg.StoreTimeout))
	if err != nil {
		return nil, err
	}
	privileged, err := services.NewRateLimiterService(storage, cfg.Privileged, services.WithStoreTimeout(cfg.StoreTimeout))
	if err != nil {
		return nil, err
	}
	return services.NewAdmissionService(services.AdmissionConfig{
		General:    general,
		Privileged: privileged,
		FailOpen:   cfg.FailOpen,
		Recorder:   recorder,
	})
}

func initStorage(ctx context.Context, cfg config.StorageConfig, analytics bool) (ports.WindowStore, ports.DecisionRecorder, func(), error) {
	switch cfg.Type {
	case "redis":
		storage, err := redisstorage.New(redisstorage.Config{
			URL:         cfg.Redis.URL,
			Token:       cfg.Redis.Token,
			Addr:        cfg.Redis.Addr(),
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			ServerClock: cfg.Redis.ServerClock,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		var recorder ports.DecisionRecorder
		if analytics {
			recorder = redisstorage.NewStatsStore(storage.Client())
		}
		return storage, recorder, func() {
			if err := storage.Close(); err != nil {
				log.WithError(err).Error("failed to close redis storage")
			}
		}, nil
	case "memory":
		storage := memorystorage.New()
		storage.StartJanitor(ctx)
		var recorder ports.DecisionRecorder
		if analytics {
			recorder = memorystorage.NewStatsStore()
		}
		log.Warn("using in-memory rate limit storage; limits are not shared across instances")
		return storage, recorder, func() {}, nil
	default:
		return nil, nil, nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// initRepository devolve nil quando não há DSN ou o banco está inacessível: os scans seguem sem
// persistência, com ids mock.
func initRepository(cfg config.DatabaseConfig) ports.ScanRepository {
	if cfg.DSN == "" {
		log.Info("DATABASE_DSN not set, analyses will not be persisted")
		return nil
	}
	conn, err := database.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		log.WithError(err).Warn("database unavailable, analyses will not be persisted")
		return nil
	}
	if err := database.Migrate(conn); err != nil {
		log.WithError(err).Warn("database migration failed, analyses will not be persisted")
		return nil
	}
	return database.NewScanRepository(conn)
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/miradorstack/mirador-trainer/internal/algorithms"
	"github.com/miradorstack/mirador-trainer/internal/api"
	"github.com/miradorstack/mirador-trainer/internal/cache"
	"github.com/miradorstack/mirador-trainer/internal/config"
	"github.com/miradorstack/mirador-trainer/internal/dataset"
	"github.com/miradorstack/mirador-trainer/internal/metrics"
	"github.com/miradorstack/mirador-trainer/internal/repo"
	"github.com/miradorstack/mirador-trainer/internal/services"
	"github.com/miradorstack/mirador-trainer/internal/utils"
)

func main() {
	var (
		configPath string
		once       bool
	)
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.BoolVar(&once, "once", false, "Run a single training with the configured settings, print the report and exit")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting mirador-trainer", slog.String("address", cfg.Server.Address), slog.String("source", cfg.Data.Source))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cacheProvider, err := cache.FromConfig(cfg.Cache, logger)
	if err != nil {
		logger.Warn("run cache unavailable", slog.Any("error", err))
		cacheProvider = cache.NoopProvider{}
	}
	defer cacheProvider.Close()

	candidates, err := algorithms.LoadCandidates(cfg.Training.CandidatesPath)
	if err != nil {
		logger.Error("failed to load candidates", slog.String("path", cfg.Training.CandidatesPath), slog.Any("error", err))
		os.Exit(1)
	}

	var (
		source repo.ExperimentSource
		store  services.TrainedStore
	)
	switch cfg.Data.Source {
	case config.SourceSQL:
		sqlStore, err := repo.OpenSQLStore(ctx, cfg.Data.SQL.Driver, cfg.Data.SQL.DSN, logger)
		if err != nil {
			logger.Error("failed to open experiment database", slog.Any("error", err))
			os.Exit(1)
		}
		defer sqlStore.Close()
		if err := sqlStore.Migrate(ctx); err != nil {
			logger.Error("failed to migrate experiment database", slog.Any("error", err))
			os.Exit(1)
		}
		source = sqlStore
		if cfg.Training.PersistResults {
			store = sqlStore
		}
	case config.SourceHTTP:
		source = repo.NewHTTPSource(
			cfg.Data.HTTP.BaseURL,
			cfg.Data.HTTP.RunsPath,
			cfg.Data.HTTP.RunPath,
			cfg.Data.HTTP.Timeout,
			cacheProvider,
			cfg.Cache.RunTTL,
			logger,
		)
	}

	loader := dataset.NewLoader(source, dataset.ComplianceWindow(cfg.Training), logger)
	trainerService := services.NewTrainerService(logger, loader, candidates, services.SettingsFromConfig(cfg), store)

	if once {
		if err := runOnce(ctx, trainerService); err != nil {
			logger.Error("training failed", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	server, err := api.NewServer(cfg.Server, api.NewTrainerHandler(logger, trainerService), logger)
	if err != nil {
		logger.Error("failed to create gRPC server", slog.Any("error", err))
		os.Exit(1)
	}

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("gRPC server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.GracefulTimeout())
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	logger.Info("mirador-trainer stopped", slog.Duration("p95_training", trainerService.LatencyP95()))
}

func runOnce(ctx context.Context, svc *services.TrainerService) error {
	resp, err := svc.Train(ctx, services.TrainRequest{})
	if err != nil {
		return err
	}
	doc, err := api.ToStructTrainResponse(resp)
	if err != nil {
		return err
	}
	out, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	_, err = fmt.Fprintln(os.Stdout, string(out))
	return err
}

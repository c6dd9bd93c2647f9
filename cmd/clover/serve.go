package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/internal/archive"
	"github.com/Ramsey-B/clover/pkg/batch"
	"github.com/Ramsey-B/clover/pkg/dedupe"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/ingest"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/routes"
	"github.com/Ramsey-B/clover/pkg/routes/health"
	"github.com/Ramsey-B/clover/pkg/startup"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the Kafka ingestion pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, sync, err := bootstrap()
		if err != nil {
			return err
		}
		defer sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return serve(ctx, cfg, logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cfg *config.Config, logger ectologger.Logger) error {
	shutdownTracing := tracing.Setup(cfg.AppName, cfg.TraceSampleRatio, logger)
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.WithError(err).Warn("Failed to shut down tracing")
		}
	}()

	boot := startup.NewStartup(logger, cfg.StartupMaxAttempts)

	var opts dedupe.Options
	if cfg.KafkaProducerEnabled {
		producer := kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaOutputTopic,
			BatchSize:    cfg.KafkaBatchSize,
			BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
			RequiredAcks: cfg.KafkaRequiredAcks,
			Compression:  cfg.KafkaCompression,
		}, logger)
		opts.Publisher = events.NewEmitter(producer, events.BreakerConfig{
			MaxFailures:      cfg.PublishMaxFailures,
			Timeout:          cfg.PublishBreakerTimeout,
			HalfOpenRequests: cfg.PublishHalfOpenRequests,
		}, logger)
		boot.AddDependency(startup.Func{
			Name:   "publisher",
			OnStop: func(_ context.Context) error { return producer.Close() },
		})
	}

	svc, err := newService(cfg, logger, opts)
	if err != nil {
		return err
	}
	checker := health.NewChecker(svc, cfg.Version)

	boot.AddDependency(archiveDependency(cfg, logger, svc, checker))

	if cfg.KafkaConsumerEnabled {
		dependency, err := ingestDependency(ctx, cfg, logger, svc)
		if err != nil {
			return err
		}
		boot.AddDependency(dependency)
	}

	if err := boot.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeoutSeconds)*time.Second)
		defer cancel()
		if err := boot.Stop(stopCtx); err != nil {
			logger.WithError(err).Error("Failed to stop dependencies")
		}
	}()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           routes.NewRouter(logger, cfg.AppName, svc, checker),
		ReadTimeout:       time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.WithField("port", cfg.Port).Info("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()
	checker.SetReady(true)

	select {
	case err := <-serverErr:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	checker.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// archiveDependency connects the configured archive, replays it into the ledger and then
// archives every new merge to it
func archiveDependency(cfg *config.Config, logger ectologger.Logger, svc *dedupe.Service, checker *health.Checker) startup.Func {
	var store archive.Store

	return startup.Func{
		Name: "archive",
		OnStart: func(ctx context.Context) error {
			opened, err := openArchive(ctx, cfg, logger)
			if err != nil || opened == nil {
				return err
			}

			entries, err := opened.Replay(ctx)
			if err != nil {
				_ = opened.Close()
				return fmt.Errorf("failed to replay archive: %w", err)
			}
			result := svc.Ledger().Restore(ctx, entries)
			logger.WithContext(ctx).WithFields(map[string]any{
				"restored": result.Imported,
				"rejected": result.Rejected,
			}).Info("Restored merge history from archive")

			svc.Ledger().SetArchiver(opened)
			if pinger, ok := opened.(health.Pinger); ok {
				checker.AddDependency("archive", pinger)
			}
			store = opened
			return nil
		},
		OnStop: func(_ context.Context) error {
			if store == nil {
				return nil
			}
			svc.Ledger().SetArchiver(nil)
			return store.Close()
		},
	}
}

func openArchive(ctx context.Context, cfg *config.Config, logger ectologger.Logger) (archive.Store, error) {
	switch {
	case cfg.RedisAddr != "":
		store, err := archive.NewRedisStore(ctx, archive.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Stream:   cfg.RedisStream,
		}, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case cfg.ArchiveFile != "":
		store, err := archive.NewFileStore(cfg.ArchiveFile, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		logger.Warn("No merge history archive configured; history is kept in memory only")
		return nil, nil
	}
}

// ingestDependency consumes events from Kafka into a buffer flushed to batch processing.
// It starts after the archive so replayed history is in place first.
func ingestDependency(ctx context.Context, cfg *config.Config, logger ectologger.Logger, svc *dedupe.Service) (startup.Func, error) {
	mode, err := batch.ParseMode(cfg.IngestMode)
	if err != nil {
		return startup.Func{}, err
	}

	buffer := ingest.NewBuffer(logger, svc, ingest.BufferConfig{
		MaxEvents:     cfg.IngestMaxEvents,
		FlushInterval: cfg.IngestFlushInterval,
		Mode:          mode,
	})
	consumer := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:           cfg.KafkaBrokers,
		Topic:             cfg.KafkaInputTopic,
		ConsumerGroup:     cfg.KafkaConsumerGroup,
		MessagesPerSecond: cfg.KafkaMessagesPerSecond,
		Burst:             cfg.KafkaBurst,
	}, logger, buffer.Handle)

	return startup.Func{
		Name:     "ingest",
		Requires: []string{"archive"},
		OnStart: func(_ context.Context) error {
			buffer.Start(ctx)
			return consumer.Start(ctx)
		},
		OnStop: func(stopCtx context.Context) error {
			return errors.Join(consumer.Stop(), buffer.Stop(stopCtx))
		},
	}, nil
}

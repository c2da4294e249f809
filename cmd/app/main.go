package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	cfgpkg "github.com/local/creddispatcher/internal/config"
	"github.com/local/creddispatcher/internal/download"
	"github.com/local/creddispatcher/internal/extractor"
	"github.com/local/creddispatcher/internal/filetype"
	logpkg "github.com/local/creddispatcher/internal/logger"
	"github.com/local/creddispatcher/internal/metrics"
	"github.com/local/creddispatcher/internal/orchestrator"
	"github.com/local/creddispatcher/internal/queue"
	"github.com/local/creddispatcher/internal/resolve"
	"github.com/local/creddispatcher/internal/statuscheck"
	"github.com/local/creddispatcher/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg := cfgpkg.FromEnv()

	_ = logpkg.Init(logpkg.Options{
		Level:        cfg.Logging.Level,
		Pretty:       cfg.Logging.Pretty,
		File:         cfg.Logging.File,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
		AxiomAPIKey:  cfg.Axiom.APIKey,
		AxiomOrgID:   cfg.Axiom.OrgID,
		AxiomDataset: cfg.Axiom.Dataset,
		AxiomFlush:   cfg.Axiom.FlushInterval,
	})
	defer logpkg.Close()

	metrics.Init()

	// Optional Redis status mirror
	var status orchestrator.StatusStore
	var pinger statuscheck.RedisPinger
	if cfg.Redis.Mirror {
		rs, err := store.NewRedisStatus(cfg.Redis.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init redis status store")
		}
		defer rs.Close()
		status = rs
		pinger = rs
	}

	q := queue.New(queue.Config{MaxConcurrent: cfg.Queue.MaxConcurrent})

	engine := download.NewEngine(download.Config{
		ChunkSize:        cfg.Download.ChunkSizeBytes,
		ProgressInterval: cfg.Download.ProgressInterval,
		Timeout:          cfg.Download.Timeout,
		MaxSize:          cfg.Download.MaxFileSizeBytes,
	})
	defer engine.Close()

	resolver := resolve.New(resolve.Options{
		Bucket:     cfg.S3.Bucket,
		PresignTTL: cfg.S3.PresignTTL,
	})

	ext := extractor.New(extractor.Config{
		AllowedDomains: cfg.Extract.AllowedEmailDomains,
		MinPasswordLen: cfg.Extract.PasswordMinLen,
		MaxPasswordLen: cfg.Extract.PasswordMaxLen,
		PasswordPunct:  cfg.Extract.PasswordPunct,
	})

	orch := orchestrator.New(orchestrator.Dependencies{
		Queue:     q,
		Resolver:  resolver,
		Fetcher:   engine,
		Reporter:  orchestrator.NewWebhookReporter(),
		Detector:  filetype.New(),
		Extractor: ext,
		Status:    status,
	}, orchestrator.Config{
		JobTimeout:     cfg.Job.Timeout,
		ResultDir:      cfg.Job.ResultDir,
		MaxFileSize:    cfg.Download.MaxFileSizeBytes,
		ExtractWorkers: cfg.Extract.Workers,
		StaleAge:       cfg.Job.StaleAge,
	})
	orch.Start(context.Background())
	defer orch.Stop()

	mux := http.NewServeMux()
	orch.RegisterRoutes(mux)
	mux.Handle("/metrics", metrics.Handler())

	checker := statuscheck.New(statuscheck.Options{
		Redis:     pinger,
		S3Bucket:  cfg.S3.Bucket,
		ResultDir: cfg.Job.ResultDir,
	})
	mux.HandleFunc("/health/deps", checker.Handler())

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{Addr: ":" + port, Handler: mux}

	go func() {
		log.Info().Msgf("HTTP server listening on :%s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	fmt.Println("shutdown complete")
}

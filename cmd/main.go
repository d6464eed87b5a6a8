package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/as950118/customer-service-coaching/internal/archive"
	appconfig "github.com/as950118/customer-service-coaching/internal/config"
	"github.com/as950118/customer-service-coaching/internal/database"
	"github.com/as950118/customer-service-coaching/internal/job"
	"github.com/as950118/customer-service-coaching/internal/llm"
	"github.com/as950118/customer-service-coaching/internal/memq"
	"github.com/as950118/customer-service-coaching/internal/pipeline"
	"github.com/as950118/customer-service-coaching/internal/progress"
	"github.com/as950118/customer-service-coaching/internal/queue"
	"github.com/as950118/customer-service-coaching/internal/redis"
	"github.com/as950118/customer-service-coaching/internal/repository"
	"github.com/as950118/customer-service-coaching/internal/server"
	"github.com/as950118/customer-service-coaching/internal/storage"
	"github.com/as950118/customer-service-coaching/internal/transcode"
	"github.com/as950118/customer-service-coaching/internal/transcribe"
	httpapi "github.com/as950118/customer-service-coaching/internal/transport/http"
)

func main() {
	cfg := appconfig.Load()
	slog.Info("starting coaching service", "addr", cfg.HTTPAddr, "workers", cfg.QueueWorkers, "queue", cfg.QueueMode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := database.Migrate(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		slog.Error("failed to migrate database", "err", err)
		os.Exit(1)
	}

	db, err := database.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	storageService, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize storage", "err", err)
		os.Exit(1)
	}

	redisService, err := redis.New(cfg.RedisURL)
	if err != nil {
		slog.Error("failed to connect to Redis", "err", err)
		os.Exit(1)
	}
	defer redisService.Close()

	archiver, err := archive.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize archival", "err", err)
		os.Exit(1)
	}

	llmClient := llm.NewClient(cfg.OpenAIAPIKey, cfg.LLMModel, cfg.LLMMaxRetries, cfg.LLMInitialDelay)

	transcriber, err := transcribe.New(&cfg, llmClient)
	if err != nil {
		slog.Error("failed to initialize transcriber", "err", err)
		os.Exit(1)
	}
	transcoder := transcode.New(cfg.FFmpegBin)

	repo := repository.New(db)

	var q memq.JobQueue
	switch cfg.QueueMode {
	case "redis":
		q, err = queue.NewRedisQueue(redisService.Client(), queue.DefaultConfig())
		if err != nil {
			slog.Error("failed to initialize redis queue", "err", err)
			os.Exit(1)
		}
	default:
		q = memq.NewMemoryQueue(cfg.QueueBuf, cfg.JobMaxDuration)
	}
	defer q.Close()

	var arc pipeline.Archiver
	if archiver != nil {
		arc = archiver
	}
	analyzer := pipeline.NewAnalyzer(repo, storageService, llmClient, transcriber, transcoder, arc, cfg.LLMJSONResponse)
	notifier := progress.NewNotifier(repo, cfg.ProgressInterval)

	handlers := &httpapi.Handlers{
		Q:        q,
		Repo:     repo,
		Storage:  storageService,
		Redis:    redisService,
		Notifier: notifier,
		Config:   cfg,
	}
	r := server.NewRouter(handlers)

	q.StartConsumers(ctx, cfg.QueueWorkers, func(ctx context.Context, j *job.Job) error {
		switch j.Type {
		case job.TypeConsultationAnalyze:
			return analyzer.HandleAnalyzeJob(ctx, j.ConsultationID)
		default:
			return fmt.Errorf("unknown job type: %s", j.Type)
		}
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute, // SSE streams follow a full analysis
		IdleTimeout:  90 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	<-ch
	slog.Info("shutting down")

	shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shCancel()
	_ = srv.Shutdown(shCtx)
	cancel()
}

package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/bankfeed/internal/api"
	"github.com/dvloznov/bankfeed/internal/app"
	"github.com/dvloznov/bankfeed/internal/config"
	"github.com/dvloznov/bankfeed/internal/jobs"
	"github.com/dvloznov/bankfeed/internal/jobs/inmemory"
	"github.com/dvloznov/bankfeed/internal/logger"
	"github.com/dvloznov/bankfeed/internal/scheduler"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to load config")
	}

	log := logger.Configure(cfg.Log.Format, cfg.Log.Level, os.Stdout)
	ctx := logger.WithContext(context.Background(), log)

	engine, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize engine")
	}
	defer engine.Close()

	if len(cfg.Tokens) == 0 {
		log.Warn().Msg("No API tokens configured; every protected route will return 401")
	}

	// Job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(jobStore, inmemory.Options{
		BufferSize: cfg.Jobs.BufferSize,
		Workers:    cfg.Jobs.Workers,
		MaxRetries: cfg.Jobs.MaxRetries,
	})

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	go func() {
		log.Info().Int("workers", cfg.Jobs.Workers).Msg("Starting job worker")
		if err := jobQueue.Start(workerCtx, jobs.NewHandler(engine.Runner, engine.Sheet)); err != nil {
			log.Error().Err(err).Msg("Job worker stopped with error")
		}
	}()

	var sched *scheduler.Scheduler
	if len(cfg.Scheduler.Schedules) > 0 {
		sched, err = scheduler.New(ctx, jobQueue, cfg.Scheduler.Timezone, schedules(cfg))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to configure scheduler")
		}
		sched.Start()
		log.Info().Int("schedules", sched.Len()).Msg("Scheduler started")
	}

	handler := api.NewRouter(api.Deps{
		Runner:       engine.Runner,
		Transactions: engine.Transactions,
		Rules:        engine.Rules,
		Publisher:    jobQueue,
		JobStore:     jobStore,
		Sheet:        engine.Sheet,
		CSV:          engine.CSV,
		Webhook:      engine.Webhook,
		Tokens:       engine.Identities(),
		CORSOrigin:   cfg.Server.CORSOrigin,
		Log:          log,
	})

	// Classification and sheet imports run synchronously on request, so the
	// write timeout is generous.
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	if sched != nil {
		<-sched.Stop().Done()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}

func schedules(cfg *config.Config) []scheduler.Schedule {
	out := make([]scheduler.Schedule, len(cfg.Scheduler.Schedules))
	for i, s := range cfg.Scheduler.Schedules {
		out[i] = scheduler.Schedule{Name: s.Name, Spec: s.Spec, Job: jobs.JobType(s.Job)}
	}
	return out
}

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/bankfeed/internal/app"
	"github.com/dvloznov/bankfeed/internal/config"
	"github.com/dvloznov/bankfeed/internal/jobs"
	"github.com/dvloznov/bankfeed/internal/jobs/inmemory"
	"github.com/dvloznov/bankfeed/internal/logger"
	"github.com/dvloznov/bankfeed/internal/scheduler"
)

// The worker runs scheduled batch jobs without the HTTP surface.
func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML config file (optional)")
	runNow := flag.String("run-now", "", "Publish one job of this type at startup (classify_all, import_sheet, import_then_classify)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to load config")
	}

	log := logger.Configure(cfg.Log.Format, cfg.Log.Level, os.Stdout)
	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancel()

	engine, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize engine")
	}
	defer engine.Close()

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(jobStore, inmemory.Options{
		BufferSize: cfg.Jobs.BufferSize,
		Workers:    cfg.Jobs.Workers,
		MaxRetries: cfg.Jobs.MaxRetries,
	})

	log.Info().Msg("Starting worker service")

	if err := jobQueue.Start(ctx, jobs.NewHandler(engine.Runner, engine.Sheet)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	sched, err := scheduler.New(ctx, jobQueue, cfg.Scheduler.Timezone, schedules(cfg))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure scheduler")
	}
	if sched.Len() == 0 && *runNow == "" {
		log.Warn().Msg("No schedules configured, the worker will stay idle")
	}
	sched.Start()

	if *runNow != "" {
		job := &jobs.Job{Type: jobs.JobType(*runNow), Trigger: jobs.TriggerCLI, RequestedBy: "worker"}
		if err := jobQueue.Publish(ctx, job); err != nil {
			log.Fatal().Err(err).Msg("Failed to publish startup job")
		}
		log.Info().Str("job_id", job.JobID).Str("type", *runNow).Msg("Published startup job")
	}

	log.Info().Int("schedules", sched.Len()).Msg("Worker service started, waiting for jobs...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	<-sched.Stop().Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop the queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}
	cancel()

	log.Info().Msg("Worker service exited")
}

func schedules(cfg *config.Config) []scheduler.Schedule {
	out := make([]scheduler.Schedule, len(cfg.Scheduler.Schedules))
	for i, s := range cfg.Scheduler.Schedules {
		out[i] = scheduler.Schedule{Name: s.Name, Spec: s.Spec, Job: jobs.JobType(s.Job)}
	}
	return out
}

package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"gym-calendar-agent/internal/calendar"
	"gym-calendar-agent/internal/classifier"
	"gym-calendar-agent/internal/config"
	"gym-calendar-agent/internal/db"
	"gym-calendar-agent/internal/dispatcher"
	"gym-calendar-agent/internal/extractor"
	"gym-calendar-agent/internal/fetcher"
	"gym-calendar-agent/internal/handlers"
	"gym-calendar-agent/internal/ledger"
	"gym-calendar-agent/internal/llm"
	"gym-calendar-agent/internal/metrics"
	"gym-calendar-agent/internal/pipeline"
	"gym-calendar-agent/internal/scheduler"
	"gym-calendar-agent/internal/server"
)

// Run initializes and starts the application
func Run() error {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	logrus.Info("Starting Gym Calendar Agent")

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	location, err := time.LoadLocation(cfg.Calendar.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", cfg.Calendar.Timezone, err)
	}

	dbConn, err := db.Init(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	m := metrics.NewMetrics()

	var f fetcher.Fetcher
	if cfg.Gmail.UseIMAP {
		f, err = fetcher.NewIMAPFetcher(&cfg.Gmail, cfg.Agent.ProcessedLabel)
		if err != nil {
			return fmt.Errorf("failed to create IMAP fetcher: %w", err)
		}
		logrus.Info("Using IMAP for email fetching")
	} else {
		f, err = fetcher.NewGmailFetcher(&cfg.Gmail, cfg.Agent.ProcessedLabel)
		if err != nil {
			return fmt.Errorf("failed to create Gmail fetcher: %w", err)
		}
		logrus.Info("Using Gmail API for email fetching")
	}

	llmClient := llm.NewOpenAIClient(&cfg.LLM)
	cls := classifier.New(llmClient, cfg.LLM.MaxRetries)
	ext := extractor.New(llmClient, location,
		time.Duration(cfg.Agent.DefaultEventDurationMinutes)*time.Minute, cfg.LLM.MaxRetries)

	cal, err := calendar.NewGoogleGateway(&cfg.Gmail, &cfg.Calendar)
	if err != nil {
		return fmt.Errorf("failed to create calendar gateway: %w", err)
	}
	disp := dispatcher.New(cal)

	led := ledger.New(dbConn)

	pipe := pipeline.New(f, cls, ext, disp, led, m, cfg.Agent)
	sched := scheduler.NewScheduler(&cfg.Scheduler, pipe)

	h := handlers.NewHandlers(dbConn, led, sched)
	router := server.SetupRouter(h)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	go func() {
		logrus.Infof("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := sched.Stop(); err != nil {
		logrus.Errorf("Failed to stop scheduler: %v", err)
	}
	sched.Wait()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("HTTP server shutdown error: %v", err)
	}

	if err := f.Close(); err != nil {
		logrus.Errorf("Failed to close fetcher: %v", err)
	}

	logrus.Info("Server stopped gracefully")
	return nil
}

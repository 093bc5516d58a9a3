package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/dgallion1/repogist/internal/api"
	"github.com/dgallion1/repogist/internal/config"
	"github.com/dgallion1/repogist/internal/gather"
	"github.com/dgallion1/repogist/internal/llm"
	"github.com/dgallion1/repogist/internal/pipeline"
	"github.com/dgallion1/repogist/internal/report"
	"github.com/dgallion1/repogist/internal/token"
)

func main() {
	serve := flag.Bool("serve", false, "run the HTTP API server instead of a one-shot analysis")
	model := flag.String("model", "", "ollama model to use (overrides OLLAMA_MODEL)")
	branch := flag.String("branch", "", "analyze a specific branch")
	allBranches := flag.Bool("all-branches", false, "analyze every local branch")
	output := flag.String("output", "", "directory for report files (overrides REPORT_DIR)")
	flag.Parse()

	// Missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg := config.Load()
	if *model != "" {
		cfg.OllamaModel = *model
	}
	if *output != "" {
		cfg.ReportDir = *output
	}

	if *serve {
		runServer(cfg)
		return
	}

	repoPath := flag.Arg(0)
	if repoPath == "" {
		fmt.Fprintln(os.Stderr, "usage: repogist [flags] <repo-path>")
		fmt.Fprintln(os.Stderr, "       repogist -serve")
		flag.PrintDefaults()
		os.Exit(2)
	}
	runOnce(cfg, repoPath, *branch, *allBranches)
}

func runOnce(cfg config.Config, repoPath, branch string, allBranches bool) {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	client, err := llm.NewClient(cfg.OllamaHost, cfg.OllamaModel, log)
	if err != nil {
		log.Error("ollama client setup failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if !client.Available(ctx) {
		log.Error("ollama is not reachable", "host", cfg.OllamaHost)
		os.Exit(1)
	}

	est := token.NewEstimator()
	gatherer, err := gather.New(est, log, gather.Options{
		MaxFileBytes: cfg.MaxFileBytes,
		Ignore:       cfg.IgnorePatterns,
	})
	if err != nil {
		log.Error("invalid ignore pattern", "error", err)
		os.Exit(1)
	}

	worker := pipeline.NewWorker(client, est, gatherer, log,
		cfg.ReserveFraction, cfg.MaxConcurrentSummaries, cfg.ContextOverride)

	now := time.Now()
	job := &pipeline.Job{
		ID:          pipeline.NewJobID(),
		RepoPath:    repoPath,
		Branch:      branch,
		AllBranches: allBranches,
		Status:      pipeline.StatusQueued,
		Phase:       "queued",
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	worker.Process(ctx, job)

	snap := job.Snapshot()
	if snap.Status != pipeline.StatusCompleted {
		log.Error("analysis failed", "status", snap.Status, "errors", snap.Progress.Errors)
		os.Exit(1)
	}

	rep := report.New(repoPath, client.Model(), job.Results()...)
	mdPath, htmlPath, err := rep.WriteFiles(cfg.ReportDir)
	if err != nil {
		log.Error("report write failed", "error", err)
		os.Exit(1)
	}

	fmt.Println(rep.Markdown())
	log.Info("reports written", "markdown", mdPath, "html", htmlPath)
}

func runServer(cfg config.Config) {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	client, err := llm.NewClient(cfg.OllamaHost, cfg.OllamaModel, log)
	if err != nil {
		log.Error("ollama client setup failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orch, err := pipeline.NewOrchestrator(cfg, client, token.NewEstimator(), log)
	if err != nil {
		log.Error("pipeline setup failed", "error", err)
		os.Exit(1)
	}
	orch.Start(ctx)

	srv := api.NewServer(orch, client, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		orch.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("starting repogist", "port", cfg.Port, "model", cfg.OllamaModel)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

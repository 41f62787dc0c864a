package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/jibzus/enterprise-spendguard/internal/api"
	"github.com/jibzus/enterprise-spendguard/internal/chunker"
	"github.com/jibzus/enterprise-spendguard/internal/config"
	"github.com/jibzus/enterprise-spendguard/internal/corpus"
	"github.com/jibzus/enterprise-spendguard/internal/embedding"
	"github.com/jibzus/enterprise-spendguard/internal/index"
	"github.com/jibzus/enterprise-spendguard/internal/metrics"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	factory := embedderFactory(cfg)
	met := metrics.New()
	store := corpus.NewStore()

	var snapshots *index.SQLiteStore
	if cfg.IndexPath != "" {
		snapshots, err = index.OpenSQLite(cfg.IndexPath, log)
		if err != nil {
			log.Error("open snapshot store", "path", cfg.IndexPath, "error", err)
			os.Exit(1)
		}
		defer snapshots.Close()
	}

	loader := corpus.NewLoader(factory, chunker.Config{
		MaxTokens:     cfg.ChunkMaxTokens,
		OverlapTokens: cfg.ChunkOverlapTokens,
	}, cfg.MaxConcurrentEmbed, snapshots, cfg.SnapshotKeep, met, log)

	// Restore the last persisted corpus, then let a configured policy file
	// take precedence.
	if snapshots != nil {
		if err := corpus.Restore(ctx, snapshots, factory, store, log); err != nil {
			log.Warn("corpus restore skipped", "error", err)
		}
	}
	if cfg.PolicyPath != "" {
		if err := bootLoad(ctx, loader, store, cfg.PolicyPath, log); err != nil {
			log.Error("boot policy load failed", "path", cfg.PolicyPath, "error", err)
			os.Exit(1)
		}
	}
	if snap := store.Active(); snap != nil {
		met.ActiveCorpusChunks.Set(float64(snap.Version.ChunkCount))
	} else {
		log.Warn("starting with no policy corpus; evaluations unavailable until one is loaded")
	}

	orch := corpus.NewOrchestrator(loader, store, cfg.WorkerCount, cfg.MaxQueueSize, cfg.JobTTL, met, log)
	orch.Start(ctx)

	srv := api.NewServer(orch, store, met, log, cfg)

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

		// Drain HTTP first so no handler submits to a stopped queue.
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		orch.Stop()
	}()

	log.Info("starting spendguard", "port", cfg.Port, "embedder", cfg.Embedder)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

func embedderFactory(cfg config.Config) corpus.EmbedderFactory {
	switch cfg.Embedder {
	case "openai":
		return func() (embedding.Embedder, error) {
			return embedding.NewOpenAIClient(embedding.OpenAIConfig{
				BaseURL: cfg.OpenAIBaseURL,
				APIKey:  cfg.OpenAIAPIKey,
				Model:   cfg.OpenAIModel,
			})
		}
	case "gemini":
		return func() (embedding.Embedder, error) {
			return embedding.NewGeminiClient(embedding.GeminiConfig{
				APIKey: cfg.GeminiAPIKey,
				Model:  cfg.GeminiModel,
			})
		}
	default:
		return func() (embedding.Embedder, error) {
			return embedding.NewTFIDF(), nil
		}
	}
}

// bootLoad builds and publishes the corpus from a local policy file,
// synchronously, so the service never answers from a stale corpus when a
// policy file is configured.
func bootLoad(ctx context.Context, loader *corpus.Loader, store *corpus.Store, path string, log *slog.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	job := corpus.NewJob(filepath.Base(path), "", data)

	if active := store.Active(); active != nil && active.Version.ContentHash == job.ContentHash {
		log.Info("boot policy matches restored corpus", "version", active.Version.ID)
		return nil
	}

	snap, err := loader.Build(ctx, job)
	if err != nil {
		return err
	}
	store.Publish(snap)
	log.Info("boot corpus published", "version", snap.Version.ID, "chunks", snap.Version.ChunkCount)
	return nil
}

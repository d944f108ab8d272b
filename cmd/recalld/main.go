package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/verdantlabs/recall/internal/config"
	"github.com/verdantlabs/recall/internal/engine"
	"github.com/verdantlabs/recall/internal/provider"
	"github.com/verdantlabs/recall/internal/storage"
	"github.com/verdantlabs/recall/internal/storage/memory"
	"github.com/verdantlabs/recall/internal/storage/postgres"
	"github.com/verdantlabs/recall/internal/storage/sqlite"
	"github.com/verdantlabs/recall/internal/tasks"
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	store, err := sqlite.NewMemoryStore(cfg.Storage.DataPath + "/recall.db")
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	embedder, err := provider.NewEmbedder(embedSettings(cfg))
	if err != nil {
		log.Fatalf("Failed to initialize embedder: %v", err)
	}
	chat, err := provider.NewChatModel(chatSettings(cfg))
	if err != nil {
		log.Fatalf("Failed to initialize chat model: %v", err)
	}

	// An unreachable local model host shouldn't stop the service; calls
	// will fail per-request until it comes up.
	if ollama, ok := chat.(*provider.OllamaClient); ok {
		if err := ollama.HealthCheck(context.Background()); err != nil {
			log.Printf("WARNING: ollama health check failed: %v", err)
		}
	}

	index, cleanup, err := newVectorIndex(cfg, store, embedder)
	if err != nil {
		log.Fatalf("Failed to initialize vector index: %v", err)
	}
	defer cleanup()

	weights := engine.DefaultWeights()
	if cfg.Ranking.WeightsFile != "" {
		weights, err = engine.LoadWeightsFile(cfg.Ranking.WeightsFile)
		if err != nil {
			log.Fatalf("Failed to load ranking weights: %v", err)
		}
	}

	ranker := engine.NewRanker(store, index, weights)
	builder := engine.NewContextBuilder(ranker, store, engine.NewAssembler(engine.CharSize), engine.BuilderConfig{
		TopK:            cfg.Ranking.TopK,
		TurnBudgetShare: cfg.Context.TurnBudgetShare,
		RecentTurnLimit: cfg.Context.RecentTurnLimit,
		DefaultBudget:   cfg.Context.DefaultBudget,
	})

	orch, err := tasks.NewOrchestrator(sqlite.NewTaskStore(store.DB()), tasks.Config{
		NumWorkers:      cfg.Tasks.NumWorkers,
		QueueSize:       cfg.Tasks.QueueSize,
		ShutdownTimeout: cfg.Tasks.ShutdownTimeout,
	})
	if err != nil {
		log.Fatalf("Failed to initialize task orchestrator: %v", err)
	}
	orch.Register(tasks.KindResearch, tasks.NewResearchHandler(builder, store, index, chat))
	orch.Register(tasks.KindEmbedCorpus, tasks.NewEmbedCorpusHandler(index))
	orch.Start()

	log.Printf("Recall running (engine=%s, provider=%s, model=%s)",
		cfg.Storage.StorageEngine, cfg.LLM.LLMProvider, chat.GetModel())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Tasks.ShutdownTimeout)
	defer cancel()
	if err := orch.Shutdown(ctx); err != nil {
		log.Printf("Error shutting down task orchestrator: %v", err)
	}
}

// newVectorIndex selects the vector backend. SQLite shares the memory
// store's connection; Postgres opens its own and must be closed.
func newVectorIndex(cfg *config.Config, store *sqlite.MemoryStore, embedder provider.Embedder) (storage.VectorIndex, func(), error) {
	switch cfg.Storage.StorageEngine {
	case "postgres":
		index, err := postgres.NewVectorIndex(cfg.Storage.PostgresDSN, embedder)
		if err != nil {
			return nil, nil, err
		}
		return index, func() { index.Close() }, nil
	case "memory":
		return memory.NewVectorIndex(embedder), func() {}, nil
	default:
		return sqlite.NewVectorIndex(store.DB(), embedder), func() {}, nil
	}
}

func chatSettings(cfg *config.Config) provider.Settings {
	if cfg.LLM.LLMProvider == "openai" {
		return provider.Settings{
			Provider:  "openai",
			APIKey:    cfg.LLM.OpenAIAPIKey,
			ChatModel: cfg.LLM.OpenAIModel,
		}
	}
	return provider.Settings{
		Provider:  "ollama",
		BaseURL:   cfg.LLM.OllamaURL,
		ChatModel: cfg.LLM.OllamaModel,
	}
}

func embedSettings(cfg *config.Config) provider.Settings {
	if cfg.LLM.LLMProvider == "openai" {
		return provider.Settings{
			Provider:               "openai",
			APIKey:                 cfg.LLM.OpenAIAPIKey,
			EmbedModel:             cfg.LLM.OpenAIEmbeddingModel,
			EmbedRequestsPerSecond: cfg.LLM.EmbedRequestsPerSecond,
		}
	}
	return provider.Settings{
		Provider:   "ollama",
		BaseURL:    cfg.LLM.OllamaURL,
		EmbedModel: cfg.LLM.OllamaEmbeddingModel,
	}
}

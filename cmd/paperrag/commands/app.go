package commands

import (
	"fmt"
	"log/slog"
	"os"

	"paperrag/internal/chunker"
	"paperrag/internal/config"
	"paperrag/internal/discovery"
	"paperrag/internal/discovery/arxiv"
	"paperrag/internal/domain"
	"paperrag/internal/embedding/lexical"
	embopenai "paperrag/internal/embedding/openai"
	chatopenai "paperrag/internal/llm/openai"
	"paperrag/internal/orchestrator"
	"paperrag/internal/retriever"
	"paperrag/internal/service"
	"paperrag/internal/summarizer"
	"paperrag/internal/vectorstore"
	"paperrag/internal/vectorstore/badger"
	"paperrag/internal/vectorstore/memory"
	"paperrag/internal/vectorstore/qdrant"
)

// app holds the components assembled from one configuration.
type app struct {
	cfg       *config.AppConfig
	logger    *slog.Logger
	embedder  domain.Embedder
	index     vectorstore.Index
	pipeline  *service.Pipeline
	retriever *retriever.Retriever

	assistants *service.Cache[string, *orchestrator.Orchestrator]
}

func newApp() (*app, error) {
	cfg, err := getConfig()
	if err != nil {
		return nil, err
	}
	logger := slog.Default()

	emb, err := newEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	idx, err := newIndex(cfg, logger)
	if err != nil {
		return nil, err
	}
	ch, err := chunker.NewRecursiveChunker(cfg.Chunker.ChunkSize, cfg.Chunker.ChunkOverlap)
	if err != nil {
		idx.Close()
		return nil, err
	}
	metric, err := vectorstore.ParseMetric(cfg.VectorStore.Metric)
	if err != nil {
		idx.Close()
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		embedder: emb,
		index:    idx,
		pipeline: service.NewPipeline(ch, emb, idx, summarizer.NewFrequencySummarizer(), service.Options{
			Collection:       cfg.VectorStore.Collection,
			Metric:           metric,
			SummarySentences: cfg.Summarizer.MaxSentences,
			Logger:           logger,
		}),
		retriever: retriever.New(emb, idx,
			retriever.WithCollection(cfg.VectorStore.Collection),
			retriever.WithNResults(cfg.Retriever.NResults),
			retriever.WithLogger(logger),
		),
		assistants: service.NewCache[string, *orchestrator.Orchestrator](),
	}
	logger.Debug("components ready",
		"embedder", emb.Name(),
		"vector_store", cfg.VectorStore.Type,
		"collection", cfg.VectorStore.Collection)
	return a, nil
}

func (a *app) Close() error {
	return a.index.Close()
}

// assistant returns the orchestrator generating with model, building it on
// first use. An empty model means the configured one.
func (a *app) assistant(model string) (*orchestrator.Orchestrator, error) {
	if model == "" {
		model = a.cfg.Generator.Model
	}
	return a.assistants.GetOrCreate(model, func() (*orchestrator.Orchestrator, error) {
		g := a.cfg.Generator
		chat := chatopenai.NewChat(chatopenai.Config{
			BaseURL:     g.BaseURL,
			APIKeyEnv:   g.APIKeyEnv,
			Model:       model,
			Temperature: g.Temperature,
			Timeout:     config.Seconds(g.TimeoutSecs),
		})
		o := a.cfg.Orchestrator
		gate := o.LowRelevanceThreshold
		if gate <= 0 {
			gate = orchestrator.NoRelevanceGate
		}
		return orchestrator.New(a.retriever, chat, orchestrator.Config{
			LowRelevanceThreshold:      gate,
			TranslationPrefixChars:     o.TranslationPrefixChars,
			TranslationReferenceChunks: o.TranslationReferenceChunks,
			Languages:                  o.Languages,
		}, a.logger.With("model", model)), nil
	})
}

func (a *app) catalog() *arxiv.Client {
	return arxiv.NewClient(arxiv.Config{
		BaseURL: a.cfg.Discovery.BaseURL,
		Timeout: config.Seconds(a.cfg.Discovery.TimeoutSecs),
	})
}

func (a *app) recommender() *discovery.Recommender {
	return discovery.NewRecommender(a.catalog(), a.embedder)
}

func newEmbedder(cfg *config.AppConfig) (domain.Embedder, error) {
	switch cfg.Embedder.Type {
	case "lexical", "":
		return lexical.NewEmbedder(cfg.Embedder.Dimension), nil
	case "openai":
		o := cfg.Embedder.OpenAI
		if o == nil {
			return nil, fmt.Errorf("openai embedder config missing")
		}
		client, err := embopenai.NewClient(embopenai.Config{
			BaseURL:    o.BaseURL,
			APIKeyEnv:  o.APIKeyEnv,
			Model:      o.Model,
			Dimensions: o.Dimensions,
			BatchSize:  o.BatchSize,
			Timeout:    config.Seconds(o.TimeoutSecs),
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}
}

func newIndex(cfg *config.AppConfig, logger *slog.Logger) (vectorstore.Index, error) {
	switch cfg.VectorStore.Type {
	case "memory":
		return memory.NewStorage(), nil
	case "badger", "":
		if err := os.MkdirAll(cfg.VectorStore.Path, 0o755); err != nil {
			return nil, err
		}
		store, err := badger.Open(badger.Options{Dir: cfg.VectorStore.Path, Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", cfg.VectorStore.Path, err)
		}
		return store, nil
	case "qdrant":
		q := cfg.VectorStore.Qdrant
		if q == nil {
			return nil, fmt.Errorf("qdrant config missing")
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:     q.URL,
			APIKey:  q.APIKey,
			Timeout: config.Seconds(q.TimeoutSecs),
		}), nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)
	}
}

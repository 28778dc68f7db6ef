package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	Dimensions  int    `yaml:"dimensions,omitempty"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type      string                `yaml:"type"`
	Dimension int                   `yaml:"dimension,omitempty"`
	OpenAI    *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type       string        `yaml:"type"`
	Path       string        `yaml:"path,omitempty"`
	Collection string        `yaml:"collection"`
	Metric     string        `yaml:"metric"`
	Qdrant     *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

type RetrieverConfig struct {
	NResults           int     `yaml:"n_results"`
	RelevanceThreshold float64 `yaml:"relevance_threshold"`
}

// GeneratorConfig points at an OpenAI-compatible chat endpoint.
type GeneratorConfig struct {
	Type        string  `yaml:"type"`
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	TimeoutSecs int     `yaml:"timeout_secs"`
}

// OrchestratorConfig tunes grounded generation. A low_relevance_threshold of
// zero or below disables the answer gate.
type OrchestratorConfig struct {
	LowRelevanceThreshold      float64  `yaml:"low_relevance_threshold"`
	TranslationPrefixChars     int      `yaml:"translation_prefix_chars"`
	TranslationReferenceChunks int      `yaml:"translation_reference_chunks"`
	Languages                  []string `yaml:"languages,omitempty"`
}

// DiscoveryConfig configures the arXiv catalog.
type DiscoveryConfig struct {
	BaseURL       string `yaml:"base_url"`
	DownloadDir   string `yaml:"download_dir"`
	CandidatePool int    `yaml:"candidate_pool"`
	TimeoutSecs   int    `yaml:"timeout_secs"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SummarizerConfig selects and configures the summarizer.
type SummarizerConfig struct {
	Type         string `yaml:"type"`
	MaxSentences int    `yaml:"max_sentences"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder     EmbedderConfig     `yaml:"embedder"`
	Chunker      ChunkerConfig      `yaml:"chunker"`
	VectorStore  VectorStoreConfig  `yaml:"vector_store"`
	Retriever    RetrieverConfig    `yaml:"retriever"`
	Generator    GeneratorConfig    `yaml:"generator"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Summarizer   SummarizerConfig   `yaml:"summarizer"`
	Discovery    DiscoveryConfig    `yaml:"discovery"`
	Log          LogConfig          `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			return cfg, nil
		}
		return nil, err
	}
	// Keys absent from the file keep their defaults; an explicit zero stays zero.
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/paperrag/config.yaml.
// If neither exists, it writes defaults to ~/.config/paperrag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects settings no component can run with.
func (c *AppConfig) Validate() error {
	switch c.Embedder.Type {
	case "lexical", "openai":
	default:
		return fmt.Errorf("embedder.type: unknown %q", c.Embedder.Type)
	}
	switch c.VectorStore.Type {
	case "memory", "badger":
	case "qdrant":
		if c.VectorStore.Qdrant == nil || c.VectorStore.Qdrant.URL == "" {
			return errors.New("vector_store.qdrant.url is required")
		}
	default:
		return fmt.Errorf("vector_store.type: unknown %q", c.VectorStore.Type)
	}
	switch c.VectorStore.Metric {
	case "cosine", "l2", "ip":
	default:
		return fmt.Errorf("vector_store.metric: unknown %q", c.VectorStore.Metric)
	}
	if c.Chunker.ChunkSize <= 0 || c.Chunker.ChunkOverlap < 0 || c.Chunker.ChunkOverlap >= c.Chunker.ChunkSize {
		return fmt.Errorf("chunker: need 0 <= chunk_overlap < chunk_size, got %d/%d", c.Chunker.ChunkOverlap, c.Chunker.ChunkSize)
	}
	if c.Retriever.NResults <= 0 {
		return fmt.Errorf("retriever.n_results must be positive, got %d", c.Retriever.NResults)
	}
	if c.Generator.Type != "openai" {
		return fmt.Errorf("generator.type: unknown %q", c.Generator.Type)
	}
	return nil
}

// Seconds converts a timeout_secs value to a duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "paperrag", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Chunker:      ChunkerConfig{ChunkSize: 500, ChunkOverlap: 50},
		Retriever:    RetrieverConfig{RelevanceThreshold: 0.3},
		Orchestrator: OrchestratorConfig{LowRelevanceThreshold: 0.25},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "lexical"
	}
	if cfg.Embedder.Type == "lexical" && cfg.Embedder.Dimension == 0 {
		cfg.Embedder.Dimension = 256
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
		if cfg.Embedder.OpenAI.BatchSize == 0 {
			cfg.Embedder.OpenAI.BatchSize = 32
		}
	}

	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = 500
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "badger"
	}
	if cfg.VectorStore.Type == "badger" && cfg.VectorStore.Path == "" {
		cfg.VectorStore.Path = "./vector_db"
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = "research_papers"
	}
	if cfg.VectorStore.Metric == "" {
		cfg.VectorStore.Metric = "cosine"
	}
	if q := cfg.VectorStore.Qdrant; q != nil && q.TimeoutSecs == 0 {
		q.TimeoutSecs = 15
	}

	if cfg.Retriever.NResults == 0 {
		cfg.Retriever.NResults = 5
	}

	if cfg.Generator.Type == "" {
		cfg.Generator.Type = "openai"
	}
	if cfg.Generator.BaseURL == "" {
		cfg.Generator.BaseURL = "http://localhost:11434/v1"
	}
	if cfg.Generator.APIKeyEnv == "" {
		cfg.Generator.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Generator.Model == "" {
		cfg.Generator.Model = "qwen2.5:7b"
	}
	if cfg.Generator.Temperature == 0 {
		cfg.Generator.Temperature = 0.3
	}
	if cfg.Generator.TimeoutSecs == 0 {
		cfg.Generator.TimeoutSecs = 120
	}

	if cfg.Orchestrator.TranslationPrefixChars == 0 {
		cfg.Orchestrator.TranslationPrefixChars = 200
	}
	if cfg.Orchestrator.TranslationReferenceChunks == 0 {
		cfg.Orchestrator.TranslationReferenceChunks = 2
	}

	if cfg.Summarizer.Type == "" {
		cfg.Summarizer.Type = "frequency"
	}
	if cfg.Summarizer.MaxSentences == 0 {
		cfg.Summarizer.MaxSentences = 5
	}

	if cfg.Discovery.BaseURL == "" {
		cfg.Discovery.BaseURL = "https://export.arxiv.org"
	}
	if cfg.Discovery.DownloadDir == "" {
		cfg.Discovery.DownloadDir = "./papers"
	}
	if cfg.Discovery.CandidatePool == 0 {
		cfg.Discovery.CandidatePool = 20
	}
	if cfg.Discovery.TimeoutSecs == 0 {
		cfg.Discovery.TimeoutSecs = 30
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

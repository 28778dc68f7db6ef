// Package openai embeds text through any OpenAI-compatible embeddings API
// (OpenAI, Ollama, LM Studio, vLLM).
package openai

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"paperrag/internal/domain"
	"paperrag/internal/embedding"
)

const (
	DefaultBaseURL   = "https://api.openai.com/v1"
	DefaultModel     = "text-embedding-3-small"
	DefaultBatchSize = 64
	DefaultTimeout   = 30 * time.Second
	defaultAPIKeyEnv = "OPENAI_API_KEY"
)

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	// Dimensions requests shortened vectors from models that support it.
	// Zero leaves the model default and learns the size from the first response.
	Dimensions int
	BatchSize  int
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client implements embedding.Embedder against an embeddings endpoint.
type Client struct {
	client    *openai.Client
	model     string
	requested int
	batchSize int
	dimension atomic.Int64
}

var _ embedding.Embedder = (*Client)(nil)

// NewClient creates a new embeddings client using the provided configuration.
// Local servers such as Ollama accept any key, so a missing key is only an
// error against the default OpenAI endpoint.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = defaultAPIKeyEnv
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		if cfg.BaseURL == DefaultBaseURL {
			return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
		}
		key = "local"
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	client := openai.NewClient(
		option.WithAPIKey(key),
		option.WithBaseURL(cfg.BaseURL),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	)
	c := &Client{
		client:    &client,
		model:     cfg.Model,
		requested: cfg.Dimensions,
		batchSize: cfg.BatchSize,
	}
	if cfg.Dimensions > 0 {
		c.dimension.Store(int64(cfg.Dimensions))
	}
	return c, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai:" + c.model }

// Dimension returns the vector size, or 0 until the first response when no
// explicit size was configured.
func (c *Client) Dimension() int { return int(c.dimension.Load()) }

// EmbedOne returns an embedding vector for the given text.
func (c *Client) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, domain.ErrEmptyInput
	}
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch returns embeddings for texts in input order, splitting into
// requests of at most BatchSize inputs.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, domain.ErrEmptyInput
	}
	out := make([][]float32, len(texts))
	for _, b := range embedding.Batches(len(texts), c.batchSize) {
		vecs, err := c.call(ctx, texts[b[0]:b[1]])
		if err != nil {
			return nil, domain.Upstream("embedding", fmt.Sprintf("embed batch [%d:%d]", b[0], b[1]), err)
		}
		copy(out[b[0]:], vecs)
	}
	return out, nil
}

func (c *Client) call(ctx context.Context, texts []string) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Model:          c.model,
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}
	if c.requested > 0 {
		params.Dimensions = openai.Int(int64(c.requested))
	}

	resp, err := c.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, err
	}

	vecs := make([][]float32, len(texts))
	for _, item := range resp.Data {
		idx := item.Index
		if idx < 0 || idx >= int64(len(texts)) {
			return nil, fmt.Errorf("unexpected embedding index %d for batch size %d", idx, len(texts))
		}
		vecs[idx] = toFloat32(item.Embedding)
	}
	for i, v := range vecs {
		if v == nil {
			return nil, fmt.Errorf("missing embedding for index %d", i)
		}
		if err := c.checkDimension(len(v)); err != nil {
			return nil, err
		}
	}
	return vecs, nil
}

func (c *Client) checkDimension(n int) error {
	if c.dimension.CompareAndSwap(0, int64(n)) {
		return nil
	}
	if want := c.dimension.Load(); int64(n) != want {
		return fmt.Errorf("model returned %d-dimensional vector, expected %d", n, want)
	}
	return nil
}

func toFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}

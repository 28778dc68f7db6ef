// Package retriever turns a natural-language query into ranked, scored
// chunks and renders them as grounding context.
package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"paperrag/internal/domain"
	"paperrag/internal/vectorstore"
)

const (
	DefaultCollection = "research_papers"
	DefaultNResults   = 5
	// DefaultRelevanceThreshold is the advisory cutoff for IsRelevant.
	// The answer gate in the orchestrator has its own, lower threshold.
	DefaultRelevanceThreshold = 0.3

	// NoContext is returned by RetrieveAsContext when nothing was found.
	NoContext = "No relevant context found."

	contextSeparator = "\n\n---\n\n"
)

// Retriever is immutable after construction and safe to share.
type Retriever struct {
	embedder   domain.Embedder
	index      vectorstore.Index
	collection string
	nResults   int
	logger     *slog.Logger
}

type Option func(*Retriever)

func WithCollection(name string) Option { return func(r *Retriever) { r.collection = name } }

func WithNResults(n int) Option {
	return func(r *Retriever) {
		if n > 0 {
			r.nResults = n
		}
	}
}

func WithLogger(l *slog.Logger) Option { return func(r *Retriever) { r.logger = l } }

func New(embedder domain.Embedder, index vectorstore.Index, opts ...Option) *Retriever {
	r := &Retriever{
		embedder:   embedder,
		index:      index,
		collection: DefaultCollection,
		nResults:   DefaultNResults,
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// WithCollection returns a copy bound to another collection.
func (r *Retriever) WithCollection(name string) *Retriever {
	cp := *r
	cp.collection = name
	return &cp
}

func (r *Retriever) Collection() string { return r.collection }

func (r *Retriever) NResults() int { return r.nResults }

// Retrieve embeds query and returns up to NResults chunks, best first.
func (r *Retriever) Retrieve(ctx context.Context, query string) (domain.RetrievalResult, error) {
	return r.RetrieveN(ctx, query, r.nResults)
}

// RetrieveN is Retrieve with an explicit result count.
func (r *Retriever) RetrieveN(ctx context.Context, query string, n int) (domain.RetrievalResult, error) {
	if strings.TrimSpace(query) == "" {
		return domain.RetrievalResult{}, fmt.Errorf("%w: query", domain.ErrEmptyInput)
	}
	if n <= 0 {
		n = r.nResults
	}
	vec, err := r.embedder.EmbedOne(ctx, query)
	if err != nil {
		return domain.RetrievalResult{}, domain.Upstream("embedding", "embed query", err)
	}
	hits, err := r.index.Search(ctx, r.collection, vec, n)
	if err != nil {
		return domain.RetrievalResult{}, fmt.Errorf("search %s: %w", r.collection, err)
	}

	chunks := make([]domain.ScoredChunk, len(hits))
	for i, h := range hits {
		chunks[i] = domain.ScoredChunk{
			Chunk:      domain.ChunkFromRecord(h.ID, h.Text, h.Metadata),
			Similarity: h.Similarity(),
		}
	}
	res := domain.RetrievalResult{Chunks: chunks, AverageSimilarity: Mean(chunks)}
	r.logger.Debug("retrieved",
		"collection", r.collection,
		"chunks", len(chunks),
		"avg_similarity", res.AverageSimilarity)
	return res, nil
}

// RetrieveAsContext renders the retrieved chunks as one grounding string.
func (r *Retriever) RetrieveAsContext(ctx context.Context, query string) (string, error) {
	res, err := r.Retrieve(ctx, query)
	if err != nil {
		return "", err
	}
	return FormatContext(res.Chunks), nil
}

// AverageSimilarity is the mean similarity of the retrieved chunks, 0 if none.
func (r *Retriever) AverageSimilarity(ctx context.Context, query string) (float64, error) {
	res, err := r.Retrieve(ctx, query)
	if err != nil {
		return 0, err
	}
	return res.AverageSimilarity, nil
}

// IsRelevant reports whether the average similarity reaches threshold.
func (r *Retriever) IsRelevant(ctx context.Context, query string, threshold float64) (bool, error) {
	avg, err := r.AverageSimilarity(ctx, query)
	if err != nil {
		return false, err
	}
	return avg >= threshold, nil
}

// FormatContext renders chunks in rank order as
//
//	[CONTEXT i | Source: s | Relevance: r]
//	text
//
// joined by a horizontal rule. It returns NoContext for an empty slice.
func FormatContext(chunks []domain.ScoredChunk) string {
	if len(chunks) == 0 {
		return NoContext
	}
	blocks := make([]string, len(chunks))
	for i, c := range chunks {
		blocks[i] = fmt.Sprintf("[CONTEXT %d | Source: %s | Relevance: %s]\n%s",
			i+1, c.Source, formatScore(c.Similarity), c.Text)
	}
	return strings.Join(blocks, contextSeparator)
}

// Mean is the average similarity of chunks, 0 for none.
func Mean(chunks []domain.ScoredChunk) float64 {
	if len(chunks) == 0 {
		return 0
	}
	var sum float64
	for _, c := range chunks {
		sum += c.Similarity
	}
	return sum / float64(len(chunks))
}

func formatScore(v float64) string {
	return strconv.FormatFloat(math.Round(v*1e4)/1e4, 'f', -1, 64)
}

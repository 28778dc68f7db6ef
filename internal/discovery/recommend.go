package discovery

import (
	"context"
	"fmt"
	"sort"

	"paperrag/internal/domain"
	"paperrag/internal/vectorstore"
)

const (
	DefaultTopN          = 5
	DefaultCandidatePool = 20
	paperSnippetChars    = 2000
)

// Recommendation is a candidate paper scored against the reader's paper.
type Recommendation struct {
	Paper
	Similarity float64
}

// Recommender ranks catalog search results by embedding similarity.
type Recommender struct {
	catalog  Catalog
	embedder domain.Embedder
}

func NewRecommender(catalog Catalog, embedder domain.Embedder) *Recommender {
	return &Recommender{catalog: catalog, embedder: embedder}
}

// Recommend searches the catalog with keywords (derived from paperText when
// empty), embeds the start of paperText and every candidate abstract, and
// returns the topN closest candidates.
func (r *Recommender) Recommend(ctx context.Context, paperText, keywords string, topN, pool int) ([]Recommendation, error) {
	if topN <= 0 {
		topN = DefaultTopN
	}
	if pool <= 0 {
		pool = DefaultCandidatePool
	}
	if keywords == "" {
		keywords = ExtractKeywords(paperText)
	}
	if keywords == "" {
		return nil, fmt.Errorf("%w: no text to derive a query from", domain.ErrEmptyInput)
	}

	candidates, err := r.catalog.Search(ctx, keywords, pool)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	snippet := []rune(paperText)
	query, err := r.embedder.EmbedOne(ctx, string(snippet[:min(len(snippet), paperSnippetChars)]))
	if err != nil {
		return nil, domain.Upstream("embedding", "embed paper", err)
	}
	abstracts := make([]string, len(candidates))
	for i, c := range candidates {
		abstracts[i] = c.Abstract
		if abstracts[i] == "" {
			abstracts[i] = c.Title
		}
	}
	vecs, err := r.embedder.EmbedBatch(ctx, abstracts)
	if err != nil {
		return nil, domain.Upstream("embedding", "embed abstracts", err)
	}

	recs := make([]Recommendation, len(candidates))
	for i, c := range candidates {
		recs[i] = Recommendation{Paper: c, Similarity: 1 - vectorstore.CosineDistance(query, vecs[i])}
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Similarity > recs[j].Similarity })
	return recs[:min(len(recs), topN)], nil
}

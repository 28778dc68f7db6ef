// Package vectorstore defines the collection-oriented vector index used by
// the retrieval engine and the brute-force snapshot structure its
// process-local backends share.
package vectorstore

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"paperrag/internal/domain"
)

// Metadata is the flat key/value map stored next to each vector.
type Metadata = map[string]any

// Metric selects the distance function of a collection.
type Metric string

const (
	// MetricCosine is 1 - cos(a, b), in [0, 2].
	MetricCosine Metric = "cosine"
	// MetricL2 is the squared euclidean distance.
	MetricL2 Metric = "l2"
	// MetricIP is 1 - a·b.
	MetricIP Metric = "ip"
)

// ParseMetric accepts the metric names used in configuration. Empty means cosine.
func ParseMetric(s string) (Metric, error) {
	switch Metric(strings.ToLower(strings.TrimSpace(s))) {
	case "", MetricCosine:
		return MetricCosine, nil
	case MetricL2:
		return MetricL2, nil
	case MetricIP:
		return MetricIP, nil
	}
	return "", fmt.Errorf("%w: unknown distance metric %q", domain.ErrInvalidInput, s)
}

// Distance computes the metric between two equal-length vectors.
func (m Metric) Distance(a, b []float32) float64 {
	switch m {
	case MetricL2:
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return sum
	case MetricIP:
		var dot float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
		}
		return 1 - dot
	default:
		return CosineDistance(a, b)
	}
}

// CosineDistance returns 1 - cos(a, b) clamped to [0, 2]. A zero vector has
// no direction and is treated as orthogonal to everything.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) {
		return 2
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	sim = max(-1, min(1, sim))
	return 1 - sim
}

// Record is one stored item of a collection.
type Record struct {
	ID       string    `msgpack:"id"`
	Vector   []float32 `msgpack:"v"`
	Text     string    `msgpack:"t"`
	Metadata Metadata  `msgpack:"m"`
}

// Hit is a search result.
type Hit struct {
	ID       string
	Text     string
	Metadata Metadata
	Distance float64
}

// Similarity is 1 - Distance.
func (h Hit) Similarity() float64 { return 1 - h.Distance }

// Collection describes a named collection.
type Collection struct {
	Name      string
	Metric    Metric
	Dimension int
	Count     int
}

// Index stores vectors in named collections and answers nearest-neighbour
// queries. Implementations are safe for concurrent use.
type Index interface {
	// EnsureCollection returns the named collection, creating it on first
	// use. A later call with a different metric keeps the original one.
	EnsureCollection(ctx context.Context, name string, metric Metric) (Collection, error)
	// Add appends items to an existing collection. The four slices are
	// parallel. IDs are assumed to be new.
	Add(ctx context.Context, collection string, ids []string, vectors [][]float32, texts []string, metadatas []Metadata) error
	// Search returns at most k hits in ascending distance. Unknown and empty
	// collections yield no hits.
	Search(ctx context.Context, collection string, query []float32, k int) ([]Hit, error)
	// Has reports whether id is stored in collection.
	Has(ctx context.Context, collection, id string) (bool, error)
	// Count is 0 for unknown collections.
	Count(ctx context.Context, collection string) (int, error)
	// ExistsWithData reports Count > 0.
	ExistsWithData(ctx context.Context, collection string) (bool, error)
	// DeleteCollection removes a collection and its items. Deleting an
	// unknown collection is not an error.
	DeleteCollection(ctx context.Context, collection string) error
	Close() error
}

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,127}$`)

// ValidateName rejects collection names that are empty or that contain
// characters outside [A-Za-z0-9_.-].
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: invalid collection name %q", domain.ErrInvalidInput, name)
	}
	return nil
}

// BuildRecords checks that the parallel slices line up and packs them into
// records. Vectors are copied.
func BuildRecords(ids []string, vectors [][]float32, texts []string, metadatas []Metadata) ([]Record, error) {
	n := len(ids)
	if len(vectors) != n || len(texts) != n || len(metadatas) != n {
		return nil, fmt.Errorf("%w: %d ids, %d vectors, %d texts, %d metadatas",
			domain.ErrShapeMismatch, n, len(vectors), len(texts), len(metadatas))
	}
	out := make([]Record, n)
	for i := range ids {
		v := make([]float32, len(vectors[i]))
		copy(v, vectors[i])
		out[i] = Record{ID: ids[i], Vector: v, Text: texts[i], Metadata: metadatas[i]}
	}
	return out, nil
}

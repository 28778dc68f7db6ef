package vectorstore

import (
	"fmt"
	"maps"
	"sort"
	"sync"
	"sync/atomic"

	"paperrag/internal/domain"
)

type snapshot struct {
	dim     int
	records []Record
	ids     map[string]struct{}
}

// Flat is a brute-force collection. Writers are serialised and publish a new
// immutable snapshot; readers never block and always see a complete batch.
type Flat struct {
	metric Metric
	mu     sync.Mutex
	snap   atomic.Pointer[snapshot]
}

// NewFlat creates a collection holding records. A dim of 0 means the first
// added vector decides it.
func NewFlat(metric Metric, dim int, records []Record) *Flat {
	f := &Flat{metric: metric}
	ids := make(map[string]struct{}, len(records))
	for _, r := range records {
		ids[r.ID] = struct{}{}
	}
	f.snap.Store(&snapshot{dim: dim, records: records, ids: ids})
	return f
}

func (f *Flat) Metric() Metric { return f.metric }

func (f *Flat) Dimension() int { return f.snap.Load().dim }

func (f *Flat) Len() int { return len(f.snap.Load().records) }

func (f *Flat) Has(id string) bool {
	_, ok := f.snap.Load().ids[id]
	return ok
}

// Append validates dimensions and publishes records. If commit is non-nil it
// runs under the write lock before publication; an error aborts the append.
func (f *Flat) Append(records []Record, commit func(dim int, records []Record) error) error {
	if len(records) == 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	cur := f.snap.Load()
	dim := cur.dim
	if dim == 0 {
		dim = len(records[0].Vector)
	}
	if dim == 0 {
		return fmt.Errorf("%w: empty vector", domain.ErrInvalidInput)
	}
	for _, r := range records {
		if len(r.Vector) != dim {
			return fmt.Errorf("%w: item %q has %d dimensions, collection has %d",
				domain.ErrDimensionMismatch, r.ID, len(r.Vector), dim)
		}
	}
	if commit != nil {
		if err := commit(dim, records); err != nil {
			return err
		}
	}

	next := &snapshot{
		dim:     dim,
		records: make([]Record, 0, len(cur.records)+len(records)),
		ids:     maps.Clone(cur.ids),
	}
	next.records = append(next.records, cur.records...)
	next.records = append(next.records, records...)
	for _, r := range records {
		next.ids[r.ID] = struct{}{}
	}
	f.snap.Store(next)
	return nil
}

// Search scans the current snapshot. Ties keep insertion order.
func (f *Flat) Search(query []float32, k int) ([]Hit, error) {
	s := f.snap.Load()
	if len(s.records) == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != s.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection has %d",
			domain.ErrDimensionMismatch, len(query), s.dim)
	}

	type scored struct {
		idx  int
		dist float64
	}
	results := make([]scored, len(s.records))
	for i := range s.records {
		results[i] = scored{idx: i, dist: f.metric.Distance(query, s.records[i].Vector)}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].dist < results[j].dist })
	if len(results) > k {
		results = results[:k]
	}

	hits := make([]Hit, len(results))
	for i, r := range results {
		rec := s.records[r.idx]
		hits[i] = Hit{ID: rec.ID, Text: rec.Text, Metadata: maps.Clone(rec.Metadata), Distance: r.dist}
	}
	return hits, nil
}

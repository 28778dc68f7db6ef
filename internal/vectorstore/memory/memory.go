// Package memory is a process-local vector index. Nothing survives Close.
package memory

import (
	"context"
	"fmt"
	"sync"

	"paperrag/internal/domain"
	"paperrag/internal/vectorstore"
)

// Storage keeps every collection as a flat snapshot in memory.
type Storage struct {
	mu          sync.Mutex
	collections map[string]*vectorstore.Flat
}

var _ vectorstore.Index = (*Storage)(nil)

func NewStorage() *Storage {
	return &Storage{collections: make(map[string]*vectorstore.Flat)}
}

func (s *Storage) EnsureCollection(_ context.Context, name string, metric vectorstore.Metric) (vectorstore.Collection, error) {
	if err := vectorstore.ValidateName(name); err != nil {
		return vectorstore.Collection{}, err
	}
	if metric == "" {
		metric = vectorstore.MetricCosine
	}
	s.mu.Lock()
	f, ok := s.collections[name]
	if !ok {
		f = vectorstore.NewFlat(metric, 0, nil)
		s.collections[name] = f
	}
	s.mu.Unlock()
	return describe(name, f), nil
}

func (s *Storage) Add(_ context.Context, collection string, ids []string, vectors [][]float32, texts []string, metadatas []vectorstore.Metadata) error {
	records, err := vectorstore.BuildRecords(ids, vectors, texts, metadatas)
	if err != nil {
		return err
	}
	f := s.get(collection)
	if f == nil {
		return fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, collection)
	}
	return f.Append(records, nil)
}

func (s *Storage) Search(_ context.Context, collection string, query []float32, k int) ([]vectorstore.Hit, error) {
	f := s.get(collection)
	if f == nil {
		return nil, nil
	}
	return f.Search(query, k)
}

func (s *Storage) Has(_ context.Context, collection, id string) (bool, error) {
	f := s.get(collection)
	return f != nil && f.Has(id), nil
}

func (s *Storage) Count(_ context.Context, collection string) (int, error) {
	if f := s.get(collection); f != nil {
		return f.Len(), nil
	}
	return 0, nil
}

func (s *Storage) ExistsWithData(ctx context.Context, collection string) (bool, error) {
	n, err := s.Count(ctx, collection)
	return n > 0, err
}

func (s *Storage) DeleteCollection(_ context.Context, collection string) error {
	s.mu.Lock()
	delete(s.collections, collection)
	s.mu.Unlock()
	return nil
}

func (s *Storage) Close() error {
	s.mu.Lock()
	s.collections = make(map[string]*vectorstore.Flat)
	s.mu.Unlock()
	return nil
}

func (s *Storage) get(name string) *vectorstore.Flat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collections[name]
}

func describe(name string, f *vectorstore.Flat) vectorstore.Collection {
	return vectorstore.Collection{Name: name, Metric: f.Metric(), Dimension: f.Dimension(), Count: f.Len()}
}

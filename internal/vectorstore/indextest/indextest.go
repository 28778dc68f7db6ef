// Package indextest holds behaviour checks shared by every vectorstore.Index
// backend.
package indextest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperrag/internal/domain"
	"paperrag/internal/vectorstore"
)

// Factory returns a fresh, empty index.
type Factory func(t *testing.T) vectorstore.Index

func unit(dim, hot int) []float32 {
	v := make([]float32, dim)
	v[hot%dim] = 1
	return v
}

func meta(i int) vectorstore.Metadata {
	return vectorstore.Metadata{"source": "paper", "chunk_index": i}
}

// Seed ensures collection and adds n orthogonal items "c0".."c{n-1}".
func Seed(t *testing.T, idx vectorstore.Index, collection string, n, dim int) {
	t.Helper()
	ctx := context.Background()
	_, err := idx.EnsureCollection(ctx, collection, vectorstore.MetricCosine)
	require.NoError(t, err)

	ids := make([]string, n)
	vecs := make([][]float32, n)
	texts := make([]string, n)
	metas := make([]vectorstore.Metadata, n)
	for i := 0; i < n; i++ {
		ids[i] = fmt.Sprintf("c%d", i)
		vecs[i] = unit(dim, i)
		texts[i] = fmt.Sprintf("text %d", i)
		metas[i] = meta(i)
	}
	require.NoError(t, idx.Add(ctx, collection, ids, vecs, texts, metas))
}

// Run exercises the Index contract.
func Run(t *testing.T, newIndex Factory) {
	t.Run("SearchFindsIdenticalVectorFirst", func(t *testing.T) {
		idx := newIndex(t)
		ctx := context.Background()
		Seed(t, idx, "papers", 5, 8)

		hits, err := idx.Search(ctx, "papers", unit(8, 3), 5)
		require.NoError(t, err)
		require.NotEmpty(t, hits)
		assert.Equal(t, "c3", hits[0].ID)
		assert.Equal(t, "text 3", hits[0].Text)
		assert.InDelta(t, 1.0, hits[0].Similarity(), 1e-4)
		assert.Equal(t, "paper", hits[0].Metadata["source"])
		assert.Equal(t, 3, domain.ChunkFromRecord(hits[0].ID, hits[0].Text, hits[0].Metadata).ChunkIndex)
		for i := 1; i < len(hits); i++ {
			assert.LessOrEqual(t, hits[i-1].Distance, hits[i].Distance)
		}
	})

	t.Run("SearchHonoursK", func(t *testing.T) {
		idx := newIndex(t)
		Seed(t, idx, "papers", 5, 8)
		hits, err := idx.Search(context.Background(), "papers", unit(8, 0), 2)
		require.NoError(t, err)
		assert.Len(t, hits, 2)
	})

	t.Run("UnknownAndEmptyCollectionsAreEmpty", func(t *testing.T) {
		idx := newIndex(t)
		ctx := context.Background()

		hits, err := idx.Search(ctx, "missing", unit(4, 0), 3)
		require.NoError(t, err)
		assert.Empty(t, hits)

		n, err := idx.Count(ctx, "missing")
		require.NoError(t, err)
		assert.Zero(t, n)

		ok, err := idx.ExistsWithData(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = idx.EnsureCollection(ctx, "empty", vectorstore.MetricCosine)
		require.NoError(t, err)
		hits, err = idx.Search(ctx, "empty", unit(4, 0), 3)
		require.NoError(t, err)
		assert.Empty(t, hits)
		ok, err = idx.ExistsWithData(ctx, "empty")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("EnsureCollectionIsIdempotent", func(t *testing.T) {
		idx := newIndex(t)
		ctx := context.Background()
		Seed(t, idx, "papers", 3, 4)

		c, err := idx.EnsureCollection(ctx, "papers", vectorstore.MetricL2)
		require.NoError(t, err)
		assert.Equal(t, "papers", c.Name)
		assert.Equal(t, vectorstore.MetricCosine, c.Metric)

		n, err := idx.Count(ctx, "papers")
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("AddValidatesShapeAndDimension", func(t *testing.T) {
		idx := newIndex(t)
		ctx := context.Background()
		Seed(t, idx, "papers", 2, 4)

		err := idx.Add(ctx, "papers", []string{"x"}, [][]float32{unit(4, 0)}, []string{"a", "b"}, []vectorstore.Metadata{meta(0)})
		assert.ErrorIs(t, err, domain.ErrShapeMismatch)

		err = idx.Add(ctx, "papers", []string{"x"}, [][]float32{unit(3, 0)}, []string{"a"}, []vectorstore.Metadata{meta(0)})
		assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

		err = idx.Add(ctx, "never-created", []string{"x"}, [][]float32{unit(4, 0)}, []string{"a"}, []vectorstore.Metadata{meta(0)})
		assert.ErrorIs(t, err, domain.ErrCollectionNotFound)

		n, err := idx.Count(ctx, "papers")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("SearchRejectsQueryOfWrongDimension", func(t *testing.T) {
		idx := newIndex(t)
		ctx := context.Background()
		Seed(t, idx, "papers", 2, 4)

		_, err := idx.Search(ctx, "papers", unit(3, 0), 2)
		assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

		_, err = idx.EnsureCollection(ctx, "empty", vectorstore.MetricCosine)
		require.NoError(t, err)
		hits, err := idx.Search(ctx, "empty", unit(3, 0), 2)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("HasAndDelete", func(t *testing.T) {
		idx := newIndex(t)
		ctx := context.Background()
		Seed(t, idx, "papers", 2, 4)

		ok, err := idx.Has(ctx, "papers", "c1")
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = idx.Has(ctx, "papers", "c9")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, idx.DeleteCollection(ctx, "papers"))
		require.NoError(t, idx.DeleteCollection(ctx, "papers"))

		n, err := idx.Count(ctx, "papers")
		require.NoError(t, err)
		assert.Zero(t, n)
		ok, err = idx.Has(ctx, "papers", "c1")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("CollectionsAreIsolated", func(t *testing.T) {
		idx := newIndex(t)
		ctx := context.Background()
		Seed(t, idx, "a", 3, 4)
		Seed(t, idx, "b", 1, 4)

		na, _ := idx.Count(ctx, "a")
		nb, _ := idx.Count(ctx, "b")
		assert.Equal(t, 3, na)
		assert.Equal(t, 1, nb)
	})

	t.Run("ConcurrentEnsureAndAdd", func(t *testing.T) {
		idx := newIndex(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				_, err := idx.EnsureCollection(ctx, "shared", vectorstore.MetricCosine)
				assert.NoError(t, err)
				id := fmt.Sprintf("w%d", w)
				err = idx.Add(ctx, "shared", []string{id}, [][]float32{unit(4, w)}, []string{id}, []vectorstore.Metadata{meta(w)})
				assert.NoError(t, err)
				_, err = idx.Search(ctx, "shared", unit(4, w), 3)
				assert.NoError(t, err)
			}(w)
		}
		wg.Wait()

		n, err := idx.Count(ctx, "shared")
		require.NoError(t, err)
		assert.Equal(t, 8, n)
	})
}

package lexical

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperrag/internal/domain"
)

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func TestEmbedderIsDeterministicAndNormalised(t *testing.T) {
	e := NewEmbedder(128)
	ctx := context.Background()

	a, err := e.EmbedOne(ctx, "Transformers rely on self-attention layers.")
	require.NoError(t, err)
	b, err := e.EmbedOne(ctx, "Transformers rely on self-attention layers.")
	require.NoError(t, err)

	require.Len(t, a, 128)
	assert.Equal(t, a, b)
	assert.InDelta(t, 1.0, math.Sqrt(dot(a, a)), 1e-5)
}

func TestEmbedderRanksOverlapHigher(t *testing.T) {
	e := NewEmbedder(512)
	ctx := context.Background()

	vecs, err := e.EmbedBatch(ctx, []string{
		"attention mechanism in neural translation",
		"neural translation with an attention mechanism",
		"recipe for sourdough bread baking",
	})
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	assert.Greater(t, dot(vecs[0], vecs[1]), dot(vecs[0], vecs[2]))
}

func TestEmbedderStopwordOnlyTextIsZero(t *testing.T) {
	e := NewEmbedder(0)
	assert.Equal(t, DefaultDimension, e.Dimension())

	v, err := e.EmbedOne(context.Background(), "the and of")
	require.NoError(t, err)
	assert.Zero(t, dot(v, v))
}

func TestEmbedderRejectsEmptyInput(t *testing.T) {
	e := NewEmbedder(16)
	_, err := e.EmbedOne(context.Background(), "  ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = e.EmbedBatch(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrEmptyInput)
}

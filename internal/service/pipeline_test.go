package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperrag/internal/chunker"
	"paperrag/internal/domain"
	"paperrag/internal/embedding/lexical"
	"paperrag/internal/summarizer"
	"paperrag/internal/vectorstore/memory"
)

func newPipeline(t *testing.T, emb domain.Embedder) (*Pipeline, *memory.Storage) {
	t.Helper()
	ch, err := chunker.NewRecursiveChunker(120, 20)
	require.NoError(t, err)
	idx := memory.NewStorage()
	p := NewPipeline(ch, emb, idx, summarizer.NewFrequencySummarizer(), Options{Collection: "papers", BatchSize: 2})
	return p, idx
}

func longText(sentence string, n int) string {
	return strings.Repeat(sentence+" ", n)
}

func TestIndexTextSkipsProcessedSource(t *testing.T) {
	p, idx := newPipeline(t, lexical.NewEmbedder(64))
	ctx := context.Background()
	text := longText("Graph neural networks pass messages between nodes.", 10)

	r, err := p.IndexText(ctx, text, "gnn.pdf")
	require.NoError(t, err)
	assert.False(t, r.Skipped)
	assert.Greater(t, r.Chunks, 1)

	n, err := p.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, r.Chunks, n)

	again, err := p.IndexText(ctx, text, "gnn.pdf")
	require.NoError(t, err)
	assert.True(t, again.Skipped)
	n, err = p.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, r.Chunks, n)

	ok, err := idx.Has(ctx, "papers", "gnn.pdf_chunk_0")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIndexTextRejectsEmptyText(t *testing.T) {
	p, _ := newPipeline(t, lexical.NewEmbedder(64))
	_, err := p.IndexText(context.Background(), "  ", "empty.pdf")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestReindexRebuildsCollection(t *testing.T) {
	p, _ := newPipeline(t, lexical.NewEmbedder(64))
	ctx := context.Background()

	_, err := p.IndexText(ctx, longText("Old content about convolution.", 8), "old.pdf")
	require.NoError(t, err)

	reports, err := p.Reindex(ctx, []Document{{Source: "new.pdf", Text: "Fresh content about diffusion models."}})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, 1, reports[0].Chunks)

	n, err := p.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

type brokenEmbedder struct{ *lexical.Embedder }

func (brokenEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("timeout")
}

func TestIndexTextWrapsEmbedderFailure(t *testing.T) {
	p, _ := newPipeline(t, brokenEmbedder{lexical.NewEmbedder(8)})
	ctx := context.Background()

	_, err := p.IndexText(ctx, "Some text.", "a.pdf")
	assert.ErrorIs(t, err, domain.ErrUpstreamFailure)

	n, err := p.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIngestFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("Attention is central. Attention helps transformers."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.md"), []byte("# Notes\n\nDiffusion models denoise images."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.pdf"), []byte("%PDF"), 0o644))

	p, _ := newPipeline(t, lexical.NewEmbedder(64))
	ctx := context.Background()

	res, err := p.IngestFiles(ctx, []string{filepath.Join(dir, "*")}, false)
	require.NoError(t, err)
	require.Len(t, res.Reports, 2)
	assert.Equal(t, "a.txt", res.Reports[0].Source)
	assert.Equal(t, "b.md", res.Reports[1].Source)
	assert.Contains(t, res.Summary, "Attention")

	res, err = p.IngestFiles(ctx, []string{filepath.Join(dir, "a.txt")}, false)
	require.NoError(t, err)
	assert.True(t, res.Reports[0].Skipped)

	res, err = p.IngestFiles(ctx, []string{filepath.Join(dir, "a.txt")}, true)
	require.NoError(t, err)
	assert.False(t, res.Reports[0].Skipped)
	n, err := p.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, res.Reports[0].Chunks, n)

	_, err = p.IngestFiles(ctx, []string{filepath.Join(dir, "*.pdf")}, false)
	assert.ErrorIs(t, err, ErrNoDocuments)
}

package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperrag/internal/chunker"
	"paperrag/internal/domain"
	"paperrag/internal/embedding/lexical"
	"paperrag/internal/retriever"
	"paperrag/internal/vectorstore"
	"paperrag/internal/vectorstore/memory"
)

const paper = `Attention mechanisms let a transformer weigh every token of the input sequence.

Multi-head attention runs several attention layers in parallel and concatenates their outputs.

Positional encodings inject token order because self-attention itself is permutation invariant.`

// fakeGenerator records transcripts and replies with a canned answer.
type fakeGenerator struct {
	mu    sync.Mutex
	calls [][]domain.Message
	reply string
	err   error
}

func (g *fakeGenerator) Complete(_ context.Context, messages []domain.Message) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, messages)
	return g.reply, g.err
}

func (g *fakeGenerator) last() []domain.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[len(g.calls)-1]
}

func newOrchestrator(t *testing.T, g *fakeGenerator) *Orchestrator {
	t.Helper()
	return newOrchestratorWith(t, g, Config{})
}

func newOrchestratorWith(t *testing.T, g *fakeGenerator, cfg Config) *Orchestrator {
	t.Helper()
	ctx := context.Background()
	emb := lexical.NewEmbedder(512)
	idx := memory.NewStorage()
	_, err := idx.EnsureCollection(ctx, retriever.DefaultCollection, vectorstore.MetricCosine)
	require.NoError(t, err)

	chunks, err := chunker.Split(paper, "attention.pdf", 100, 10)
	require.NoError(t, err)
	texts := make([]string, len(chunks))
	ids := make([]string, len(chunks))
	metas := make([]vectorstore.Metadata, len(chunks))
	for i, c := range chunks {
		texts[i], ids[i], metas[i] = c.Text, c.ID, c.Metadata()
	}
	vecs, err := emb.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	require.NoError(t, idx.Add(ctx, retriever.DefaultCollection, ids, vecs, texts, metas))

	r := retriever.New(emb, idx, retriever.WithNResults(2))
	return New(r, g, cfg, nil)
}

func TestAnswerGroundsPromptInContext(t *testing.T) {
	g := &fakeGenerator{reply: "Attention weighs tokens [CONTEXT 1]."}
	o := newOrchestrator(t, g)

	ans, err := o.Answer(context.Background(), "multi-head attention layers in parallel")
	require.NoError(t, err)
	assert.Equal(t, g.reply, ans.Answer)
	assert.NotEmpty(t, ans.ContextUsed)
	assert.GreaterOrEqual(t, ans.Relevance, DefaultLowRelevanceThreshold)

	msgs := g.last()
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "Use only the provided context")
	assert.Contains(t, msgs[1].Content, "[CONTEXT 1 | Source: attention.pdf | Relevance: ")
	assert.True(t, strings.HasSuffix(msgs[1].Content, "multi-head attention layers in parallel"))
}

func TestAnswerGatesUnrelatedQuestion(t *testing.T) {
	g := &fakeGenerator{reply: "should not be used"}
	o := newOrchestrator(t, g)

	ans, err := o.Answer(context.Background(), "best sourdough bread recipe")
	require.NoError(t, err)
	assert.Equal(t, NoRelevantAnswer, ans.Answer)
	assert.Empty(t, ans.ContextUsed)
	assert.Less(t, ans.Relevance, DefaultLowRelevanceThreshold)
	assert.Empty(t, g.calls)
}

func TestAnswerWithoutGateAlwaysGenerates(t *testing.T) {
	g := &fakeGenerator{reply: "The paper does not cover bread."}
	o := newOrchestratorWith(t, g, Config{LowRelevanceThreshold: NoRelevanceGate})

	ans, err := o.Answer(context.Background(), "best sourdough bread recipe")
	require.NoError(t, err)
	assert.Equal(t, g.reply, ans.Answer)
	assert.Len(t, g.calls, 1)
}

func TestAnswerWrapsGeneratorFailure(t *testing.T) {
	g := &fakeGenerator{err: errors.New("ollama not running")}
	o := newOrchestrator(t, g)

	_, err := o.Answer(context.Background(), "multi-head attention layers in parallel")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstreamFailure)
	var up *domain.UpstreamError
	require.ErrorAs(t, err, &up)
	assert.Equal(t, "generation", up.Port)
	assert.Equal(t, "answer", up.Op)
}

func TestAnswerRejectsEmptyQuestion(t *testing.T) {
	o := newOrchestrator(t, &fakeGenerator{})
	_, err := o.Answer(context.Background(), " ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestTranslateValidatesInput(t *testing.T) {
	g := &fakeGenerator{reply: "x"}
	o := newOrchestrator(t, g)

	_, err := o.Translate(context.Background(), "", "French", true)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = o.Translate(context.Background(), "text", "Klingon", true)
	assert.ErrorIs(t, err, domain.ErrUnsupportedLanguage)
	assert.Empty(t, g.calls)
}

func TestTranslateWithReferences(t *testing.T) {
	g := &fakeGenerator{reply: "Les mécanismes d'attention..."}
	o := newOrchestrator(t, g)

	tr, err := o.Translate(context.Background(), "Positional encodings inject token order.", "french", true)
	require.NoError(t, err)
	assert.Equal(t, "French", tr.TargetLanguage)
	assert.Equal(t, g.reply, tr.Translation)
	assert.NotEmpty(t, tr.ContextUsed)
	assert.LessOrEqual(t, len(tr.ContextUsed), DefaultTranslationReferenceChunks)

	msgs := g.last()
	assert.Contains(t, msgs[0].Content, "into French")
	assert.Contains(t, msgs[1].Content, "[Reference 1]: ")
	assert.True(t, strings.HasSuffix(msgs[1].Content, "Provide ONLY the translation, nothing else."))
}

func TestTranslateWithoutContextOmitsReferences(t *testing.T) {
	g := &fakeGenerator{reply: "Hola"}
	o := newOrchestrator(t, g)

	tr, err := o.Translate(context.Background(), "Hello", "Spanish", false)
	require.NoError(t, err)
	assert.Empty(t, tr.ContextUsed)
	msgs := g.last()
	assert.NotContains(t, msgs[1].Content, "Reference")
	assert.True(t, strings.HasPrefix(msgs[1].Content, "Translate the following research paper text into Spanish:"))
}

func TestSimplify(t *testing.T) {
	g := &fakeGenerator{reply: "Attention means looking at the important words."}
	o := newOrchestrator(t, g)

	s, err := o.Simplify(context.Background(), "Self-attention is permutation invariant.")
	require.NoError(t, err)
	assert.Equal(t, g.reply, s.Simplified)
	assert.Equal(t, "Self-attention is permutation invariant.", s.Original)
	assert.Contains(t, g.last()[0].Content, "smart 16 year old")

	_, err = o.Simplify(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestConfigDefaultsAndLanguages(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, 0.25, cfg.LowRelevanceThreshold)
	assert.Equal(t, 200, cfg.TranslationPrefixChars)
	assert.Equal(t, 2, cfg.TranslationReferenceChunks)
	assert.Len(t, cfg.Languages, 15)

	o := newOrchestrator(t, &fakeGenerator{})
	langs := o.Languages()
	langs[0] = "mutated"
	assert.Equal(t, "Hindi", o.Languages()[0])
}

func TestPrefixCountsCharacters(t *testing.T) {
	assert.Equal(t, "héll", prefix("héllo", 4))
	assert.Equal(t, "hi", prefix("hi", 200))
}

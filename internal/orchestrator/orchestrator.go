// Package orchestrator grounds generation requests in retrieved context.
// It gates question answering on retrieval quality and never writes to the
// index.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"paperrag/internal/domain"
	"paperrag/internal/llm"
	"paperrag/internal/retriever"
)

const (
	DefaultLowRelevanceThreshold      = 0.25
	DefaultTranslationPrefixChars     = 200
	DefaultTranslationReferenceChunks = 2

	// NoRelevanceGate as LowRelevanceThreshold lets every question reach
	// the generator.
	NoRelevanceGate = -1.0
)

// DefaultLanguages are the translation targets offered out of the box.
var DefaultLanguages = []string{
	"Hindi", "Gujarati", "Spanish", "French", "German",
	"Chinese", "Japanese", "Arabic", "Portuguese", "Italian",
	"Korean", "Russian", "Dutch", "Turkish", "Bengali",
}

// Config holds the orchestrator's tunables. Zero values take the defaults.
type Config struct {
	// LowRelevanceThreshold gates Answer: below it no generation call is made.
	// Zero takes the default; NoRelevanceGate turns the gate off.
	LowRelevanceThreshold float64
	// TranslationPrefixChars bounds the text used as retrieval query when
	// translating.
	TranslationPrefixChars int
	// TranslationReferenceChunks caps the terminology references in a
	// translation prompt.
	TranslationReferenceChunks int
	Languages                  []string
}

func (c Config) withDefaults() Config {
	if c.LowRelevanceThreshold == 0 {
		c.LowRelevanceThreshold = DefaultLowRelevanceThreshold
	}
	if c.TranslationPrefixChars <= 0 {
		c.TranslationPrefixChars = DefaultTranslationPrefixChars
	}
	if c.TranslationReferenceChunks <= 0 {
		c.TranslationReferenceChunks = DefaultTranslationReferenceChunks
	}
	if len(c.Languages) == 0 {
		c.Languages = DefaultLanguages
	}
	return c
}

// Answer is the result of a grounded question.
type Answer struct {
	Answer      string
	ContextUsed []domain.ScoredChunk
	Relevance   float64
}

// Translation is the result of a translation request.
type Translation struct {
	Translation    string
	TargetLanguage string
	ContextUsed    []domain.ScoredChunk
}

// Simplification pairs a plain-language rewrite with its source.
type Simplification struct {
	Simplified string
	Original   string
}

// Orchestrator dispatches answer, translate and simplify requests. It holds
// no mutable state; several may share one Retriever.
type Orchestrator struct {
	retriever *retriever.Retriever
	generator llm.Generator
	cfg       Config
	languages map[string]string
	logger    *slog.Logger
}

func New(r *retriever.Retriever, g llm.Generator, cfg Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	langs := make(map[string]string, len(cfg.Languages))
	for _, l := range cfg.Languages {
		langs[strings.ToLower(strings.TrimSpace(l))] = l
	}
	return &Orchestrator{retriever: r, generator: g, cfg: cfg, languages: langs, logger: logger}
}

// Languages lists the supported translation targets in configuration order.
func (o *Orchestrator) Languages() []string { return append([]string(nil), o.cfg.Languages...) }

// Answer retrieves context for question and, if it is relevant enough, asks
// the generator to answer from that context only.
func (o *Orchestrator) Answer(ctx context.Context, question string) (Answer, error) {
	if strings.TrimSpace(question) == "" {
		return Answer{}, fmt.Errorf("%w: question", domain.ErrEmptyInput)
	}
	log := o.requestLogger("answer")
	start := time.Now()

	res, err := o.retriever.Retrieve(ctx, question)
	if err != nil {
		return Answer{}, err
	}
	if res.AverageSimilarity < o.cfg.LowRelevanceThreshold {
		log.Info("answer gated on low relevance",
			"relevance", res.AverageSimilarity,
			"threshold", o.cfg.LowRelevanceThreshold)
		return Answer{Answer: NoRelevantAnswer, ContextUsed: []domain.ScoredChunk{}, Relevance: res.AverageSimilarity}, nil
	}

	messages := llm.Messages(answerSystemPrompt, answerUserPrompt(retriever.FormatContext(res.Chunks), question))
	out, err := o.generator.Complete(ctx, messages)
	if err != nil {
		return Answer{}, domain.Upstream("generation", "answer", err)
	}
	log.Info("answered",
		"chunks", len(res.Chunks),
		"relevance", res.AverageSimilarity,
		"elapsed", time.Since(start))
	return Answer{Answer: out, ContextUsed: res.Chunks, Relevance: res.AverageSimilarity}, nil
}

// Translate renders text in targetLanguage. With useContext, the top
// retrieved chunks for the start of text are offered as terminology
// references.
func (o *Orchestrator) Translate(ctx context.Context, text, targetLanguage string, useContext bool) (Translation, error) {
	if strings.TrimSpace(text) == "" {
		return Translation{}, fmt.Errorf("%w: text to translate", domain.ErrEmptyInput)
	}
	language, ok := o.languages[strings.ToLower(strings.TrimSpace(targetLanguage))]
	if !ok {
		return Translation{}, fmt.Errorf("%w: %q, choose from %s",
			domain.ErrUnsupportedLanguage, targetLanguage, strings.Join(o.cfg.Languages, ", "))
	}
	log := o.requestLogger("translate")

	refs := []domain.ScoredChunk{}
	if useContext {
		res, err := o.retriever.Retrieve(ctx, prefix(strings.TrimSpace(text), o.cfg.TranslationPrefixChars))
		if err != nil {
			return Translation{}, err
		}
		refs = res.Chunks[:min(len(res.Chunks), o.cfg.TranslationReferenceChunks)]
	}

	messages := llm.Messages(translateSystemPrompt(language), translateUserPrompt(text, language, refs))
	out, err := o.generator.Complete(ctx, messages)
	if err != nil {
		return Translation{}, domain.Upstream("generation", "translate", err)
	}
	log.Info("translated", "language", language, "references", len(refs))
	return Translation{Translation: out, TargetLanguage: language, ContextUsed: refs}, nil
}

// Simplify rewrites text in plain language. It does not consult the index.
func (o *Orchestrator) Simplify(ctx context.Context, text string) (Simplification, error) {
	if strings.TrimSpace(text) == "" {
		return Simplification{}, fmt.Errorf("%w: text to simplify", domain.ErrEmptyInput)
	}
	log := o.requestLogger("simplify")

	out, err := o.generator.Complete(ctx, llm.Messages(simplifySystemPrompt, simplifyUserPrompt(text)))
	if err != nil {
		return Simplification{}, domain.Upstream("generation", "simplify", err)
	}
	log.Info("simplified", "chars", len([]rune(text)))
	return Simplification{Simplified: out, Original: text}, nil
}

func (o *Orchestrator) requestLogger(op string) *slog.Logger {
	return o.logger.With("op", op, "request_id", uuid.NewString(), "collection", o.retriever.Collection())
}

// prefix returns the first n characters of s.
func prefix(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

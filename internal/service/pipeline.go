// Package service wires the chunker, embedder and index into the ingestion
// pipeline that fills a collection.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"paperrag/internal/domain"
	"paperrag/internal/embedding"
	"paperrag/internal/vectorstore"
)

// ErrNoDocuments is returned by IngestFiles when no path names a readable
// text document.
var ErrNoDocuments = errors.New("no .txt or .md documents found")

var textExtensions = map[string]bool{".txt": true, ".md": true}

const defaultBatchSize = 32

// Document is clean text plus the name chunks are attributed to.
type Document struct {
	Source string
	Text   string
}

// IndexReport describes what happened to one document.
type IndexReport struct {
	Source  string
	Chunks  int
	Skipped bool
}

// IngestResult is the outcome of IngestFiles.
type IngestResult struct {
	Reports []IndexReport
	Summary string
}

// Options tune a Pipeline. Zero values take defaults.
type Options struct {
	Collection       string
	Metric           vectorstore.Metric
	BatchSize        int
	SummarySentences int
	Logger           *slog.Logger
}

// Pipeline indexes documents into one collection.
type Pipeline struct {
	chunker    domain.Chunker
	embedder   domain.Embedder
	index      vectorstore.Index
	summarizer domain.Summarizer
	opts       Options
}

func NewPipeline(chunker domain.Chunker, embedder domain.Embedder, index vectorstore.Index, summarizer domain.Summarizer, opts Options) *Pipeline {
	if opts.Collection == "" {
		opts.Collection = "research_papers"
	}
	if opts.Metric == "" {
		opts.Metric = vectorstore.MetricCosine
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.SummarySentences <= 0 {
		opts.SummarySentences = 5
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Pipeline{chunker: chunker, embedder: embedder, index: index, summarizer: summarizer, opts: opts}
}

func (p *Pipeline) Collection() string { return p.opts.Collection }

// IndexText chunks, embeds and stores text. A source whose first chunk is
// already in the collection is skipped, so chunk IDs are never re-added.
func (p *Pipeline) IndexText(ctx context.Context, text, source string) (IndexReport, error) {
	chunks, err := p.chunker.Split(text, source)
	if err != nil {
		return IndexReport{Source: source}, err
	}
	source = chunks[0].Source
	report := IndexReport{Source: source, Chunks: len(chunks)}

	if _, err := p.index.EnsureCollection(ctx, p.opts.Collection, p.opts.Metric); err != nil {
		return report, err
	}
	done, err := p.index.Has(ctx, p.opts.Collection, chunks[0].ID)
	if err != nil {
		return report, err
	}
	if done {
		report.Skipped = true
		p.opts.Logger.Info("source already indexed", "source", source, "collection", p.opts.Collection)
		return report, nil
	}

	start := time.Now()
	ids := make([]string, len(chunks))
	texts := make([]string, len(chunks))
	metas := make([]vectorstore.Metadata, len(chunks))
	for i, c := range chunks {
		ids[i], texts[i], metas[i] = c.ID, c.Text, c.Metadata()
	}
	vectors := make([][]float32, 0, len(chunks))
	for _, b := range embedding.Batches(len(texts), p.opts.BatchSize) {
		vecs, err := p.embedder.EmbedBatch(ctx, texts[b[0]:b[1]])
		if err != nil {
			return report, domain.Upstream("embedding", "embed chunks of "+source, err)
		}
		vectors = append(vectors, vecs...)
	}
	if err := p.index.Add(ctx, p.opts.Collection, ids, vectors, texts, metas); err != nil {
		return report, fmt.Errorf("store chunks of %s: %w", source, err)
	}
	p.opts.Logger.Info("source indexed",
		"source", source,
		"chunks", len(chunks),
		"collection", p.opts.Collection,
		"elapsed", time.Since(start))
	return report, nil
}

// Reindex drops the collection and indexes docs from scratch.
func (p *Pipeline) Reindex(ctx context.Context, docs []Document) ([]IndexReport, error) {
	if err := p.Clear(ctx); err != nil {
		return nil, err
	}
	reports := make([]IndexReport, 0, len(docs))
	for _, d := range docs {
		r, err := p.IndexText(ctx, d.Text, d.Source)
		if err != nil {
			return reports, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// IngestFiles reads plain-text files named by paths or glob patterns,
// indexes them under their base names and summarises the corpus. With
// reindex the collection is rebuilt first.
func (p *Pipeline) IngestFiles(ctx context.Context, paths []string, reindex bool) (IngestResult, error) {
	docs, err := LoadDocuments(paths)
	if err != nil {
		return IngestResult{}, err
	}

	var reports []IndexReport
	if reindex {
		reports, err = p.Reindex(ctx, docs)
	} else {
		for _, d := range docs {
			var r IndexReport
			r, err = p.IndexText(ctx, d.Text, d.Source)
			if err != nil {
				break
			}
			reports = append(reports, r)
		}
	}
	if err != nil {
		return IngestResult{Reports: reports}, err
	}

	var all strings.Builder
	for _, d := range docs {
		all.WriteString(d.Text)
		all.WriteString("\n")
	}
	summary, err := p.summarizer.Summarize(all.String(), p.opts.SummarySentences)
	if err != nil {
		return IngestResult{Reports: reports}, err
	}
	return IngestResult{Reports: reports, Summary: summary}, nil
}

// Clear deletes the collection.
func (p *Pipeline) Clear(ctx context.Context) error {
	return p.index.DeleteCollection(ctx, p.opts.Collection)
}

// Count is the number of chunks in the collection.
func (p *Pipeline) Count(ctx context.Context) (int, error) {
	return p.index.Count(ctx, p.opts.Collection)
}

// LoadDocuments expands paths and globs and reads every .txt and .md file.
func LoadDocuments(paths []string) ([]Document, error) {
	var docs []Document
	for _, pattern := range paths {
		matches, _ := filepath.Glob(pattern)
		if matches == nil {
			matches = []string{pattern}
		}
		for _, m := range matches {
			if !textExtensions[strings.ToLower(filepath.Ext(m))] {
				continue
			}
			data, err := os.ReadFile(m)
			if err != nil {
				return nil, err
			}
			docs = append(docs, Document{Source: filepath.Base(m), Text: string(data)})
		}
	}
	if len(docs) == 0 {
		return nil, ErrNoDocuments
	}
	return docs, nil
}

package domain

import (
	"context"
	"fmt"
)

// Chunk is a contiguous window of a source document used for indexing.
type Chunk struct {
	ID          string
	Text        string
	Source      string
	ChunkIndex  int
	TotalChunks int
	CharCount   int
}

// ChunkID derives the stable identifier of the index-th chunk of source.
func ChunkID(source string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", source, index)
}

// Metadata keys stored next to every indexed chunk.
const (
	MetaSource      = "source"
	MetaChunkIndex  = "chunk_index"
	MetaTotalChunks = "total_chunks"
	MetaCharCount   = "char_count"
)

// Metadata renders the chunk's index metadata.
func (c Chunk) Metadata() map[string]any {
	return map[string]any{
		MetaSource:      c.Source,
		MetaChunkIndex:  c.ChunkIndex,
		MetaTotalChunks: c.TotalChunks,
		MetaCharCount:   c.CharCount,
	}
}

// ChunkFromRecord rebuilds a chunk from what an index hands back. Numeric
// metadata may come back as any integer or float type depending on the codec.
func ChunkFromRecord(id, text string, meta map[string]any) Chunk {
	c := Chunk{ID: id, Text: text}
	if s, ok := meta[MetaSource].(string); ok {
		c.Source = s
	}
	c.ChunkIndex = intValue(meta[MetaChunkIndex])
	c.TotalChunks = intValue(meta[MetaTotalChunks])
	c.CharCount = intValue(meta[MetaCharCount])
	return c
}

func intValue(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int8:
		return int(n)
	case int16:
		return int(n)
	case int32:
		return int(n)
	case int64:
		return int(n)
	case uint:
		return int(n)
	case uint8:
		return int(n)
	case uint16:
		return int(n)
	case uint32:
		return int(n)
	case uint64:
		return int(n)
	case float32:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

// ScoredChunk is a chunk annotated with its similarity to a query.
type ScoredChunk struct {
	Chunk
	Similarity float64
}

// RetrievalResult is the ranked outcome of one retrieval.
type RetrievalResult struct {
	Chunks            []ScoredChunk
	AverageSimilarity float64
}

// Role of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn sent to the generation backend.
type Message struct {
	Role    Role
	Content string
}

// Embedder converts free text into a fixed-dimension vector.
type Embedder interface {
	Name() string
	Dimension() int
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator completes a chat transcript.
type Generator interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Chunker splits a document into indexable chunks.
type Chunker interface {
	Split(text, source string) ([]Chunk, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}

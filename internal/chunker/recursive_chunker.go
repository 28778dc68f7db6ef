package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"paperrag/internal/domain"
)

const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
	unknownSource       = "unknown"
)

// separators in priority order: paragraphs, lines, sentence ends, words.
// When none of them occurs the text is cut character by character.
var separators = []string{"\n\n", "\n", ".", "!", "?", " "}

// RecursiveChunker splits text into overlapping chunks of at most size
// characters, preferring the coarsest boundary that fits.
type RecursiveChunker struct {
	size    int
	overlap int
}

// NewRecursiveChunker validates the window and returns a chunker.
func NewRecursiveChunker(size, overlap int) (*RecursiveChunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrInvalidInput, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap must be in [0, %d), got %d", domain.ErrInvalidInput, size, overlap)
	}
	return &RecursiveChunker{size: size, overlap: overlap}, nil
}

// Split is a one-shot helper equivalent to NewRecursiveChunker(size, overlap).Split(text, source).
func Split(text, source string, size, overlap int) ([]domain.Chunk, error) {
	c, err := NewRecursiveChunker(size, overlap)
	if err != nil {
		return nil, err
	}
	return c.Split(text, source)
}

// Split cuts text into chunks tagged with source. An empty source is
// recorded as "unknown".
func (c *RecursiveChunker) Split(text, source string) ([]domain.Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: nothing to chunk", domain.ErrEmptyInput)
	}
	if source == "" {
		source = unknownSource
	}
	b := newBuilder(source)
	for _, piece := range c.split(text, separators) {
		b.add(piece)
	}
	return b.build(), nil
}

func (c *RecursiveChunker) split(text string, seps []string) []string {
	sep := ""
	var rest []string
	for i, s := range seps {
		if strings.Contains(text, s) {
			sep = s
			rest = seps[i+1:]
			break
		}
	}

	var out, good []string
	for _, piece := range splitKeepingSeparator(text, sep) {
		if runeLen(piece) < c.size {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			out = append(out, c.merge(good)...)
			good = nil
		}
		if sep == "" {
			if strings.TrimSpace(piece) != "" {
				out = append(out, piece)
			}
			continue
		}
		out = append(out, c.split(piece, rest)...)
	}
	if len(good) > 0 {
		out = append(out, c.merge(good)...)
	}
	return out
}

// merge packs small pieces into windows of at most size characters. When a
// window is emitted, pieces are dropped from its front until no more than
// overlap characters remain to seed the next one.
func (c *RecursiveChunker) merge(pieces []string) []string {
	var (
		docs    []string
		current []string
		total   int
	)
	for _, p := range pieces {
		n := runeLen(p)
		if total+n > c.size && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
				docs = append(docs, doc)
			}
			for total > c.overlap || (total+n > c.size && total > 0) {
				total -= runeLen(current[0])
				current = current[1:]
			}
		}
		current = append(current, p)
		total += n
	}
	if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

// splitKeepingSeparator splits on sep leaving each separator attached to the
// end of the piece it terminates. An empty sep yields single characters.
func splitKeepingSeparator(text, sep string) []string {
	var parts []string
	if sep == "" {
		parts = strings.Split(text, "")
	} else {
		parts = strings.SplitAfter(text, sep)
	}
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

// builder accumulates chunk texts and stamps the total once all are known.
type builder struct {
	source string
	texts  []string
}

func newBuilder(source string) *builder { return &builder{source: source} }

func (b *builder) add(text string) { b.texts = append(b.texts, text) }

func (b *builder) build() []domain.Chunk {
	chunks := make([]domain.Chunk, len(b.texts))
	for i, t := range b.texts {
		chunks[i] = domain.Chunk{
			ID:          domain.ChunkID(b.source, i),
			Text:        t,
			Source:      b.source,
			ChunkIndex:  i,
			TotalChunks: len(b.texts),
			CharCount:   runeLen(t),
		}
	}
	return chunks
}

package summarizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const abstract = `Transformers replace recurrence with attention. The weather was pleasant.
Attention lets transformers model long sequences. Lunch was served at noon.
Scaled attention improves transformers further.`

func TestSummarizePicksTopicalSentencesInOrder(t *testing.T) {
	s := NewFrequencySummarizer()
	out, err := s.Summarize(abstract, 1)
	require.NoError(t, err)
	assert.Equal(t, "Attention lets transformers model long sequences.", out)

	out, err = s.Summarize(abstract, 3)
	require.NoError(t, err)
	assert.Equal(t, "Transformers replace recurrence with attention. Attention lets transformers model long sequences. Scaled attention improves transformers further.", out)
}

func TestSummarizeWithoutPunctuation(t *testing.T) {
	s := NewFrequencySummarizer()
	out, err := s.Summarize("  no sentence end here  ", 3)
	require.NoError(t, err)
	assert.Equal(t, "no sentence end here", out)
}

func TestTopTerms(t *testing.T) {
	s := NewFrequencySummarizer()
	assert.Equal(t, []string{"attention", "transformers"}, s.TopTerms(abstract, 2))
	assert.Empty(t, s.TopTerms("the of and", 3))
}

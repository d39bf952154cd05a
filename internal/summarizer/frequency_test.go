package summarizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"syllabiq/internal/config"
)

func TestSummarize_PicksFrequentSentencesInOrder(t *testing.T) {
	text := `# Transport

TCP is reliable. The weather was nice. TCP uses a handshake before TCP sends data. Lunch was late.`
	s := NewFrequencySummarizer()
	out, err := s.Summarize(text, 2)
	require.NoError(t, err)
	assert.Equal(t, "TCP is reliable. TCP uses a handshake before TCP sends data.", out)
}

func TestSummarize_Edges(t *testing.T) {
	s := NewFrequencySummarizer()
	out, err := s.Summarize("  no punctuation here  ", 3)
	require.NoError(t, err)
	assert.Equal(t, "no punctuation here", out)

	out, err = s.Summarize("One fact. Two facts.", 10)
	require.NoError(t, err)
	assert.Equal(t, "One fact. Two facts.", out)
}

func TestNew(t *testing.T) {
	_, err := New(config.SummarizerConfig{Type: "frequency"})
	require.NoError(t, err)
	_, err = New(config.SummarizerConfig{Type: "llm"})
	assert.Error(t, err)
}

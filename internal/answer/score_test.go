package answer

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/askmysite/askmysite/internal/rag"
)

func chunk(id string, score float64, distance bool) rag.RetrievedChunk {
	return rag.RetrievedChunk{
		ChunkID:    id,
		Text:       "evidence text",
		Score:      score,
		IsDistance: distance,
		Metadata:   rag.ChunkMetadata{URL: "https://example.com", Title: "Home"},
	}
}

func TestBuildCitations_DistanceConvertedToSimilarity(t *testing.T) {
	t.Parallel()

	citations := BuildCitations([]rag.RetrievedChunk{
		chunk("c1", 0.25, true),
		chunk("c2", 0.85, false),
		chunk("c3", 1.7, true),
	})
	require.Len(t, citations, 3)
	require.InDelta(t, 0.75, citations[0].Score, 1e-9)
	require.InDelta(t, 0.85, citations[1].Score, 1e-9)
	// Distances above 1 clamp to zero similarity.
	require.Zero(t, citations[2].Score)
}

func TestBuildCitations_QuoteTruncated(t *testing.T) {
	t.Parallel()

	long := chunk("c1", 0.1, true)
	long.Text = strings.Repeat("word ", 60)
	short := chunk("c2", 0.1, true)
	short.Text = "a brief chunk"

	citations := BuildCitations([]rag.RetrievedChunk{long, short})
	require.True(t, strings.HasSuffix(citations[0].Quote, "..."))
	require.LessOrEqual(t, len(citations[0].Quote), 153)
	require.Equal(t, "a brief chunk", citations[1].Quote)
}

func TestBuildCitations_QuoteKeepsRunesIntact(t *testing.T) {
	t.Parallel()

	// A multi-byte rune sits on the truncation boundary.
	accented := chunk("c1", 0.1, true)
	accented.Text = strings.Repeat("a", 149) + strings.Repeat("é", 11)

	citations := BuildCitations([]rag.RetrievedChunk{accented})
	quote := citations[0].Quote
	require.True(t, utf8.ValidString(quote), "quote contains invalid UTF-8: %q", quote)
	require.True(t, strings.HasSuffix(quote, "é..."))
	require.Equal(t, maxQuoteLength+3, utf8.RuneCountInString(quote))
}

func TestBuildCitations_ScoreRounded(t *testing.T) {
	t.Parallel()

	citations := BuildCitations([]rag.RetrievedChunk{chunk("c1", 0.123456, true)})
	require.Equal(t, 0.877, citations[0].Score)
}

func TestEstimateConfidence(t *testing.T) {
	t.Parallel()

	strong := []rag.RetrievedChunk{chunk("c1", 0.2, true), chunk("c2", 0.25, true)}
	strongCitations := BuildCitations(strong)

	t.Run("no chunks is low", func(t *testing.T) {
		t.Parallel()
		require.Equal(t, rag.ConfidenceLow, EstimateConfidence(nil, "any answer", nil))
	})

	t.Run("refusal phrase is low regardless of scores", func(t *testing.T) {
		t.Parallel()
		got := EstimateConfidence(strong, "The evidence is INSUFFICIENT to answer.", strongCitations)
		require.Equal(t, rag.ConfidenceLow, got)
	})

	t.Run("weak average is low", func(t *testing.T) {
		t.Parallel()
		weak := []rag.RetrievedChunk{chunk("c1", 0.7, true), chunk("c2", 0.8, true)}
		got := EstimateConfidence(weak, "confident answer", BuildCitations(weak))
		require.Equal(t, rag.ConfidenceLow, got)
	})

	t.Run("middling average is medium", func(t *testing.T) {
		t.Parallel()
		mid := []rag.RetrievedChunk{chunk("c1", 0.5, true), chunk("c2", 0.5, true)}
		got := EstimateConfidence(mid, "confident answer", BuildCitations(mid))
		require.Equal(t, rag.ConfidenceMedium, got)
	})

	t.Run("single chunk caps at medium", func(t *testing.T) {
		t.Parallel()
		one := []rag.RetrievedChunk{chunk("c1", 0.1, true)}
		got := EstimateConfidence(one, "confident answer", BuildCitations(one))
		require.Equal(t, rag.ConfidenceMedium, got)
	})

	t.Run("strong evidence is high", func(t *testing.T) {
		t.Parallel()
		got := EstimateConfidence(strong, "confident answer", strongCitations)
		require.Equal(t, rag.ConfidenceHigh, got)
	})
}

func TestGroundingNotes(t *testing.T) {
	t.Parallel()

	chunks := []rag.RetrievedChunk{chunk("c1", 0.2, true), chunk("c2", 0.3, true)}
	citations := BuildCitations(chunks)

	high := GroundingNotes(citations, rag.ConfidenceHigh)
	require.Equal(t, "Answer supported by 2 relevant sources with high confidence (avg similarity: 0.75)", high)

	medium := GroundingNotes(citations, rag.ConfidenceMedium)
	require.Contains(t, medium, "partially supported by 2 sources")
	require.Contains(t, medium, "0.75")

	low := GroundingNotes(nil, rag.ConfidenceLow)
	require.Contains(t, low, "Limited evidence found")
	require.Contains(t, low, "0 chunks")
}

func TestScore_EndToEnd(t *testing.T) {
	t.Parallel()

	chunks := []rag.RetrievedChunk{chunk("c1", 0.2, true), chunk("c2", 0.25, true)}
	citations, confidence, notes := Score(chunks, "The site says so. [Chunk 0]")
	require.Len(t, citations, 2)
	require.Equal(t, rag.ConfidenceHigh, confidence)
	require.NotEmpty(t, notes)
}

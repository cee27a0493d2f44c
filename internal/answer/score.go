// Package answer scores generated answers against their retrieved evidence.
package answer

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/askmysite/askmysite/internal/rag"
)

// maxQuoteLength bounds the citation excerpt taken from each chunk.
const maxQuoteLength = 150

// refusalPhrases mark answers where the model hedged or declined. Any of
// these appearing in the answer caps confidence at low.
var refusalPhrases = []string{
	"cannot find",
	"insufficient",
	"not mentioned",
	"no evidence",
	"cannot answer",
	"unclear",
	"not available",
}

// confidence thresholds over average citation similarity.
const (
	lowScoreThreshold  = 0.4
	highScoreThreshold = 0.6
)

// Score turns retrieved chunks and the generated answer text into citations,
// a confidence tier, and a grounding note.
func Score(chunks []rag.RetrievedChunk, answerText string) ([]rag.Citation, rag.Confidence, string) {
	citations := BuildCitations(chunks)
	confidence := EstimateConfidence(chunks, answerText, citations)
	notes := GroundingNotes(citations, confidence)
	return citations, confidence, notes
}

// BuildCitations derives one citation per chunk. Distance metrics are
// converted to similarity; scores are rounded to three decimals.
func BuildCitations(chunks []rag.RetrievedChunk) []rag.Citation {
	citations := make([]rag.Citation, 0, len(chunks))
	for _, chunk := range chunks {
		quote := strings.TrimSpace(truncate(chunk.Text, maxQuoteLength))
		if utf8.RuneCountInString(chunk.Text) > maxQuoteLength {
			quote += "..."
		}

		score := chunk.Score
		if chunk.IsDistance {
			score = math.Max(0, 1-score)
		}

		citations = append(citations, rag.Citation{
			URL:     chunk.Metadata.URL,
			Title:   chunk.Metadata.Title,
			ChunkID: chunk.ChunkID,
			Quote:   quote,
			Score:   round3(score),
		})
	}
	return citations
}

// EstimateConfidence labels how well the answer is supported by evidence.
// The label is a caution signal for the caller, not a correctness proof.
func EstimateConfidence(chunks []rag.RetrievedChunk, answerText string, citations []rag.Citation) rag.Confidence {
	if len(chunks) == 0 || len(citations) == 0 {
		return rag.ConfidenceLow
	}

	avg := averageScore(citations)
	lower := strings.ToLower(answerText)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return rag.ConfidenceLow
		}
	}

	switch {
	case avg < lowScoreThreshold:
		return rag.ConfidenceLow
	case avg < highScoreThreshold || len(chunks) == 1:
		return rag.ConfidenceMedium
	default:
		return rag.ConfidenceHigh
	}
}

// GroundingNotes renders a human-readable sentence about the evidence base.
func GroundingNotes(citations []rag.Citation, confidence rag.Confidence) string {
	n := len(citations)
	avg := averageScore(citations)
	switch confidence {
	case rag.ConfidenceHigh:
		return fmt.Sprintf("Answer supported by %d relevant sources with high confidence (avg similarity: %.2f)", n, avg)
	case rag.ConfidenceMedium:
		return fmt.Sprintf("Answer partially supported by %d sources (avg similarity: %.2f). Some details may require additional verification.", n, avg)
	default:
		return fmt.Sprintf("Limited evidence found. Answer based on %d chunks (avg similarity: %.2f). Additional sources recommended.", n, avg)
	}
}

func averageScore(citations []rag.Citation) float64 {
	if len(citations) == 0 {
		return 0
	}
	var sum float64
	for _, c := range citations {
		sum += c.Score
	}
	return sum / float64(len(citations))
}

// truncate bounds s to n characters, never splitting a multi-byte rune.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

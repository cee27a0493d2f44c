// Package anthropic generates grounded answers with the Anthropic messages API.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/aktagon/llmkit/anthropic"
	"github.com/aktagon/llmkit/anthropic/types"

	"github.com/askmysite/askmysite/internal/rag"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "claude-3-5-haiku-latest"

	defaultMaxTokens = 500

	// Low temperature keeps the answer close to the supplied evidence.
	answerTemperature = 0.2

	// Chunk text is truncated before prompting to keep context bounded.
	maxChunkPromptLength = 500
)

const systemPrompt = `You are an evidence-based research assistant. You must:
1. Answer ONLY based on the provided evidence/chunks
2. Be factually accurate and never fabricate information
3. If evidence is insufficient, explicitly say so
4. Keep your answer concise but comprehensive
5. Reference chunk numbers where you draw facts from: e.g., "According to [Chunk 0]..."
6. If asked about something not in the evidence, refuse to answer`

// Config controls the answer generator.
type Config struct {
	APIKey    string
	Model     string
	MaxTokens int
}

// Generator produces answers grounded in retrieved chunks.
type Generator struct {
	apiKey    string
	model     string
	maxTokens int
}

// New creates a Generator from config, applying defaults for unset fields.
func New(cfg Config) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Generator{
		apiKey:    cfg.APIKey,
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

// Generate answers the question using only the supplied chunks as evidence.
func (g *Generator) Generate(ctx context.Context, question string, chunks []rag.RetrievedChunk) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	settings := types.RequestSettings{
		Model:       g.model,
		MaxTokens:   g.maxTokens,
		Temperature: answerTemperature,
	}
	response, err := anthropic.PromptWithSettings(systemPrompt, buildUserPrompt(question, chunks), "", g.apiKey, settings)
	if err != nil {
		return "", fmt.Errorf("answer generation failed: %w", err)
	}
	if len(response.Content) == 0 {
		return "", fmt.Errorf("no content in response")
	}
	return response.Content[0].Text, nil
}

func buildUserPrompt(question string, chunks []rag.RetrievedChunk) string {
	parts := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		text := chunk.Text
		if runes := []rune(text); len(runes) > maxChunkPromptLength {
			text = string(runes[:maxChunkPromptLength])
		}
		parts = append(parts, fmt.Sprintf("[Chunk %d] %s...", i, text))
	}
	evidence := strings.Join(parts, "\n\n")

	return fmt.Sprintf(`Evidence/Context:
%s

Question: %s

Answer based ONLY on the evidence provided. Reference chunk numbers for each fact.`, evidence, question)
}

package ai

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiGenerator talks to the Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini-backed generator.
func NewGemini(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required: %w", ErrBackendUnavailable)
	}
	if model == "" {
		model = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiGenerator{client: client, model: model}, nil
}

func (g *GeminiGenerator) Name() string {
	return fmt.Sprintf("gemini:%s", g.model)
}

func (g *GeminiGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), g.contentConfig(system))
	if err != nil {
		return "", fmt.Errorf("gemini generate failed: %w", err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

func (g *GeminiGenerator) Stream(ctx context.Context, system, prompt string, onDelta func(string)) (string, error) {
	var builder strings.Builder
	for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, genai.Text(prompt), g.contentConfig(system)) {
		if err != nil {
			return builder.String(), fmt.Errorf("gemini stream failed: %w", err)
		}
		chunk := resp.Text()
		if chunk == "" {
			continue
		}
		builder.WriteString(chunk)
		if onDelta != nil {
			onDelta(chunk)
		}
	}
	return builder.String(), nil
}

func (g *GeminiGenerator) contentConfig(system string) *genai.GenerateContentConfig {
	if system == "" {
		return nil
	}
	return &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
	}
}

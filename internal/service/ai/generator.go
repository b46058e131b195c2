package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"

	"github.com/cycore-edu/cycore/backend/internal/config"
	"github.com/cycore-edu/cycore/backend/internal/logger"
)

// ErrBackendUnavailable is returned when no generation backend is configured.
var ErrBackendUnavailable = errors.New("generation backend not configured")

// Generator produces tutor text from an assembled prompt.
type Generator interface {
	// Generate returns the complete response.
	Generate(ctx context.Context, system, prompt string) (string, error)
	// Stream forwards each chunk to onDelta and returns the concatenated text.
	Stream(ctx context.Context, system, prompt string, onDelta func(string)) (string, error)
	// Name identifies the backend in logs.
	Name() string
}

// New selects a backend from configuration. Gemini wins when both are set
// and no provider is named explicitly.
func New(ctx context.Context, cfg config.AIConfig, log *logger.Logger) (Generator, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		switch {
		case cfg.GeminiEnabled():
			provider = config.ProviderGemini
		case cfg.Enabled():
			provider = config.ProviderArk
		default:
			return nil, ErrBackendUnavailable
		}
	}

	var (
		gen Generator
		err error
	)
	switch provider {
	case config.ProviderGemini:
		gen, err = NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	case config.ProviderArk:
		var chatModel model.ChatModel
		chatModel, err = cfg.NewChatModel(ctx)
		if err == nil {
			gen, err = NewEino(ctx, chatModel, cfg.Model)
		}
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s generator: %w", provider, err)
	}

	log.Info("generation backend ready", "provider", gen.Name())
	return gen, nil
}

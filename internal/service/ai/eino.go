package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

// EinoGenerator runs prompts through an eino chain ending in a chat model.
type EinoGenerator struct {
	name  string
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewEino compiles a template of an optional system message and the user
// prompt in front of chatModel.
func NewEino(ctx context.Context, chatModel model.ChatModel, modelName string) (*EinoGenerator, error) {
	if chatModel == nil {
		return nil, ErrBackendUnavailable
	}

	template := prompt.FromMessages(
		schema.FString,
		schema.MessagesPlaceholder("system", true),
		schema.UserMessage("{prompt}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(template)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	name := "eino"
	if modelName != "" {
		name = "eino:" + modelName
	}
	return &EinoGenerator{name: name, chain: runnable}, nil
}

func (g *EinoGenerator) Name() string { return g.name }

func (g *EinoGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	msg, err := g.chain.Invoke(ctx, chainInput(system, prompt))
	if err != nil {
		return "", fmt.Errorf("failed to run chat chain: %w", err)
	}
	if msg == nil {
		return "", nil
	}
	return msg.Content, nil
}

func (g *EinoGenerator) Stream(ctx context.Context, system, prompt string, onDelta func(string)) (string, error) {
	stream, err := g.chain.Stream(ctx, chainInput(system, prompt))
	if err != nil {
		return "", fmt.Errorf("failed to stream chat chain: %w", err)
	}
	defer stream.Close()

	var builder strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return builder.String(), fmt.Errorf("stream receive failed: %w", err)
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}
		builder.WriteString(chunk.Content)
		if onDelta != nil {
			onDelta(chunk.Content)
		}
	}
	return builder.String(), nil
}

func chainInput(system, prompt string) map[string]any {
	var systemMsgs []*schema.Message
	if system != "" {
		systemMsgs = append(systemMsgs, schema.SystemMessage(system))
	}
	return map[string]any{
		"system": systemMsgs,
		"prompt": prompt,
	}
}

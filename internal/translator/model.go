package translator

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/openai"
)

// translationTemperature keeps the model deterministic enough for the
// strict JSON protocol.
var translationTemperature = float32(0.1)

// NewChatModel creates the OpenAI-compatible chat model used in production.
func NewChatModel(ctx context.Context, apiKey, baseURL, modelName string) (ChatModel, error) {
	cfg := &openai.ChatModelConfig{
		Model:       modelName,
		APIKey:      apiKey,
		Temperature: &translationTemperature,
	}
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	chatModel, err := openai.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return chatModel, nil
}

// Package ai клиент языковой модели с OpenAI-совместимым API.
package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/magabrotheeeer/tutor-bot/internal/collaborator"
	"github.com/magabrotheeeer/tutor-bot/internal/config"
)

// Client генерирует ответы через Chat Completions.
type Client struct {
	api   *openai.Client
	model string
}

// New создаёт клиент по настройкам cfg.
func New(cfg config.OpenAI) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	apiCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Client{
		api:   openai.NewClientWithConfig(apiCfg),
		model: cfg.Model,
	}
}

// Generate отправляет prompt одним сообщением пользователя и возвращает первый вариант ответа.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	const op = "ai.Generate"

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w: %w", op, collaborator.ErrCollaboratorFailure, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: %w: empty response", op, collaborator.ErrCollaboratorFailure)
	}

	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return "", fmt.Errorf("%s: %w: empty answer", op, collaborator.ErrCollaboratorFailure)
	}
	return answer, nil
}

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/lexvoice/casecall-backend/internal/clients/openai"
	"github.com/lexvoice/casecall-backend/internal/platform/logger"
	"github.com/lexvoice/casecall-backend/internal/utils"
)

// LLMReply is one chat completion result.
type LLMReply struct {
	Text             string `json:"text"`
	Model            string `json:"model"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
}

type LLMChat interface {
	Complete(ctx context.Context, systemMessage string, userPrompt string) (*LLMReply, error)
}

type llmProviderService struct {
	log         *logger.Logger
	client      openai.Client
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
}

func NewLLMProviderService(log *logger.Logger, client openai.Client) (LLMChat, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if client == nil {
		return nil, fmt.Errorf("openai client required")
	}
	// Live voice calls need a short completion budget.
	timeoutSec := utils.GetEnvAsInt("LLM_CALL_TIMEOUT_SECONDS", 8, nil)
	return &llmProviderService{
		log:         log.With("service", "LLMProviderService"),
		client:      client,
		model:       utils.GetEnv("LLM_MODEL", "", nil),
		temperature: utils.GetEnvAsFloat("LLM_TEMPERATURE", 0.3, nil),
		maxTokens:   utils.GetEnvAsInt("LLM_MAX_TOKENS", 400, nil),
		timeout:     time.Duration(timeoutSec) * time.Second,
	}, nil
}

func (s *llmProviderService) Complete(ctx context.Context, systemMessage string, userPrompt string) (*LLMReply, error) {
	completion, err := s.client.Complete(ctx, systemMessage, userPrompt, openai.CompleteOptions{
		Model:       s.model,
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
		Timeout:     s.timeout,
	})
	if err != nil {
		return nil, err
	}
	return &LLMReply{
		Text:             completion.Text,
		Model:            completion.Model,
		PromptTokens:     completion.Usage.PromptTokens,
		CompletionTokens: completion.Usage.CompletionTokens,
	}, nil
}

package openai

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/lookbook-ai/lookbook/internal/domain"
	"github.com/lookbook-ai/lookbook/internal/metrics"
)

const plannerSystemPrompt = `You are a planner for a fashion search system.
Return ONLY a valid JSON object. No markdown. No backticks. No explanations.

Schema:
{
  "intermediate_queries": [{"query": string, "weight": float}],
  "weights": {"text": float, "image": float},
  "top_k": int,
  "filters": {}
}

Rules:
- intermediate_queries must be list of objects with keys: query, weight
- top_k must be int 1..50
- filters must be an object (can be empty)
- DO NOT wrap in ` + "```" + ` fences`

// Planner asks an LLM to decompose a user message into a search plan.
// It returns the raw model output; plan.Normalize owns repairing it.
type Planner struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// PlannerConfig holds the planner LLM settings.
type PlannerConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Logger  *zap.Logger
}

// NewPlanner creates an OpenAI-compatible planner provider.
func NewPlanner(cfg *PlannerConfig) *Planner {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Planner{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		logger: cfg.Logger,
	}
}

// Plan requests a raw JSON plan for the user message. The output is untrusted
// model text and may include fences or prose despite the prompt.
func (p *Planner) Plan(ctx context.Context, message string, hasImage bool) (string, error) {
	userPrompt := fmt.Sprintf("User message: %s\nHas image: %t\n\nReturn JSON plan only.", message, hasImage)

	req := openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: plannerSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: 0,
	}

	start := time.Now()

	resp, err := p.client.CreateChatCompletion(ctx, req)

	duration := time.Since(start)

	if err != nil {
		metrics.PlannerRequestsTotal.WithLabelValues(p.model, "error").Inc()
		return "", fmt.Errorf("planner request failed: %w: %w", domain.ErrPlannerUnavailable, err)
	}

	if len(resp.Choices) == 0 {
		metrics.PlannerRequestsTotal.WithLabelValues(p.model, "error").Inc()
		return "", fmt.Errorf("empty planner response: %w", domain.ErrPlannerUnavailable)
	}

	metrics.PlannerRequestsTotal.WithLabelValues(p.model, "success").Inc()
	metrics.PlannerRequestDuration.WithLabelValues(p.model).Observe(duration.Seconds())

	return resp.Choices[0].Message.Content, nil
}

package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/portal-session/internal/config"
	"github.com/spec-kit/portal-session/internal/inference"
	apperrors "github.com/spec-kit/portal-session/pkg/util/errorutil"
)

const maxPromptLength = 8000

// AssistantService sends prompts to the inference endpoint through the retrying client.
type AssistantService struct {
	client *inference.Client
	url    string
	apiKey string
	policy inference.RetryPolicy
	logger *zap.Logger
}

// NewAssistantService builds the service.
func NewAssistantService(client *inference.Client, cfg config.InferenceConfig, logger *zap.Logger) *AssistantService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssistantService{
		client: client,
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		policy: inference.RetryPolicy{
			MaxAttempts: cfg.MaxAttempts,
			BaseDelay:   cfg.BaseDelay,
			Multiplier:  cfg.Multiplier,
		},
		logger: logger,
	}
}

// Generate returns the first candidate's text for prompt.
func (a *AssistantService) Generate(ctx context.Context, prompt string) (string, int, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", 0, apperrors.NewValidationError("prompt is required", map[string]any{"field": "prompt"})
	}
	if len(prompt) > maxPromptLength {
		return "", 0, apperrors.NewValidationError("prompt is too long", map[string]any{"field": "prompt", "max": maxPromptLength})
	}
	if a.url == "" {
		return "", 0, apperrors.NewUnreachable("inference endpoint not configured")
	}

	req := inference.Request{
		URL:  a.url,
		Body: inference.NewTextRequest(prompt),
	}
	if a.apiKey != "" {
		req.Headers = map[string]string{"x-goog-api-key": a.apiKey}
	}

	resp, err := a.client.Call(ctx, req, a.policy)
	if err != nil {
		a.logger.Warn("inference call failed", zap.String("code", apperrors.CodeOf(err)), zap.Error(err))
		return "", 0, err
	}
	return resp.Text(), resp.Attempts, nil
}

package llm

import (
	"context"
	"fmt"

	"github.com/PabloGalante/gpt-relay/internal/config"
	"github.com/PabloGalante/gpt-relay/internal/domain"
	"github.com/PabloGalante/gpt-relay/internal/observability"
)

// NewFromConfig builds the completion backend selected by COMPLETION_BACKEND.
func NewFromConfig(ctx context.Context, cfg *config.Config) (domain.CompletionClient, error) {
	log := observability.WithFields("backend", cfg.CompletionBackend)

	switch cfg.CompletionBackend {
	case config.BackendMock:
		log.Info("using mock completion client")
		return NewMockLLM(), nil
	case config.BackendVertex:
		log.Info("using vertex completion client", "model", cfg.VertexModel)
		return NewVertexClient(ctx, cfg.GCPProjectID, cfg.GCPLocation, cfg.VertexModel)
	case config.BackendOpenAI:
		log.Info("using openai completion client", "model", cfg.OpenAIModel)
		return NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
	default:
		return nil, fmt.Errorf("unknown completion backend %q", cfg.CompletionBackend)
	}
}

package llm

import (
	"context"
	"fmt"

	"github.com/PabloGalante/gpt-relay/internal/domain"
)

type MockLLM struct{}

func NewMockLLM() *MockLLM {
	return &MockLLM{}
}

// Complete echoes the last user message along with how much context it saw.
func (m *MockLLM) Complete(ctx context.Context, messages []domain.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", domain.NewCompletionError("mock", err)
	}
	if len(messages) == 0 {
		return "", domain.NewCompletionError("mock", fmt.Errorf("no messages"))
	}

	last := messages[len(messages)-1]
	return fmt.Sprintf("[mock] you said %q (%d earlier messages)", last.Content, len(messages)-1), nil
}

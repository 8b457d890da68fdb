package providers

import (
	"context"
	"strings"
)

// MockProvider returns deterministic stage-shaped output so the pipeline can
// run end to end without any external service.
type MockProvider struct{}

func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

func (m *MockProvider) Generate(_ context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	op := strings.ToLower(req.Operation)
	text := "Mock response."
	switch {
	case strings.Contains(op, "critique"):
		text = `{"corrections":[]}`
	case strings.Contains(op, "draft"), strings.Contains(op, "finalize"):
		b := strings.Builder{}
		b.WriteString("## Rule\n\nDeterministic mock rule text.\n")
		for _, c := range req.Context {
			// Context lines carry citation tokens verbatim; echo them so the
			// verifier sees provenance-consistent output.
			if strings.Contains(c, "[[") {
				b.WriteString(c + "\n")
			}
		}
		text = b.String()
	}
	return GenerateResponse{Text: text}, ProviderInfo{Name: "mock", Model: "mock-llm-v1", Key: "mock"}, nil
}

package providers

import "context"

type ProviderInfo struct {
	Name  string `json:"name"`
	Model string `json:"model"`
	Key   string `json:"key"`
}

type GenerateRequest struct {
	Operation string   `json:"operation"`
	Prompt    string   `json:"prompt"`
	Context   []string `json:"context"`
	// Model overrides the provider's configured model for this call.
	Model string `json:"model,omitempty"`
}

type GenerateResponse struct {
	Text string `json:"text"`
}

// LLMProvider is the external collaborator: one prompt in, complete text
// out, no guarantee of repeatability across calls.
type LLMProvider interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error)
}

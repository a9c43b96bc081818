package ai

import (
	"context"
)

// DraftService is the interface for reply-draft generation.
// Implement this interface to add new AI providers (Gemini, Ollama, OpenAI, etc.)
type DraftService interface {
	// GenerateDraft produces a reply for the rendered context prompt.
	// An empty model response is an error, never a draft.
	GenerateDraft(ctx context.Context, prompt string) (string, error)
	// ModelName identifies the backing model for audit records
	ModelName() string
}

// ProviderType represents the AI provider type
type ProviderType string

const (
	ProviderGemini ProviderType = "gemini"
	ProviderOllama ProviderType = "ollama"
	ProviderAuto   ProviderType = "auto"
)

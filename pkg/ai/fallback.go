package ai

import (
	"context"
	"fmt"
	"net"
	"strings"

	"go.uber.org/zap"
)

// FallbackService routes draft generation across providers:
// Ollama first (local, free), Gemini when Ollama is unreachable, and back
// to Ollama when Gemini reports quota exhaustion.
type FallbackService struct {
	gemini DraftService
	ollama *OllamaService
	logger *zap.Logger

	lastUsed string
}

// NewFallbackService creates a new fallback service with both providers
func NewFallbackService(gemini DraftService, ollama *OllamaService, logger *zap.Logger) *FallbackService {
	return &FallbackService{
		gemini: gemini,
		ollama: ollama,
		logger: logger,
	}
}

// isConnectionError checks if the error is a network/connection error
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	if _, ok := err.(net.Error); ok {
		return true
	}

	errStr := strings.ToLower(err.Error())
	connectionIndicators := []string{
		"connection refused",
		"no such host",
		"network is unreachable",
		"connection reset",
		"timeout",
		"dial tcp",
		"eof",
	}
	for _, indicator := range connectionIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}

// isQuotaError checks if the error indicates API quota exhaustion (429)
func isQuotaError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	quotaIndicators := []string{
		"429",
		"quota",
		"rate limit",
		"too many requests",
		"resource exhausted",
	}
	for _, indicator := range quotaIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}

// GenerateDraft tries Ollama first, falls back to Gemini on failure, and
// retries Ollama once when Gemini is out of quota.
func (f *FallbackService) GenerateDraft(ctx context.Context, prompt string) (string, error) {
	if f.ollama != nil {
		f.logger.Debug("trying ollama for draft generation")
		result, err := f.ollama.GenerateDraft(ctx, prompt)
		if err == nil {
			f.lastUsed = f.ollama.ModelName()
			return result, nil
		}
		if isConnectionError(err) {
			f.logger.Warn("ollama unreachable, falling back to gemini", zap.Error(err))
		} else {
			f.logger.Warn("ollama failed, falling back to gemini", zap.Error(err))
		}
	}

	if f.gemini != nil {
		f.logger.Debug("trying gemini for draft generation")
		result, err := f.gemini.GenerateDraft(ctx, prompt)
		if err == nil {
			f.lastUsed = f.gemini.ModelName()
			return result, nil
		}
		if isQuotaError(err) && f.ollama != nil {
			f.logger.Warn("gemini quota exhausted, retrying ollama", zap.Error(err))
			result, retryErr := f.ollama.GenerateDraft(ctx, prompt)
			if retryErr == nil {
				f.lastUsed = f.ollama.ModelName()
				return result, nil
			}
			return "", fmt.Errorf("ollama retry failed: %w", retryErr)
		}
		return "", fmt.Errorf("gemini draft generation failed: %w", err)
	}

	return "", fmt.Errorf("no AI provider available for draft generation")
}

// ModelName reports the provider that served the most recent draft, or the
// preferred route before any call is made.
func (f *FallbackService) ModelName() string {
	if f.lastUsed != "" {
		return f.lastUsed
	}
	if f.ollama != nil {
		return f.ollama.ModelName()
	}
	if f.gemini != nil {
		return f.gemini.ModelName()
	}
	return "none"
}

package ai

import (
	"context"
	"fmt"
	"log"
	"net"
	"strings"
)

// FallbackService routes extraction across providers: Gemini first for
// quality, Ollama as the local fallback when Gemini is unreachable or over
// quota.
type FallbackService struct {
	gemini ExtractorService
	ollama *OllamaService
}

// NewFallbackService creates a new fallback service with both providers
func NewFallbackService(gemini ExtractorService, ollama *OllamaService) *FallbackService {
	return &FallbackService{
		gemini: gemini,
		ollama: ollama,
	}
}

// ExtractShipmentData tries Gemini first, falls back to Ollama on
// connection or quota errors
func (f *FallbackService) ExtractShipmentData(ctx context.Context, text string) (string, error) {
	if f.gemini != nil {
		result, err := f.gemini.ExtractShipmentData(ctx, text)
		if err == nil {
			return result, nil
		}
		if f.ollama == nil {
			return "", err
		}
		if isConnectionError(err) || isQuotaError(err) {
			log.Printf("[AI] Gemini unavailable (%v), falling back to Ollama", err)
		} else {
			log.Printf("[AI] Gemini error: %v, falling back to Ollama", err)
		}
	}

	if f.ollama != nil {
		return f.ollama.ExtractShipmentData(ctx, text)
	}
	return "", fmt.Errorf("no AI provider configured")
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

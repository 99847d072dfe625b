package ai

import (
	"context"
)

// ExtractorService is the interface for AI shipment-data extraction.
// Implement this interface to add new AI providers (Gemini, Ollama, OpenAI, etc.)
type ExtractorService interface {
	// ExtractShipmentData turns a group's combined message text into a
	// structured JSON summary (carrier, route, dates, current status).
	ExtractShipmentData(ctx context.Context, text string) (string, error)
}

// ProviderType represents the AI provider type
type ProviderType string

const (
	ProviderGemini ProviderType = "gemini"
	ProviderOllama ProviderType = "ollama"
	ProviderAuto   ProviderType = "auto"
)

// extractPrompt is shared across providers so switching providers does not
// change the output schema.
const extractPrompt = `You are a logistics assistant. Extract structured shipment data from the email thread below.

Return ONLY a JSON object with these fields (use null when unknown):
- "order_code": the shipment/order identifier
- "carrier": the carrier or freight company
- "origin": origin port/city
- "destination": destination port/city
- "status": one of "quoted", "booked", "in_transit", "customs", "delivered", "delayed"
- "eta": estimated arrival date, ISO 8601
- "last_event": one sentence describing the most recent development

EMAIL THREAD:
%s

JSON:`

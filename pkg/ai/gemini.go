package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// GeminiService implements ExtractorService using the Gemini REST API
type GeminiService struct {
	apiKey string
	model  string
	client *http.Client
}

// NewGeminiService creates a new Gemini service
func NewGeminiService(apiKey, model string) *GeminiService {
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiService{
		apiKey: apiKey,
		model:  model,
		client: &http.Client{},
	}
}

// ExtractShipmentData implements ExtractorService
func (g *GeminiService) ExtractShipmentData(ctx context.Context, text string) (string, error) {
	url := fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent?key=%s", g.model, g.apiKey)

	payload := map[string]interface{}{
		"contents": []map[string]interface{}{
			{"parts": []map[string]string{{"text": fmt.Sprintf(extractPrompt, text)}}},
		},
	}

	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini API error (%d): %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", err
	}

	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}
	return cleanJSONOutput(result.Candidates[0].Content.Parts[0].Text), nil
}

package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

var insightSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"text":       map[string]interface{}{"type": "string"},
		"confidence": map[string]interface{}{"type": "number"},
	},
	"required":             []string{"text", "confidence"},
	"additionalProperties": false,
}

// ChatCompletionsRunner is a PromptRunner over an OpenAI-compatible
// /chat/completions endpoint
type ChatCompletionsRunner struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewChatCompletionsRunner creates a runner for baseURL
func NewChatCompletionsRunner(baseURL, apiKey, model string) *ChatCompletionsRunner {
	return &ChatCompletionsRunner{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// Run sends messages and decodes a {text, confidence} answer
func (r *ChatCompletionsRunner) Run(ctx context.Context, messages []PromptMessage) (*PromptResult, error) {
	requestBody := map[string]interface{}{
		"model":       r.model,
		"messages":    messages,
		"stream":      false,
		"temperature": 0.3,
		"response_format": map[string]interface{}{
			"type": "json_schema",
			"json_schema": map[string]interface{}{
				"name":   "tide_insight",
				"strict": true,
				"schema": insightSchema,
			},
		},
	}

	reqBody, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", r.baseURL+"/chat/completions", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Printf("⚠️ [INSIGHTS] API error: %s", truncateForLog(body, 300))
		return nil, fmt.Errorf("API error (status %d)", resp.StatusCode)
	}

	var apiResponse struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &apiResponse); err != nil {
		return nil, fmt.Errorf("failed to parse API response: %w", err)
	}
	if len(apiResponse.Choices) == 0 {
		return nil, fmt.Errorf("no response from insights model")
	}

	content := apiResponse.Choices[0].Message.Content
	var result PromptResult
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		// Models without structured output answer in plain text
		return &PromptResult{Text: strings.TrimSpace(content)}, nil
	}
	return &result, nil
}

func truncateForLog(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n]) + "..."
}

// Package extract asks an LLM to fill the extraction contract from deck text.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/deckgest/internal/chunker"
	"github.com/dgallion1/deckgest/internal/retry"
	"github.com/dgallion1/deckgest/internal/schema"
)

// ErrEmptyText is returned when there is nothing to extract from.
var ErrEmptyText = errors.New("no text provided")

// FieldExtractor fills a contract from document text.
type FieldExtractor interface {
	ExtractFields(ctx context.Context, text string, c *schema.Contract) (map[string]string, error)
}

type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Temperature    float64
	Timeout        time.Duration
	MaxInputTokens int
	Retry          retry.Policy
}

// OpenAIClient calls the chat completions API with a strict JSON schema
// response format derived from the contract.
type OpenAIClient struct {
	cfg        OpenAIConfig
	httpClient *http.Client
	stats      *LLMStats
	log        *slog.Logger
}

func NewOpenAIClient(cfg OpenAIConfig, stats *LLMStats, log *slog.Logger) *OpenAIClient {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &OpenAIClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		stats:      stats,
		log:        log,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Temperature    float64        `json:"temperature"`
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat map[string]any `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		FinishReason string `json:"finish_reason"`
		Message      struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// ExtractFields returns one value per contract key, "N/A" where unknown.
// A response that does not match the contract is an error.
func (c *OpenAIClient) ExtractFields(ctx context.Context, text string, contract *schema.Contract) (map[string]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	rid := uuid.New().String()
	log := c.log.With("req_id", rid, "model", c.cfg.Model)

	text, truncated := chunker.Fit(text, c.cfg.MaxInputTokens)
	if truncated {
		log.Warn("llm.extract.truncated", "max_tokens", c.cfg.MaxInputTokens, "kept_tokens", chunker.EstimateTokens(text))
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: nothing left after fitting to %d tokens", ErrEmptyText, c.cfg.MaxInputTokens)
	}

	reqBody := chatRequest{
		Model:       c.cfg.Model,
		Temperature: c.cfg.Temperature,
		Messages: []chatMessage{
			{Role: "system", Content: BuildSystemPrompt(contract)},
			{Role: "user", Content: BuildUserPrompt(text)},
		},
		ResponseFormat: map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   ResponseFormatName,
				"strict": true,
				"schema": contract.JSONSchema(),
			},
		},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	start := time.Now()
	log.Info("llm.extract.start", "text_len", len(text), "fields", len(contract.Keys()))

	var content string
	err = c.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		var callErr error
		content, callErr = c.complete(ctx, body)
		return callErr
	}, func(attempt int, err error) {
		log.Warn("llm.extract.retry", "attempt", attempt, "error", err)
	})
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		c.stats.Record(elapsed, false)
		log.Error("llm.extract.http_error", "error", err, "elapsed_ms", elapsed)
		return nil, err
	}

	values, err := contract.DecodeOutput([]byte(stripCodeBlock(content)))
	if err != nil {
		c.stats.Record(elapsed, false)
		log.Error("llm.extract.schema_validation_failed", "error", err, "content", truncate(content, 500), "elapsed_ms", elapsed)
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	c.stats.Record(elapsed, true)
	log.Info("llm.extract.ok", "elapsed_ms", elapsed)
	return values, nil
}

func (c *OpenAIClient) complete(ctx context.Context, body []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("openai api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", &retry.RetryableError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("openai api status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var apiResp chatResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if apiResp.Error != nil {
		return "", fmt.Errorf("openai error: %s: %s", apiResp.Error.Type, apiResp.Error.Message)
	}
	if len(apiResp.Choices) == 0 {
		return "", errors.New("no choices in openai response")
	}
	choice := apiResp.Choices[0]
	if choice.Message.Refusal != "" {
		return "", fmt.Errorf("model refused: %s", truncate(choice.Message.Refusal, 200))
	}
	if choice.FinishReason == "length" {
		return "", errors.New("openai response truncated at max tokens")
	}
	return choice.Message.Content, nil
}

var codeBlockRe = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

func stripCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	if m := codeBlockRe.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Close releases resources.
func (c *OpenAIClient) Close() {
	c.httpClient.CloseIdleConnections()
}

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/finbot/internal/common"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAIModel   = "gpt-4o-mini"
)

// openAIClient implements the Client interface for the OpenAI API.
type openAIClient struct {
	httpClient  *http.Client
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	maxTokens   int
}

// newOpenAIClient creates a new OpenAI API client.
func newOpenAIClient(cfg Config) (*openAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: OpenAI API key is required", common.ErrMissingConfig)
	}

	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 200
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &openAIClient{
		apiKey:      cfg.APIKey,
		model:       model,
		baseURL:     baseURL,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	ResponseFormat responseFormat `json:"response_format"`
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	MaxTokens      int            `json:"max_tokens"`
}

// openAIResponse represents the OpenAI API response structure.
type openAIResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
		Index        int         `json:"index"`
	} `json:"choices"`
}

// ParseIntent sends the intent prompt and decodes the JSON object reply.
func (c *openAIClient) ParseIntent(ctx context.Context, prompt string) (IntentResponse, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		ResponseFormat: responseFormat{Type: "json_object"},
		Temperature:    c.temperature,
		MaxTokens:      c.maxTokens,
	})
	if err != nil {
		return IntentResponse{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return IntentResponse{}, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return IntentResponse{}, &common.RetryableError{Err: err, Retryable: false}
		}
		return IntentResponse{}, &common.RetryableError{Err: fmt.Errorf("request failed: %w", err), Retryable: true}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return IntentResponse{}, fmt.Errorf("failed to read response: %w", err)
	}

	if err := statusError(resp.StatusCode, resp.Header, respBody); err != nil {
		return IntentResponse{}, err
	}

	var response openAIResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return IntentResponse{}, nonRetryable(fmt.Errorf("failed to parse response: %w", err))
	}

	if len(response.Choices) == 0 {
		return IntentResponse{}, nonRetryable(fmt.Errorf("%w: no completion choices returned", common.ErrClassificationFailed))
	}

	return parseIntentResponse(response.Choices[0].Message.Content)
}

// statusError maps an HTTP status to a retry decision.
func statusError(status int, header http.Header, body []byte) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusTooManyRequests:
		return &common.RetryableError{
			Err:        fmt.Errorf("%w: OpenAI API status %d", common.ErrRateLimit, status),
			RetryAfter: retryAfter(header),
			Retryable:  true,
		}
	case status >= 500:
		return &common.RetryableError{Err: fmt.Errorf("OpenAI API error (status %d): %s", status, string(body)), Retryable: true}
	default:
		return nonRetryable(fmt.Errorf("OpenAI API error (status %d): %s", status, string(body)))
	}
}

// retryAfter reads a Retry-After header given in seconds.
func retryAfter(header http.Header) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(header.Get("Retry-After")))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func nonRetryable(err error) error {
	return &common.RetryableError{Err: err, Retryable: false}
}

// parseIntentResponse decodes the model's JSON object.
func parseIntentResponse(content string) (IntentResponse, error) {
	content = cleanMarkdownWrapper(content)
	if content == "" {
		return IntentResponse{}, nonRetryable(fmt.Errorf("%w: empty model output", common.ErrClassificationFailed))
	}

	var parsed IntentResponse
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return IntentResponse{}, nonRetryable(fmt.Errorf("%w: failed to parse JSON response: %w", common.ErrClassificationFailed, err))
	}
	return parsed, nil
}

// cleanMarkdownWrapper strips a ```json fence the model sometimes adds.
func cleanMarkdownWrapper(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}

	content = strings.TrimPrefix(content, "```")
	content = strings.TrimPrefix(content, "json")
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}

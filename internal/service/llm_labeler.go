package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/carousel/internal/domain"
	"github.com/timmy/carousel/internal/prompts"
)

var errUnrecognizedLabel = errors.New("unrecognized label")

// LLMLabeler labels slides with an OpenAI-compatible chat completion model.
type LLMLabeler struct {
	client   *resty.Client
	model    string
	endpoint string
}

// LLMLabelerConfig holds configuration for the LLM labeler.
type LLMLabelerConfig struct {
	Model   string
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// NewLLMLabeler creates a new LLM labeler.
// Parameters:
//   - cfg: model, API key and endpoint.
//
// Returns:
//   - *LLMLabeler: initialized client wrapper.
func NewLLMLabeler(cfg *LLMLabelerConfig) *LLMLabeler {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(timeout)

	// Default to OpenAI compatible endpoint if not specified
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	return &LLMLabeler{
		client:   client,
		model:    cfg.Model,
		endpoint: baseURL + "/chat/completions",
	}
}

// Client exposes the underlying HTTP client.
func (l *LLMLabeler) Client() *resty.Client {
	return l.client
}

// OpenAI-compatible Chat Completion API request/response structures
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Label implements Labeler. A "none" answer yields an empty Label; any
// other answer outside the known categories is an error.
func (l *LLMLabeler) Label(ctx context.Context, slide domain.Slide, topic string) (Label, error) {
	if topic == "" {
		topic = "(none)"
	}
	req := chatRequest{
		Model: l.model,
		Messages: []chatMessage{
			{Role: "system", Content: prompts.ClassifierSystemPrompt},
			{Role: "user", Content: fmt.Sprintf(prompts.ClassifierUserPrompt, topic, slide.PlainText())},
		},
		MaxTokens:   5,
		Temperature: 0,
	}

	var resp chatResponse
	httpResp, err := l.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		SetError(&resp).
		Post(l.endpoint)

	if err != nil {
		return Label{}, fmt.Errorf("failed to call labeler API: %w", err)
	}

	// Check HTTP status code
	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		errorMsg := fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), string(httpResp.Body()))
		if resp.Error != nil {
			errorMsg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), resp.Error.Message)
		}
		return Label{}, fmt.Errorf("labeler API returned error: %s", errorMsg)
	}

	if resp.Error != nil {
		return Label{}, fmt.Errorf("labeler API error: %s", resp.Error.Message)
	}

	if len(resp.Choices) == 0 {
		return Label{}, fmt.Errorf("no choices in labeler response (status: %d)", httpResp.StatusCode())
	}

	return parseLabel(resp.Choices[0].Message.Content)
}

func parseLabel(answer string) (Label, error) {
	word := strings.ToLower(strings.TrimSpace(answer))
	word = strings.Trim(word, " .,:;!\"'`*")
	if i := strings.IndexAny(word, " \n\t"); i >= 0 {
		word = word[:i]
	}

	switch word {
	case domain.HintInfographic, domain.HintNews, domain.HintScene, domain.HintMeme:
		return Label{Hint: word, Rationale: "llm_label: " + word}, nil
	case "none":
		return Label{}, nil
	}
	return Label{}, fmt.Errorf("%w: %q", errUnrecognizedLabel, answer)
}

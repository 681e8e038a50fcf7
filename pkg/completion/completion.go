package completion

import (
	"context"
	"math"
	"net/http"
	"time"

	"github.com/go-go-golems/parley/pkg/chat"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

var ErrNoChoices = errors.New("completion returned no choices")

// Request is everything a completion call needs. Messages is the full
// history, sent verbatim.
type Request struct {
	Model       string
	Messages    chat.History
	Temperature float64
	MaxTokens   int
}

// Client turns a message history into generated text.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// OpenAIClient talks to any OpenAI compatible chat completion endpoint.
type OpenAIClient struct {
	client *go_openai.Client
}

var _ Client = (*OpenAIClient)(nil)

type OpenAIOption func(*go_openai.ClientConfig)

func WithBaseURL(baseURL string) OpenAIOption {
	return func(c *go_openai.ClientConfig) {
		if baseURL != "" {
			c.BaseURL = baseURL
		}
	}
}

// WithTimeout bounds every request made by the client.
func WithTimeout(timeout time.Duration) OpenAIOption {
	return func(c *go_openai.ClientConfig) {
		if timeout > 0 {
			c.HTTPClient = &http.Client{Timeout: timeout}
		}
	}
}

func WithHTTPClient(httpClient *http.Client) OpenAIOption {
	return func(c *go_openai.ClientConfig) {
		c.HTTPClient = httpClient
	}
}

func NewOpenAIClient(apiKey string, options ...OpenAIOption) *OpenAIClient {
	config := go_openai.DefaultConfig(apiKey)
	for _, option := range options {
		option(&config)
	}
	return &OpenAIClient{
		client: go_openai.NewClientWithConfig(config),
	}
}

func makeMessages(history chat.History) []go_openai.ChatCompletionMessage {
	ret := make([]go_openai.ChatCompletionMessage, 0, len(history))
	for _, m := range history {
		ret = append(ret, go_openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return ret
}

func makeCompletionRequest(req Request) go_openai.ChatCompletionRequest {
	temperature := float32(req.Temperature)
	// go-openai omits a zero temperature from the request body, which leaves
	// the endpoint on its own default.
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}
	return go_openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    makeMessages(req.Messages),
		Temperature: temperature,
		MaxTokens:   req.MaxTokens,
	}
}

func (o *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	log.Debug().
		Str("model", req.Model).
		Int("messages", len(req.Messages)).
		Float64("temperature", req.Temperature).
		Int("max_tokens", req.MaxTokens).
		Msg("Sending chat completion request")

	resp, err := o.client.CreateChatCompletion(ctx, makeCompletionRequest(req))
	if err != nil {
		return "", errors.Wrap(err, "chat completion failed")
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}

	log.Debug().
		Str("finish_reason", string(resp.Choices[0].FinishReason)).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Msg("Chat completion received")

	return resp.Choices[0].Message.Content, nil
}

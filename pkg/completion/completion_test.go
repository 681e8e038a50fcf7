package completion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-go-golems/parley/pkg/chat"
	"github.com/pkg/errors"
	go_openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler func(req go_openai.ChatCompletionRequest) (int, interface{})) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req go_openai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		status, body := handler(req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIClientSendsHistoryVerbatim(t *testing.T) {
	var got go_openai.ChatCompletionRequest
	srv := newTestServer(t, func(req go_openai.ChatCompletionRequest) (int, interface{}) {
		got = req
		return http.StatusOK, go_openai.ChatCompletionResponse{
			Choices: []go_openai.ChatCompletionChoice{
				{Message: go_openai.ChatCompletionMessage{Role: "assistant", Content: "pong"}},
			},
		}
	})

	c := NewOpenAIClient("test-key", WithBaseURL(srv.URL+"/v1"), WithTimeout(5*time.Second))
	history := chat.History{
		chat.NewSystemMessage("be brief"),
		chat.NewUserMessage("ping"),
	}
	text, err := c.Complete(context.Background(), Request{
		Model:       "some-model",
		Messages:    history,
		Temperature: 0.25,
		MaxTokens:   64,
	})
	require.NoError(t, err)
	assert.Equal(t, "pong", text)

	assert.Equal(t, "some-model", got.Model)
	assert.Equal(t, 64, got.MaxTokens)
	assert.InDelta(t, 0.25, got.Temperature, 1e-6)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "be brief", got.Messages[0].Content)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "ping", got.Messages[1].Content)
}

func TestOpenAIClientSendsZeroTemperature(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(go_openai.ChatCompletionResponse{
			Choices: []go_openai.ChatCompletionChoice{
				{Message: go_openai.ChatCompletionMessage{Role: "assistant", Content: "ok"}},
			},
		})
	}))
	t.Cleanup(srv.Close)

	c := NewOpenAIClient("test-key", WithBaseURL(srv.URL+"/v1"))
	_, err := c.Complete(context.Background(), Request{
		Model:       "m",
		Messages:    chat.History{chat.NewUserMessage("hi")},
		Temperature: 0,
		MaxTokens:   5,
	})
	require.NoError(t, err)

	require.Contains(t, body, "temperature")
	temperature, ok := body["temperature"].(float64)
	require.True(t, ok)
	assert.InDelta(t, 0, temperature, 1e-6)
}

func TestOpenAIClientNoChoices(t *testing.T) {
	srv := newTestServer(t, func(req go_openai.ChatCompletionRequest) (int, interface{}) {
		return http.StatusOK, go_openai.ChatCompletionResponse{}
	})

	c := NewOpenAIClient("test-key", WithBaseURL(srv.URL+"/v1"))
	_, err := c.Complete(context.Background(), Request{Messages: chat.History{chat.NewUserMessage("x")}})
	require.ErrorIs(t, err, ErrNoChoices)
}

func TestOpenAIClientServerError(t *testing.T) {
	srv := newTestServer(t, func(req go_openai.ChatCompletionRequest) (int, interface{}) {
		return http.StatusTooManyRequests, map[string]interface{}{
			"error": map[string]interface{}{"message": "slow down", "type": "rate_limit"},
		}
	})

	c := NewOpenAIClient("test-key", WithBaseURL(srv.URL+"/v1"))
	_, err := c.Complete(context.Background(), Request{Messages: chat.History{chat.NewUserMessage("x")}})
	require.Error(t, err)

	var apiErr *go_openai.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.HTTPStatusCode)
}

func TestEchoClient(t *testing.T) {
	c := &EchoClient{Prefix: "echo: "}
	text, err := c.Complete(context.Background(), Request{Messages: chat.History{
		chat.NewSystemMessage("sys"),
		chat.NewUserMessage("first"),
		chat.NewAssistantMessage("echo: first"),
		chat.NewUserMessage("second"),
	}})
	require.NoError(t, err)
	assert.Equal(t, "echo: second", text)

	_, err = c.Complete(context.Background(), Request{Messages: chat.History{chat.NewSystemMessage("sys")}})
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Complete(ctx, Request{Messages: chat.History{chat.NewUserMessage("x")}})
	require.ErrorIs(t, err, context.Canceled)
}

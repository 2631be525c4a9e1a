package perplexity

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatCompletion(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantErr    string
		wantID     string
		wantText   string
		wantTokens int
	}{
		{
			name:   "success",
			status: http.StatusOK,
			body: `{
				"id": "cmpl-123",
				"choices": [{"index": 0, "message": {"role": "assistant", "content": "Hello!"}, "finish_reason": "stop"}],
				"citations": ["https://acme.com/about"],
				"usage": {"prompt_tokens": 10, "completion_tokens": 5}
			}`,
			wantID:     "cmpl-123",
			wantText:   "Hello!",
			wantTokens: 5,
		},
		{
			name:    "rate_limit",
			status:  http.StatusTooManyRequests,
			body:    `{"error": "rate limit exceeded"}`,
			wantErr: "unexpected status 429",
		},
		{
			name:    "unauthorized",
			status:  http.StatusUnauthorized,
			body:    `{"error": "invalid api key"}`,
			wantErr: "unexpected status 401",
		},
		{
			name:    "malformed_response",
			status:  http.StatusOK,
			body:    `{invalid json`,
			wantErr: "unmarshal response",
		},
		{
			name:    "no_choices",
			status:  http.StatusOK,
			body:    `{"id": "cmpl-1", "choices": []}`,
			wantErr: "no choices",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/chat/completions", r.URL.Path)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewClient("test-key", WithBaseURL(srv.URL))

			resp, err := client.ChatCompletion(context.Background(), ChatCompletionRequest{
				Messages: []Message{{Role: "user", Content: "Hi"}},
			})

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, resp)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantID, resp.ID)
			assert.Equal(t, tt.wantText, resp.Text())
			assert.Equal(t, tt.wantTokens, resp.Usage.CompletionTokens)
			assert.Equal(t, []string{"https://acme.com/about"}, resp.Citations)
		})
	}
}

func TestChatCompletion_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(strings.Repeat("x", 2000)))
	}))
	defer srv.Close()

	_, err := NewClient("k", WithBaseURL(srv.URL)).ChatCompletion(context.Background(), ChatCompletionRequest{
		Messages: []Message{{Role: "user", Content: "Hi"}},
	})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Len(t, apiErr.Body, maxErrorBody)
}

func TestChatCompletion_DefaultsAndOverrides(t *testing.T) {
	var gotModel atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req ChatCompletionRequest
		_ = json.Unmarshal(body, &req)
		gotModel.Store(req.Model)
		_, _ = w.Write([]byte(`{"id":"x","choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	ctx := context.Background()
	msgs := []Message{{Role: "user", Content: "Hi"}}

	_, err := NewClient("k", WithBaseURL(srv.URL+"/")).ChatCompletion(ctx, ChatCompletionRequest{Messages: msgs})
	require.NoError(t, err)
	assert.Equal(t, defaultModel, gotModel.Load())

	_, err = NewClient("k", WithBaseURL(srv.URL), WithModel("sonar")).ChatCompletion(ctx, ChatCompletionRequest{Messages: msgs})
	require.NoError(t, err)
	assert.Equal(t, "sonar", gotModel.Load())

	_, err = NewClient("k", WithBaseURL(srv.URL), WithModel("sonar")).ChatCompletion(ctx, ChatCompletionRequest{Model: "sonar-reasoning", Messages: msgs})
	require.NoError(t, err)
	assert.Equal(t, "sonar-reasoning", gotModel.Load())
}

func TestChatCompletion_SearchRecency(t *testing.T) {
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		got.Store(body)
		_, _ = w.Write([]byte(`{"id":"x","choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	ctx := context.Background()
	msgs := []Message{{Role: "user", Content: "Hi"}}

	_, err := NewClient("k", WithBaseURL(srv.URL)).ChatCompletion(ctx, ChatCompletionRequest{Messages: msgs})
	require.NoError(t, err)
	_, present := got.Load().(map[string]any)["search_recency_filter"]
	assert.False(t, present)

	client := NewClient("k", WithBaseURL(srv.URL), WithSearchRecency("month"))
	_, err = client.ChatCompletion(ctx, ChatCompletionRequest{Messages: msgs})
	require.NoError(t, err)
	assert.Equal(t, "month", got.Load().(map[string]any)["search_recency_filter"])

	_, err = client.ChatCompletion(ctx, ChatCompletionRequest{Messages: msgs, SearchRecencyFilter: "week"})
	require.NoError(t, err)
	assert.Equal(t, "week", got.Load().(map[string]any)["search_recency_filter"])
}

func TestChatCompletion_NoMessages(t *testing.T) {
	_, err := NewClient("k").ChatCompletion(context.Background(), ChatCompletionRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no messages")
}

func TestChatCompletion_SingleAttempt(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient("k", WithBaseURL(srv.URL)).ChatCompletion(context.Background(), ChatCompletionRequest{
		Messages: []Message{{Role: "user", Content: "Hi"}},
	})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestChatCompletion_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient("k", WithBaseURL(srv.URL), WithHTTPClient(srv.Client())).ChatCompletion(ctx, ChatCompletionRequest{
		Messages: []Message{{Role: "user", Content: "Hi"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send request")
}

func TestAsk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatCompletionRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if assert.Len(t, req.Messages, 2) {
			assert.Equal(t, "system", req.Messages[0].Role)
			assert.Equal(t, "be brief", req.Messages[0].Content)
			assert.Equal(t, "user", req.Messages[1].Role)
		}
		_, _ = w.Write([]byte(`{"id":"x","choices":[{"message":{"role":"assistant","content":"[1,2]"}}]}`))
	}))
	defer srv.Close()

	text, err := Ask(context.Background(), NewClient("k", WithBaseURL(srv.URL)), "be brief", "list")
	require.NoError(t, err)
	assert.Equal(t, "[1,2]", text)
}

func TestText_Empty(t *testing.T) {
	var resp *ChatCompletionResponse
	assert.Empty(t, resp.Text())
	assert.Empty(t, (&ChatCompletionResponse{}).Text())
}

package services_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MegaGrindStone/stream-chat/internal/models"
	"github.com/MegaGrindStone/stream-chat/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upstreamRequest struct {
	Model    string `json:"model"`
	System   string `json:"system"`
	Stream   bool   `json:"stream"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

var conversation = []models.Message{
	{ID: "1", Role: models.RoleUser, Content: "Hi"},
	{ID: "2", Role: models.RoleAI, Content: "Hello, how can I help?"},
	{ID: "3", Role: models.RoleUser, Content: "Tell me a joke"},
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func collect(t *testing.T, it func(func(string, error) bool)) ([]string, error) {
	t.Helper()
	var chunks []string
	for chunk, err := range it {
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

func TestOpenAIChat(t *testing.T) {
	var got upstreamRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		for _, delta := range []string{"Hel", "lo"} {
			fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", delta)
		}
		fmt.Fprint(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"choices\":[]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	o := services.NewOpenAI("test-key", srv.URL+"/v1", "gpt-4-turbo", "You are a helpful assistant.", discardLogger())

	chunks, err := collect(t, o.Chat(context.Background(), conversation))
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo", ""}, chunks)
	assert.Equal(t, "Hello", strings.Join(chunks, ""))

	assert.Equal(t, "gpt-4-turbo", got.Model)
	assert.True(t, got.Stream)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "You are a helpful assistant.", got.Messages[0].Content)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "Hi", got.Messages[1].Content)
	assert.Equal(t, "assistant", got.Messages[2].Role)
	assert.Equal(t, "Hello, how can I help?", got.Messages[2].Content)
	assert.Equal(t, "user", got.Messages[3].Role)
}

func TestOpenAIChatUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"invalid api key","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	o := services.NewOpenAI("bad-key", srv.URL+"/v1", "gpt-4-turbo", "sys", discardLogger())

	chunks, err := collect(t, o.Chat(context.Background(), conversation))
	require.Error(t, err)
	assert.Empty(t, chunks)
}

func TestAnthropicChat(t *testing.T) {
	var got upstreamRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: message_start\ndata: {\"type\":\"message_start\"}\n\n")
		for _, delta := range []string{"Hel", "lo"} {
			fmt.Fprintf(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"text\":%q}}\n\n", delta)
		}
		fmt.Fprint(w, "event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n")
	}))
	defer srv.Close()

	a := services.NewAnthropic("test-key", srv.URL, "claude-3-5-sonnet-latest", "be brief", 1024, discardLogger())

	chunks, err := collect(t, a.Chat(context.Background(), conversation))
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo"}, chunks)

	assert.Equal(t, "be brief", got.System)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "assistant", got.Messages[1].Role)
}

func TestAnthropicChatErrorEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"text\":\"Hel\"}}\n\n")
		fmt.Fprint(w, "event: error\ndata: {\"type\":\"error\",\"error\":{\"type\":\"overloaded_error\",\"message\":\"Overloaded\"}}\n\n")
	}))
	defer srv.Close()

	a := services.NewAnthropic("k", srv.URL, "m", "", 16, discardLogger())

	chunks, err := collect(t, a.Chat(context.Background(), conversation))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overloaded_error")
	assert.Equal(t, []string{"Hel"}, chunks)
}

func TestOpenRouterChat(t *testing.T) {
	var got upstreamRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		for _, delta := range []string{"Hel", "lo"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"role\":\"assistant\",\"content\":%q}}]}\n\n", delta)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	o := services.NewOpenRouter("k", srv.URL, "openai/gpt-4-turbo", "sys", discardLogger())

	chunks, err := collect(t, o.Chat(context.Background(), conversation))
	require.NoError(t, err)
	assert.Equal(t, "Hello", strings.Join(chunks, ""))

	require.Len(t, got.Messages, 4)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "assistant", got.Messages[2].Role)
}

func TestOllamaChat(t *testing.T) {
	var got upstreamRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, delta := range []string{"Hel", "lo"} {
			fmt.Fprintf(w, "{\"model\":\"llama3\",\"message\":{\"role\":\"assistant\",\"content\":%q},\"done\":false}\n", delta)
		}
		fmt.Fprint(w, "{\"model\":\"llama3\",\"message\":{\"role\":\"assistant\",\"content\":\"\"},\"done\":true}\n")
	}))
	defer srv.Close()

	o, err := services.NewOllama(srv.URL, "llama3", "sys", discardLogger())
	require.NoError(t, err)

	chunks, err := collect(t, o.Chat(context.Background(), conversation))
	require.NoError(t, err)
	assert.Equal(t, "Hello", strings.Join(chunks, ""))

	require.Len(t, got.Messages, 4)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "assistant", got.Messages[2].Role)
	assert.Equal(t, "user", got.Messages[3].Role)
}

package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/databaseguru/backend/pkg/config"
	apperrors "github.com/zatekoja/databaseguru/backend/pkg/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(&config.OpenAIConfig{
		APIKey:       "test-key",
		Model:        "gpt-test",
		BaseURL:      server.URL + "/",
		RateLimitRPM: -1,
	})
	require.NoError(t, err)
	return client
}

func TestClient_Generate(t *testing.T) {
	var received map[string]interface{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/responses", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"output":[{"content":[{"type":"reasoning","text":"thinking"},{"type":"output_text","text":"SELECT * FROM products"}]}]}`))
	})

	text, err := client.Generate(context.Background(), "Question: list products")

	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM products", text)
	assert.Equal(t, "gpt-test", received["model"])
	input := received["input"].([]interface{})
	require.Len(t, input, 2)
	assert.Equal(t, "Question: list products", input[1].(map[string]interface{})["content"])
}

func TestClient_GenerateErrors(t *testing.T) {
	t.Run("unauthorized", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
		_, err := client.Generate(context.Background(), "prompt")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnauthorized))
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeExternal))
	})

	t.Run("server error", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})
		_, err := client.Generate(context.Background(), "prompt")
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeExternal))
	})

	t.Run("missing output", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"output":[]}`))
		})
		_, err := client.Generate(context.Background(), "prompt")
		assert.ErrorContains(t, err, "missing output text")
	})

	t.Run("empty prompt", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("no request expected")
		})
		_, err := client.Generate(context.Background(), "  ")
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
	})
}

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewClient(&config.OpenAIConfig{})
	assert.Error(t, err)
}

func TestTokenBucket_WaitHonoursContext(t *testing.T) {
	bucket := newTokenBucketWithRate(1, 1)
	require.NoError(t, bucket.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, bucket.Wait(ctx), context.Canceled)
}

package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/zatekoja/databaseguru/backend/internal/infrastructure/observability"
	"github.com/zatekoja/databaseguru/backend/pkg/config"
	apperrors "github.com/zatekoja/databaseguru/backend/pkg/errors"
)

const defaultBaseURL = "https://api.openai.com/v1"

// ErrUnauthorized is returned when the API rejects the configured key.
var ErrUnauthorized = errors.New("openai request unauthorized")

// Client is a text-generation client over the OpenAI responses API.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	limiter    *tokenBucket
}

// NewClient creates a new OpenAI client.
func NewClient(cfg *config.OpenAIConfig) (*Client, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	return &Client{
		apiKey:  cfg.APIKey,
		model:   model,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: newTokenBucket(cfg.RateLimitRPM, cfg.RateLimitBurst),
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

type responseContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type responseOutput struct {
	Content []responseContent `json:"content"`
}

type responseEnvelope struct {
	Output []responseOutput `json:"output"`
}

// Generate sends prompt with the SQL system prompt and returns the raw output text.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", apperrors.NewValidationError("prompt is required")
	}

	if c.limiter != nil {
		waitStart := time.Now()
		if err := c.limiter.Wait(ctx); err != nil {
			observability.RecordLLMMetric(ctx, c.model, 0, 0, err)
			return "", err
		}
		recordRateLimitWait(ctx, c.model, time.Since(waitStart))
	}

	payload := map[string]interface{}{
		"model": c.model,
		"input": []map[string]string{
			{"role": "system", "content": sqlSystemPrompt},
			{"role": "user", "content": prompt},
		},
		"temperature":       0.0,
		"max_output_tokens": 800,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/responses", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		observability.RecordLLMMetric(ctx, c.model, 0, time.Since(start), err)
		return "", apperrors.NewExternalError("openai request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := fmt.Errorf("status %d", resp.StatusCode)
		observability.RecordLLMMetric(ctx, c.model, resp.StatusCode, time.Since(start), statusErr)
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return "", apperrors.NewExternalError("openai request failed", fmt.Errorf("%w: %v", ErrUnauthorized, statusErr))
		}
		return "", apperrors.NewExternalError("openai request failed", statusErr)
	}

	var envelope responseEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		observability.RecordLLMMetric(ctx, c.model, resp.StatusCode, time.Since(start), err)
		return "", apperrors.NewExternalError("failed to decode openai response", err)
	}

	text := outputText(envelope)
	if text == "" {
		err := errors.New("openai response missing output text")
		observability.RecordLLMMetric(ctx, c.model, resp.StatusCode, time.Since(start), err)
		return "", apperrors.NewExternalError("openai request failed", err)
	}

	observability.RecordLLMMetric(ctx, c.model, resp.StatusCode, time.Since(start), nil)
	return text, nil
}

func newTokenBucket(rpm int, burst int) *tokenBucket {
	if rpm == 0 {
		rpm = 60
	}
	if rpm < 0 {
		return nil
	}
	if burst <= 0 {
		burst = 5
	}
	return newTokenBucketWithRate(rpm, burst)
}

type tokenBucket struct {
	tokens chan struct{}
}

func newTokenBucketWithRate(rpm int, burst int) *tokenBucket {
	bucket := &tokenBucket{
		tokens: make(chan struct{}, burst),
	}

	for i := 0; i < burst; i++ {
		bucket.tokens <- struct{}{}
	}

	interval := time.Minute / time.Duration(rpm)
	if interval <= 0 {
		interval = time.Millisecond
	}

	ticker := time.NewTicker(interval)
	go func() {
		for range ticker.C {
			select {
			case bucket.tokens <- struct{}{}:
			default:
			}
		}
	}()

	return bucket
}

func (b *tokenBucket) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.tokens:
		return nil
	}
}

var (
	rateLimitWaitOnce sync.Once
	rateLimitWait     metric.Float64Histogram
)

func recordRateLimitWait(ctx context.Context, model string, wait time.Duration) {
	rateLimitWaitOnce.Do(func() {
		h, err := otel.Meter("github.com/zatekoja/databaseguru/backend/openai").Float64Histogram(
			"llm.openai.rate_limit.wait",
			metric.WithDescription("Time spent waiting for the OpenAI rate limiter in milliseconds"),
			metric.WithUnit("ms"),
		)
		if err == nil {
			rateLimitWait = h
		}
	})
	if rateLimitWait == nil {
		return
	}
	rateLimitWait.Record(ctx, float64(wait.Milliseconds()), metric.WithAttributes(
		attribute.String("llm.provider", "openai"),
		attribute.String("llm.model", model),
	))
}

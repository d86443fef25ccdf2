// Package llm wraps an OpenAI-compatible API behind the two collaborator
// surfaces the engine needs: batch embeddings and bounded chat
// completions. Pointing BaseURL at LM Studio or an Ollama gateway works
// unchanged.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// DefaultTimeout bounds a single model call. Generation of a few hundred
// tokens finishes well inside it; a hung backend does not hold a request
// forever.
const DefaultTimeout = 2 * time.Minute

// Config holds connection and model settings.
type Config struct {
	BaseURL    string
	APIKey     string
	EmbedModel string
	ChatModel  string
	// Timeout caps one embed or completion call; 0 means DefaultTimeout.
	Timeout time.Duration
	// RequestsPerSecond rate-limits outgoing calls client-side; 0 means
	// unlimited.
	RequestsPerSecond float64
	Burst             int
}

// Client is an embedding + generation client. One instance serves both
// document indexing and query embedding so the vector spaces match.
type Client struct {
	api        *openai.Client
	embedModel string
	chatModel  string
	limiter    *rate.Limiter
}

// New creates a Client from cfg.
func New(cfg Config) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	oc.HTTPClient = &http.Client{Timeout: timeout}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Client{
		api:        openai.NewClientWithConfig(oc),
		embedModel: cfg.EmbedModel,
		chatModel:  cfg.ChatModel,
		limiter:    limiter,
	}
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// EmbedBatch returns one vector per input text, in input order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(c.embedModel),
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("llm: embeddings: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	// The API may return items out of order; Index is authoritative.
	data := make([]openai.Embedding, len(resp.Data))
	copy(data, resp.Data)
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	out := make([][]float32, len(data))
	for i, d := range data {
		out[i] = d.Embedding
	}
	return out, nil
}

// Complete runs a single-turn chat completion and returns the raw reply.
func (c *Client) Complete(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("llm: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm: chat completion: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}

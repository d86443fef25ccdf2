// Package gen produces grounded answers: it embeds the retrieved context
// and the question into a fixed prompt and invokes the external generation
// model with bounded output and low temperature.
package gen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/askpaper-ai/askpaper/engine/domain"
	"github.com/askpaper-ai/askpaper/pkg/fn"
	"github.com/askpaper-ai/askpaper/pkg/resilience"
)

const answerPrompt = "Use the following context to answer the question:\n\nContext:\n%s\n\nQuestion: %s\nAnswer:"

// ChatClient is the external text-generation collaborator.
type ChatClient interface {
	Complete(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error)
}

// Options configures the generator.
type Options struct {
	// MaxTokens bounds the generated answer length.
	MaxTokens int
	// Temperature keeps answers near-deterministic at its default.
	Temperature float32
	// Retry bounds transient-failure retries around the model call.
	Retry fn.RetryOpts
}

// DefaultOptions mirrors the tuning of the answer prompt: ~300 tokens at
// temperature 0.2.
func DefaultOptions() Options {
	return Options{
		MaxTokens:   300,
		Temperature: 0.2,
		Retry: fn.RetryOpts{
			MaxAttempts: 3,
			InitialWait: 500 * time.Millisecond,
			MaxWait:     5 * time.Second,
			Jitter:      true,
		},
	}
}

// Generator calls the generation model through a circuit breaker with
// bounded retry.
type Generator struct {
	chat    ChatClient
	breaker *resilience.Breaker
	opts    Options
	logger  *slog.Logger
}

// New creates a Generator. A nil breaker disables circuit breaking.
func New(chat ChatClient, breaker *resilience.Breaker, opts Options, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{chat: chat, breaker: breaker, opts: opts, logger: logger}
}

// Answer generates an answer to question grounded in contextText (the
// concatenated retrieved chunks, in retrieval order). Every failure path
// wraps domain.ErrGenerationFailed so callers can map it to a user-facing
// error without leaking model internals.
func (g *Generator) Answer(ctx context.Context, contextText, question string) (string, error) {
	prompt := fmt.Sprintf(answerPrompt, contextText, question)

	result := fn.Retry(ctx, g.opts.Retry, func(ctx context.Context) fn.Result[string] {
		var text string
		call := func(ctx context.Context) error {
			var err error
			text, err = g.chat.Complete(ctx, prompt, g.opts.MaxTokens, g.opts.Temperature)
			return err
		}

		var err error
		if g.breaker != nil {
			err = g.breaker.Call(ctx, call)
		} else {
			err = call(ctx)
		}
		if err != nil {
			// Rejections while the breaker is open are not worth a warn each.
			if errors.Is(err, resilience.ErrCircuitOpen) {
				return fn.Err[string](err)
			}
			g.logger.Warn("gen: completion attempt failed", "err", err)
			return fn.Err[string](err)
		}
		return fn.Ok(strings.TrimSpace(text))
	})

	text, err := result.Unwrap()
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrGenerationFailed, err)
	}
	if text == "" {
		return "", fmt.Errorf("%w: model returned empty response", domain.ErrGenerationFailed)
	}
	return text, nil
}

package gen

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/askpaper-ai/askpaper/engine/domain"
	"github.com/askpaper-ai/askpaper/pkg/fn"
	"github.com/askpaper-ai/askpaper/pkg/resilience"
)

type stubChat struct {
	replies []string
	errs    []error
	calls   int

	prompt    string
	maxTokens int
	temp      float32
}

func (c *stubChat) Complete(_ context.Context, prompt string, maxTokens int, temperature float32) (string, error) {
	i := c.calls
	c.calls++
	c.prompt = prompt
	c.maxTokens = maxTokens
	c.temp = temperature
	if i < len(c.errs) && c.errs[i] != nil {
		return "", c.errs[i]
	}
	if i < len(c.replies) {
		return c.replies[i], nil
	}
	return "", errors.New("no scripted reply")
}

func fastRetry(attempts int) fn.RetryOpts {
	return fn.RetryOpts{MaxAttempts: attempts, InitialWait: time.Millisecond, MaxWait: time.Millisecond}
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Retry = fastRetry(3)
	return opts
}

func TestAnswer_PromptAndTuning(t *testing.T) {
	chat := &stubChat{replies: []string{"  Paris is the capital.  "}}
	g := New(chat, nil, testOptions(), nil)

	got, err := g.Answer(context.Background(), "France's capital is Paris.", "What is the capital of France?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Paris is the capital." {
		t.Errorf("answer not trimmed: %q", got)
	}
	if !strings.Contains(chat.prompt, "Context:\nFrance's capital is Paris.") {
		t.Errorf("prompt missing context: %q", chat.prompt)
	}
	if !strings.Contains(chat.prompt, "Question: What is the capital of France?") {
		t.Errorf("prompt missing question: %q", chat.prompt)
	}
	if chat.maxTokens != 300 || chat.temp != 0.2 {
		t.Errorf("tuning = (%d, %v), want (300, 0.2)", chat.maxTokens, chat.temp)
	}
}

func TestAnswer_RetriesTransientFailures(t *testing.T) {
	chat := &stubChat{
		errs:    []error{errors.New("timeout"), errors.New("timeout"), nil},
		replies: []string{"", "", "recovered"},
	}
	g := New(chat, nil, testOptions(), nil)

	got, err := g.Answer(context.Background(), "ctx", "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "recovered" {
		t.Errorf("answer = %q, want %q", got, "recovered")
	}
	if chat.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", chat.calls)
	}
}

func TestAnswer_ExhaustedRetriesWrapError(t *testing.T) {
	chat := &stubChat{errs: []error{errors.New("down"), errors.New("down"), errors.New("down")}}
	g := New(chat, nil, testOptions(), nil)

	_, err := g.Answer(context.Background(), "ctx", "q")
	if !errors.Is(err, domain.ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}
	if chat.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", chat.calls)
	}
}

func TestAnswer_EmptyResponseIsError(t *testing.T) {
	chat := &stubChat{replies: []string{"   "}}
	g := New(chat, nil, testOptions(), nil)

	if _, err := g.Answer(context.Background(), "ctx", "q"); !errors.Is(err, domain.ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed for empty response, got %v", err)
	}
}

func TestAnswer_OpenBreakerFailsFast(t *testing.T) {
	breaker := resilience.NewBreaker(resilience.BreakerOpts{FailThreshold: 1, Cooldown: time.Hour})
	trip := func(context.Context) error { return errors.New("down") }
	if err := breaker.Call(context.Background(), trip); err == nil {
		t.Fatal("expected tripping call to fail")
	}

	chat := &stubChat{replies: []string{"should not be used"}}
	g := New(chat, breaker, testOptions(), nil)

	_, err := g.Answer(context.Background(), "ctx", "q")
	if !errors.Is(err, domain.ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}
	if chat.calls != 0 {
		t.Errorf("open breaker must block the model call, got %d calls", chat.calls)
	}
}

package followup

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestClean(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Do you want to know why the sky is blue", "Why the sky is blue?"},
		{"Do you want to know about the history of Rome", "The history of Rome?"},
		{"Would you like to learn more about gradient descent?", "Gradient descent?"},
		{"would you like to find out how photosynthesis works", "How photosynthesis works?"},
		{"Could you care to see what happens next", "What happens next?"},
		{"about the war of 1812", "The war of 1812?"},
		{"More about neural networks", "Neural networks?"},
		{"Why is the sky blue?", "Why is the sky blue?"},
		{"what is entropy", "What is entropy?"},
		{"  Do you want to know what entropy is  ", "What entropy is?"},
		{"Do you want to know", "Do you want to know?"},
		{"", ""},
		{"   ", ""},
	}
	for _, tc := range cases {
		if got := Clean(tc.in); got != tc.want {
			t.Errorf("Clean(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestClean_Idempotent(t *testing.T) {
	once := Clean("Do you want to know why the sky is blue")
	if twice := Clean(once); twice != once {
		t.Errorf("Clean not idempotent: %q -> %q", once, twice)
	}
}

type stubChat struct {
	reply  string
	err    error
	calls  int
	prompt string
	temp   float32
}

func (c *stubChat) Complete(_ context.Context, prompt string, _ int, temperature float32) (string, error) {
	c.calls++
	c.prompt = prompt
	c.temp = temperature
	if c.err != nil {
		return "", c.err
	}
	return c.reply, nil
}

func TestSuggest(t *testing.T) {
	chat := &stubChat{reply: "Do you want to know how the engine cools itself"}
	r := NewRecommender(chat, nil)

	got, err := r.Suggest(context.Background(), "The cooling loop circulates...")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "How the engine cools itself?" {
		t.Errorf("suggestion not cleaned: %q", got)
	}
	if !strings.Contains(chat.prompt, "The cooling loop circulates...") {
		t.Errorf("prompt missing lookahead text: %q", chat.prompt)
	}
	if chat.temp != 0.1 {
		t.Errorf("temperature = %v, want 0.1", chat.temp)
	}
}

func TestSuggest_EmptyLookahead(t *testing.T) {
	chat := &stubChat{reply: "should not be used"}
	r := NewRecommender(chat, nil)

	got, err := r.Suggest(context.Background(), "  \n ")
	if err != nil || got != "" {
		t.Fatalf("empty lookahead: got (%q, %v), want (\"\", nil)", got, err)
	}
	if chat.calls != 0 {
		t.Errorf("empty lookahead must not call the model, got %d calls", chat.calls)
	}
}

func TestSuggest_ModelFailure(t *testing.T) {
	r := NewRecommender(&stubChat{err: errors.New("rate limited")}, nil)

	if _, err := r.Suggest(context.Background(), "some text"); err == nil {
		t.Fatal("expected error from failing model")
	}
}

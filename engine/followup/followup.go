// Package followup suggests a guided next question from the document text
// that follows the retrieved passages, and normalizes suggestion text into
// a plain question.
package followup

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const suggestPrompt = `You are a curious chatbot that comes up with questions from the provided context %s.
Suggest a question to the user in the form: Do you want to know why, what, etc.`

// Lookahead is how many chunks after the best retrieval match feed the
// suggestion prompt.
const Lookahead = 3

// ChatClient is the external text-generation collaborator.
type ChatClient interface {
	Complete(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error)
}

// cleanupRules are applied in order to the front of a suggestion, each at
// most once. Kept as data so new pretext phrasings are a one-line change.
var cleanupRules = []*regexp.Regexp{
	// "Do you want to know ...", "Would you like to learn ...", etc.
	regexp.MustCompile(`(?i)^(do|would|did|are|can|could|will|shall|may|might|should|have|has|had)\s+you\s+(want|like|wish|care)\s+to\s+(know|learn|find\s+out|see|understand)\s+`),
	// Leading "about" / "more about" left behind by the pretext.
	regexp.MustCompile(`(?i)^(more\s+about|about)\s+`),
}

// Clean turns a suggestion like "Do you want to know why the sky is blue"
// into "Why the sky is blue?": strips the pretext phrasings, capitalizes
// the first letter, and ensures a trailing question mark. Returns "" when
// nothing remains after stripping.
func Clean(q string) string {
	q = strings.TrimSpace(q)
	for _, re := range cleanupRules {
		q = re.ReplaceAllString(q, "")
	}
	q = strings.TrimSpace(q)
	if q == "" {
		return ""
	}

	r, size := utf8.DecodeRuneInString(q)
	if unicode.IsLower(r) {
		q = string(unicode.ToUpper(r)) + q[size:]
	}
	if !strings.HasSuffix(q, "?") {
		q += "?"
	}
	return q
}

// Recommender generates follow-up suggestions.
type Recommender struct {
	chat      ChatClient
	maxTokens int
	logger    *slog.Logger
}

// NewRecommender creates a Recommender.
func NewRecommender(chat ChatClient, logger *slog.Logger) *Recommender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recommender{chat: chat, maxTokens: 300, logger: logger}
}

// Suggest produces one cleaned follow-up question from the text following
// the retrieved passages. An empty lookahead means no suggestion and no
// model call; "" with a nil error means the follow-up is absent.
func (r *Recommender) Suggest(ctx context.Context, following string) (string, error) {
	following = strings.TrimSpace(following)
	if following == "" {
		return "", nil
	}

	prompt := fmt.Sprintf(suggestPrompt, following)
	// Temperature 0.1: suggestions should be stable for the same passage.
	raw, err := r.chat.Complete(ctx, prompt, r.maxTokens, 0.1)
	if err != nil {
		return "", fmt.Errorf("followup: suggest: %w", err)
	}
	return Clean(raw), nil
}

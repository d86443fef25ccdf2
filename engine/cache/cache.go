// Package cache implements the semantic answer cache: repeated or
// paraphrased questions are matched against previously answered ones by a
// model-based similarity score instead of string equality, so a near
// duplicate skips retrieval and generation entirely.
package cache

import (
	"context"
	"log/slog"
	"sync"
)

// HitThreshold is the similarity a stored query must strictly exceed for
// its answer to be reused.
const HitThreshold = 0.95

// Entry is one cached (question, answer) pair. Followup is empty when the
// original response carried no suggestion.
type Entry struct {
	Query    string
	Answer   string
	Followup string
}

// Scorer computes one semantic similarity score in [0,1] per candidate.
// It is an external model collaborator and may fail.
type Scorer interface {
	Score(ctx context.Context, query string, candidates []string) ([]float64, error)
}

// Cache gates expensive generation work. Implementations decide their own
// eviction policy; callers only rely on these three operations plus Len.
type Cache interface {
	// Lookup returns the best-matching entry, if any key scores strictly
	// above the admission threshold. Scoring failures are a miss, never an
	// error.
	Lookup(ctx context.Context, query string) (Entry, bool)
	// Insert stores an entry under its literal (normalized) query text.
	Insert(query string, e Entry)
	// Clear drops every entry. Called when a new document is indexed,
	// since old answers reference retired chunks.
	Clear()
	// Len reports the number of stored entries.
	Len() int
}

// Semantic is the default Cache: insertion-ordered, unbounded. No TTL and
// no capacity limit — entries live until the next document upload clears
// them. Bounded eviction can be swapped in behind the Cache interface
// without touching callers.
type Semantic struct {
	mu      sync.RWMutex
	scorer  Scorer
	keys    []string // insertion order, drives tie-breaking
	entries map[string]Entry
	logger  *slog.Logger
}

// NewSemantic creates an empty semantic cache using scorer for lookups.
func NewSemantic(scorer Scorer, logger *slog.Logger) *Semantic {
	if logger == nil {
		logger = slog.Default()
	}
	return &Semantic{
		scorer:  scorer,
		entries: make(map[string]Entry),
		logger:  logger,
	}
}

// Lookup scores query against every stored key. A hit requires the maximum
// score to strictly exceed HitThreshold; among exact ties the earliest
// inserted key wins. An empty cache or a scorer failure is a plain miss.
func (c *Semantic) Lookup(ctx context.Context, query string) (Entry, bool) {
	c.mu.RLock()
	keys := make([]string, len(c.keys))
	copy(keys, c.keys)
	c.mu.RUnlock()

	if len(keys) == 0 {
		return Entry{}, false
	}

	scores, err := c.scorer.Score(ctx, query, keys)
	if err != nil || len(scores) != len(keys) {
		c.logger.Warn("cache: similarity scoring failed, treating as miss", "err", err)
		return Entry{}, false
	}

	best := -1
	bestScore := HitThreshold
	for i, s := range scores {
		// Strict > on both comparisons: sub-threshold scores never hit,
		// and a later key never displaces an equal earlier one.
		if s > bestScore {
			best = i
			bestScore = s
		}
	}
	if best < 0 {
		return Entry{}, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[keys[best]]
	return e, ok
}

// Insert stores e under query. Re-inserting an existing key overwrites the
// entry but keeps its original insertion rank.
func (c *Semantic) Insert(query string, e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[query]; !exists {
		c.keys = append(c.keys, query)
	}
	c.entries[query] = e
}

// Clear drops all entries.
func (c *Semantic) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = nil
	c.entries = make(map[string]Entry)
}

// Len returns the number of entries.
func (c *Semantic) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

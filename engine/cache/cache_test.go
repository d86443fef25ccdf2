package cache

import (
	"context"
	"errors"
	"testing"
)

type stubScorer struct {
	scores []float64
	err    error
	calls  int
}

func (s *stubScorer) Score(_ context.Context, _ string, candidates []string) ([]float64, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.scores != nil {
		return s.scores, nil
	}
	return make([]float64, len(candidates)), nil
}

func TestLookup_HitAboveThreshold(t *testing.T) {
	scorer := &stubScorer{scores: []float64{0.96}}
	c := NewSemantic(scorer, nil)
	c.Insert("what is gradient descent", Entry{
		Query:  "what is gradient descent",
		Answer: "An iterative optimizer.",
	})

	e, ok := c.Lookup(context.Background(), "explain gradient descent")
	if !ok {
		t.Fatal("expected a hit at score 0.96")
	}
	if e.Answer != "An iterative optimizer." {
		t.Errorf("wrong entry returned: %+v", e)
	}
}

func TestLookup_ThresholdIsStrict(t *testing.T) {
	for _, score := range []float64{0.94, 0.95} {
		scorer := &stubScorer{scores: []float64{score}}
		c := NewSemantic(scorer, nil)
		c.Insert("q", Entry{Query: "q", Answer: "a"})

		if _, ok := c.Lookup(context.Background(), "q2"); ok {
			t.Errorf("score %v should miss, threshold is strict", score)
		}
	}
}

func TestLookup_TieGoesToEarliestInserted(t *testing.T) {
	scorer := &stubScorer{scores: []float64{0.97, 0.97}}
	c := NewSemantic(scorer, nil)
	c.Insert("first", Entry{Query: "first", Answer: "first answer"})
	c.Insert("second", Entry{Query: "second", Answer: "second answer"})

	e, ok := c.Lookup(context.Background(), "anything")
	if !ok {
		t.Fatal("expected a hit")
	}
	if e.Answer != "first answer" {
		t.Errorf("tie should resolve to earliest inserted entry, got %+v", e)
	}
}

func TestLookup_EmptyCacheSkipsScorer(t *testing.T) {
	scorer := &stubScorer{}
	c := NewSemantic(scorer, nil)

	if _, ok := c.Lookup(context.Background(), "q"); ok {
		t.Fatal("empty cache must miss")
	}
	if scorer.calls != 0 {
		t.Errorf("scorer called %d times on empty cache", scorer.calls)
	}
}

func TestLookup_ScorerFailureIsMiss(t *testing.T) {
	scorer := &stubScorer{err: errors.New("model unavailable")}
	c := NewSemantic(scorer, nil)
	c.Insert("q", Entry{Query: "q", Answer: "a"})

	if _, ok := c.Lookup(context.Background(), "q"); ok {
		t.Fatal("scorer failure must degrade to a miss")
	}
}

func TestLookup_ScoreCountMismatchIsMiss(t *testing.T) {
	scorer := &stubScorer{scores: []float64{0.99, 0.99}}
	c := NewSemantic(scorer, nil)
	c.Insert("q", Entry{Query: "q", Answer: "a"})

	if _, ok := c.Lookup(context.Background(), "q"); ok {
		t.Fatal("mismatched score count must degrade to a miss")
	}
}

func TestInsert_OverwriteKeepsRank(t *testing.T) {
	scorer := &stubScorer{scores: []float64{0.99, 0.99}}
	c := NewSemantic(scorer, nil)
	c.Insert("first", Entry{Query: "first", Answer: "old"})
	c.Insert("second", Entry{Query: "second", Answer: "other"})
	c.Insert("first", Entry{Query: "first", Answer: "new"})

	if c.Len() != 2 {
		t.Fatalf("overwrite must not grow the cache, len=%d", c.Len())
	}
	e, ok := c.Lookup(context.Background(), "anything")
	if !ok {
		t.Fatal("expected a hit")
	}
	if e.Answer != "new" {
		t.Errorf("overwritten entry should win the tie at its original rank, got %+v", e)
	}
}

func TestClear(t *testing.T) {
	c := NewSemantic(&stubScorer{}, nil)
	c.Insert("a", Entry{Query: "a"})
	c.Insert("b", Entry{Query: "b"})
	c.Clear()

	if c.Len() != 0 {
		t.Fatalf("expected empty cache after Clear, len=%d", c.Len())
	}
	if _, ok := c.Lookup(context.Background(), "a"); ok {
		t.Fatal("cleared cache must miss")
	}
}

// Package rag coordinates the question-answering pipeline per request:
// input normalization, the semantic cache gate, retrieval against the
// current index snapshot, answer generation, and follow-up suggestion. It
// also owns the snapshot swap/clear protocol used on re-index.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/askpaper-ai/askpaper/engine/cache"
	"github.com/askpaper-ai/askpaper/engine/domain"
	"github.com/askpaper-ai/askpaper/engine/followup"
	"github.com/askpaper-ai/askpaper/engine/index"
	"github.com/askpaper-ai/askpaper/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

// Fixed user-facing responses. Raw error detail never reaches end users.
const (
	FarewellAnswer   = "Goodbye!"
	NoDocumentAnswer = "Please upload a document first."
	GenerationExcuse = "Sorry, I could not generate an answer right now. Please try again."
)

// AnswerGenerator produces a grounded answer from retrieved context.
type AnswerGenerator interface {
	Answer(ctx context.Context, contextText, question string) (string, error)
}

// Recommender proposes a follow-up question from lookahead text.
type Recommender interface {
	Suggest(ctx context.Context, following string) (string, error)
}

// Metrics are the coordinator's instrumentation hooks; any field may be nil.
type Metrics struct {
	Queries      *metrics.Counter
	CacheHits    *metrics.Counter
	CacheMisses  *metrics.Counter
	Publications *metrics.Counter
	CacheEntries *metrics.Gauge
	GenSeconds   *metrics.Histogram
}

// Options configures the coordinator.
type Options struct {
	// TopK is how many chunks feed the answer prompt.
	TopK int
	// Lookahead is how many chunks past the best match feed the follow-up
	// prompt.
	Lookahead int
	// WrapWidth line-wraps answers for display; 0 disables wrapping.
	WrapWidth int
	// Index configures snapshot building for IndexDocument.
	Index index.Options
	// Metrics is optional instrumentation.
	Metrics *Metrics
}

// DefaultOptions returns the tuning the prompts were written for.
func DefaultOptions() Options {
	return Options{
		TopK:      3,
		Lookahead: followup.Lookahead,
		WrapWidth: 130,
		Index:     index.DefaultOptions(),
	}
}

// Service is the query coordinator. It starts with no index and becomes
// ready once the first snapshot is published; every later publication
// atomically replaces the snapshot and clears the cache.
type Service struct {
	embed  index.Embedder
	gen    AnswerGenerator
	rec    Recommender
	cache  cache.Cache
	opts   Options
	logger *slog.Logger

	// mu serializes snapshot publication with the swap-sensitive parts of
	// the miss path; queries otherwise read the snapshot pointer once and
	// run lock-free against that immutable value.
	mu     sync.Mutex
	snap   atomic.Pointer[index.Snapshot]
	flight singleflight.Group
}

// New creates a coordinator in the NoIndex state.
func New(embed index.Embedder, gen AnswerGenerator, rec Recommender, c cache.Cache, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TopK <= 0 {
		opts.TopK = 3
	}
	if opts.Lookahead <= 0 {
		opts.Lookahead = followup.Lookahead
	}
	return &Service{embed: embed, gen: gen, rec: rec, cache: c, opts: opts, logger: logger}
}

// Ready reports whether a document has been indexed.
func (s *Service) Ready() bool { return s.snap.Load() != nil }

// IndexDocument builds a snapshot from extracted document text and
// publishes it. On failure the previous snapshot (if any) stays current
// and the cache is untouched.
func (s *Service) IndexDocument(ctx context.Context, text string) (*index.Snapshot, error) {
	snap, err := index.Build(ctx, text, s.embed, s.opts.Index)
	if err != nil {
		return nil, fmt.Errorf("rag: index document: %w", err)
	}
	s.Publish(snap)
	return snap, nil
}

// Publish atomically replaces the current snapshot and clears the cache.
// A query in flight sees either the old snapshot with the old cache or the
// new snapshot with an empty cache, never a mix.
func (s *Service) Publish(snap *index.Snapshot) {
	s.mu.Lock()
	s.snap.Store(snap)
	s.cache.Clear()
	s.mu.Unlock()

	if m := s.opts.Metrics; m != nil {
		if m.Publications != nil {
			m.Publications.Inc()
		}
		if m.CacheEntries != nil {
			m.CacheEntries.Set(0)
		}
	}
	s.logger.Info("index published", "snapshot", snap.ID(), "chunks", snap.Len(), "dim", snap.Dim())
}

// Query answers one request. The normalized query is checked against the
// exit keyword, then index availability, then the semantic cache; only a
// miss runs retrieval, generation, and follow-up suggestion.
func (s *Service) Query(ctx context.Context, req domain.QueryRequest) (domain.Reply, error) {
	query := strings.TrimSpace(req.Question)
	if req.UseFollowup && strings.TrimSpace(req.FollowupText) != "" {
		query = followup.Clean(req.FollowupText)
	}

	if strings.EqualFold(query, "exit") {
		return domain.Reply{Answer: FarewellAnswer}, nil
	}

	snap := s.snap.Load()
	if snap == nil {
		return domain.Reply{Answer: NoDocumentAnswer}, nil
	}

	if m := s.opts.Metrics; m != nil && m.Queries != nil {
		m.Queries.Inc()
	}

	if e, ok := s.cache.Lookup(ctx, query); ok {
		if m := s.opts.Metrics; m != nil && m.CacheHits != nil {
			m.CacheHits.Inc()
		}
		s.logger.Info("cache hit", "query_len", len(query))
		return domain.Reply{Answer: s.wrap(e.Answer), Followup: e.Followup, FromCache: true}, nil
	}
	if m := s.opts.Metrics; m != nil && m.CacheMisses != nil {
		m.CacheMisses.Inc()
	}

	// Concurrent misses for the same normalized query share one
	// generation pass instead of racing duplicate model calls.
	v, err, _ := s.flight.Do(query, func() (any, error) {
		return s.answer(ctx, snap, query)
	})
	if err != nil {
		return domain.Reply{}, err
	}
	e := v.(cache.Entry)
	return domain.Reply{Answer: s.wrap(e.Answer), Followup: e.Followup}, nil
}

// answer runs the miss path against the snapshot captured at request
// start: retrieve top-k, generate, suggest a follow-up, cache the pair.
func (s *Service) answer(ctx context.Context, snap *index.Snapshot, query string) (cache.Entry, error) {
	vecs, err := s.embed.EmbedBatch(ctx, []string{query})
	if err != nil {
		return cache.Entry{}, fmt.Errorf("rag: embed query: %w", err)
	}
	if len(vecs) != 1 {
		return cache.Entry{}, fmt.Errorf("rag: embed query: got %d vectors", len(vecs))
	}

	hits, err := snap.Search(vecs[0], s.opts.TopK)
	if err != nil {
		return cache.Entry{}, fmt.Errorf("rag: search: %w", err)
	}

	parts := make([]string, len(hits))
	maxID := 0
	for i, h := range hits {
		parts[i] = snap.Chunk(h.ID)
		if h.ID > maxID {
			maxID = h.ID
		}
	}
	contextText := strings.Join(parts, "\n\n")

	start := time.Now()
	answer, err := s.gen.Answer(ctx, contextText, query)
	if m := s.opts.Metrics; m != nil && m.GenSeconds != nil {
		m.GenSeconds.Since(start)
	}
	if err != nil {
		return cache.Entry{}, err
	}

	following := strings.Join(snap.Following(maxID, s.opts.Lookahead), "\n\n")
	fu, err := s.rec.Suggest(ctx, following)
	if err != nil {
		// The answer stands on its own; a failed suggestion degrades to
		// no follow-up.
		s.logger.Warn("follow-up suggestion failed", "err", err)
		fu = ""
	}

	e := cache.Entry{Query: query, Answer: answer, Followup: fu}

	// Insert only if our snapshot is still current: a publication that
	// happened mid-request has cleared the cache, and this entry would
	// reference retired chunks.
	s.mu.Lock()
	if s.snap.Load() == snap {
		s.cache.Insert(query, e)
	}
	s.mu.Unlock()
	if m := s.opts.Metrics; m != nil && m.CacheEntries != nil {
		m.CacheEntries.Set(int64(s.cache.Len()))
	}

	s.logger.Info("query answered", "retrieved", len(hits), "followup", fu != "")
	return e, nil
}

func (s *Service) wrap(text string) string {
	return wrapText(text, s.opts.WrapWidth)
}

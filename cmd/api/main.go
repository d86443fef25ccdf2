// Package main implements the askpaper API server: upload one document,
// then ask questions about it.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/askpaper-ai/askpaper/engine/cache"
	"github.com/askpaper-ai/askpaper/engine/domain"
	"github.com/askpaper-ai/askpaper/engine/extract"
	"github.com/askpaper-ai/askpaper/engine/followup"
	"github.com/askpaper-ai/askpaper/engine/gen"
	"github.com/askpaper-ai/askpaper/engine/ingest"
	"github.com/askpaper-ai/askpaper/engine/rag"
	"github.com/askpaper-ai/askpaper/engine/similarity"
	"github.com/askpaper-ai/askpaper/pkg/llm"
	"github.com/askpaper-ai/askpaper/pkg/metrics"
	"github.com/askpaper-ai/askpaper/pkg/mid"
	"github.com/askpaper-ai/askpaper/pkg/resilience"
	"github.com/nats-io/nats.go"
)

const maxUploadBytes = 32 << 20

// Config holds all environment-based configuration.
type Config struct {
	Port       string
	LLMBaseURL string
	LLMAPIKey  string
	EmbedModel string
	ChatModel  string
	LLMRate    float64
	LLMTimeout time.Duration
	NATSURL    string
	CORSOrigin string
}

func loadConfig() Config {
	rate, _ := strconv.ParseFloat(envOr("LLM_RATE_LIMIT", "10"), 64)
	timeout, err := time.ParseDuration(envOr("LLM_TIMEOUT", "2m"))
	if err != nil {
		timeout = llm.DefaultTimeout
	}
	return Config{
		Port:       envOr("PORT", "8080"),
		LLMBaseURL: envOr("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:  os.Getenv("LLM_API_KEY"),
		EmbedModel: envOr("EMBED_MODEL", "text-embedding-3-small"),
		ChatModel:  envOr("CHAT_MODEL", "gpt-4o-mini"),
		LLMRate:    rate,
		LLMTimeout: timeout,
		NATSURL:    os.Getenv("NATS_URL"), // empty disables the consumer
		CORSOrigin: envOr("CORS_ORIGIN", "*"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(loadConfig(), logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Model collaborators ---
	client := llm.New(llm.Config{
		BaseURL:           cfg.LLMBaseURL,
		APIKey:            cfg.LLMAPIKey,
		EmbedModel:        cfg.EmbedModel,
		ChatModel:         cfg.ChatModel,
		Timeout:           cfg.LLMTimeout,
		RequestsPerSecond: cfg.LLMRate,
		Burst:             5,
	})
	breaker := resilience.NewBreaker(resilience.DefaultBreakerOpts)

	// --- Metrics ---
	reg := metrics.New()
	ragMetrics := &rag.Metrics{
		Queries:      reg.Counter("askpaper_queries_total", "Queries handled (excluding exit/no-document)"),
		CacheHits:    reg.Counter("askpaper_cache_hits_total", "Semantic cache hits"),
		CacheMisses:  reg.Counter("askpaper_cache_misses_total", "Semantic cache misses"),
		Publications: reg.Counter("askpaper_index_publications_total", "Index snapshot publications"),
		CacheEntries: reg.Gauge("askpaper_cache_entries", "Entries currently cached"),
		GenSeconds:   reg.Histogram("askpaper_generation_seconds", "Answer generation latency", nil),
	}
	uploads := reg.Counter("askpaper_uploads_total", "Successful document uploads")

	// --- Query coordinator ---
	scorer := similarity.NewEmbedScorer(client)
	answerCache := cache.NewSemantic(scorer, logger)
	generator := gen.New(client, breaker, gen.DefaultOptions(), logger)
	recommender := followup.NewRecommender(client, logger)

	opts := rag.DefaultOptions()
	opts.Metrics = ragMetrics
	svc := rag.New(client, generator, recommender, answerCache, opts, logger)

	// --- Optional NATS ingestion ---
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("askpaper-api"))
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Close()

		pipeline := ingest.NewPipeline(client, opts.Index, svc)
		sub, err := ingest.StartConsumer(nc, pipeline, logger)
		if err != nil {
			return fmt.Errorf("ingest consumer: %w", err)
		}
		defer sub.Unsubscribe()
		logger.Info("ingest consumer started", "subject", ingest.Subject)
	}

	// --- HTTP server ---
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth(svc))
	mux.HandleFunc("POST /api/upload", handleUpload(svc, uploads, logger))
	mux.HandleFunc("POST /api/chat", handleChat(svc, logger))
	mux.Handle("GET /metrics", reg.Handler())

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.RequestID(),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("askpaper-api"),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// --- Handlers ---

func handleHealth(svc *rag.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":          "ok",
			"document_loaded": svc.Ready(),
		})
	}
}

// UploadResponse reports a processed document.
type UploadResponse struct {
	Document string `json:"document"`
	Chunks   int    `json:"chunks"`
	Status   string `json:"status"`
}

func handleUpload(svc *rag.Service, uploads *metrics.Counter, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "file is required (form field: file)")
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read upload")
			return
		}

		text, err := extract.FromUpload(header.Filename, data)
		if err != nil {
			logger.Warn("extraction failed", "file", header.Filename, "err", err)
			writeError(w, http.StatusBadRequest, "failed to extract text from document")
			return
		}

		snap, err := svc.IndexDocument(r.Context(), text)
		if err != nil {
			if errors.Is(err, domain.ErrEmptyDocument) {
				writeError(w, http.StatusBadRequest, "no text extracted from document")
				return
			}
			logger.Error("indexing failed", "file", header.Filename, "err", err)
			writeError(w, http.StatusInternalServerError, "failed to index document")
			return
		}

		uploads.Inc()
		writeJSON(w, http.StatusOK, UploadResponse{
			Document: header.Filename,
			Chunks:   snap.Len(),
			Status:   "document processed successfully",
		})
	}
}

// ChatResponse is the reply to POST /api/chat. Followup is null when no
// suggestion exists.
type ChatResponse struct {
	Answer   string  `json:"answer"`
	Followup *string `json:"followup"`
}

func handleChat(svc *rag.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req domain.QueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Question == "" && !req.UseFollowup {
			writeError(w, http.StatusBadRequest, "question is required")
			return
		}

		reply, err := svc.Query(r.Context(), req)
		if err != nil {
			if errors.Is(err, domain.ErrGenerationFailed) {
				logger.Error("generation failed", "err", err)
				writeError(w, http.StatusBadGateway, rag.GenerationExcuse)
				return
			}
			logger.Error("query failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		resp := ChatResponse{Answer: reply.Answer}
		if reply.Followup != "" {
			resp.Followup = &reply.Followup
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

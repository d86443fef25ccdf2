// Package ingest exposes document indexing as composable pipeline stages
// and an optional NATS consumer, so HTTP uploads and message-driven
// ingestion share one path: sanitize → build snapshot → publish.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/askpaper-ai/askpaper/engine/domain"
	"github.com/askpaper-ai/askpaper/engine/extract"
	"github.com/askpaper-ai/askpaper/engine/index"
	"github.com/askpaper-ai/askpaper/pkg/fn"
	"github.com/askpaper-ai/askpaper/pkg/natsutil"
	"github.com/nats-io/nats.go"
)

const (
	// Subject carries Document payloads to index.
	Subject = "askpaper.ingest"
	// DLQSubject receives documents that failed MaxRetries times.
	DLQSubject = "askpaper.ingest.dlq"
	// MaxRetries before a document is dead-lettered.
	MaxRetries = 3

	retryHeader = "X-Retry-Count"
)

// Document is raw extracted text ready for indexing.
type Document struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// Publisher installs a built snapshot as the current index. Satisfied by
// the query coordinator, which also clears the semantic cache in the same
// step.
type Publisher interface {
	Publish(snap *index.Snapshot)
}

// SanitizeStage normalizes whitespace and rejects documents with no
// chunkable text before any embedding work is spent on them.
func SanitizeStage() fn.Stage[Document, Document] {
	return func(_ context.Context, doc Document) fn.Result[Document] {
		doc.Text = extract.Sanitize(doc.Text)
		if len(index.SplitWords(doc.Text, 1)) == 0 {
			return fn.Err[Document](fmt.Errorf("ingest: %q: %w", doc.Name, domain.ErrEmptyDocument))
		}
		return fn.Ok(doc)
	}
}

// BuildStage chunks and embeds the document into an index snapshot.
func BuildStage(emb index.Embedder, opts index.Options) fn.Stage[Document, *index.Snapshot] {
	return func(ctx context.Context, doc Document) fn.Result[*index.Snapshot] {
		return fn.FromPair(index.Build(ctx, doc.Text, emb, opts))
	}
}

// PublishStage atomically installs the snapshot.
func PublishStage(pub Publisher) fn.Stage[*index.Snapshot, *index.Snapshot] {
	return fn.Tap(func(_ context.Context, snap *index.Snapshot) {
		pub.Publish(snap)
	})
}

// NewPipeline composes the full indexing pipeline with tracing per stage.
func NewPipeline(emb index.Embedder, opts index.Options, pub Publisher) fn.Stage[Document, *index.Snapshot] {
	sanitized := fn.Traced("ingest.sanitize", SanitizeStage())
	built := fn.Then(sanitized, fn.Traced("ingest.build", BuildStage(emb, opts)))
	return fn.Then(built, fn.Traced("ingest.publish", PublishStage(pub)))
}

// dlqMessage wraps a document that exhausted its retries.
type dlqMessage struct {
	Doc     Document `json:"doc"`
	Error   string   `json:"error"`
	Retries int      `json:"retries"`
}

// StartConsumer subscribes the pipeline to Subject. Failures are retried
// up to MaxRetries via republish with an incremented retry header, then
// dead-lettered to DLQSubject.
func StartConsumer(nc *nats.Conn, pipeline fn.Stage[Document, *index.Snapshot], logger *slog.Logger) (*nats.Subscription, error) {
	if logger == nil {
		logger = slog.Default()
	}

	return natsutil.Subscribe(nc, Subject, func(ctx context.Context, msg *nats.Msg, doc Document) {
		result := pipeline(ctx, doc)
		if result.IsOk() {
			snap, _ := result.Unwrap()
			logger.Info("ingest: document indexed", "doc", doc.Name, "snapshot", snap.ID(), "chunks", snap.Len())
			return
		}
		_, pipeErr := result.Unwrap()

		retries := 0
		if msg.Header != nil {
			retries, _ = strconv.Atoi(msg.Header.Get(retryHeader))
		}
		retries++
		logger.Error("ingest: pipeline failed", "doc", doc.Name, "err", pipeErr, "retry", retries)

		if retries >= MaxRetries {
			dlq := dlqMessage{Doc: doc, Error: pipeErr.Error(), Retries: retries}
			if err := natsutil.Publish(ctx, nc, DLQSubject, dlq); err != nil {
				logger.Error("ingest: dead-letter publish failed", "err", err)
			}
			return
		}

		retry := nats.NewMsg(Subject)
		retry.Data = msg.Data
		retry.Header.Set(retryHeader, strconv.Itoa(retries))
		if err := nc.PublishMsg(retry); err != nil {
			logger.Error("ingest: retry publish failed", "err", err)
		}
	})
}

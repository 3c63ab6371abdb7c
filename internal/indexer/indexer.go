// Package indexer maintains the embedding corpus: one vector per message with
// text. Messages are indexed by the background message-created worker and by
// the on-demand backfill, which share IndexMessage.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/scrypster/lingua/internal/apperr"
	"github.com/scrypster/lingua/internal/metrics"
	"github.com/scrypster/lingua/internal/storage"
	"github.com/scrypster/lingua/pkg/types"
)

// Embedder produces embedding vectors. *llm.Gateway implements it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Outcome is the result of indexing one message.
type Outcome int

const (
	OutcomeGenerated Outcome = iota
	OutcomeSkippedEmpty
	OutcomeSkippedExists
)

func (o Outcome) String() string {
	switch o {
	case OutcomeGenerated:
		return "generated"
	case OutcomeSkippedEmpty:
		return "skipped_empty"
	case OutcomeSkippedExists:
		return "skipped_exists"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Config configures an Indexer.
type Config struct {
	Embeddings storage.EmbeddingStore
	Messages   storage.MessageStore
	Embedder   Embedder

	// Model is recorded on each embedding record.
	Model string

	// Concurrency bounds parallel embedding calls during backfill
	// (default: 4).
	Concurrency int

	// PageSize is the number of messages read per page during backfill
	// (default: 100).
	PageSize int

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Indexer computes and stores message embeddings.
type Indexer struct {
	embeddings  storage.EmbeddingStore
	messages    storage.MessageStore
	embedder    Embedder
	model       string
	concurrency int
	pageSize    int
	logger      *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

// New creates an Indexer.
func New(cfg Config) (*Indexer, error) {
	if cfg.Embeddings == nil || cfg.Messages == nil || cfg.Embedder == nil {
		return nil, errors.New("indexer: embedding store, message store and embedder are required")
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 4
	}
	if cfg.PageSize < 1 {
		cfg.PageSize = 100
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Indexer{
		embeddings:  cfg.Embeddings,
		messages:    cfg.Messages,
		embedder:    cfg.Embedder,
		model:       cfg.Model,
		concurrency: cfg.Concurrency,
		pageSize:    cfg.PageSize,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		now:         time.Now,
	}, nil
}

// IndexMessage embeds msg and stores the record unless the message has no
// text or is already indexed. An existing record is never recomputed or
// overwritten; losing an insert race to a concurrent writer counts as
// skipped.
func (ix *Indexer) IndexMessage(ctx context.Context, msg types.Message) (Outcome, error) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		ix.metrics.IndexerEvent("skipped")
		return OutcomeSkippedEmpty, nil
	}

	exists, err := ix.embeddings.Exists(ctx, msg.ID)
	if err != nil {
		ix.metrics.IndexerEvent("failed")
		return 0, fmt.Errorf("indexer: check %s: %w", msg.ID, err)
	}
	if exists {
		ix.metrics.IndexerEvent("skipped")
		return OutcomeSkippedExists, nil
	}

	vec, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		ix.metrics.IndexerEvent("failed")
		return 0, fmt.Errorf("indexer: embed %s: %w", msg.ID, err)
	}

	lang := msg.Language
	if lang == "" {
		lang = "und"
	}
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = ix.now().UTC()
	}

	err = ix.embeddings.Insert(ctx, &types.EmbeddingRecord{
		ID:        msg.ID,
		ParentID:  msg.ConversationID,
		Text:      msg.Text,
		Language:  lang,
		Vector:    vec,
		Model:     ix.model,
		OwnerID:   msg.SenderID,
		CreatedAt: createdAt,
	})
	if errors.Is(err, storage.ErrAlreadyExists) {
		ix.metrics.IndexerEvent("skipped")
		return OutcomeSkippedExists, nil
	}
	if err != nil {
		ix.metrics.IndexerEvent("failed")
		return 0, fmt.Errorf("indexer: store %s: %w", msg.ID, err)
	}
	ix.metrics.IndexerEvent("generated")
	return OutcomeGenerated, nil
}

// Backfill indexes every message in every conversation userID participates
// in. Per-message failures are counted in Errors and never abort the run;
// only failing to list conversations or messages does. Re-running after a
// partial failure is safe because indexed messages are skipped.
func (ix *Indexer) Backfill(ctx context.Context, userID string) (types.BackfillResult, error) {
	const op = "indexer.Backfill"
	var result types.BackfillResult
	if strings.TrimSpace(userID) == "" {
		return result, apperr.Unauthenticated(op)
	}

	convs, err := ix.messages.ListConversationsForUser(ctx, userID)
	if err != nil {
		return result, apperr.Internal(op, "failed to list conversations", err)
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(ix.concurrency)

	record := func(msg types.Message, outcome Outcome, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			result.Errors++
			ix.logger.Warn("indexer: backfill item failed",
				"op", op, "message_id", msg.ID, "conversation_id", msg.ConversationID, "error", err)
			return
		}
		if outcome == OutcomeGenerated {
			result.Generated++
		} else {
			result.Skipped++
		}
	}

	listErr := ix.forEachMessage(ctx, convs, func(msg types.Message) {
		mu.Lock()
		result.Processed++
		mu.Unlock()
		g.Go(func() error {
			outcome, err := ix.IndexMessage(ctx, msg)
			record(msg, outcome, err)
			return nil
		})
	})
	_ = g.Wait()

	if listErr != nil {
		if errors.Is(listErr, context.DeadlineExceeded) {
			return result, apperr.Timeout(op, listErr)
		}
		return result, apperr.Internal(op, "failed to list messages", listErr)
	}

	ix.logger.Info("indexer: backfill complete",
		"user_id", userID,
		"conversations", len(convs),
		"processed", result.Processed,
		"generated", result.Generated,
		"skipped", result.Skipped,
		"errors", result.Errors)
	return result, nil
}

// forEachMessage pages through each conversation in order and calls fn for
// every message.
func (ix *Indexer) forEachMessage(ctx context.Context, convs []string, fn func(types.Message)) error {
	for _, conv := range convs {
		opts := storage.ListOptions{Limit: ix.pageSize}
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			page, err := ix.messages.ListMessages(ctx, conv, opts)
			if err != nil {
				return fmt.Errorf("conversation %s: %w", conv, err)
			}
			for _, msg := range page.Items {
				fn(msg)
			}
			if !page.HasMore {
				break
			}
			opts.Offset = page.NextOffset
		}
	}
	return nil
}

package syncer

import (
	"context"
	"fmt"

	"advisorhub/pkg/logger"
	"advisorhub/pkg/store/mysql"
	"advisorhub/pkg/store/mysql/model"
)

// TextEmbedder produces an embedding vector for one text.
type TextEmbedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// EmbeddingPipeline backfills embeddings for synced emails that do not
// have one yet. It runs opportunistically after a gmail sync.
type EmbeddingPipeline struct {
	emails   *mysql.EmailRepository
	embedder TextEmbedder
}

// NewEmbeddingPipeline creates an embedding pipeline.
func NewEmbeddingPipeline(emails *mysql.EmailRepository, embedder TextEmbedder) *EmbeddingPipeline {
	return &EmbeddingPipeline{emails: emails, embedder: embedder}
}

// Run embeds up to limit pending emails for the user and returns how
// many were embedded. Per-email failures are logged and skipped.
func (p *EmbeddingPipeline) Run(ctx context.Context, userID int64, limit int) (int, error) {
	pending, err := p.emails.ListUnembedded(ctx, userID, limit)
	if err != nil {
		return 0, err
	}

	embedded := 0
	for _, email := range pending {
		text := fmt.Sprintf("From: %s\nSubject: %s\n\n%s", email.Sender, email.Subject, email.Snippet)
		vector, err := p.embedder.Embed(ctx, text)
		if err != nil {
			logger.WarnCtx(ctx, "failed to embed email %d: %v", email.ID, err)
			continue
		}

		floats := make([]interface{}, len(vector))
		for i, v := range vector {
			floats[i] = v
		}
		if err := p.emails.SetEmbedding(ctx, email.ID, model.JSONMap{"vector": floats}); err != nil {
			logger.WarnCtx(ctx, "failed to store embedding for email %d: %v", email.ID, err)
			continue
		}
		embedded++
	}

	if embedded > 0 {
		logger.InfoCtx(ctx, "embedded %d emails for user %d", embedded, userID)
	}
	return embedded, nil
}

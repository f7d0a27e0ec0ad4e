// Package syncer pulls recent Gmail messages and Calendar events into
// local tables so rules and the LLM work against local data instead of
// hitting Google on every evaluation.
package syncer

import (
	"context"
	"fmt"
	"time"

	"advisorhub/pkg/googleapi"
	"advisorhub/pkg/logger"
	"advisorhub/pkg/store/mysql"
	"advisorhub/pkg/store/mysql/model"
)

// maxSyncResults caps how many items one sync pass fetches.
const maxSyncResults = 50

// Stats summarizes one sync pass.
type Stats struct {
	TotalFetched int `json:"total_fetched"`
	New          int `json:"new"`
	Updated      int `json:"updated"`
	Errors       int `json:"errors"`
}

// record tallies one upsert outcome. A row left untouched counts
// neither new nor updated.
func (s *Stats) record(created, updated bool) {
	if created {
		s.New++
	} else if updated {
		s.Updated++
	}
}

// GmailSyncer copies recent messages into the emails table.
type GmailSyncer struct {
	emails *mysql.EmailRepository
}

// NewGmailSyncer creates a Gmail syncer.
func NewGmailSyncer(emails *mysql.EmailRepository) *GmailSyncer {
	return &GmailSyncer{emails: emails}
}

// Sync fetches the user's recent messages and upserts them, returning
// the pass statistics. A single bad message is counted and skipped.
func (s *GmailSyncer) Sync(ctx context.Context, user *model.User) (*Stats, error) {
	svc, err := googleapi.NewGmailService(ctx, user)
	if err != nil {
		return nil, err
	}

	list, err := svc.Users.Messages.List("me").
		MaxResults(maxSyncResults).
		Q("newer_than:7d").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("gmail list failed: %w", err)
	}

	stats := &Stats{}
	for _, ref := range list.Messages {
		stats.TotalFetched++

		msg, err := svc.Users.Messages.Get("me", ref.Id).
			Format("metadata").
			MetadataHeaders("From", "To", "Subject").
			Context(ctx).Do()
		if err != nil {
			logger.WarnCtx(ctx, "failed to fetch message %s for user %d: %v", ref.Id, user.ID, err)
			stats.Errors++
			continue
		}

		email := &model.Email{
			UserID:    user.ID,
			MessageID: msg.Id,
			ThreadID:  msg.ThreadId,
			Snippet:   msg.Snippet,
			Labels:    model.JSONStringArray(msg.LabelIds),
		}
		if msg.Payload != nil {
			for _, h := range msg.Payload.Headers {
				switch h.Name {
				case "From":
					email.Sender = h.Value
				case "To":
					email.Recipient = h.Value
				case "Subject":
					email.Subject = h.Value
				}
			}
		}
		if msg.InternalDate > 0 {
			received := time.UnixMilli(msg.InternalDate).UTC()
			email.ReceivedAt = &received
		}

		created, err := s.emails.Upsert(ctx, email)
		if err != nil {
			logger.WarnCtx(ctx, "failed to store message %s for user %d: %v", msg.Id, user.ID, err)
			stats.Errors++
			continue
		}
		stats.record(created, !created)
	}

	logger.InfoCtx(ctx, "gmail sync for user %d: fetched=%d new=%d updated=%d errors=%d",
		user.ID, stats.TotalFetched, stats.New, stats.Updated, stats.Errors)
	return stats, nil
}

package mysql

import (
	"context"
	"fmt"
	"time"

	"advisorhub/pkg/store/mysql/model"

	"gorm.io/gorm/clause"
)

// EmailRepository handles synced email persistence
type EmailRepository struct {
	ds *Datastore
}

// NewEmailRepository creates a new email repository
func NewEmailRepository(ds *Datastore) *EmailRepository {
	return &EmailRepository{ds: ds}
}

// Upsert inserts the email or refreshes mutable fields when the
// (user_id, message_id) pair already exists. Returns true when a new row
// was created.
func (r *EmailRepository) Upsert(ctx context.Context, email *model.Email) (bool, error) {
	now := time.Now().UTC()
	if email.CreatedAt.IsZero() {
		email.CreatedAt = now
	}
	email.UpdatedAt = now

	res := r.ds.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "message_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"thread_id", "sender", "recipient", "subject", "snippet", "labels", "received_at", "updated_at"}),
	}).Create(email)
	if res.Error != nil {
		return false, fmt.Errorf("failed to upsert email: %w", res.Error)
	}
	// MySQL reports 1 affected row for an insert, 2 for an update.
	return res.RowsAffected == 1, nil
}

// ListUnembedded retrieves emails still waiting for an embedding.
func (r *EmailRepository) ListUnembedded(ctx context.Context, userID int64, limit int) ([]*model.Email, error) {
	if limit <= 0 {
		limit = 50
	}
	var emails []*model.Email
	err := r.ds.DB(ctx).
		Where("user_id = ? AND embedded_at IS NULL", userID).
		Order("id ASC").
		Limit(limit).
		Find(&emails).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unembedded emails: %w", err)
	}
	return emails, nil
}

// SetEmbedding stores the embedding vector and stamps embedded_at.
func (r *EmailRepository) SetEmbedding(ctx context.Context, emailID int64, embedding model.JSONMap) error {
	now := time.Now().UTC()
	return r.ds.DB(ctx).Model(&model.Email{}).
		Where("id = ?", emailID).
		Updates(map[string]interface{}{
			"embedding":   embedding,
			"embedded_at": now,
			"updated_at":  now,
		}).Error
}

// UpsertCalendarEvent inserts or refreshes a synced calendar event.
// Returns (created, updated).
func (r *EmailRepository) UpsertCalendarEvent(ctx context.Context, event *model.CalendarEvent) (bool, bool, error) {
	now := time.Now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now

	var existing model.CalendarEvent
	err := r.ds.DB(ctx).
		Where("user_id = ? AND event_id = ?", event.UserID, event.EventID).
		First(&existing).Error
	if err == nil {
		if existing.Etag == event.Etag {
			return false, false, nil
		}
		event.ID = existing.ID
		event.CreatedAt = existing.CreatedAt
		if err := r.ds.DB(ctx).Save(event).Error; err != nil {
			return false, false, fmt.Errorf("failed to update calendar event: %w", err)
		}
		return false, true, nil
	}

	if err := r.ds.DB(ctx).Create(event).Error; err != nil {
		return false, false, fmt.Errorf("failed to create calendar event: %w", err)
	}
	return true, false, nil
}

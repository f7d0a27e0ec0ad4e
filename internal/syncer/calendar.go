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

// CalendarSyncer copies upcoming events into the calendar_events table.
type CalendarSyncer struct {
	emails *mysql.EmailRepository
}

// NewCalendarSyncer creates a calendar syncer.
func NewCalendarSyncer(emails *mysql.EmailRepository) *CalendarSyncer {
	return &CalendarSyncer{emails: emails}
}

// Sync fetches upcoming events on the user's primary calendar and
// upserts them. Events whose etag is unchanged are skipped and counted
// neither new nor updated.
func (s *CalendarSyncer) Sync(ctx context.Context, user *model.User) (*Stats, error) {
	svc, err := googleapi.NewCalendarService(ctx, user)
	if err != nil {
		return nil, err
	}

	list, err := svc.Events.List("primary").
		TimeMin(time.Now().UTC().Format(time.RFC3339)).
		MaxResults(maxSyncResults).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("calendar list failed: %w", err)
	}

	stats := &Stats{}
	for _, item := range list.Items {
		stats.TotalFetched++

		event := &model.CalendarEvent{
			UserID:   user.ID,
			EventID:  item.Id,
			Summary:  item.Summary,
			Location: item.Location,
			Status:   item.Status,
			Etag:     item.Etag,
		}
		if item.Start != nil {
			if t := parseEventTime(item.Start.DateTime, item.Start.Date); t != nil {
				event.StartsAt = t
			}
		}
		if item.End != nil {
			if t := parseEventTime(item.End.DateTime, item.End.Date); t != nil {
				event.EndsAt = t
			}
		}

		created, updated, err := s.emails.UpsertCalendarEvent(ctx, event)
		if err != nil {
			logger.WarnCtx(ctx, "failed to store event %s for user %d: %v", item.Id, user.ID, err)
			stats.Errors++
			continue
		}
		stats.record(created, updated)
	}

	logger.InfoCtx(ctx, "calendar sync for user %d: fetched=%d new=%d updated=%d errors=%d",
		user.ID, stats.TotalFetched, stats.New, stats.Updated, stats.Errors)
	return stats, nil
}

// parseEventTime handles both timed (dateTime) and all-day (date) events.
func parseEventTime(dateTime, date string) *time.Time {
	if dateTime != "" {
		if t, err := time.Parse(time.RFC3339, dateTime); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	if date != "" {
		if t, err := time.Parse("2006-01-02", date); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}

package tools

import (
	"context"
	"fmt"

	"advisorhub/pkg/googleapi"
	"advisorhub/pkg/logger"
	"advisorhub/pkg/store/mysql/model"

	"google.golang.org/api/calendar/v3"
)

// ScheduleEvent creates an event on the user's primary calendar.
func ScheduleEvent(ctx context.Context, user *model.User, args map[string]interface{}) (map[string]interface{}, error) {
	svc, err := googleapi.NewCalendarService(ctx, user)
	if err != nil {
		return nil, err
	}

	event := &calendar.Event{
		Summary:     stringArg(args, "title"),
		Description: stringArg(args, "description"),
		Start:       &calendar.EventDateTime{DateTime: stringArg(args, "start_time")},
		End:         &calendar.EventDateTime{DateTime: stringArg(args, "end_time")},
		Attendees:   attendeeList(args),
	}

	created, err := svc.Events.Insert("primary", event).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("calendar insert failed: %w", err)
	}

	logger.InfoCtx(ctx, "scheduled event %s for user %d", created.Id, user.ID)
	return map[string]interface{}{
		"event_id": created.Id,
		"link":     created.HtmlLink,
	}, nil
}

// UpdateEvent patches the mutable fields of an existing event. Only the
// arguments present are sent, so untouched fields keep their values.
func UpdateEvent(ctx context.Context, user *model.User, args map[string]interface{}) (map[string]interface{}, error) {
	svc, err := googleapi.NewCalendarService(ctx, user)
	if err != nil {
		return nil, err
	}

	patch := &calendar.Event{}
	if v := stringArg(args, "title"); v != "" {
		patch.Summary = v
	}
	if v := stringArg(args, "description"); v != "" {
		patch.Description = v
	}
	if v := stringArg(args, "start_time"); v != "" {
		patch.Start = &calendar.EventDateTime{DateTime: v}
	}
	if v := stringArg(args, "end_time"); v != "" {
		patch.End = &calendar.EventDateTime{DateTime: v}
	}

	eventID := stringArg(args, "event_id")
	updated, err := svc.Events.Patch("primary", eventID, patch).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("calendar patch failed: %w", err)
	}

	logger.InfoCtx(ctx, "updated event %s for user %d", eventID, user.ID)
	return map[string]interface{}{
		"event_id": updated.Id,
		"status":   updated.Status,
	}, nil
}

// CancelEvent deletes an event from the user's primary calendar.
func CancelEvent(ctx context.Context, user *model.User, args map[string]interface{}) (map[string]interface{}, error) {
	svc, err := googleapi.NewCalendarService(ctx, user)
	if err != nil {
		return nil, err
	}

	eventID := stringArg(args, "event_id")
	if err := svc.Events.Delete("primary", eventID).Context(ctx).Do(); err != nil {
		return nil, fmt.Errorf("calendar delete failed: %w", err)
	}

	logger.InfoCtx(ctx, "cancelled event %s for user %d", eventID, user.ID)
	return map[string]interface{}{
		"event_id":  eventID,
		"cancelled": true,
	}, nil
}

func attendeeList(args map[string]interface{}) []*calendar.EventAttendee {
	raw, ok := args["attendees"].([]interface{})
	if !ok {
		return nil
	}
	attendees := make([]*calendar.EventAttendee, 0, len(raw))
	for _, item := range raw {
		if email, ok := item.(string); ok && email != "" {
			attendees = append(attendees, &calendar.EventAttendee{Email: email})
		}
	}
	return attendees
}

package tools

import (
	"fmt"
	"regexp"
	"time"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// ValidateArgs checks tool arguments before any external call is made.
// Missing required fields and malformed values fail here so a bad LLM
// tool call never reaches Gmail, Calendar or HubSpot.
func ValidateArgs(name string, args map[string]interface{}) error {
	switch name {
	case ToolSendEmail:
		if err := requireEmail(args, "to"); err != nil {
			return err
		}
		return requireStrings(args, "subject", "body")
	case ToolScheduleEvent:
		if err := requireStrings(args, "title"); err != nil {
			return err
		}
		if err := requireTime(args, "start_time"); err != nil {
			return err
		}
		return requireTime(args, "end_time")
	case ToolUpdateEvent:
		return requireStrings(args, "event_id")
	case ToolCancelEvent:
		return requireStrings(args, "event_id")
	case ToolFindContact:
		return requireEmail(args, "email")
	case ToolCreateContact:
		return requireEmail(args, "email")
	case ToolUpdateContact:
		return requireStrings(args, "contact_id")
	case ToolCreateNote:
		return requireStrings(args, "contact_id", "body")
	default:
		return nil
	}
}

func requireStrings(args map[string]interface{}, keys ...string) error {
	for _, key := range keys {
		v, ok := args[key].(string)
		if !ok || v == "" {
			return fmt.Errorf("missing required argument %q", key)
		}
	}
	return nil
}

func requireEmail(args map[string]interface{}, key string) error {
	if err := requireStrings(args, key); err != nil {
		return err
	}
	if !emailPattern.MatchString(args[key].(string)) {
		return fmt.Errorf("invalid email address in %q", key)
	}
	return nil
}

func requireTime(args map[string]interface{}, key string) error {
	if err := requireStrings(args, key); err != nil {
		return err
	}
	if _, err := time.Parse(time.RFC3339, args[key].(string)); err != nil {
		return fmt.Errorf("argument %q is not an RFC3339 timestamp: %w", key, err)
	}
	return nil
}

package tools

import "advisorhub/internal/llm"

// Schemas returns the function definitions handed to the LLM for
// proactive event handling. Only a conservative subset of the runner's
// tools is exposed; destructive operations stay task-only.
func Schemas() []llm.ToolDef {
	return []llm.ToolDef{
		{
			Name:        ToolSendEmail,
			Description: "Send an email from the advisor's Gmail account",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"to":      map[string]interface{}{"type": "string", "description": "Recipient email address"},
					"subject": map[string]interface{}{"type": "string"},
					"body":    map[string]interface{}{"type": "string", "description": "Plain-text email body"},
				},
				"required": []string{"to", "subject", "body"},
			},
		},
		{
			Name:        ToolScheduleEvent,
			Description: "Create an event on the advisor's primary calendar",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"title":       map[string]interface{}{"type": "string"},
					"start_time":  map[string]interface{}{"type": "string", "description": "RFC3339 start time"},
					"end_time":    map[string]interface{}{"type": "string", "description": "RFC3339 end time"},
					"description": map[string]interface{}{"type": "string"},
					"attendees":   map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
				},
				"required": []string{"title", "start_time", "end_time"},
			},
		},
		{
			Name:        ToolFindContact,
			Description: "Look up a HubSpot contact by email address",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"email": map[string]interface{}{"type": "string"},
				},
				"required": []string{"email"},
			},
		},
		{
			Name:        ToolCreateContact,
			Description: "Create a HubSpot contact",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"email":     map[string]interface{}{"type": "string"},
					"firstname": map[string]interface{}{"type": "string"},
					"lastname":  map[string]interface{}{"type": "string"},
				},
				"required": []string{"email"},
			},
		},
		{
			Name:        ToolCreateNote,
			Description: "Attach a note to a HubSpot contact",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"contact_id": map[string]interface{}{"type": "string"},
					"body":       map[string]interface{}{"type": "string"},
				},
				"required": []string{"contact_id", "body"},
			},
		},
	}
}

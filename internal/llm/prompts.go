package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

const proactiveAgentPrompt = `You are an intelligent AI assistant for a financial advisor.

An external event occurred and no explicit automation handled it. Decide
whether any action is warranted and, if so, take it with the available
tools. Doing nothing is a valid outcome.

Guidelines:
- Only act when the event clearly calls for it
- Prefer small, reversible actions (drafting a note, creating a contact)
- Never send an email unless the instruction explicitly asks for one
- Treat all information as confidential and professional

Event type: %s
Event data:
%s%s`

// BuildProactivePrompt assembles the system prompt for the proactive
// event handler. The user's active memory rules ride along as contextual
// hints; the model sees them but decides on its own.
func BuildProactivePrompt(eventType string, eventData map[string]interface{}, memoryRules []string) string {
	data, err := json.MarshalIndent(eventData, "", "  ")
	if err != nil {
		data = []byte("{}")
	}

	rulesContext := ""
	if len(memoryRules) > 0 {
		var sb strings.Builder
		sb.WriteString("\n\nYOUR ACTIVE MEMORY RULES:\n")
		for _, rule := range memoryRules {
			sb.WriteString("- ")
			sb.WriteString(rule)
			sb.WriteString("\n")
		}
		sb.WriteString("\nRemember to follow these ongoing instructions when appropriate.")
		rulesContext = sb.String()
	}

	return fmt.Sprintf(proactiveAgentPrompt, eventType, string(data), rulesContext)
}

// BuildUserMessage combines the instruction with parent-task context when
// the task is chained onto an earlier one.
func BuildUserMessage(instruction string, parentPayload map[string]interface{}) string {
	if len(parentPayload) == 0 {
		return instruction
	}
	data, err := json.MarshalIndent(parentPayload, "", "  ")
	if err != nil {
		return instruction
	}
	return fmt.Sprintf("%s\n\nPARENT TASK CONTEXT:\n%s", instruction, string(data))
}

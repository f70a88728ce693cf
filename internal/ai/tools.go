package ai

import (
	"encoding/json"
	"fmt"

	"github.com/nexushq/nexus/internal/domain"
)

// Tool schemas sent to the model gateway. The triage schema is shared
// with the non-streaming triage engine.

func createTicketTool() map[string]any {
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        "create_ticket",
			"description": "Create a new ticket with structured data",
			"parameters": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title":       map[string]any{"type": "string", "description": "Clear, concise ticket title"},
					"description": map[string]any{"type": "string", "description": "Detailed description of the ticket"},
					"type":        map[string]any{"type": "string", "enum": []string{"bug", "task", "story", "support"}, "description": "Type of ticket"},
					"priority":    map[string]any{"type": "string", "enum": []string{"critical", "high", "medium", "low"}, "description": "Priority level"},
					"labels":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Relevant labels"},
					"estimateHours": map[string]any{"type": "number", "description": "Estimated hours to complete"},
				},
				"required": []string{"title", "description", "type", "priority"},
			},
		},
	}
}

func triageTicketTool() map[string]any {
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        "triage_ticket",
			"description": "Return structured triage recommendations for a ticket",
			"parameters":  TriageToolParameters(),
		},
	}
}

// TriageToolParameters is the JSON schema of the triage_ticket tool.
func TriageToolParameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"suggestedPriority": map[string]any{
				"type": "string", "enum": []string{"critical", "high", "medium", "low"},
				"description": "Recommended priority level",
			},
			"priorityReasoning": map[string]any{
				"type":        "string",
				"description": "Brief explanation for priority recommendation",
			},
			"suggestedAssigneeRole": map[string]any{
				"type": "string", "enum": []string{"frontend", "backend", "fullstack", "qa", "devops", "design"},
				"description": "Type of engineer best suited for this ticket",
			},
			"assignmentReasoning": map[string]any{
				"type":        "string",
				"description": "Why this type of engineer should handle it",
			},
			"slaRisk": map[string]any{
				"type": "string", "enum": []string{"low", "medium", "high"},
				"description": "Risk level for SLA compliance",
			},
			"slaRiskReasoning": map[string]any{
				"type":        "string",
				"description": "Explanation of SLA risk assessment",
			},
			"suggestedLabels": map[string]any{
				"type": "array", "items": map[string]any{"type": "string"},
				"description": "Relevant labels based on ticket content",
			},
			"sprintRecommendation": map[string]any{
				"type":        "string",
				"description": "Recommendation: 'current_sprint', 'next_sprint', or 'backlog'",
			},
			"estimatedHours": map[string]any{
				"type":        "number",
				"description": "Estimated hours to complete based on complexity",
			},
		},
		"required": []string{"suggestedPriority", "priorityReasoning", "slaRisk", "slaRiskReasoning", "suggestedLabels", "sprintRecommendation"},
	}
}

// CreateTicketArgs is the typed shape of create_ticket tool arguments.
type CreateTicketArgs struct {
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Type          string   `json:"type"`
	Priority      string   `json:"priority"`
	Labels        []string `json:"labels,omitempty"`
	EstimateHours *float64 `json:"estimateHours,omitempty"`
}

var ticketTypes = map[string]bool{
	domain.TypeBug: true, domain.TypeTask: true, domain.TypeStory: true, domain.TypeSupport: true,
}

var priorities = map[string]bool{
	domain.PriorityCritical: true, domain.PriorityHigh: true, domain.PriorityMedium: true, domain.PriorityLow: true,
}

var slaRisks = map[string]bool{"low": true, "medium": true, "high": true}

func (a CreateTicketArgs) validate() error {
	if a.Title == "" || a.Description == "" {
		return fmt.Errorf("create_ticket: title and description are required")
	}
	if !ticketTypes[a.Type] {
		return fmt.Errorf("create_ticket: invalid type %q", a.Type)
	}
	if !priorities[a.Priority] {
		return fmt.Errorf("create_ticket: invalid priority %q", a.Priority)
	}
	return nil
}

// ValidateTriage checks the required fields and enums of a parsed
// TriageResult.
func ValidateTriage(tr domain.TriageResult) error {
	if !priorities[tr.SuggestedPriority] {
		return fmt.Errorf("triage: invalid suggestedPriority %q", tr.SuggestedPriority)
	}
	if tr.PriorityReasoning == "" {
		return fmt.Errorf("triage: priorityReasoning is required")
	}
	if !slaRisks[tr.SLARisk] {
		return fmt.Errorf("triage: invalid slaRisk %q", tr.SLARisk)
	}
	return nil
}

// ValidateToolCall checks a completed tool call against the schema for
// its name. Arguments that parsed as JSON but miss required fields are
// rejected rather than passed through partially typed.
func ValidateToolCall(tc domain.ToolCall) error {
	switch tc.Name {
	case "create_ticket":
		var args CreateTicketArgs
		if err := json.Unmarshal(tc.Arguments, &args); err != nil {
			return fmt.Errorf("create_ticket arguments: %w", err)
		}
		return args.validate()
	case "triage_ticket":
		var tr domain.TriageResult
		if err := json.Unmarshal(tc.Arguments, &tr); err != nil {
			return fmt.Errorf("triage_ticket arguments: %w", err)
		}
		return ValidateTriage(tr)
	default:
		return fmt.Errorf("unknown tool %q", tc.Name)
	}
}

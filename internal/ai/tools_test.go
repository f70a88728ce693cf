package ai

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/nexushq/nexus/internal/domain"
)

func TestValidateToolCall_CreateTicket(t *testing.T) {
	valid := domain.ToolCall{
		Name:      "create_ticket",
		Arguments: json.RawMessage(`{"title":"Fix login","description":"broken after reset","type":"bug","priority":"high"}`),
	}
	if err := ValidateToolCall(valid); err != nil {
		t.Fatalf("valid call rejected: %v", err)
	}

	missing := domain.ToolCall{
		Name:      "create_ticket",
		Arguments: json.RawMessage(`{"title":"no description","type":"bug","priority":"high"}`),
	}
	if err := ValidateToolCall(missing); err == nil {
		t.Fatalf("missing description must be rejected")
	}

	badEnum := domain.ToolCall{
		Name:      "create_ticket",
		Arguments: json.RawMessage(`{"title":"t","description":"d","type":"epic","priority":"high"}`),
	}
	if err := ValidateToolCall(badEnum); err == nil {
		t.Fatalf("invalid ticket type must be rejected")
	}
}

func TestValidateToolCall_UnknownTool(t *testing.T) {
	err := ValidateToolCall(domain.ToolCall{Name: "drop_tables", Arguments: json.RawMessage(`{}`)})
	if err == nil || !strings.Contains(err.Error(), "unknown tool") {
		t.Fatalf("unknown tool name must be rejected, got %v", err)
	}
}

func TestValidateToolCall_TriageTicket(t *testing.T) {
	valid := domain.ToolCall{
		Name:      "triage_ticket",
		Arguments: json.RawMessage(`{"suggestedPriority":"medium","priorityReasoning":"standard","slaRisk":"low","slaRiskReasoning":"r","suggestedLabels":[],"sprintRecommendation":"backlog"}`),
	}
	if err := ValidateToolCall(valid); err != nil {
		t.Fatalf("valid triage rejected: %v", err)
	}

	noReasoning := domain.ToolCall{
		Name:      "triage_ticket",
		Arguments: json.RawMessage(`{"suggestedPriority":"medium","slaRisk":"low"}`),
	}
	if err := ValidateToolCall(noReasoning); err == nil {
		t.Fatalf("missing priorityReasoning must be rejected")
	}
}

func TestTriageResultRoundTrip(t *testing.T) {
	hours := 4.5
	in := domain.TriageResult{
		SuggestedPriority:     "critical",
		PriorityReasoning:     "production down",
		SuggestedAssigneeRole: "devops",
		AssignmentReasoning:   "infra issue",
		SLARisk:               "high",
		SLARiskReasoning:      "active outage",
		SuggestedLabels:       []string{"incident", "infra"},
		SprintRecommendation:  "current_sprint",
		EstimatedHours:        &hours,
	}
	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, key := range []string{"suggestedPriority", "slaRisk", "estimatedHours", "sprintRecommendation"} {
		if !strings.Contains(string(raw), `"`+key+`"`) {
			t.Fatalf("wire key %q missing in %s", key, raw)
		}
	}
	var out domain.TriageResult
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip mismatch:\n in %+v\nout %+v", in, out)
	}
}

func TestTriageResult_OptionalFieldsOmitted(t *testing.T) {
	raw, err := json.Marshal(domain.TriageResult{
		SuggestedPriority: "low", PriorityReasoning: "r", SLARisk: "low", SLARiskReasoning: "r",
		SuggestedLabels: []string{}, SprintRecommendation: "backlog",
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(raw), "estimatedHours") || strings.Contains(string(raw), "suggestedAssigneeRole") {
		t.Fatalf("optional fields must be omitted when unset: %s", raw)
	}
}

func TestNormalizeAction(t *testing.T) {
	if got := NormalizeAction("summarize_sprint"); got != ActionSummarizeSprint {
		t.Fatalf("known action remapped to %q", got)
	}
	for _, a := range []string{"", "unknown", "DROP TABLE"} {
		if got := NormalizeAction(a); got != ActionGeneralChat {
			t.Fatalf("NormalizeAction(%q) = %q, want general_chat", a, got)
		}
	}
}

package domain

import (
	"encoding/json"
	"time"
)

// Ticket enumerations shared across the AI actions and provisioning.
const (
	TypeBug     = "bug"
	TypeTask    = "task"
	TypeStory   = "story"
	TypeSupport = "support"

	PriorityCritical = "critical"
	PriorityHigh     = "high"
	PriorityMedium   = "medium"
	PriorityLow      = "low"

	StatusTodo       = "todo"
	StatusInProgress = "in_progress"
	StatusReview     = "review"
	StatusDone       = "done"
	StatusBlocked    = "blocked"

	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleMember  = "member"
)

type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Template  string    `json:"template"`
	IsDemo    bool      `json:"is_demo"`
	CreatedAt time.Time `json:"created_at"`
}

type Project struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	Key            string    `json:"key"`
	Description    string    `json:"description"`
	TicketCounter  int       `json:"ticket_counter"`
	CreatedAt      time.Time `json:"created_at"`
}

type Sprint struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	ProjectID      string    `json:"project_id"`
	Name           string    `json:"name"`
	Status         string    `json:"status"`
	StartDate      string    `json:"start_date"`
	EndDate        string    `json:"end_date"`
	Goal           string    `json:"goal"`
	CreatedAt      time.Time `json:"created_at"`
}

type Ticket struct {
	ID             string   `json:"id"`
	OrganizationID string   `json:"organization_id"`
	ProjectID      string   `json:"project_id"`
	SprintID       string   `json:"sprint_id"`
	Key            string   `json:"key"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Type           string   `json:"type"`
	Priority       string   `json:"priority"`
	Status         string   `json:"status"`
	Labels         []string `json:"labels"`
	ReporterID     string   `json:"reporter_id"`
	AIGenerated    bool     `json:"ai_generated"`
}

type Membership struct {
	OrganizationID string `json:"organization_id"`
	UserID         string `json:"user_id"`
	Role           string `json:"role"`
}

type Invite struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	Email          string `json:"email"`
	Role           string `json:"role"`
	InvitedBy      string `json:"invited_by"`
	Status         string `json:"status"`
	Token          string `json:"token"`
}

// ProvisioningStep is one row of the append-only bootstrap audit log.
// Rows are written once, never updated; insertion order within one
// organization carries the step ordering.
type ProvisioningStep struct {
	OrganizationID string    `json:"organization_id"`
	Step           string    `json:"step"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

const (
	StepStatusPending = "pending"
	StepStatusDone    = "done"
	StepStatusError   = "error"
)

// ToolCall is a completed model tool invocation. Arguments are only ever
// populated from argument text that parsed successfully as a JSON object.
type ToolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type ChatMessage struct {
	ID        int64     `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action,omitempty"`
	ToolCall  *ToolCall `json:"toolCall,omitempty"`
}

// TriageResult mirrors the triage_ticket tool schema. Immutable once
// returned; appliers decide whether to act on it.
type TriageResult struct {
	SuggestedPriority     string   `json:"suggestedPriority"`
	PriorityReasoning     string   `json:"priorityReasoning"`
	SuggestedAssigneeRole string   `json:"suggestedAssigneeRole,omitempty"`
	AssignmentReasoning   string   `json:"assignmentReasoning,omitempty"`
	SLARisk               string   `json:"slaRisk"`
	SLARiskReasoning      string   `json:"slaRiskReasoning"`
	SuggestedLabels       []string `json:"suggestedLabels"`
	SprintRecommendation  string   `json:"sprintRecommendation"`
	EstimatedHours        *float64 `json:"estimatedHours,omitempty"`
}

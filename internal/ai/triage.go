/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
	"github.com/rs/zerolog"

	"github.com/nexushq/nexus/internal/config"
	"github.com/nexushq/nexus/internal/domain"
)

const (
	maxTriageTitleLen       = 500
	maxTriageDescriptionLen = 10000
)

const triageSystemPrompt = `You are an expert ticket triage AI for a software development team. Analyze the ticket and provide accurate triage recommendations.

ANALYSIS GUIDELINES:
1. Priority Assessment:
   - critical: Production down, security breach, data loss risk
   - high: Major feature broken, blocking other work, customer-facing issue
   - medium: Important but not urgent, can wait for next sprint
   - low: Nice to have, minor improvements, tech debt

2. SLA Risk Assessment:
   - high: Needs immediate attention, risk of SLA breach
   - medium: Should be addressed within the sprint
   - low: Can be planned for future sprints

3. Label Suggestions: Infer relevant labels from content (e.g., "auth", "ui", "api", "performance", "security")

4. Sprint Recommendation: Suggest current sprint, next sprint, or backlog based on priority and complexity

Return structured triage data using the triage_ticket function.`

type TriageRequest struct {
	TicketID       string          `json:"ticketId,omitempty"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Type           string          `json:"type"`
	ProjectContext *ProjectContext `json:"projectContext,omitempty"`
}

type ProjectContext struct {
	ProjectID   string       `json:"projectId"`
	ProjectName string       `json:"projectName"`
	TeamMembers []TeamMember `json:"teamMembers,omitempty"`
}

type TeamMember struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// TriageOutcome is either a structured result (Triage set) or, when the
// backend ignored the forced tool choice and answered with free text,
// the raw text fallback (Message set). Callers handle both shapes.
type TriageOutcome struct {
	Triage  *domain.TriageResult
	Message string
}

// ChatCompleter matches openai-go's chat completion service.
type ChatCompleter interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// TriageEngine issues a single non-streaming model call contractually
// forced to return one triage_ticket tool invocation.
type TriageEngine struct {
	cfg config.Config
	log zerolog.Logger
	cli ChatCompleter
}

func NewTriageEngine(cfg config.Config, log zerolog.Logger) *TriageEngine {
	cli := openai.NewClient(
		option.WithAPIKey(cfg.AIGatewayKey),
		option.WithBaseURL(cfg.AIGatewayURL),
	)
	return &TriageEngine{cfg: cfg, log: log, cli: &cli.Chat.Completions}
}

// NewTriageEngineWithClient injects the completion backend; used by tests.
func NewTriageEngineWithClient(cfg config.Config, log zerolog.Logger, cli ChatCompleter) *TriageEngine {
	return &TriageEngine{cfg: cfg, log: log, cli: cli}
}

// Validate bounds the inputs before any model call is issued.
func (e *TriageEngine) Validate(req TriageRequest) error {
	title := strings.TrimSpace(req.Title)
	if title == "" || len(req.Title) > maxTriageTitleLen {
		return fmt.Errorf("%w: title must be 1-%d characters", ErrInvalidInput, maxTriageTitleLen)
	}
	if len(req.Description) > maxTriageDescriptionLen {
		return fmt.Errorf("%w: description must be at most %d characters", ErrInvalidInput, maxTriageDescriptionLen)
	}
	if !ticketTypes[req.Type] {
		return fmt.Errorf("%w: invalid ticket type %q", ErrInvalidInput, req.Type)
	}
	return nil
}

func (e *TriageEngine) userMessage(req TriageRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze and triage this %s ticket:\n\nTitle: %s\n\nDescription:\n%s", req.Type, req.Title, req.Description)
	if pc := req.ProjectContext; pc != nil {
		fmt.Fprintf(&b, "\n\nProject: %s", pc.ProjectName)
		if len(pc.TeamMembers) > 0 {
			members := make([]string, 0, len(pc.TeamMembers))
			for _, m := range pc.TeamMembers {
				members = append(members, fmt.Sprintf("%s (%s)", m.Name, m.Role))
			}
			fmt.Fprintf(&b, "\nTeam Members: %s", strings.Join(members, ", "))
		}
	}
	return b.String()
}

func (e *TriageEngine) Triage(ctx context.Context, req TriageRequest) (TriageOutcome, error) {
	if strings.TrimSpace(e.cfg.AIGatewayKey) == "" {
		e.log.Error().Msg("ai gateway key is not configured")
		return TriageOutcome{}, ErrNotConfigured
	}
	if err := e.Validate(req); err != nil {
		return TriageOutcome{}, err
	}

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(e.cfg.AIModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(triageSystemPrompt),
			openai.UserMessage(e.userMessage(req)),
		},
		Tools: []openai.ChatCompletionToolUnionParam{
			openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
				Name:        "triage_ticket",
				Description: openai.String("Return structured triage recommendations"),
				Parameters:  shared.FunctionParameters(TriageToolParameters()),
			}),
		},
		ToolChoice: openai.ChatCompletionToolChoiceOptionUnionParam{
			OfFunctionToolChoice: &openai.ChatCompletionNamedToolChoiceParam{
				Function: openai.ChatCompletionNamedToolChoiceFunctionParam{Name: "triage_ticket"},
			},
		},
	}

	resp, err := e.cli.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return TriageOutcome{}, mapGatewayStatus(e.log, apiErr.StatusCode)
		}
		e.log.Error().Err(err).Msg("triage model call failed")
		return TriageOutcome{}, ErrBackendUnavailable
	}
	if len(resp.Choices) == 0 {
		return TriageOutcome{}, ErrBackendUnavailable
	}

	msg := resp.Choices[0].Message
	for _, tc := range msg.ToolCalls {
		if tc.Function.Name != "triage_ticket" {
			continue
		}
		var tr domain.TriageResult
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &tr); err != nil {
			e.log.Error().Err(err).Msg("triage tool arguments did not parse")
			return TriageOutcome{}, ErrBackendUnavailable
		}
		sanitizeTriage(&tr)
		if err := ValidateTriage(tr); err != nil {
			e.log.Error().Err(err).Msg("triage tool arguments failed validation")
			return TriageOutcome{}, ErrBackendUnavailable
		}
		return TriageOutcome{Triage: &tr}, nil
	}

	// Documented backend misbehavior: free text despite the forced tool
	// choice. Surface it as the fallback payload shape.
	return TriageOutcome{Message: msg.Content}, nil
}

var assigneeRoles = map[string]bool{
	"frontend": true, "backend": true, "fullstack": true, "qa": true, "devops": true, "design": true,
}

func sanitizeTriage(tr *domain.TriageResult) {
	tr.SuggestedPriority = strings.ToLower(strings.TrimSpace(tr.SuggestedPriority))
	tr.SLARisk = strings.ToLower(strings.TrimSpace(tr.SLARisk))
	tr.PriorityReasoning = strings.TrimSpace(tr.PriorityReasoning)
	tr.SLARiskReasoning = strings.TrimSpace(tr.SLARiskReasoning)
	tr.SprintRecommendation = strings.TrimSpace(tr.SprintRecommendation)
	if !assigneeRoles[tr.SuggestedAssigneeRole] {
		tr.SuggestedAssigneeRole = ""
		tr.AssignmentReasoning = ""
	}
	labels := tr.SuggestedLabels[:0]
	for _, l := range tr.SuggestedLabels {
		l = strings.TrimSpace(l)
		if l == "" || len(l) > 50 {
			continue
		}
		labels = append(labels, l)
		if len(labels) == 10 {
			break
		}
	}
	tr.SuggestedLabels = labels
}

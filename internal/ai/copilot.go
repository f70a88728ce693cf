package ai

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Copilot actions produce manager-facing streamed analyses from a
// caller-assembled data snapshot. Same wire contract as chat.
const (
	CopilotSprintSummary   = "sprint_summary"
	CopilotProjectAnalysis = "project_analysis"
	CopilotTeamInsights    = "team_insights"
	CopilotStandupPrep     = "standup_prep"
)

var copilotActions = map[string]bool{
	CopilotSprintSummary:   true,
	CopilotProjectAnalysis: true,
	CopilotTeamInsights:    true,
	CopilotStandupPrep:     true,
}

// ValidCopilotAction reports whether action is one of the copilot
// enumeration. Unlike chat actions there is no default: an unknown
// copilot action is an input error.
func ValidCopilotAction(action string) bool { return copilotActions[action] }

var copilotPrompts = map[string]string{
	CopilotSprintSummary: `You are a Manager AI Copilot providing sprint summaries. Analyze the sprint data and provide:

1. **Sprint Progress**
   - Completed tickets count and percentage
   - In-progress work
   - Remaining work

2. **Key Accomplishments**
   - Major features delivered
   - Important bugs fixed

3. **Blockers & Risks**
   - Blocked tickets and why
   - Tickets at risk of not completing

4. **Team Velocity**
   - Ticket throughput
   - Comparison to sprint goal

5. **Recommendations**
   - Actions for the next standup
   - Priority adjustments needed

Format for easy consumption in team meetings. Be concise but comprehensive.`,

	CopilotProjectAnalysis: `You are a Manager AI Copilot providing project health analysis. Analyze the project data and provide:

1. **Overall Health Score** (1-10 with reasoning)

2. **Ticket Distribution**
   - By status
   - By priority
   - By type

3. **Bottlenecks**
   - Tickets stuck in review
   - Aging tickets (> 7 days without update)
   - Blocked work

4. **Resource Insights**
   - Workload distribution
   - Overloaded team members

5. **Recommendations**
   - Priority realignment suggestions
   - Process improvements
   - Risk mitigation actions

Be data-driven and actionable.`,

	CopilotTeamInsights: `You are a Manager AI Copilot providing team performance insights. Analyze the data and provide:

1. **Workload Distribution**
   - Tickets per team member
   - Balance assessment

2. **Velocity Metrics**
   - Tickets completed per person
   - Average time to completion

3. **Collaboration Patterns**
   - Cross-functional work
   - Review bottlenecks

4. **Recommendations**
   - Load balancing suggestions
   - Skill development areas

Be constructive and supportive in tone.`,

	CopilotStandupPrep: `You are a Manager AI Copilot helping prepare for standup meetings. Provide:

1. **Yesterday's Highlights**
   - Completed tickets
   - Major progress

2. **Today's Focus**
   - Critical tickets to address
   - Upcoming deadlines

3. **Blockers to Discuss**
   - Currently blocked items
   - Items needing decisions

4. **Quick Stats**
   - Sprint burn-down status
   - Days remaining

Keep it brief - this is for a 15-minute standup.`,
}

// CopilotData is the pre-aggregated snapshot the caller assembles.
// Everything is optional; rendering caps each section so an oversized
// snapshot cannot blow up the prompt.
type CopilotData struct {
	Sprint *struct {
		Name      string `json:"name"`
		StartDate string `json:"startDate"`
		EndDate   string `json:"endDate"`
		Goal      string `json:"goal"`
	} `json:"sprint,omitempty"`
	Tickets []CopilotTicket `json:"tickets,omitempty"`
	RecentActivity []struct {
		User       string `json:"user"`
		Action     string `json:"action"`
		EntityType string `json:"entityType"`
		Timestamp  string `json:"timestamp"`
	} `json:"recentActivity,omitempty"`
}

type CopilotTicket struct {
	Key      string `json:"key"`
	Title    string `json:"title"`
	Status   string `json:"status"`
	Priority string `json:"priority"`
	Type     string `json:"type"`
	Assignee string `json:"assignee,omitempty"`
}

func clip(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// BuildCopilotContext renders the snapshot into the bounded markdown
// context fed to the model: at most 100 tickets grouped by status with
// 10 listed per group, at most 10 activity entries, field lengths capped.
func BuildCopilotContext(data *CopilotData) string {
	if data == nil {
		return ""
	}
	var b strings.Builder

	if data.Sprint != nil {
		fmt.Fprintf(&b, "\n## Sprint Information\nName: %s\nPeriod: %s to %s\nGoal: %s",
			clip(data.Sprint.Name, 200),
			clip(data.Sprint.StartDate, 20),
			clip(data.Sprint.EndDate, 20),
			clip(defaultStr(data.Sprint.Goal, "Not specified"), 500))
	}

	if len(data.Tickets) > 0 {
		tickets := data.Tickets
		if len(tickets) > 100 {
			tickets = tickets[:100]
		}
		fmt.Fprintf(&b, "\n\n## Tickets (%d total)", len(tickets))

		byStatus := map[string][]CopilotTicket{}
		var order []string
		for _, t := range tickets {
			status := clip(defaultStr(t.Status, "unknown"), 50)
			if _, seen := byStatus[status]; !seen {
				order = append(order, status)
			}
			byStatus[status] = append(byStatus[status], t)
		}
		for _, status := range order {
			group := byStatus[status]
			fmt.Fprintf(&b, "\n\n### %s (%d)", strings.ToUpper(strings.ReplaceAll(status, "_", " ")), len(group))
			shown := group
			if len(shown) > 10 {
				shown = shown[:10]
			}
			for _, t := range shown {
				fmt.Fprintf(&b, "\n- [%s] %s (%s, %s", clip(t.Key, 20), clip(t.Title, 200), t.Priority, t.Type)
				if t.Assignee != "" {
					fmt.Fprintf(&b, ", assigned to %s", clip(t.Assignee, 100))
				}
				b.WriteString(")")
			}
			if len(group) > 10 {
				fmt.Fprintf(&b, "\n- ... and %d more", len(group)-10)
			}
		}
	}

	if len(data.RecentActivity) > 0 {
		b.WriteString("\n\n## Recent Activity")
		activity := data.RecentActivity
		if len(activity) > 10 {
			activity = activity[:10]
		}
		for _, a := range activity {
			fmt.Fprintf(&b, "\n- %s %s %s (%s)",
				clip(a.User, 100), clip(a.Action, 100), clip(a.EntityType, 50), clip(a.Timestamp, 30))
		}
	}

	return b.String()
}

func defaultStr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// StreamCopilot issues one streaming copilot request and returns the
// raw event-stream body.
func (r *Router) StreamCopilot(ctx context.Context, action string, data *CopilotData) (io.ReadCloser, error) {
	if strings.TrimSpace(r.cfg.AIGatewayKey) == "" {
		r.log.Error().Msg("ai gateway key is not configured")
		return nil, ErrNotConfigured
	}
	if !ValidCopilotAction(action) {
		return nil, fmt.Errorf("%w: invalid copilot action %q", ErrInvalidInput, action)
	}

	userMessage := fmt.Sprintf("Analyze the following data and provide your %s:%s",
		strings.ReplaceAll(action, "_", " "), BuildCopilotContext(data))

	payload := map[string]any{
		"model": r.cfg.AIModel,
		"messages": []Message{
			{Role: "system", Content: copilotPrompts[action]},
			{Role: "user", Content: userMessage},
		},
		"stream": true,
	}

	body, status, err := r.gw.StreamChat(ctx, payload)
	if err != nil {
		r.log.Error().Err(err).Str("action", action).Msg("ai gateway call failed")
		return nil, ErrBackendUnavailable
	}
	if body == nil || status >= 300 {
		return nil, mapGatewayStatus(r.log, status)
	}
	return body, nil
}

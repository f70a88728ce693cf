/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */

// Package provision runs the organization bootstrap saga: an ordered,
// strictly sequential series of creation steps with per-step audit
// logging. Steps 1-4 are critical and abort the saga on failure; demo
// tickets, invites, and recommendations are best-effort. There is no
// rollback and no durable resumption: a crash mid-saga leaves a
// partially provisioned organization for the sweep job to report.
package provision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nexushq/nexus/internal/config"
	"github.com/nexushq/nexus/internal/domain"
)

// Step vocabulary. StepComplete is the sole completion signal; clients
// must not infer completion from any other step.
const (
	StepOrgCreated     = "Organization created"
	StepAdminAssigned  = "Admin role assigned"
	StepProjectCreated = "Default project created"
	StepSprintActive   = "Sprint activated"
	StepDemoTickets    = "Demo tickets created"
	StepComplete       = "Setup complete"
)

// ErrNameRequired rejects a bootstrap request with a blank organization
// name before any row is written.
var ErrNameRequired = errors.New("organization name is required")

type Repo interface {
	InsertOrganization(ctx context.Context, org domain.Organization) (domain.Organization, error)
	InsertMembership(ctx context.Context, m domain.Membership) error
	InsertProject(ctx context.Context, p domain.Project) (domain.Project, error)
	InsertSprint(ctx context.Context, sp domain.Sprint) (domain.Sprint, error)
	InsertTickets(ctx context.Context, tickets []domain.Ticket) error
	SetProjectTicketCounter(ctx context.Context, projectID string, n int) error
	InsertInvite(ctx context.Context, inv domain.Invite) (domain.Invite, error)
	InsertRecommendations(ctx context.Context, orgID string, recs []string) error
	InsertProvisioningStep(ctx context.Context, step domain.ProvisioningStep) error
}

type Mailer interface {
	SendInvite(ctx context.Context, email, orgName, role, token, inviterName string) (string, error)
}

type Publisher interface {
	PublishStep(step domain.ProvisioningStep) error
}

type InviteRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type BootstrapRequest struct {
	Name     string          `json:"name"`
	Template string          `json:"template,omitempty"`
	IsDemo   *bool           `json:"isDemo,omitempty"`
	Invites  []InviteRequest `json:"invites,omitempty"`
}

type BootstrapResult struct {
	Organization domain.Organization `json:"organization"`
	Project      domain.Project      `json:"project"`
	Sprint       domain.Sprint       `json:"sprint"`
	RedirectTo   string              `json:"redirectTo"`
}

type Orchestrator struct {
	cfg  config.Config
	log  zerolog.Logger
	repo Repo
	mail Mailer
	pub  Publisher
	now  func() time.Time
}

func NewOrchestrator(cfg config.Config, log zerolog.Logger, repo Repo, mail Mailer, pub Publisher) *Orchestrator {
	return &Orchestrator{cfg: cfg, log: log, repo: repo, mail: mail, pub: pub, now: time.Now}
}

// logStep appends one audit row and announces it on the feed. Audit
// insertion failure propagates; a publish failure only logs, since the
// row is the durable record and the feed is a convenience.
func (o *Orchestrator) logStep(ctx context.Context, orgID, step string) error {
	row := domain.ProvisioningStep{
		OrganizationID: orgID,
		Step:           step,
		Status:         domain.StepStatusDone,
		CreatedAt:      o.now().UTC(),
	}
	if err := o.repo.InsertProvisioningStep(ctx, row); err != nil {
		return fmt.Errorf("log step %q: %w", step, err)
	}
	if o.pub != nil {
		if err := o.pub.PublishStep(row); err != nil {
			o.log.Error().Err(err).Str("step", step).Msg("step publish failed")
		}
	}
	return nil
}

// Slugify derives a URL slug from an organization name: lowercase,
// non-alphanumeric runs collapsed to single dashes, trimmed, capped at
// 50 characters.
func Slugify(name string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			prevDash = false
		} else if !prevDash {
			b.WriteByte('-')
			prevDash = true
		}
	}
	s := strings.Trim(b.String(), "-")
	if len(s) > 50 {
		s = s[:50]
	}
	return s
}

// ProjectKey derives the default project key: the first three letters
// of the name uppercased, any non-letter replaced with X, padded to
// three characters.
func ProjectKey(name string) string {
	key := []byte{'X', 'X', 'X'}
	for i := 0; i < 3 && i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'A' && c <= 'Z':
			key[i] = c
		case c >= 'a' && c <= 'z':
			key[i] = c - 'a' + 'A'
		}
	}
	return string(key)
}

// Bootstrap executes the saga for one authenticated user. The steps run
// strictly sequentially because each step's output feeds the next.
// Concurrent requests for the same name are disambiguated only by the
// slug's uniqueness suffix and the database constraint on it.
func (o *Orchestrator) Bootstrap(ctx context.Context, userID string, req BootstrapRequest) (BootstrapResult, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return BootstrapResult{}, ErrNameRequired
	}
	template := req.Template
	if template != "enterprise" {
		template = "startup"
	}
	isDemo := true
	if req.IsDemo != nil {
		isDemo = *req.IsDemo
	}

	// 1. Organization. Hard failure aborts with no audit rows at all.
	org, err := o.repo.InsertOrganization(ctx, domain.Organization{
		Name:     name,
		Slug:     fmt.Sprintf("%s-%d", Slugify(name), o.now().UnixMilli()),
		Template: template,
		IsDemo:   isDemo,
	})
	if err != nil {
		o.log.Error().Err(err).Str("name", name).Msg("org creation failed")
		return BootstrapResult{}, fmt.Errorf("failed to create organization: %w", err)
	}
	if err := o.logStep(ctx, org.ID, StepOrgCreated); err != nil {
		return BootstrapResult{}, err
	}

	// 2. Admin membership. Hard failure leaves the organization
	// orphaned; the sweep job reports it.
	if err := o.repo.InsertMembership(ctx, domain.Membership{
		OrganizationID: org.ID,
		UserID:         userID,
		Role:           domain.RoleAdmin,
	}); err != nil {
		o.log.Error().Err(err).Str("org_id", org.ID).Msg("membership creation failed")
		return BootstrapResult{}, fmt.Errorf("failed to create membership: %w", err)
	}
	if err := o.logStep(ctx, org.ID, StepAdminAssigned); err != nil {
		return BootstrapResult{}, err
	}

	// 3. Default project.
	projectName := "Core"
	if template == "enterprise" {
		projectName = "Platform"
	}
	project, err := o.repo.InsertProject(ctx, domain.Project{
		OrganizationID: org.ID,
		Name:           projectName,
		Key:            ProjectKey(name),
		Description:    "Auto-created starter project for your team",
	})
	if err != nil {
		o.log.Error().Err(err).Str("org_id", org.ID).Msg("project creation failed")
		return BootstrapResult{}, fmt.Errorf("failed to create project: %w", err)
	}
	if err := o.logStep(ctx, org.ID, StepProjectCreated); err != nil {
		return BootstrapResult{}, err
	}

	// 4. Default sprint: active, 14-day window from now.
	start := o.now()
	sprint, err := o.repo.InsertSprint(ctx, domain.Sprint{
		OrganizationID: org.ID,
		ProjectID:      project.ID,
		Name:           "Sprint 1",
		Status:         "active",
		StartDate:      start.Format("2006-01-02"),
		EndDate:        start.AddDate(0, 0, 14).Format("2006-01-02"),
		Goal:           "Initial sprint - get started with your first tasks",
	})
	if err != nil {
		o.log.Error().Err(err).Str("org_id", org.ID).Msg("sprint creation failed")
		return BootstrapResult{}, fmt.Errorf("failed to create sprint: %w", err)
	}
	if err := o.logStep(ctx, org.ID, StepSprintActive); err != nil {
		return BootstrapResult{}, err
	}

	// 5. Demo tickets, non-critical.
	if isDemo && template == "startup" {
		o.seedDemoTickets(ctx, userID, org, project, sprint)
	}

	// 6. Invites, non-critical per invite.
	o.processInvites(ctx, userID, org, name, req.Invites)

	// 7. Onboarding recommendations, non-critical.
	if err := o.repo.InsertRecommendations(ctx, org.ID, onboardingRecommendations()); err != nil {
		o.log.Error().Err(err).Str("org_id", org.ID).Msg("recommendations insert failed")
	}

	// 8. Terminal marker: the only signal listeners may treat as done.
	if err := o.logStep(ctx, org.ID, StepComplete); err != nil {
		return BootstrapResult{}, err
	}

	return BootstrapResult{
		Organization: org,
		Project:      project,
		Sprint:       sprint,
		RedirectTo:   "/projects/" + project.ID,
	}, nil
}

func (o *Orchestrator) seedDemoTickets(ctx context.Context, userID string, org domain.Organization, project domain.Project, sprint domain.Sprint) {
	seeds := demoTickets()
	tickets := make([]domain.Ticket, 0, len(seeds))
	for i, seed := range seeds {
		seed.OrganizationID = org.ID
		seed.ProjectID = project.ID
		seed.SprintID = sprint.ID
		seed.ReporterID = userID
		seed.AIGenerated = true
		seed.Key = fmt.Sprintf("%s-%d", project.Key, i+1)
		tickets = append(tickets, seed)
	}
	if err := o.repo.SetProjectTicketCounter(ctx, project.ID, len(tickets)); err != nil {
		o.log.Error().Err(err).Str("project_id", project.ID).Msg("ticket counter update failed")
	}
	if err := o.repo.InsertTickets(ctx, tickets); err != nil {
		// Non-blocking: the saga continues without seed data.
		o.log.Error().Err(err).Str("org_id", org.ID).Msg("demo ticket insert failed")
		return
	}
	if err := o.logStep(ctx, org.ID, StepDemoTickets); err != nil {
		o.log.Error().Err(err).Msg("demo ticket step log failed")
	}
}

func (o *Orchestrator) processInvites(ctx context.Context, userID string, org domain.Organization, orgName string, invites []InviteRequest) {
	if len(invites) > o.cfg.MaxInvites {
		invites = invites[:o.cfg.MaxInvites]
	}
	seen := map[string]bool{}
	sent := 0
	for _, inv := range invites {
		email := strings.ToLower(strings.TrimSpace(inv.Email))
		if email == "" || !strings.Contains(email, "@") || seen[email] {
			continue
		}
		seen[email] = true
		role := inv.Role
		if role != domain.RoleAdmin && role != domain.RoleManager {
			role = domain.RoleMember
		}
		record, err := o.repo.InsertInvite(ctx, domain.Invite{
			OrganizationID: org.ID,
			Email:          email,
			Role:           role,
			InvitedBy:      userID,
			Status:         "pending",
			Token:          uuid.NewString(),
		})
		if err != nil {
			o.log.Error().Err(err).Str("email", email).Msg("invite insert failed")
			continue
		}
		// Email dispatch failure does not roll back the invite record.
		if o.mail != nil {
			if _, err := o.mail.SendInvite(ctx, record.Email, orgName, record.Role, record.Token, ""); err != nil {
				o.log.Error().Err(err).Str("email", email).Msg("invite email failed")
			}
		}
		sent++
	}
	if sent > 0 {
		if err := o.logStep(ctx, org.ID, fmt.Sprintf("%d invite(s) sent", sent)); err != nil {
			o.log.Error().Err(err).Msg("invite step log failed")
		}
	}
}

func onboardingRecommendations() []string {
	return []string{
		"Create labels for better ticket organization",
		"Invite your team members to collaborate",
		"Set up your first milestone or epic",
		"Configure notification preferences",
	}
}

func demoTickets() []domain.Ticket {
	return []domain.Ticket{
		{
			Title:       "User cannot log in after password reset",
			Description: "Users report being unable to log in after requesting a password reset. The reset email is received, but after clicking the link and setting a new password, login attempts fail with 'Invalid credentials'.",
			Type:        domain.TypeBug,
			Priority:    domain.PriorityHigh,
			Status:      domain.StatusTodo,
			Labels:      []string{"auth", "critical-path"},
		},
		{
			Title:       "Set up CI/CD pipeline",
			Description: "Configure GitHub Actions workflow for automated testing and deployment. Should include:\n- Unit test runner\n- Build verification\n- Staging deployment\n- Production deployment approval",
			Type:        domain.TypeTask,
			Priority:    domain.PriorityMedium,
			Status:      domain.StatusInProgress,
			Labels:      []string{"devops", "infrastructure"},
		},
		{
			Title:       "Design user onboarding flow",
			Description: "Create a seamless first-time user experience that guides users through:\n1. Account setup\n2. Team creation\n3. First project setup\n4. Tutorial walkthrough",
			Type:        domain.TypeStory,
			Priority:    domain.PriorityMedium,
			Status:      domain.StatusReview,
			Labels:      []string{"ux", "onboarding"},
		},
		{
			Title:       "Dashboard loading performance",
			Description: "The main dashboard takes 3+ seconds to load. Need to investigate and optimize:\n- API response times\n- Bundle size\n- Lazy loading opportunities",
			Type:        domain.TypeBug,
			Priority:    domain.PriorityLow,
			Status:      domain.StatusTodo,
			Labels:      []string{"performance", "frontend"},
		},
	}
}

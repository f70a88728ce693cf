/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nexushq/nexus/internal/config"
	"github.com/rs/zerolog"
)

// Client sends transactional email through the Resend HTTP API.
type Client struct {
	key    string
	from   string
	appURL string
	base   string
	http   *http.Client
	log    zerolog.Logger
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
	return &Client{
		key:    cfg.MailAPIKey,
		from:   cfg.MailFrom,
		appURL: strings.TrimRight(cfg.AppBaseURL, "/"),
		base:   "https://api.resend.com",
		http:   &http.Client{Timeout: cfg.MailTimeout},
		log:    log,
	}
}

// SendInvite renders and dispatches one invitation email. Returns the
// provider message id on success.
func (c *Client) SendInvite(ctx context.Context, email, orgName, role, token, inviterName string) (string, error) {
	if c.key == "" {
		return "", fmt.Errorf("mail: missing api key")
	}
	if email == "" || orgName == "" || token == "" {
		return "", fmt.Errorf("mail: missing required fields: email, organizationName, or token")
	}

	inviteURL := c.appURL + "/invite?token=" + token
	body := map[string]any{
		"from":    c.from,
		"to":      []string{email},
		"subject": fmt.Sprintf("You're invited to join %s on Nexus", orgName),
		"html":    renderInviteHTML(email, orgName, role, inviterName, inviteURL),
	}
	b, _ := json.Marshal(body)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/emails", bytes.NewReader(b))
	req.Header.Set("Authorization", "Bearer "+c.key)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("mail send status=%d body=%s", resp.StatusCode, string(raw))
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func roleLabel(role string) string {
	if role == "" {
		return role
	}
	return strings.ToUpper(role[:1]) + role[1:]
}

func roleDescription(role string) string {
	switch role {
	case "admin":
		return "Full access to organization settings, members, and all projects."
	case "manager":
		return "Can manage projects, sprints, and assign tickets."
	default:
		return "Can view and work on assigned projects and tickets."
	}
}

func renderInviteHTML(email, orgName, role, inviterName, inviteURL string) string {
	label := roleLabel(role)
	invitedBy := "You've been"
	if inviterName != "" {
		invitedBy = inviterName + " has"
	}
	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><body style=\"margin:0;padding:0;background-color:#0a0b0f;font-family:'Inter',-apple-system,sans-serif;\">")
	b.WriteString("<h1 style=\"color:#f8fafc;\">You're Invited!</h1>")
	fmt.Fprintf(&b, "<p style=\"color:#94a3b8;\">%s invited to join <strong style=\"color:#f8fafc;\">%s</strong> on Nexus as a <strong style=\"color:#f8fafc;\">%s</strong>.</p>", invitedBy, orgName, label)
	b.WriteString("<p style=\"color:#94a3b8;\">Nexus is an AI-first ticket management platform that helps teams collaborate, track work, and ship faster.</p>")
	fmt.Fprintf(&b, "<p><a href=\"%s\" style=\"display:inline-block;background:linear-gradient(135deg,#3b82f6,#6366f1);color:#ffffff;text-decoration:none;font-weight:600;padding:14px 32px;border-radius:8px;\">Accept Invitation</a></p>", inviteURL)
	fmt.Fprintf(&b, "<p style=\"color:#64748b;\">Your Role: <strong style=\"color:#f8fafc;\">%s</strong><br>%s</p>", label, roleDescription(role))
	fmt.Fprintf(&b, "<p style=\"color:#64748b;font-size:13px;\">If the button doesn't work, copy and paste this link into your browser:<br><a href=\"%s\" style=\"color:#3b82f6;\">%s</a></p>", inviteURL, inviteURL)
	fmt.Fprintf(&b, "<p style=\"color:#64748b;font-size:13px;\">This invitation was sent to %s. If you didn't expect this invitation, you can safely ignore this email.</p>", email)
	b.WriteString("<p style=\"color:#475569;font-size:12px;\">Powered by <strong>Nexus</strong> &middot; AI-First Ticket Management</p>")
	b.WriteString("</body></html>")
	return b.String()
}

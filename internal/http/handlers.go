/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/nexushq/nexus/internal/ai"
	"github.com/nexushq/nexus/internal/config"
	"github.com/nexushq/nexus/internal/provision"
)

type chatService interface {
	ValidateMessages(msgs []ai.Message) error
	Stream(ctx context.Context, msgs []ai.Message, action string, chatCtx *ai.Context) (io.ReadCloser, error)
	StreamCopilot(ctx context.Context, action string, data *ai.CopilotData) (io.ReadCloser, error)
}

type triageService interface {
	Validate(req ai.TriageRequest) error
	Triage(ctx context.Context, req ai.TriageRequest) (ai.TriageOutcome, error)
}

type bootstrapService interface {
	Bootstrap(ctx context.Context, userID string, req provision.BootstrapRequest) (provision.BootstrapResult, error)
}

type inviteMailer interface {
	SendInvite(ctx context.Context, email, orgName, role, token, inviterName string) (string, error)
}

type Handlers struct {
	cfg    config.Config
	log    zerolog.Logger
	chat   chatService
	triage triageService
	boot   bootstrapService
	mail   inviteMailer
}

func NewHandlers(cfg config.Config, log zerolog.Logger, chat chatService, triage triageService, boot bootstrapService, mail inviteMailer) *Handlers {
	return &Handlers{cfg: cfg, log: log, chat: chat, triage: triage, boot: boot, mail: mail}
}

func (h *Handlers) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// aiError maps the failure taxonomy to client-facing statuses without
// leaking backend detail.
func (h *Handlers) aiError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ai.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ai.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded. Please try again in a moment."})
	case errors.Is(err, ai.ErrQuotaExhausted):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "AI credits exhausted. Please try again later."})
	case errors.Is(err, ai.ErrNotConfigured):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "AI service is not configured."})
	default:
		h.log.Error().Err(err).Str("p", c.FullPath()).Msg("ai backend failure")
		c.JSON(http.StatusBadGateway, gin.H{"error": "AI service temporarily unavailable. Please try again."})
	}
}

// relay copies the upstream SSE body to the client unmodified, flushing
// after every read so partial frames reach the browser promptly.
func (h *Handlers) relay(c *gin.Context, body io.ReadCloser) {
	defer body.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.WriteHeaderNow()

	buf := make([]byte, 4096)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := c.Writer.Write(buf[:n]); werr != nil {
				return
			}
			c.Writer.Flush()
		}
		if err != nil {
			if err != io.EOF && !errors.Is(err, context.Canceled) {
				h.log.Warn().Err(err).Msg("stream relay interrupted")
			}
			return
		}
	}
}

func (h *Handlers) Chat(c *gin.Context) {
	var req struct {
		Messages []ai.Message `json:"messages"`
		Action   string       `json:"action"`
		Context  *ai.Context  `json:"context,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := h.chat.ValidateMessages(req.Messages); err != nil {
		h.aiError(c, err)
		return
	}
	body, err := h.chat.Stream(c.Request.Context(), req.Messages, req.Action, req.Context)
	if err != nil {
		h.aiError(c, err)
		return
	}
	h.relay(c, body)
}

func (h *Handlers) Copilot(c *gin.Context) {
	var req struct {
		Action         string          `json:"action"`
		OrganizationID string          `json:"organizationId"`
		Data           *ai.CopilotData `json:"data,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.OrganizationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "organizationId is required"})
		return
	}
	if !ai.ValidCopilotAction(req.Action) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown copilot action"})
		return
	}
	body, err := h.chat.StreamCopilot(c.Request.Context(), req.Action, req.Data)
	if err != nil {
		h.aiError(c, err)
		return
	}
	h.relay(c, body)
}

func (h *Handlers) Triage(c *gin.Context) {
	var req ai.TriageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := h.triage.Validate(req); err != nil {
		h.aiError(c, err)
		return
	}
	ctx := c.Request.Context()
	if h.cfg.AITimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.AITimeout)
		defer cancel()
	}
	out, err := h.triage.Triage(ctx, req)
	if err != nil {
		h.aiError(c, err)
		return
	}
	if out.Triage != nil {
		c.JSON(http.StatusOK, gin.H{"success": true, "triage": out.Triage, "ticketId": req.TicketID})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": out.Message})
}

func (h *Handlers) Bootstrap(c *gin.Context) {
	p, ok := principalFrom(c)
	if !ok || p.UserID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	var req provision.BootstrapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	res, err := h.boot.Bootstrap(c.Request.Context(), p.UserID, req)
	if err != nil {
		if errors.Is(err, provision.ErrNameRequired) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}
		h.log.Error().Err(err).Msg("bootstrap failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to set up organization"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"organization": res.Organization,
		"project":      res.Project,
		"sprint":       res.Sprint,
		"redirectTo":   res.RedirectTo,
	})
}

func (h *Handlers) InviteEmail(c *gin.Context) {
	var req struct {
		Email            string `json:"email"`
		OrganizationName string `json:"organizationName"`
		Role             string `json:"role"`
		Token            string `json:"token"`
		InviterName      string `json:"inviterName,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.Email == "" || req.OrganizationName == "" || req.Token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email, organizationName and token are required"})
		return
	}
	id, err := h.mail.SendInvite(c.Request.Context(), req.Email, req.OrganizationName, req.Role, req.Token, req.InviterName)
	if err != nil {
		h.log.Error().Err(err).Str("email", req.Email).Msg("invite email failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to send invitation email"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "id": id})
}

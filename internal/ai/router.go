/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package ai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nexushq/nexus/internal/config"
	"github.com/rs/zerolog"
)

// Gateway streams one chat completion request. It returns the raw
// response body for 2xx answers; otherwise the status code with a nil
// body. A non-nil error means the call never reached the backend.
type Gateway interface {
	StreamChat(ctx context.Context, payload map[string]any) (io.ReadCloser, int, error)
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Context carries opaque entity identifiers appended as an annotation
// to the trailing user turn. No validation happens here.
type Context struct {
	OrganizationID string `json:"organizationId,omitempty"`
	ProjectID      string `json:"projectId,omitempty"`
	SprintID       string `json:"sprintId,omitempty"`
	TicketID       string `json:"ticketId,omitempty"`
}

// Router selects a system prompt and optional tool schema by action and
// relays the model's streaming response byte-for-byte. It holds no
// per-request state.
type Router struct {
	cfg config.Config
	log zerolog.Logger
	gw  Gateway
}

func NewRouter(cfg config.Config, log zerolog.Logger, gw Gateway) *Router {
	return &Router{cfg: cfg, log: log, gw: gw}
}

// ValidateMessages enforces the bounded message-list contract: 1 to
// MaxMessages entries, roles restricted to user/assistant, content
// capped at MaxContentLen.
func (r *Router) ValidateMessages(msgs []Message) error {
	if len(msgs) == 0 || len(msgs) > r.cfg.MaxMessages {
		return fmt.Errorf("%w: messages must be an array of 1-%d entries", ErrInvalidInput, r.cfg.MaxMessages)
	}
	for _, m := range msgs {
		if m.Role != "user" && m.Role != "assistant" {
			return fmt.Errorf("%w: invalid message role %q", ErrInvalidInput, m.Role)
		}
		if len(m.Content) > r.cfg.MaxContentLen {
			return fmt.Errorf("%w: message content too long", ErrInvalidInput)
		}
	}
	return nil
}

// Stream validates, builds the outbound request, and returns the raw
// event-stream body. The caller owns closing it.
func (r *Router) Stream(ctx context.Context, msgs []Message, action string, chatCtx *Context) (io.ReadCloser, error) {
	if strings.TrimSpace(r.cfg.AIGatewayKey) == "" {
		r.log.Error().Msg("ai gateway key is not configured")
		return nil, ErrNotConfigured
	}
	if err := r.ValidateMessages(msgs); err != nil {
		return nil, err
	}
	action = NormalizeAction(action)

	aiMessages := make([]Message, 0, len(msgs)+1)
	aiMessages = append(aiMessages, Message{Role: "system", Content: SystemPrompt(action)})
	aiMessages = append(aiMessages, msgs...)

	if chatCtx != nil {
		last := len(aiMessages) - 1
		if aiMessages[last].Role == "user" {
			aiMessages[last].Content += fmt.Sprintf("\n\n[Context: Organization %s, Project %s]", chatCtx.OrganizationID, chatCtx.ProjectID)
		}
	}

	payload := map[string]any{
		"model":    r.cfg.AIModel,
		"messages": aiMessages,
		"stream":   true,
	}
	switch action {
	case ActionCreateTicket:
		payload["tools"] = []any{createTicketTool()}
	case ActionTriageTicket:
		payload["tools"] = []any{triageTicketTool()}
		payload["tool_choice"] = map[string]any{"type": "function", "function": map[string]any{"name": "triage_ticket"}}
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

func mapGatewayStatus(log zerolog.Logger, status int) error {
	switch status {
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusPaymentRequired:
		return ErrQuotaExhausted
	default:
		log.Error().Int("status", status).Msg("ai gateway error")
		return ErrBackendUnavailable
	}
}

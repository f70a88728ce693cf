/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/nexushq/nexus/internal/config"
)

func NewRouter(cfg config.Config, log zerolog.Logger, chat chatService, triage triageService, boot bootstrapService, mail inviteMailer) *gin.Engine {
	if cfg.AppEnv != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(func(c *gin.Context) {
		c.Next()
		log.Info().Str("m", c.Request.Method).Str("p", c.FullPath()).Int("s", c.Writer.Status()).Msg("http")
	})

	h := NewHandlers(cfg, log, chat, triage, boot, mail)

	r.GET("/healthz", h.Healthz)

	user := r.Group("/", UserAuth(cfg))
	user.POST("/ai/chat", h.Chat)
	user.POST("/ai/copilot", h.Copilot)
	user.POST("/ai/triage", h.Triage)
	user.POST("/orgs/bootstrap", h.Bootstrap)

	r.POST("/invites/email", ServiceOrUserAuth(cfg), h.InviteEmail)

	return r
}

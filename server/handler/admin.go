package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/kbukum/resilience-core/resilience"
	"github.com/kbukum/resilience-core/server"
)

func (h *handlers) breakers(c *gin.Context) {
	statuses := []resilience.Snapshot{}
	if h.deps.Breakers != nil {
		statuses = h.deps.Breakers.Statuses()
	}
	server.RespondOK(c, statuses)
}

func (h *handlers) rateLimit(c *gin.Context) {
	if h.deps.Limiter == nil {
		server.RespondOK(c, gin.H{"mode": "disabled"})
		return
	}
	server.RespondOK(c, h.deps.Limiter.Status())
}

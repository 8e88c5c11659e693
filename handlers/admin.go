package handlers

import (
	"net/http"

	"tripdeal/services/guardrail"
	"tripdeal/utils"

	"github.com/gin-gonic/gin"
)

// AdminHandler exposes operational endpoints: guardrail reload and health.
type AdminHandler struct {
	Guardrails guardrail.Resolver
}

func NewAdminHandler(resolver guardrail.Resolver) *AdminHandler {
	return &AdminHandler{Guardrails: resolver}
}

// ReloadGuardrails refreshes the guardrail profile cache from storage. This
// is the only way profiles change inside a running process.
func (h *AdminHandler) ReloadGuardrails(c *gin.Context) {
	if err := h.Guardrails.Reload(c.Request.Context()); err != nil {
		utils.JSONError(c, http.StatusInternalServerError, "guardrail reload failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"reloaded": true})
}

// Health reports the latest stored health snapshot.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "services": utils.GetHealthStatus()})
}
